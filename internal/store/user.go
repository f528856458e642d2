package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/accounthub/apiserver/types"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// uniqueViolation is the postgres error code for unique constraint failures.
const uniqueViolation = "23505"

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (types.User, error) {
	const query = `
		SELECT id, username, email, password_hash, tokens, created_at, updated_at
		FROM users
		WHERE id = $1`
	var user types.User
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		pq.Array(&user.Tokens),
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	const query = `
		SELECT id, username, email, password_hash, tokens, created_at, updated_at
		FROM users
		WHERE email = $1`
	var user types.User
	err := r.db.QueryRowContext(ctx, query, email).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		pq.Array(&user.Tokens),
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.ID = uuid.NewString()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Tokens == nil {
		user.Tokens = []string{}
	}

	const query = `
		INSERT INTO users (id, username, email, password_hash, tokens, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		pq.Array(user.Tokens),
		user.CreatedAt,
		user.UpdatedAt,
	); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return types.User{}, ErrConflict
		}
		return types.User{}, err
	}
	return user, nil
}

// AddToken appends token to the user's active-token list. The append is a
// single statement so concurrent logins for the same user cannot lose entries.
func (r *UserRepository) AddToken(ctx context.Context, id, token string) error {
	const query = `
		UPDATE users
		SET tokens = array_append(tokens, $1),
			updated_at = $2
		WHERE id = $3`
	return r.execOnUser(ctx, query, token, time.Now(), id)
}

// RemoveToken deletes every stored entry equal to token from the user's
// active-token list.
func (r *UserRepository) RemoveToken(ctx context.Context, id, token string) error {
	const query = `
		UPDATE users
		SET tokens = array_remove(tokens, $1),
			updated_at = $2
		WHERE id = $3`
	return r.execOnUser(ctx, query, token, time.Now(), id)
}

// ClearTokens empties the user's active-token list.
func (r *UserRepository) ClearTokens(ctx context.Context, id string) error {
	const query = `
		UPDATE users
		SET tokens = '{}',
			updated_at = $1
		WHERE id = $2`
	return r.execOnUser(ctx, query, time.Now(), id)
}

func (r *UserRepository) execOnUser(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
