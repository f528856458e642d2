package services

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/accounthub/apiserver/internal/auth"
	"github.com/accounthub/apiserver/internal/store"
	"github.com/accounthub/apiserver/types"
)

// ErrMissingFields is returned when a registration omits a required field.
var ErrMissingFields = errors.New("username, email and password are required")

// ErrUnableToLogin is returned for unknown emails and wrong passwords
// alike, so a caller cannot tell which of the two checks failed.
var ErrUnableToLogin = errors.New("Unable to login")

// ErrUnauthorized is returned when a presented token is missing, invalid,
// expired, or revoked.
var ErrUnauthorized = errors.New("unauthorized")

// ErrNoSession is returned when a logout runs without a resolved user and
// token, which indicates an inconsistent request context.
var ErrNoSession = errors.New("No tokens found for this user.")

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, user types.User) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	GetByID(ctx context.Context, id string) (types.User, error)
	AddToken(ctx context.Context, id, token string) error
	RemoveToken(ctx context.Context, id, token string) error
	ClearTokens(ctx context.Context, id string) error
}

// SessionService orchestrates registration, login and logout on top of the
// user repository, password hasher and token issuer.
type SessionService struct {
	repo   UserRepository
	hasher *auth.Hasher
	tokens *auth.TokenIssuer
}

func NewSessionService(repo UserRepository, hasher *auth.Hasher, tokens *auth.TokenIssuer) *SessionService {
	return &SessionService{
		repo:   repo,
		hasher: hasher,
		tokens: tokens,
	}
}

// Register creates a new account with a hashed credential. It does not log
// the user in.
func (s *SessionService) Register(ctx context.Context, username, email, password string) error {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" || password == "" {
		return ErrMissingFields
	}

	hashed, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}

	_, err = s.repo.Create(ctx, types.User{
		Username:     username,
		Email:        email,
		PasswordHash: hashed,
	})
	return err
}

// Login verifies credentials and mints a bearer token for the account.
// The token is appended to the user's active-token list before it is
// returned, so it is live as soon as the client receives it.
func (s *SessionService) Login(ctx context.Context, email, password string) (types.User, string, error) {
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, "", ErrUnableToLogin
		}
		return types.User{}, "", err
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return types.User{}, "", ErrUnableToLogin
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return types.User{}, "", err
	}
	if err := s.repo.AddToken(ctx, user.ID, token); err != nil {
		return types.User{}, "", err
	}

	user.Tokens = append(user.Tokens, token)
	return user, token, nil
}

// Authenticate resolves a presented bearer token to a live user. A token
// that verifies but is no longer in the user's active list has been
// revoked and is rejected.
func (s *SessionService) Authenticate(ctx context.Context, tokenString string) (types.User, error) {
	userID, err := s.tokens.Verify(tokenString)
	if err != nil {
		return types.User{}, ErrUnauthorized
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrUnauthorized
		}
		return types.User{}, err
	}

	if !slices.Contains(user.Tokens, tokenString) {
		return types.User{}, ErrUnauthorized
	}
	return user, nil
}

// Logout revokes the presented token for this user only. Other sessions
// stay active.
func (s *SessionService) Logout(ctx context.Context, user types.User, tokenString string) error {
	if user.ID == "" || tokenString == "" {
		return ErrNoSession
	}
	return s.repo.RemoveToken(ctx, user.ID, tokenString)
}

// LogoutAll revokes every active token for the user.
func (s *SessionService) LogoutAll(ctx context.Context, user types.User) error {
	if user.ID == "" {
		return ErrNoSession
	}
	return s.repo.ClearTokens(ctx, user.ID)
}
