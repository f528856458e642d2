package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/accounthub/apiserver/internal/auth"
	"github.com/accounthub/apiserver/internal/store"
	"github.com/accounthub/apiserver/types"
)

// memoryRepo is an in-memory UserRepository with the same uniqueness and
// not-found semantics as the postgres implementation.
type memoryRepo struct {
	mu    sync.Mutex
	seq   int
	users map[string]types.User
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{users: make(map[string]types.User)}
}

func (r *memoryRepo) Create(ctx context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if existing.Username == user.Username || existing.Email == user.Email {
			return types.User{}, store.ErrConflict
		}
	}

	r.seq++
	user.ID = fmt.Sprintf("user-%d", r.seq)
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	if user.Tokens == nil {
		user.Tokens = []string{}
	}
	r.users[user.ID] = user
	return user, nil
}

func (r *memoryRepo) GetByEmail(ctx context.Context, email string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *memoryRepo) GetByID(ctx context.Context, id string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *memoryRepo) AddToken(ctx context.Context, id, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.Tokens = append(user.Tokens, token)
	r.users[id] = user
	return nil
}

func (r *memoryRepo) RemoveToken(ctx context.Context, id, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return store.ErrNotFound
	}
	kept := make([]string, 0, len(user.Tokens))
	for _, t := range user.Tokens {
		if t != token {
			kept = append(kept, t)
		}
	}
	user.Tokens = kept
	r.users[id] = user
	return nil
}

func (r *memoryRepo) ClearTokens(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.Tokens = []string{}
	r.users[id] = user
	return nil
}

func newTestService(ttl time.Duration) *SessionService {
	repo := newMemoryRepo()
	hasher := auth.NewHasher(4)
	issuer := auth.NewTokenIssuer("test-secret", ttl)
	return NewSessionService(repo, hasher, issuer)
}

func TestRegisterAndLogin(t *testing.T) {
	t.Parallel()

	svc := newTestService(time.Hour)
	ctx := context.Background()

	if err := svc.Register(ctx, "alice", "a@x.com", "pw1"); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	user, token, err := svc.Login(ctx, "a@x.com", "pw1")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if token == "" {
		t.Fatalf("expected a token")
	}
	if user.Username != "alice" {
		t.Fatalf("unexpected username: %q", user.Username)
	}
	if user.PasswordHash == "pw1" {
		t.Fatalf("stored credential equals the plaintext password")
	}
	if !slices.Contains(user.Tokens, token) {
		t.Fatalf("issued token not in the user's token list")
	}
}

func TestRegisterMissingFields(t *testing.T) {
	t.Parallel()

	svc := newTestService(time.Hour)
	ctx := context.Background()

	cases := []struct {
		name     string
		username string
		email    string
		password string
	}{
		{"no username", "", "a@x.com", "pw1"},
		{"no email", "alice", "", "pw1"},
		{"no password", "alice", "a@x.com", ""},
		{"whitespace username", "   ", "a@x.com", "pw1"},
	}
	for _, tc := range cases {
		if err := svc.Register(ctx, tc.username, tc.email, tc.password); !errors.Is(err, ErrMissingFields) {
			t.Fatalf("%s: expected ErrMissingFields, got %v", tc.name, err)
		}
	}
}

func TestRegisterDuplicate(t *testing.T) {
	t.Parallel()

	svc := newTestService(time.Hour)
	ctx := context.Background()

	if err := svc.Register(ctx, "alice", "a@x.com", "pw1"); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	if err := svc.Register(ctx, "bob", "a@x.com", "pw2"); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate email, got %v", err)
	}
	if err := svc.Register(ctx, "alice", "b@x.com", "pw2"); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate username, got %v", err)
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	t.Parallel()

	svc := newTestService(time.Hour)
	ctx := context.Background()

	if err := svc.Register(ctx, "alice", "a@x.com", "pw1"); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	_, _, wrongPassword := svc.Login(ctx, "a@x.com", "wrong")
	_, _, unknownEmail := svc.Login(ctx, "nobody@x.com", "pw1")

	if !errors.Is(wrongPassword, ErrUnableToLogin) {
		t.Fatalf("expected ErrUnableToLogin for wrong password, got %v", wrongPassword)
	}
	if !errors.Is(unknownEmail, ErrUnableToLogin) {
		t.Fatalf("expected ErrUnableToLogin for unknown email, got %v", unknownEmail)
	}
	if wrongPassword.Error() != unknownEmail.Error() {
		t.Fatalf("failure messages differ: %q vs %q", wrongPassword, unknownEmail)
	}
}

func TestAuthenticateAndLogout(t *testing.T) {
	t.Parallel()

	svc := newTestService(time.Hour)
	ctx := context.Background()

	if err := svc.Register(ctx, "alice", "a@x.com", "pw1"); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	user, token, err := svc.Login(ctx, "a@x.com", "pw1")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}

	resolved, err := svc.Authenticate(ctx, token)
	if err != nil {
		t.Fatalf("Authenticate error: %v", err)
	}
	if resolved.ID != user.ID {
		t.Fatalf("resolved wrong user: got %q want %q", resolved.ID, user.ID)
	}

	if err := svc.Logout(ctx, user, token); err != nil {
		t.Fatalf("Logout error: %v", err)
	}

	if _, err := svc.Authenticate(ctx, token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for revoked token, got %v", err)
	}
}

func TestLogoutLeavesOtherSessionsActive(t *testing.T) {
	t.Parallel()

	svc := newTestService(time.Hour)
	ctx := context.Background()

	if err := svc.Register(ctx, "alice", "a@x.com", "pw1"); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	user, first, err := svc.Login(ctx, "a@x.com", "pw1")
	if err != nil {
		t.Fatalf("first Login error: %v", err)
	}
	_, second, err := svc.Login(ctx, "a@x.com", "pw1")
	if err != nil {
		t.Fatalf("second Login error: %v", err)
	}
	if first == second {
		t.Fatalf("two logins produced the same token")
	}

	if err := svc.Logout(ctx, user, first); err != nil {
		t.Fatalf("Logout error: %v", err)
	}

	if _, err := svc.Authenticate(ctx, first); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected revoked token to be rejected, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, second); err != nil {
		t.Fatalf("expected other session to stay active, got %v", err)
	}
}

func TestLogoutAllRevokesEveryToken(t *testing.T) {
	t.Parallel()

	svc := newTestService(time.Hour)
	ctx := context.Background()

	if err := svc.Register(ctx, "alice", "a@x.com", "pw1"); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	user, first, err := svc.Login(ctx, "a@x.com", "pw1")
	if err != nil {
		t.Fatalf("first Login error: %v", err)
	}
	_, second, err := svc.Login(ctx, "a@x.com", "pw1")
	if err != nil {
		t.Fatalf("second Login error: %v", err)
	}

	if err := svc.LogoutAll(ctx, user); err != nil {
		t.Fatalf("LogoutAll error: %v", err)
	}

	for _, token := range []string{first, second} {
		if _, err := svc.Authenticate(ctx, token); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected every token to be revoked, got %v", err)
		}
	}
}

func TestAuthenticateExpiredToken(t *testing.T) {
	t.Parallel()

	svc := newTestService(-1 * time.Second)
	ctx := context.Background()

	if err := svc.Register(ctx, "alice", "a@x.com", "pw1"); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	_, token, err := svc.Login(ctx, "a@x.com", "pw1")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}

	// never revoked, but past its TTL
	if _, err := svc.Authenticate(ctx, token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for expired token, got %v", err)
	}
}

func TestLogoutWithoutSession(t *testing.T) {
	t.Parallel()

	svc := newTestService(time.Hour)
	ctx := context.Background()

	if err := svc.Logout(ctx, types.User{}, ""); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if err := svc.LogoutAll(ctx, types.User{}); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}
