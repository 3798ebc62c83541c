// Package identity owns user accounts: sign-up, sign-in, and the
// current-user lookup the access guard rehydrates sessions through.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"rollcall/internal/auth"
	"rollcall/internal/guard"
)

var (
	// ErrEmailTaken rejects a sign-up for an existing address.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials covers unknown emails and wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrUserNotFound means the token's subject no longer exists.
	ErrUserNotFound = errors.New("user not found")
	// ErrWeakPassword rejects passwords under the minimum length.
	ErrWeakPassword = errors.New("password must be at least 8 characters")
)

// User is one account. Roles are the tags the guard evaluates.
type User struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Roles      []string  `json:"roles"`
	Institute  string    `json:"institute,omitempty"`
	Department string    `json:"department,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store is the persistence boundary for accounts.
type Store interface {
	Insert(ctx context.Context, user User, passwordHash string) error
	ByEmail(ctx context.Context, email string) (User, string, error)
	ByID(ctx context.Context, id string) (User, error)
}

// Service coordinates account operations and token issue.
type Service struct {
	store      Store
	issuer     string
	signingKey string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewService creates a service.
func NewService(store Store, issuer, signingKey string, accessTTL, refreshTTL time.Duration) *Service {
	return &Service{
		store:      store,
		issuer:     issuer,
		signingKey: signingKey,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// SignUp registers an account and signs it in. Actors without explicit roles
// are students.
func (s *Service) SignUp(ctx context.Context, name, email, password string, roles []string) (User, auth.TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" {
		return User{}, auth.TokenPair{}, errors.New("name and email required")
	}
	if len(password) < 8 {
		return User{}, auth.TokenPair{}, ErrWeakPassword
	}
	if len(roles) == 0 {
		roles = []string{string(guard.RoleStudent)}
	}

	if _, _, err := s.store.ByEmail(ctx, email); err == nil {
		return User{}, auth.TokenPair{}, ErrEmailTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return User{}, auth.TokenPair{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, auth.TokenPair{}, err
	}

	user := User{Name: name, Email: email, Roles: roles, CreatedAt: time.Now().UTC()}
	if err := s.store.Insert(ctx, user, string(hash)); err != nil {
		return User{}, auth.TokenPair{}, err
	}
	stored, _, err := s.store.ByEmail(ctx, email)
	if err != nil {
		return User{}, auth.TokenPair{}, err
	}

	pair, err := auth.Issue(stored.ID, stored.Roles, s.issuer, s.signingKey, s.accessTTL, s.refreshTTL)
	if err != nil {
		return User{}, auth.TokenPair{}, err
	}
	return stored, pair, nil
}

// SignIn checks credentials and issues tokens. Unknown email and wrong
// password are indistinguishable to the caller.
func (s *Service) SignIn(ctx context.Context, email, password string) (User, auth.TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, hash, err := s.store.ByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, auth.TokenPair{}, ErrInvalidCredentials
		}
		return User{}, auth.TokenPair{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return User{}, auth.TokenPair{}, ErrInvalidCredentials
	}

	pair, err := auth.Issue(user.ID, user.Roles, s.issuer, s.signingKey, s.accessTTL, s.refreshTTL)
	if err != nil {
		return User{}, auth.TokenPair{}, err
	}
	return user, pair, nil
}

// CurrentUser resolves a token into a live guard session. This is the one
// identity round trip the guard's rehydration window waits on. Roles come
// from the stored account, not the token, so revocations take effect on the
// next rehydration.
func (s *Service) CurrentUser(ctx context.Context, token string) (*guard.Session, error) {
	claims, err := auth.Parse(token, s.signingKey, s.issuer)
	if err != nil {
		return nil, err
	}
	user, err := s.store.ByID(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	profile, err := json.Marshal(user)
	if err != nil {
		return nil, err
	}
	return guard.NewSession(true, guard.ParseRoles(user.Roles), user.ID, profile), nil
}
