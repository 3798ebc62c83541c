package identity

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repo persists accounts in Postgres. Roles are stored as a comma-joined
// text column and split on read.
type Repo struct {
	db *sql.DB
}

// NewRepo creates a repo.
func NewRepo(db *sql.DB) *Repo {
	return &Repo{db: db}
}

// Insert writes a new account.
func (r *Repo) Insert(ctx context.Context, user User, passwordHash string) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, roles, institute, department, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, user.ID, user.Name, user.Email, passwordHash, joinRoles(user.Roles), user.Institute, user.Department, user.CreatedAt)
	return err
}

// ByEmail returns the account and password hash for an email.
func (r *Repo) ByEmail(ctx context.Context, email string) (User, string, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, roles, institute, department, created_at
		FROM users WHERE email = $1
	`, email)
	var user User
	var hash, roles string
	if err := row.Scan(&user.ID, &user.Name, &user.Email, &hash, &roles, &user.Institute, &user.Department, &user.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, "", ErrUserNotFound
		}
		return User{}, "", err
	}
	user.Roles = splitRoles(roles)
	return user, hash, nil
}

// ByID returns the account for an id.
func (r *Repo) ByID(ctx context.Context, id string) (User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, roles, institute, department, created_at
		FROM users WHERE id = $1
	`, id)
	var user User
	var roles string
	if err := row.Scan(&user.ID, &user.Name, &user.Email, &roles, &user.Institute, &user.Department, &user.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	user.Roles = splitRoles(roles)
	return user, nil
}

func joinRoles(roles []string) string {
	return strings.Join(roles, ",")
}

func splitRoles(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
