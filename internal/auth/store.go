package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rpenyav/ia-backend/pkg/plugin"
)

// ErrEmailTaken is returned when an account with the same email exists.
var ErrEmailTaken = errors.New("email already registered")

// UserStore keeps local accounts in the shared SQLite database.
type UserStore struct {
	db *sql.DB
}

// NewUserStore applies the auth migrations and returns the store.
func NewUserStore(ctx context.Context, store plugin.Store) (*UserStore, error) {
	if err := store.Migrate(ctx, "auth", userMigrations()); err != nil {
		return nil, fmt.Errorf("auth migrations: %w", err)
	}
	return &UserStore{db: store.DB()}, nil
}

// CreateUser inserts u with its email normalised.
func (s *UserStore) CreateUser(ctx context.Context, u *User) error {
	u.Email = normalizeEmail(u.Email)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO auth_users (id, email, name, password_hash, created_at, disabled) VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, nullable(u.Name), u.PasswordHash, u.CreatedAt, u.Disabled)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: auth_users.email") {
			return ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUserByEmail looks an account up by email, ignoring case and
// surrounding space. A missing account yields sql.ErrNoRows.
func (s *UserStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var (
		u    User
		name sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, name, password_hash, created_at, disabled FROM auth_users WHERE email = ?`,
		normalizeEmail(email),
	).Scan(&u.ID, &u.Email, &name, &u.PasswordHash, &u.CreatedAt, &u.Disabled)
	if err != nil {
		return nil, err
	}
	u.Name = name.String
	return &u, nil
}

// CountUsers returns how many accounts exist.
func (s *UserStore) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM auth_users`).Scan(&n)
	return n, err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func userMigrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "create auth_users table",
			Up: func(tx *sql.Tx) error {
				_, err := tx.Exec(`CREATE TABLE auth_users (
					id            TEXT PRIMARY KEY,
					email         TEXT NOT NULL UNIQUE,
					name          TEXT,
					password_hash TEXT NOT NULL,
					created_at    DATETIME NOT NULL,
					disabled      INTEGER NOT NULL DEFAULT 0
				)`)
				return err
			},
		},
	}
}
