package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rpenyav/ia-backend/pkg/plugin"
)

// ErrNotFound is returned when a setting has no value for a tenant.
var ErrNotFound = errors.New("setting not found")

// Setting is one tenant-scoped key/value pair.
type Setting struct {
	Tenant    string    `json:"tenant"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Repository stores tenant-scoped settings.
type Repository interface {
	Get(ctx context.Context, tenant, key string) (*Setting, error)
	Set(ctx context.Context, tenant, key, value string) error
}

// SQLiteRepository implements Repository on the shared store.
type SQLiteRepository struct {
	db *sql.DB
}

var _ Repository = (*SQLiteRepository)(nil)

// NewSQLiteRepository migrates the settings table and returns a repository.
func NewSQLiteRepository(ctx context.Context, store plugin.Store) (*SQLiteRepository, error) {
	if err := store.Migrate(ctx, "settings", migrations()); err != nil {
		return nil, fmt.Errorf("settings migrations: %w", err)
	}
	return &SQLiteRepository{db: store.DB()}, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, tenant, key string) (*Setting, error) {
	s := Setting{Tenant: tenant, Key: key}
	err := r.db.QueryRowContext(ctx,
		`SELECT value, updated_at FROM settings WHERE tenant = ? AND key = ?`,
		tenant, key,
	).Scan(&s.Value, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get setting %s/%s: %w", tenant, key, err)
	}
	return &s, nil
}

func (r *SQLiteRepository) Set(ctx context.Context, tenant, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settings (tenant, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(tenant, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		tenant, key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set setting %s/%s: %w", tenant, key, err)
	}
	return nil
}

func migrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "create settings table",
			Up: func(tx *sql.Tx) error {
				_, err := tx.Exec(`CREATE TABLE settings (
					tenant     TEXT NOT NULL,
					key        TEXT NOT NULL,
					value      TEXT NOT NULL,
					updated_at DATETIME NOT NULL,
					PRIMARY KEY (tenant, key)
				)`)
				return err
			},
		},
	}
}
