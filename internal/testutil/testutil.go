// Package testutil holds shared test helpers.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/rpenyav/ia-backend/internal/config"
	"github.com/rpenyav/ia-backend/internal/store"
	"github.com/rpenyav/ia-backend/pkg/plugin"
)

// NewStore opens a SQLite store in a temp dir, closed on cleanup.
func NewStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// MigratedDB opens a store and applies one module's migrations.
func MigratedDB(t *testing.T, module string, migrations []plugin.Migration) *store.SQLiteStore {
	t.Helper()
	s := NewStore(t)
	if err := s.Migrate(context.Background(), module, migrations); err != nil {
		t.Fatalf("migrate %s: %v", module, err)
	}
	return s
}

// NewConfig returns a plugin.Config holding values. Dotted keys nest.
func NewConfig(values map[string]any) plugin.Config {
	v := viper.New()
	for k, val := range values {
		v.Set(k, val)
	}
	return config.New(v)
}

// Deps returns module dependencies with a no-op logger.
func Deps(cfg plugin.Config, s plugin.Store) plugin.Dependencies {
	return plugin.Dependencies{Config: cfg, Logger: zap.NewNop(), Store: s}
}
