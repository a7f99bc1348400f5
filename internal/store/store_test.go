package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rpenyav/ia-backend/pkg/plugin"
)

func tempDB(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := New(path)
	if err != nil {
		t.Fatalf("New(%q) error = %v", path, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createTable(name string) func(tx *sql.Tx) error {
	return func(tx *sql.Tx) error {
		_, err := tx.Exec("CREATE TABLE " + name + " (id INTEGER PRIMARY KEY)")
		return err
	}
}

func TestNew_InvalidPath(t *testing.T) {
	if _, err := New("/nonexistent/dir/ia.db"); err == nil {
		t.Error("New() expected error for invalid path")
	}
}

func TestTx_CommitAndRollback(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()
	if _, err := s.DB().ExecContext(ctx, "CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT)"); err != nil {
		t.Fatalf("create table: %v", err)
	}

	if err := s.Tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO t (id, name) VALUES (1, 'kept')")
		return err
	}); err != nil {
		t.Fatalf("Tx() commit error = %v", err)
	}

	boom := errors.New("boom")
	err := s.Tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO t (id, name) VALUES (2, 'dropped')"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Tx() error = %v, want %v", err, boom)
	}

	var n int
	if err := s.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM t").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("rows = %d, want 1", n)
	}
}

func TestMigrate_AppliesOnceAndIsolatesModules(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()
	calls := 0
	migs := []plugin.Migration{
		{Version: 1, Description: "create a", Up: func(tx *sql.Tx) error { calls++; return createTable("a")(tx) }},
		{Version: 2, Description: "create b", Up: createTable("b")},
	}

	if err := s.Migrate(ctx, "usage", migs); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := s.Migrate(ctx, "usage", migs); err != nil {
		t.Fatalf("Migrate() second run error = %v", err)
	}
	if calls != 1 {
		t.Errorf("migration 1 ran %d times, want 1", calls)
	}

	// Same version numbers under another module are tracked separately.
	other := []plugin.Migration{{Version: 1, Description: "create c", Up: createTable("c")}}
	if err := s.Migrate(ctx, "catalog", other); err != nil {
		t.Fatalf("Migrate(catalog) error = %v", err)
	}
	var n int
	if err := s.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM _migrations").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Errorf("_migrations rows = %d, want 3", n)
	}
}

func TestMigrate_FailureKeepsEarlierSteps(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()
	migs := []plugin.Migration{
		{Version: 1, Description: "ok", Up: createTable("ok")},
		{Version: 2, Description: "bad", Up: func(tx *sql.Tx) error {
			if err := createTable("half")(tx); err != nil {
				return err
			}
			return errors.New("fail")
		}},
	}
	if err := s.Migrate(ctx, "m", migs); err == nil {
		t.Fatal("Migrate() expected error")
	}
	if _, err := s.DB().ExecContext(ctx, "SELECT * FROM ok"); err != nil {
		t.Errorf("table from migration 1 missing: %v", err)
	}
	if _, err := s.DB().ExecContext(ctx, "SELECT * FROM half"); err == nil {
		t.Error("table from failed migration should have been rolled back")
	}
}

func TestPragmas(t *testing.T) {
	s := tempDB(t)
	var mode string
	if err := s.DB().QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
	var fk int
	if err := s.DB().QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}
}

func TestCheckVersion(t *testing.T) {
	tests := []struct {
		name    string
		stored  string
		current string
		wantErr error
	}{
		{"first run", "", "1.0.0", nil},
		{"same version", "1.0.0", "1.0.0", nil},
		{"upgrade", "1.0.0", "1.2.0", nil},
		{"patch upgrade", "v1.2.0", "1.2.1", nil},
		{"downgrade rejected", "2.0.0", "1.9.9", ErrNewerSchema},
		{"dev binary", "2.0.0", "dev", nil},
		{"dev database", "dev", "0.1.0", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tempDB(t)
			ctx := context.Background()
			if tt.stored != "" {
				if err := s.CheckVersion(ctx, tt.stored); err != nil {
					t.Fatalf("seed CheckVersion(%q) error = %v", tt.stored, err)
				}
			}
			err := s.CheckVersion(ctx, tt.current)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("CheckVersion(%q) error = %v, want %v", tt.current, err, tt.wantErr)
			}
		})
	}
}
