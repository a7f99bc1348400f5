// Package conversation persists chat threads for authenticated callers.
// The backend (SQLite or Badger) is chosen once at startup.
package conversation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rpenyav/ia-backend/pkg/plugin"
)

var (
	_ plugin.Plugin        = (*Module)(nil)
	_ plugin.Validator     = (*Module)(nil)
	_ plugin.HealthChecker = (*Module)(nil)
)

const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// Config is the "conversation" config section.
type Config struct {
	Backend string       `mapstructure:"backend"`
	Badger  BadgerConfig `mapstructure:"badger"`
}

// Module implements the "conversation" plugin.
type Module struct {
	logger *zap.Logger
	cfg    Config
	store  Store
	closer func() error
}

// New creates the module.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "conversation",
		Version:     "1.0.0",
		Description: "Conversation and message persistence",
		APIVersion:  plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.cfg = Config{Backend: BackendSQLite}
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("unmarshal conversation config: %w", err)
		}
	}

	switch m.cfg.Backend {
	case BackendSQLite:
		if deps.Store == nil {
			return fmt.Errorf("sqlite conversation backend requires a database")
		}
		if err := deps.Store.Migrate(ctx, "conversation", migrations()); err != nil {
			return fmt.Errorf("conversation migrations: %w", err)
		}
		m.store = NewSQLiteStore(deps.Store.DB())
	case BackendBadger:
		bs, err := OpenBadger(m.cfg.Badger, m.logger.Named("badger"))
		if err != nil {
			return err
		}
		m.store = bs
		m.closer = bs.Close
	default:
		return fmt.Errorf("unknown conversation backend %q", m.cfg.Backend)
	}

	m.logger.Info("conversation module initialized", zap.String("backend", m.cfg.Backend))
	return nil
}

// ValidateConfig implements plugin.Validator.
func (m *Module) ValidateConfig() error {
	if m.cfg.Backend == BackendBadger && !m.cfg.Badger.InMemory && m.cfg.Badger.Dir == "" {
		return fmt.Errorf("conversation.badger.dir is required for the badger backend")
	}
	return nil
}

func (m *Module) Start(_ context.Context) error { return nil }

func (m *Module) Stop(_ context.Context) error {
	if m.closer == nil {
		return nil
	}
	closer := m.closer
	m.closer = nil
	return closer()
}

func (m *Module) Health(_ context.Context) plugin.HealthStatus {
	return plugin.HealthStatus{Status: "healthy", Details: map[string]string{"backend": m.cfg.Backend}}
}

// Store returns the selected backend.
func (m *Module) Store() Store {
	return m.store
}
