// Package usage records one accounting entry per generation attempt and
// exposes the log for reporting.
package usage

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/rpenyav/ia-backend/pkg/llm"
	"github.com/rpenyav/ia-backend/pkg/plugin"
)

var (
	_ plugin.Plugin        = (*Module)(nil)
	_ plugin.HTTPProvider  = (*Module)(nil)
	_ plugin.HealthChecker = (*Module)(nil)
	_ llm.UsageSink        = (*Module)(nil)
)

// Module implements the "usage" plugin. It is the llm module's UsageSink.
type Module struct {
	logger *zap.Logger
	store  Store
}

// New creates the module.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "usage",
		Version:     "1.0.0",
		Description: "Token usage log per provider, user and conversation",
		Required:    true,
		APIVersion:  plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	if deps.Store == nil {
		m.store = NewMemoryStore()
		m.logger.Warn("no database configured; usage records are kept in memory")
		return nil
	}
	if err := deps.Store.Migrate(ctx, "usage", migrations()); err != nil {
		return fmt.Errorf("usage migrations: %w", err)
	}
	m.store = NewSQLiteStore(deps.Store.DB())
	m.logger.Info("usage module initialized")
	return nil
}

func (m *Module) Start(_ context.Context) error { return nil }

func (m *Module) Stop(_ context.Context) error { return nil }

// Record implements llm.UsageSink.
func (m *Module) Record(ctx context.Context, rec llm.UsageRecord) error {
	if err := m.store.Append(ctx, rec); err != nil {
		return err
	}
	m.logger.Debug("usage recorded",
		zap.String("provider", rec.Provider),
		zap.String("model", rec.Model),
		zap.Int("total_tokens", rec.TotalTokens),
	)
	return nil
}

// Store returns the backing store.
func (m *Module) Store() Store {
	return m.store
}

func (m *Module) Health(ctx context.Context) plugin.HealthStatus {
	if _, err := m.store.List(ctx, 1); err != nil {
		return plugin.HealthStatus{Status: "unhealthy", Message: err.Error()}
	}
	return plugin.HealthStatus{Status: "healthy"}
}

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: http.MethodGet, Path: "/", Handler: m.handleList},
		{Method: http.MethodGet, Path: "/users/{id}", Handler: m.handleByUser},
		{Method: http.MethodGet, Path: "/conversations/{id}", Handler: m.handleByConversation},
	}
}
