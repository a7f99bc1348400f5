// Package catalog is the vehicle catalog module: SQLite-backed search used
// by the chat's catalog branch, seeded from YAML.
package catalog

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	pkgcatalog "github.com/rpenyav/ia-backend/pkg/catalog"
	"github.com/rpenyav/ia-backend/pkg/plugin"
)

var (
	_ plugin.Plugin       = (*Module)(nil)
	_ plugin.HTTPProvider = (*Module)(nil)
)

// Config is the "catalog" config section.
type Config struct {
	SeedFile    string `mapstructure:"seed_file"`    // YAML seed; empty uses the bundled one
	SeedOnStart bool   `mapstructure:"seed_on_start"` // import when the table is empty
}

// Module implements the "catalog" plugin.
type Module struct {
	logger *zap.Logger
	cfg    Config
	store  *Store
}

// New creates the module.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "catalog",
		Version:     "1.0.0",
		Description: "Vehicle catalog search for catalog-aware chat answers",
		APIVersion:  plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.cfg = Config{SeedOnStart: true}
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("unmarshal catalog config: %w", err)
		}
	}
	if deps.Store == nil {
		return fmt.Errorf("catalog module requires a database")
	}
	if err := deps.Store.Migrate(ctx, "catalog", migrations()); err != nil {
		return fmt.Errorf("catalog migrations: %w", err)
	}
	m.store = NewStore(deps.Store.DB())
	m.logger.Info("catalog module initialized")
	return nil
}

// Start imports the seed catalog into an empty table.
func (m *Module) Start(ctx context.Context) error {
	if !m.cfg.SeedOnStart {
		return nil
	}
	n, err := m.store.CountProducts(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	cat := pkgcatalog.NewCatalog()
	if m.cfg.SeedFile != "" {
		if cat, err = pkgcatalog.Load(m.cfg.SeedFile); err != nil {
			return err
		}
	}
	imported, err := m.store.ImportSeed(ctx, cat)
	if err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}
	m.logger.Info("catalog seeded", zap.Int("products", imported), zap.String("seed_file", m.cfg.SeedFile))
	return nil
}

func (m *Module) Stop(_ context.Context) error { return nil }

// Store returns the catalog store. Nil before Init.
func (m *Module) Store() *Store {
	return m.store
}

// Search implements Searcher.
func (m *Module) Search(ctx context.Context, f pkgcatalog.Filter) ([]pkgcatalog.Product, error) {
	return m.store.Search(ctx, f)
}

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: http.MethodGet, Path: "/search", Handler: m.handleSearch},
	}
}
