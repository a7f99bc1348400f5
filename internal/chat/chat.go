// Package chat runs a chat turn end to end and streams it to the caller as
// server-sent events.
package chat

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/rpenyav/ia-backend/internal/auth"
	"github.com/rpenyav/ia-backend/internal/conversation"
	"github.com/rpenyav/ia-backend/internal/ingest"
	"github.com/rpenyav/ia-backend/internal/settings"
	"github.com/rpenyav/ia-backend/pkg/plugin"
)

var (
	_ plugin.Plugin        = (*Module)(nil)
	_ plugin.HTTPProvider  = (*Module)(nil)
	_ plugin.HealthChecker = (*Module)(nil)
	_ plugin.Validator     = (*Module)(nil)
)

// ModuleConfig is the "chat" config section.
type ModuleConfig struct {
	MaxDocChars          int                `mapstructure:"max_doc_chars"`
	MaxDocLines          int                `mapstructure:"max_doc_lines"`
	CatalogLimit         int                `mapstructure:"catalog_limit"`
	DebugClassification  bool               `mapstructure:"debug_classification"`
	ExposeProviderErrors bool               `mapstructure:"expose_provider_errors"`
	Ingest               ingest.FetchConfig `mapstructure:"ingest"`
}

// DefaultModuleConfig returns the chat defaults.
func DefaultModuleConfig() ModuleConfig {
	return ModuleConfig{
		MaxDocChars:  ingest.DefaultMaxChars,
		CatalogLimit: 5,
		Ingest:       ingest.DefaultFetchConfig(),
	}
}

// conversationProvider is implemented by the conversation module.
type conversationProvider interface {
	Store() conversation.Store
}

// staticPrompt serves the built-in prompt when no resolver is wired.
type staticPrompt string

func (s staticPrompt) SystemPrompt(context.Context) string { return string(s) }

// Module implements the "chat" plugin.
type Module struct {
	logger     *zap.Logger
	cfg        ModuleConfig
	mode       auth.Mode
	guard      func(http.Handler) http.Handler
	prompts    PromptSource
	controller *Controller
}

// New creates the module. Chat is anonymous until SetAuth is called.
func New() *Module {
	return &Module{mode: auth.ModeNone, guard: auth.ChatMiddleware(auth.ModeNone, nil)}
}

// SetAuth selects the chat auth mode. Call before Init.
func (m *Module) SetAuth(mode auth.Mode, tokens *auth.TokenService) {
	m.mode = mode
	m.guard = auth.ChatMiddleware(mode, tokens)
}

// SetPromptSource wires the system prompt resolver. Call before Init.
func (m *Module) SetPromptSource(p PromptSource) {
	m.prompts = p
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "chat",
		Version:      "1.0.0",
		Description:  "Streaming chat turns with catalog and document augmentation",
		Dependencies: []string{"llm", "catalog", "conversation"},
		Required:     true,
		APIVersion:   plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.cfg = DefaultModuleConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("unmarshal chat config: %w", err)
		}
	}
	if deps.Plugins == nil {
		return fmt.Errorf("chat module requires a plugin resolver")
	}

	gen, err := resolve[Generator](deps.Plugins, "llm")
	if err != nil {
		return err
	}
	search, err := resolve[Searcher](deps.Plugins, "catalog")
	if err != nil {
		return err
	}
	convs, err := resolve[conversationProvider](deps.Plugins, "conversation")
	if err != nil {
		return err
	}
	if m.prompts == nil {
		m.prompts = staticPrompt(settings.DefaultSystemPrompt())
	}

	fetcher := ingest.NewFetcher(m.cfg.Ingest, m.logger.Named("fetch"))
	m.controller = NewController(m.controllerConfig(), Deps{
		Generator:     gen,
		Catalog:       search,
		Conversations: convs.Store(),
		Prompts:       m.prompts,
		Documents:     ingest.NewExtractor(fetcher, m.logger.Named("ingest")),
		Logger:        m.logger,
	})

	m.logger.Info("chat module initialized", zap.String("auth_mode", string(m.mode)))
	return nil
}

// ValidateConfig implements plugin.Validator.
func (m *Module) ValidateConfig() error {
	if m.cfg.CatalogLimit < 1 || m.cfg.CatalogLimit > 50 {
		return fmt.Errorf("chat.catalog_limit must be between 1 and 50")
	}
	if m.cfg.MaxDocChars < 1 {
		return fmt.Errorf("chat.max_doc_chars must be positive")
	}
	return nil
}

func (m *Module) Start(_ context.Context) error { return nil }

func (m *Module) Stop(_ context.Context) error { return nil }

// Health implements plugin.HealthChecker.
func (m *Module) Health(_ context.Context) plugin.HealthStatus {
	if m.controller == nil {
		return plugin.HealthStatus{Status: "unhealthy", Message: "chat controller not initialized"}
	}
	return plugin.HealthStatus{Status: "healthy", Details: map[string]string{"auth_mode": string(m.mode)}}
}

// Controller exposes the turn controller.
func (m *Module) Controller() *Controller {
	return m.controller
}

// Routes implements plugin.HTTPProvider. /message is kept for widget
// clients that predate /stream.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: http.MethodPost, Path: "/stream", Handler: m.handleStream},
		{Method: http.MethodPost, Path: "/message", Handler: m.handleStream},
	}
}

func (m *Module) controllerConfig() Config {
	return Config{
		AuthMode:            m.mode,
		MaxDocChars:         m.cfg.MaxDocChars,
		MaxDocLines:         m.cfg.MaxDocLines,
		CatalogLimit:        m.cfg.CatalogLimit,
		DebugClassification: m.cfg.DebugClassification,
	}
}

// resolve looks up a module and asserts the capability the chat needs.
func resolve[T any](plugins plugin.PluginResolver, name string) (T, error) {
	var zero T
	p, ok := plugins.Resolve(name)
	if !ok {
		return zero, fmt.Errorf("chat module requires the %s module", name)
	}
	v, ok := p.(T)
	if !ok {
		return zero, fmt.Errorf("%s module does not provide what chat needs", name)
	}
	return v, nil
}
