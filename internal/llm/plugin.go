// Package llm is the generation module: it builds the configured provider
// adapters, registers them with the Orchestrator, and exposes provider
// administration routes.
package llm

import (
	"cmp"
	"context"
	"fmt"
	"iter"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/rpenyav/ia-backend/internal/llm/gemini"
	"github.com/rpenyav/ia-backend/internal/llm/ollama"
	"github.com/rpenyav/ia-backend/internal/llm/openai"
	pkgllm "github.com/rpenyav/ia-backend/pkg/llm"
	"github.com/rpenyav/ia-backend/pkg/plugin"
)

var (
	_ plugin.Plugin        = (*Module)(nil)
	_ plugin.HealthChecker = (*Module)(nil)
	_ plugin.HTTPProvider  = (*Module)(nil)
)

// ModuleConfig is the "llm" config section.
type ModuleConfig struct {
	Provider           string        `mapstructure:"provider"`
	DefaultModel       string        `mapstructure:"default_model"`
	DefaultTemperature float64       `mapstructure:"default_temperature"`
	DefaultMaxTokens   int           `mapstructure:"default_max_tokens"`
	Timeout            time.Duration `mapstructure:"timeout"`
	OpenAI             openai.Config `mapstructure:"openai"`
	DeepSeek           openai.Config `mapstructure:"deepseek"`
	Grok               openai.Config `mapstructure:"grok"`
	Gemini             gemini.Config `mapstructure:"gemini"`
	Ollama             ollama.Config `mapstructure:"ollama"`
}

// DefaultModuleConfig returns the built-in provider presets.
func DefaultModuleConfig() ModuleConfig {
	return ModuleConfig{
		Provider:           "openai",
		DefaultTemperature: 0.2,
		DefaultMaxTokens:   2048,
		OpenAI:             openai.OpenAIConfig(),
		DeepSeek:           openai.DeepSeekConfig(),
		Grok:               openai.GrokConfig(),
		Gemini:             gemini.DefaultConfig(),
		Ollama:             ollama.DefaultConfig(),
	}
}

// factory builds one provider from the module config. llm.default_model,
// when set, replaces the provider's own model. A configuration error
// means "not configured"; the provider is left out of the table.
type factory func(cfg ModuleConfig, logger *zap.Logger) (pkgllm.Provider, Defaults, error)

// providerFactories is keyed on the provider id used in config and calls.
// Adding a provider means adding an entry here.
var providerFactories = map[string]factory{
	"openai":   openaiFactory(func(c ModuleConfig) openai.Config { return c.OpenAI }),
	"deepseek": openaiFactory(func(c ModuleConfig) openai.Config { return c.DeepSeek }),
	"grok":     openaiFactory(func(c ModuleConfig) openai.Config { return c.Grok }),
	"gemini": func(cfg ModuleConfig, logger *zap.Logger) (pkgllm.Provider, Defaults, error) {
		gc := cfg.Gemini
		if cfg.Timeout > 0 {
			gc.Timeout = cfg.Timeout
		}
		p, err := gemini.New(gc, logger)
		return p, Defaults{Model: cmp.Or(cfg.DefaultModel, gc.Model), Temperature: gc.Temperature, MaxTokens: gc.MaxTokens}, err
	},
	"ollama": func(cfg ModuleConfig, logger *zap.Logger) (pkgllm.Provider, Defaults, error) {
		oc := cfg.Ollama
		if cfg.Timeout > 0 {
			oc.Timeout = cfg.Timeout
		}
		p, err := ollama.New(oc, logger)
		return p, Defaults{Model: cmp.Or(cfg.DefaultModel, oc.Model), Temperature: oc.Temperature, MaxTokens: oc.MaxTokens}, err
	},
}

func openaiFactory(pick func(ModuleConfig) openai.Config) factory {
	return func(cfg ModuleConfig, logger *zap.Logger) (pkgllm.Provider, Defaults, error) {
		oc := pick(cfg)
		if cfg.Timeout > 0 {
			oc.Timeout = cfg.Timeout
		}
		p, err := openai.New(oc, logger)
		return p, Defaults{Model: cmp.Or(cfg.DefaultModel, oc.Model), Temperature: oc.Temperature, MaxTokens: oc.MaxTokens}, err
	}
}

// Module implements the "llm" plugin.
type Module struct {
	logger       *zap.Logger
	cfg          ModuleConfig
	orchestrator *Orchestrator
}

// New creates the module.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "llm",
		Version:      "1.0.0",
		Description:  "Streaming generation across OpenAI, DeepSeek, Grok, Gemini and Ollama",
		Dependencies: []string{"usage"},
		Required:     true,
		APIVersion:   plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.cfg = DefaultModuleConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("unmarshal llm config: %w", err)
		}
	}

	m.orchestrator = NewOrchestrator(GlobalDefaults{
		Provider:    m.cfg.Provider,
		Model:       m.cfg.DefaultModel,
		Temperature: m.cfg.DefaultTemperature,
		MaxTokens:   m.cfg.DefaultMaxTokens,
	}, resolveSink(deps, m.logger), m.logger)

	for name, build := range providerFactories {
		p, d, err := build(m.cfg, m.logger.Named(name))
		if err != nil {
			if pkgllm.IsConfigurationError(err) {
				m.logger.Debug("provider not configured", zap.String("provider", name), zap.Error(err))
				continue
			}
			return fmt.Errorf("create %s provider: %w", name, err)
		}
		m.orchestrator.Register(p, d)
	}

	m.logger.Info("llm module initialized",
		zap.String("default_provider", m.cfg.Provider),
		zap.Strings("configured", m.orchestrator.Names()),
	)
	return nil
}

// ValidateConfig implements plugin.Validator. An unknown default provider is
// a typo worth refusing; a known but unconfigured one fails per call.
func (m *Module) ValidateConfig() error {
	if _, ok := providerFactories[m.cfg.Provider]; !ok {
		return fmt.Errorf("llm.provider %q is not one of the supported providers", m.cfg.Provider)
	}
	if m.cfg.DefaultMaxTokens < 0 {
		return fmt.Errorf("llm.default_max_tokens must not be negative")
	}
	return nil
}

// Start logs which configured providers answer a model listing. Failures
// are warnings; generation reports its own errors per call.
func (m *Module) Start(ctx context.Context) error {
	for _, name := range m.orchestrator.Names() {
		p, _, _ := m.orchestrator.Provider(name)
		hr, ok := p.(pkgllm.HealthReporter)
		if !ok {
			continue
		}
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		models, err := hr.ListModels(checkCtx)
		cancel()
		if err != nil {
			m.logger.Warn("llm provider not reachable", zap.String("provider", name), zap.Error(err))
			continue
		}
		m.logger.Info("llm provider connected", zap.String("provider", name), zap.Int("models", len(models)))
	}
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	if m.logger != nil {
		m.logger.Info("llm module stopped")
	}
	return nil
}

// Health implements plugin.HealthChecker.
func (m *Module) Health(_ context.Context) plugin.HealthStatus {
	def := m.orchestrator.DefaultProvider()
	if _, _, ok := m.orchestrator.Provider(def); !ok {
		return plugin.HealthStatus{
			Status:  "degraded",
			Message: "default provider " + def + " is not configured",
		}
	}
	return plugin.HealthStatus{Status: "healthy", Details: map[string]string{"default_provider": def}}
}

// Generate delegates to the orchestrator.
func (m *Module) Generate(ctx context.Context, messages []pkgllm.Message, opts ...pkgllm.CallOption) iter.Seq2[string, error] {
	return m.orchestrator.Generate(ctx, messages, opts...)
}

// Orchestrator exposes the underlying orchestrator.
func (m *Module) Orchestrator() *Orchestrator {
	return m.orchestrator
}

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: http.MethodGet, Path: "/providers", Handler: m.handleListProviders},
		{Method: http.MethodPut, Path: "/config", Handler: m.handlePutConfig},
		{Method: http.MethodPost, Path: "/test", Handler: m.handleTestConnection},
	}
}

// resolveSink finds the usage module's sink. Without one, records are only
// logged by the orchestrator.
func resolveSink(deps plugin.Dependencies, logger *zap.Logger) pkgllm.UsageSink {
	if deps.Plugins == nil {
		return nil
	}
	p, ok := deps.Plugins.Resolve("usage")
	if !ok {
		logger.Warn("usage module unavailable; usage records will only be logged")
		return nil
	}
	sink, ok := p.(pkgllm.UsageSink)
	if !ok {
		logger.Warn("usage module does not implement llm.UsageSink")
		return nil
	}
	return sink
}
