package server

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the "server" config section.
type Config struct {
	Host           string          `mapstructure:"host"`
	Port           int             `mapstructure:"port"`
	ReadTimeout    time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration   `mapstructure:"write_timeout"` // 0 lets chat streams run as long as the provider
	IdleTimeout    time.Duration   `mapstructure:"idle_timeout"`
	AllowedOrigins []string        `mapstructure:"allowed_origins"` // empty allows every origin
	RateLimit      RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig sets the per-client token bucket.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// Addr returns the listen address as host:port.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DefaultConfig returns the server defaults.
func DefaultConfig() Config {
	return Config{
		Host:        "0.0.0.0",
		Port:        8080,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
		RateLimit:   RateLimitConfig{RPS: 20, Burst: 40},
	}
}

// ServerConfig decodes the server section of v over the defaults.
func ServerConfig(v *viper.Viper) (Config, error) {
	cfg := DefaultConfig()
	if sub := v.Sub("server"); sub != nil {
		if err := sub.Unmarshal(&cfg); err != nil {
			return Config{}, fmt.Errorf("unmarshal server config: %w", err)
		}
	}
	for i, o := range cfg.AllowedOrigins {
		cfg.AllowedOrigins[i] = strings.TrimSuffix(strings.TrimSpace(o), "/")
	}
	return cfg, nil
}

// legacyEnv maps config keys to the environment names earlier deployments
// used. IA_-prefixed names always work as well.
var legacyEnv = map[string]string{
	"server.port":            "PORT",
	"server.allowed_origins": "ALLOWED_ORIGINS",
	"llm.provider":           "DEFAULT_LLM_PROVIDER",
	"llm.default_model":      "DEFAULT_LLM_MODEL",
	"llm.openai.api_key":     "OPENAI_API_KEY",
	"llm.openai.base_url":    "OPENAI_BASE_URL",
	"llm.deepseek.api_key":   "DEEPSEEK_API_KEY",
	"llm.deepseek.base_url":  "DEEPSEEK_BASE_URL",
	"llm.grok.api_key":       "GROK_API_KEY",
	"llm.grok.base_url":      "GROK_BASE_URL",
	"llm.gemini.api_key":     "GEMINI_API_KEY",
	"llm.gemini.base_url":    "GEMINI_BASE_URL",
	"auth.mode":              "CHAT_AUTH_MODE",
	"auth.jwt_secret":        "JWT_SECRET",
	"app.id":                 "APP_ID",
}

// LoadConfig reads configuration from file and environment variables and
// returns a resolved snapshot. Every key needs a default so that
// environment overrides reach module sections through Sub.
func LoadConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "0s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.rate_limit.rps", 20)
	v.SetDefault("server.rate_limit.burst", 40)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("database.path", "./data/ia-backend.db")
	v.SetDefault("app.id", "default")

	v.SetDefault("auth.mode", "none")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "ia-backend")
	v.SetDefault("auth.access_token_ttl", "24h")

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.default_model", "")
	v.SetDefault("llm.default_temperature", 0.2)
	v.SetDefault("llm.default_max_tokens", 2048)
	v.SetDefault("llm.timeout", "0s")
	v.SetDefault("llm.openai.api_key", "")
	v.SetDefault("llm.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.openai.model", "gpt-4o-mini")
	v.SetDefault("llm.openai.include_usage", true)
	v.SetDefault("llm.openai.vision", true)
	v.SetDefault("llm.deepseek.api_key", "")
	v.SetDefault("llm.deepseek.base_url", "https://api.deepseek.com/v1")
	v.SetDefault("llm.deepseek.model", "deepseek-chat")
	v.SetDefault("llm.grok.api_key", "")
	v.SetDefault("llm.grok.base_url", "https://api.x.ai/v1")
	v.SetDefault("llm.grok.model", "grok-4-latest")
	v.SetDefault("llm.grok.temperature", 0.0)
	v.SetDefault("llm.gemini.api_key", "")
	v.SetDefault("llm.gemini.base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("llm.gemini.model", "gemini-3-pro-preview")
	v.SetDefault("llm.ollama.url", "")
	v.SetDefault("llm.ollama.model", "qwen2.5:7b")

	v.SetDefault("catalog.seed_file", "")
	v.SetDefault("catalog.seed_on_start", true)

	v.SetDefault("conversation.backend", "sqlite")
	v.SetDefault("conversation.badger.dir", "./data/conversations")
	v.SetDefault("conversation.badger.in_memory", false)

	v.SetDefault("chat.max_doc_chars", 6000)
	v.SetDefault("chat.max_doc_lines", 0)
	v.SetDefault("chat.catalog_limit", 5)
	v.SetDefault("chat.debug_classification", false)
	v.SetDefault("chat.expose_provider_errors", false)
	v.SetDefault("chat.ingest.timeout", "30s")
	v.SetDefault("chat.ingest.retry_max", 2)
	v.SetDefault("chat.ingest.max_bytes", 20<<20)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("ia-backend")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/ia-backend")
	}

	// IA_LLM_OPENAI_API_KEY overrides llm.openai.api_key.
	v.SetEnvPrefix("IA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, "IA_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	snapshot := viper.New()
	if err := snapshot.MergeConfigMap(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("resolve config: %w", err)
	}
	return snapshot, nil
}
