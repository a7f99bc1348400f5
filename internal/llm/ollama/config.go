package ollama

import "time"

// Config holds the Ollama provider configuration. Ollama needs no
// credential; a non-empty URL is what marks it as configured.
type Config struct {
	URL         string        `mapstructure:"url"`
	Model       string        `mapstructure:"model"`
	Temperature *float64      `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// DefaultConfig returns defaults for a local Ollama daemon. URL is left
// empty so the provider stays off unless configured.
func DefaultConfig() Config {
	return Config{
		Model:   "qwen2.5:7b",
		Timeout: 5 * time.Minute,
	}
}
