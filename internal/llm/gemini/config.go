package gemini

import "time"

// Config holds the Gemini provider configuration.
type Config struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature *float64      `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// DefaultConfig returns the public Generative Language API endpoint.
func DefaultConfig() Config {
	return Config{
		BaseURL: "https://generativelanguage.googleapis.com/v1beta",
		Model:   "gemini-3-pro-preview",
		Timeout: 5 * time.Minute,
	}
}
