package openai

import "time"

// Config configures one OpenAI-compatible upstream. The same adapter serves
// OpenAI itself and vendors exposing the chat-completions API on another
// base URL.
type Config struct {
	Name         string        `mapstructure:"-"`
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Model        string        `mapstructure:"model"`
	Temperature  *float64      `mapstructure:"temperature"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	IncludeUsage bool          `mapstructure:"include_usage"` // ask for the trailing usage chunk
	Vision       bool          `mapstructure:"vision"`        // accepts image references
	Timeout      time.Duration `mapstructure:"timeout"`
}

// OpenAIConfig is the preset for api.openai.com.
func OpenAIConfig() Config {
	return Config{
		Name:         "openai",
		BaseURL:      "https://api.openai.com/v1",
		Model:        "gpt-4o-mini",
		IncludeUsage: true,
		Vision:       true,
		Timeout:      5 * time.Minute,
	}
}

// DeepSeekConfig is the preset for the DeepSeek chat API.
func DeepSeekConfig() Config {
	return Config{
		Name:    "deepseek",
		BaseURL: "https://api.deepseek.com/v1",
		Model:   "deepseek-chat",
		Timeout: 5 * time.Minute,
	}
}

// GrokConfig is the preset for xAI. Grok answers deterministically unless
// the caller asks otherwise.
func GrokConfig() Config {
	zero := 0.0
	return Config{
		Name:        "grok",
		BaseURL:     "https://api.x.ai/v1",
		Model:       "grok-4-latest",
		Temperature: &zero,
		Timeout:     5 * time.Minute,
	}
}
