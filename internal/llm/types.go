package llm

// ProviderInfo describes one configured provider for GET /llm/providers.
type ProviderInfo struct {
	Name        string   `json:"name"`
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature,omitempty"` // nil means the global default applies
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Default     bool     `json:"default"`
}

// ProvidersResponse is the response for GET /llm/providers.
type ProvidersResponse struct {
	DefaultProvider string         `json:"default_provider"`
	Providers       []ProviderInfo `json:"providers"`
}

// ConfigRequest is the request body for PUT /llm/config.
type ConfigRequest struct {
	Provider string `json:"provider"`
}

// TestResponse is the response for POST /llm/test.
type TestResponse struct {
	Provider string   `json:"provider"`
	Success  bool     `json:"success"`
	Message  string   `json:"message"`
	Models   []string `json:"models,omitempty"`
}
