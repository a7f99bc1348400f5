package llm

import (
	"cmp"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	pkgllm "github.com/rpenyav/ia-backend/pkg/llm"
)

// handleListProviders returns the configured providers and their defaults.
func (m *Module) handleListProviders(w http.ResponseWriter, _ *http.Request) {
	def := m.orchestrator.DefaultProvider()
	resp := ProvidersResponse{DefaultProvider: def, Providers: []ProviderInfo{}}
	for _, name := range m.orchestrator.Names() {
		_, d, _ := m.orchestrator.Provider(name)
		resp.Providers = append(resp.Providers, ProviderInfo{
			Name:        name,
			Model:       d.Model,
			Temperature: d.Temperature,
			MaxTokens:   d.MaxTokens,
			Default:     name == def,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handlePutConfig switches the default provider at runtime. Only providers
// that are configured can be selected.
func (m *Module) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var req ConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if _, _, ok := m.orchestrator.Provider(req.Provider); !ok {
		writeError(w, http.StatusBadRequest, "provider "+req.Provider+" is not configured")
		return
	}
	m.orchestrator.SetDefaultProvider(req.Provider)
	m.logger.Info("default llm provider changed", zap.String("provider", req.Provider))
	m.handleListProviders(w, r)
}

// handleTestConnection lists models on ?provider= (default provider if absent).
func (m *Module) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	name := cmp.Or(r.URL.Query().Get("provider"), m.orchestrator.DefaultProvider())
	p, _, ok := m.orchestrator.Provider(name)
	if !ok {
		writeJSON(w, http.StatusOK, TestResponse{Provider: name, Message: "provider is not configured"})
		return
	}
	hr, ok := p.(pkgllm.HealthReporter)
	if !ok {
		writeJSON(w, http.StatusOK, TestResponse{Provider: name, Message: "provider does not support health checks"})
		return
	}
	models, err := hr.ListModels(r.Context())
	if err != nil {
		m.logger.Warn("llm connection test failed", zap.String("provider", name), zap.Error(err))
		writeJSON(w, http.StatusOK, TestResponse{Provider: name, Message: "connection failed"})
		return
	}
	writeJSON(w, http.StatusOK, TestResponse{Provider: name, Success: true, Message: "connected", Models: models})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":   "about:blank",
		"title":  http.StatusText(status),
		"status": status,
		"detail": detail,
	})
}
