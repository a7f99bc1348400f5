package settings

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// PromptResponse is the response for GET /api/v1/settings/prompt.
type PromptResponse struct {
	Tenant   string `json:"tenant"`
	Prompt   string `json:"prompt"`
	Source   string `json:"source"` // "tenant", "global" or "default"
	Override string `json:"override,omitempty"`
}

// PromptRequest is the request body for PUT /api/v1/settings/prompt. An
// empty prompt clears the override.
type PromptRequest struct {
	Tenant string `json:"tenant"`
	Prompt string `json:"prompt"`
}

// Handler provides HTTP handlers for settings endpoints.
type Handler struct {
	repo     Repository
	resolver *PromptResolver
	logger   *zap.Logger
}

// NewHandler creates a settings Handler.
func NewHandler(repo Repository, resolver *PromptResolver, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, resolver: resolver, logger: logger}
}

// RegisterRoutes registers settings routes on the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/settings/prompt", h.handleGetPrompt)
	mux.HandleFunc("PUT /api/v1/settings/prompt", h.handleSetPrompt)
}

// handleGetPrompt reports the prompt the chat uses and where it came from.
func (h *Handler) handleGetPrompt(w http.ResponseWriter, r *http.Request) {
	tenant := h.resolver.Tenant()
	resp := PromptResponse{Tenant: tenant, Prompt: h.resolver.SystemPrompt(r.Context()), Source: "default"}
	for _, scope := range []string{tenant, GlobalTenant} {
		s, err := h.repo.Get(r.Context(), scope, KeySystemPrompt)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			h.logger.Error("failed to read prompt override", zap.Error(err))
			writeSettingsError(w, http.StatusInternalServerError, "failed to read prompt settings")
			return
		}
		if s.Value == resp.Prompt {
			resp.Source = "tenant"
			if scope == GlobalTenant {
				resp.Source = "global"
			}
			resp.Override = s.Value
			break
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleSetPrompt(w http.ResponseWriter, r *http.Request) {
	var req PromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeSettingsError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	tenant := req.Tenant
	if tenant == "" {
		tenant = h.resolver.Tenant()
	}
	if err := h.repo.Set(r.Context(), tenant, KeySystemPrompt, req.Prompt); err != nil {
		h.logger.Error("failed to save prompt override", zap.Error(err))
		writeSettingsError(w, http.StatusInternalServerError, "failed to save prompt")
		return
	}
	h.logger.Info("system prompt updated", zap.String("tenant", tenant), zap.Int("chars", len(req.Prompt)))
	h.handleGetPrompt(w, r)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeSettingsError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":   "about:blank",
		"title":  http.StatusText(status),
		"status": status,
		"detail": detail,
	})
}
