package usage

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/rpenyav/ia-backend/pkg/llm"
)

// handleList returns the newest records. ?limit= overrides the default cap.
func (m *Module) handleList(w http.ResponseWriter, r *http.Request) {
	limit := DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, DefaultListLimit)
	}
	records, err := m.store.List(r.Context(), limit)
	m.respond(w, records, err)
}

func (m *Module) handleByUser(w http.ResponseWriter, r *http.Request) {
	records, err := m.store.ByUser(r.Context(), r.PathValue("id"))
	m.respond(w, records, err)
}

func (m *Module) handleByConversation(w http.ResponseWriter, r *http.Request) {
	records, err := m.store.ByConversation(r.Context(), r.PathValue("id"))
	m.respond(w, records, err)
}

func (m *Module) respond(w http.ResponseWriter, records []llm.UsageRecord, err error) {
	if err != nil {
		m.logger.Error("usage query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load usage records")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(records)
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
