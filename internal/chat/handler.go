package chat

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/rpenyav/ia-backend/internal/auth"
)

// maxRequestBytes bounds a turn request body.
const maxRequestBytes = 1 << 20

// StreamRequest is the body of POST /chat/stream.
type StreamRequest struct {
	ConversationID string            `json:"conversationId,omitempty"`
	Message        string            `json:"message"`
	Attachments    []AttachmentInput `json:"attachments,omitempty"`
}

func (m *Module) handleStream(w http.ResponseWriter, r *http.Request) {
	m.guard(http.HandlerFunc(m.serveStream)).ServeHTTP(w, r)
}

// serveStream streams one turn as server-sent events: {"delta":...} per
// fragment, then {"done":true} or {"error":true,...}. Request errors found
// before the stream opens are returned as problem responses.
func (m *Module) serveStream(w http.ResponseWriter, r *http.Request) {
	var req StreamRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	in := TurnInput{
		ConversationID: req.ConversationID,
		Message:        req.Message,
		Attachments:    req.Attachments,
	}
	if claims := auth.UserFromContext(r.Context()); claims != nil {
		in.UserID = claims.CallerID()
	}
	if len(in.Attachments) > 0 && (m.mode == auth.ModeNone || in.UserID == "") {
		writeError(w, http.StatusBadRequest, msgAttachmentsNotAllowed)
		return
	}

	stream := startEventStream(w)
	for ev := range m.controller.StreamTurn(r.Context(), in) {
		var payload any
		switch {
		case ev.Err != nil:
			p := errorPayload{Error: true, Status: ev.Err.Status, Message: ev.Err.Message}
			if m.cfg.ExposeProviderErrors {
				p.ProviderError = ev.Err.ProviderError
			}
			payload = p
		case ev.Done:
			payload = donePayload{Done: true, ConversationID: ev.ConversationID}
		default:
			payload = deltaPayload{Delta: ev.Delta}
		}
		if err := stream.send(payload); err != nil {
			m.logger.Debug("client went away", zap.Error(err))
			return
		}
	}
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
