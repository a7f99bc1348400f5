package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// eventStream writes server-sent events, one JSON object per event.
type eventStream struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func startEventStream(w http.ResponseWriter) *eventStream {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	s := &eventStream{w: w, rc: http.NewResponseController(w)}
	_ = s.rc.Flush()
	return s
}

// send writes one "data:" event and flushes it to the client.
func (s *eventStream) send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", b); err != nil {
		return err
	}
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

type deltaPayload struct {
	Delta string `json:"delta"`
}

type donePayload struct {
	Done           bool   `json:"done"`
	ConversationID string `json:"conversationId,omitempty"`
}

type errorPayload struct {
	Error         bool   `json:"error"`
	Status        int    `json:"status"`
	Message       string `json:"message"`
	ProviderError string `json:"providerError,omitempty"`
}
