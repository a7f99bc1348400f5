package ollama

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/rpenyav/ia-backend/pkg/llm"
)

// mapError translates Ollama client and network errors into llm.ProviderError values.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return llm.NewProviderError(llm.ErrCodeTimeout, "ollama: request timed out or cancelled", err)
	}

	var se api.StatusError
	if errors.As(err, &se) {
		code := llm.ErrCodeServerError
		lower := strings.ToLower(se.ErrorMessage)
		switch {
		case se.StatusCode == http.StatusUnauthorized:
			code = llm.ErrCodeAuthentication
		case se.StatusCode == http.StatusNotFound && strings.Contains(lower, "model"):
			code = llm.ErrCodeModelNotFound
		case se.StatusCode == http.StatusTooManyRequests:
			code = llm.ErrCodeRateLimit
		case se.StatusCode >= 500:
			code = llm.ErrCodeServerError
		case se.StatusCode >= 400:
			code = llm.ErrCodeInvalidRequest
		}
		return &llm.ProviderError{
			Code:       code,
			Message:    "ollama: " + se.ErrorMessage,
			StatusCode: se.StatusCode,
			Body:       se.ErrorMessage,
			Err:        err,
		}
	}

	msg := err.Error()
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "dial tcp") {
		return llm.NewProviderError(llm.ErrCodeUnavailable, "ollama: server unreachable", err)
	}
	return llm.NewProviderError(llm.ErrCodeServerError, "ollama: stream failed", err)
}
