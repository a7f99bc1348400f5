package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rpenyav/ia-backend/pkg/llm"
)

const maxErrorBody = 4096

// geminiStatusError is a non-2xx response from the API.
type geminiStatusError struct {
	StatusCode int
	Status     string // google.rpc status, e.g. RESOURCE_EXHAUSTED
	Message    string
	Body       string
}

func (e *geminiStatusError) Error() string {
	return fmt.Sprintf("gemini: %d %s: %s", e.StatusCode, e.Status, e.Message)
}

// parseStatusError reads a bounded error body.
func parseStatusError(resp *http.Response) *geminiStatusError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	se := &geminiStatusError{StatusCode: resp.StatusCode, Message: resp.Status, Body: string(raw)}

	var env struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if json.Unmarshal(raw, &env) == nil && env.Error.Message != "" {
		se.Message = env.Error.Message
		se.Status = env.Error.Status
	}
	return se
}

// mapError translates HTTP and network errors into llm.ProviderError values.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return llm.NewProviderError(llm.ErrCodeTimeout, "gemini: request timed out or cancelled", err)
	}

	var se *geminiStatusError
	if errors.As(err, &se) {
		lower := strings.ToLower(se.Message)
		code := llm.ErrCodeServerError
		switch {
		case se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden ||
			strings.Contains(lower, "api key not valid"):
			code = llm.ErrCodeAuthentication
		case se.StatusCode == http.StatusPaymentRequired:
			code = llm.ErrCodeInsufficientBalance
		case se.StatusCode == http.StatusTooManyRequests || se.Status == "RESOURCE_EXHAUSTED":
			code = llm.ErrCodeRateLimit
		case se.StatusCode == http.StatusNotFound && strings.Contains(lower, "model"):
			code = llm.ErrCodeModelNotFound
		case strings.Contains(lower, "token count") && strings.Contains(lower, "exceeds"):
			code = llm.ErrCodeContextLength
		case se.StatusCode >= 500:
			code = llm.ErrCodeServerError
		case se.StatusCode >= 400:
			code = llm.ErrCodeInvalidRequest
		}
		return &llm.ProviderError{
			Code:       code,
			Message:    "gemini: " + se.Message,
			StatusCode: se.StatusCode,
			Body:       se.Body,
			Err:        err,
		}
	}

	msg := err.Error()
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "dial tcp") {
		return llm.NewProviderError(llm.ErrCodeUnavailable, "gemini: server unreachable", err)
	}
	return llm.NewProviderError(llm.ErrCodeServerError, "gemini: stream failed", err)
}
