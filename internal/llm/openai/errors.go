package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/rpenyav/ia-backend/pkg/llm"
)

const maxErrorBody = 4096

// statusError is the common shape of SDK API and transport failures.
type statusError struct {
	StatusCode int
	Type       string
	Message    string
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Type, e.Message)
}

func asStatusError(err error) (*statusError, bool) {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return &statusError{
			StatusCode: apiErr.HTTPStatusCode,
			Type:       apiErr.Type,
			Message:    apiErr.Message,
			Body:       apiErr.Error(),
		}, true
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		body := string(reqErr.Body)
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		msg := http.StatusText(reqErr.HTTPStatusCode)
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return &statusError{StatusCode: reqErr.HTTPStatusCode, Message: msg, Body: body}, true
	}
	return nil, false
}

// mapError translates SDK and network errors into llm.ProviderError values
// tagged with the provider name.
func mapError(name string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := llm.AsProviderError(err); ok {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return llm.NewProviderError(llm.ErrCodeTimeout, name+": request timed out or cancelled", err)
	}

	if se, ok := asStatusError(err); ok {
		lower := strings.ToLower(se.Message)
		code := llm.ErrCodeServerError
		switch {
		case se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden:
			code = llm.ErrCodeAuthentication
		case se.StatusCode == http.StatusPaymentRequired || strings.Contains(lower, "insufficient balance") ||
			se.Type == "insufficient_quota":
			code = llm.ErrCodeInsufficientBalance
		case se.StatusCode == http.StatusTooManyRequests:
			code = llm.ErrCodeRateLimit
		case se.StatusCode == http.StatusNotFound && strings.Contains(lower, "model"):
			code = llm.ErrCodeModelNotFound
		case se.Type == "context_length_exceeded" || strings.Contains(lower, "context length"):
			code = llm.ErrCodeContextLength
		case se.StatusCode >= 500:
			code = llm.ErrCodeServerError
		case se.StatusCode >= 400:
			code = llm.ErrCodeInvalidRequest
		}
		return &llm.ProviderError{
			Code:       code,
			Message:    name + ": " + se.Message,
			StatusCode: se.StatusCode,
			Body:       se.Body,
			Err:        err,
		}
	}

	msg := err.Error()
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "dial tcp") {
		return llm.NewProviderError(llm.ErrCodeUnavailable, name+": server unreachable", err)
	}
	return llm.NewProviderError(llm.ErrCodeServerError, name+": stream failed", err)
}
