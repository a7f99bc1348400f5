package llm

import (
	"errors"
	"net/http"
)

// Error codes shared by all providers. Adapters map their native failures
// onto one of these.
const (
	ErrCodeAuthentication      = "authentication_error"
	ErrCodeRateLimit           = "rate_limit_exceeded"
	ErrCodeInsufficientBalance = "insufficient_balance"
	ErrCodeModelNotFound       = "model_not_found"
	ErrCodeInvalidRequest      = "invalid_request"
	ErrCodeContextLength       = "context_length_exceeded"
	ErrCodeServerError         = "server_error"
	ErrCodeTimeout             = "timeout"
	ErrCodeConfiguration       = "configuration_error"
	ErrCodeUnavailable         = "provider_unavailable"
)

// ProviderError is a classified upstream or configuration failure.
// Body holds the raw upstream payload for operators; it must never be shown
// to end users.
type ProviderError struct {
	Code       string
	Message    string
	StatusCode int    // Upstream HTTP status, 0 if none.
	Body       string // Raw upstream error body, possibly truncated.
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a classified error.
func NewProviderError(code, message string, err error) *ProviderError {
	return &ProviderError{Code: code, Message: message, Err: err}
}

// ConfigError reports a provider that cannot be used as configured. It is
// raised before any network call.
func ConfigError(message string) *ProviderError {
	return &ProviderError{Code: ErrCodeConfiguration, Message: message}
}

// AsProviderError extracts a *ProviderError from err's chain.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// HTTPStatus returns the status that best describes err to an HTTP caller.
// Upstream statuses pass through for the cases callers explain to users.
func HTTPStatus(err error) int {
	pe, ok := AsProviderError(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch pe.Code {
	case ErrCodeInsufficientBalance:
		return http.StatusPaymentRequired
	case ErrCodeRateLimit:
		return http.StatusTooManyRequests
	case ErrCodeConfiguration:
		return http.StatusServiceUnavailable
	case ErrCodeInvalidRequest, ErrCodeContextLength:
		return http.StatusBadRequest
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	}
	if pe.StatusCode != 0 {
		return pe.StatusCode
	}
	return http.StatusBadGateway
}

func IsAuthenticationError(err error) bool      { return hasCode(err, ErrCodeAuthentication) }
func IsRateLimitError(err error) bool           { return hasCode(err, ErrCodeRateLimit) }
func IsInsufficientBalanceError(err error) bool { return hasCode(err, ErrCodeInsufficientBalance) }
func IsModelNotFoundError(err error) bool       { return hasCode(err, ErrCodeModelNotFound) }
func IsContextLengthError(err error) bool       { return hasCode(err, ErrCodeContextLength) }
func IsServerError(err error) bool              { return hasCode(err, ErrCodeServerError) }
func IsTimeoutError(err error) bool             { return hasCode(err, ErrCodeTimeout) }
func IsConfigurationError(err error) bool       { return hasCode(err, ErrCodeConfiguration) }

// IsRetryable reports whether a caller-side retry might succeed. The core
// never retries on its own.
func IsRetryable(err error) bool {
	return IsRateLimitError(err) || IsServerError(err) || IsTimeoutError(err)
}

func hasCode(err error, code string) bool {
	pe, ok := AsProviderError(err)
	return ok && pe.Code == code
}
