package chat

import (
	"context"
	"errors"
	"net/http"

	"github.com/rpenyav/ia-backend/pkg/llm"
)

// ErrAttachmentsNotAllowed rejects attachments on an anonymous turn.
var ErrAttachmentsNotAllowed = errors.New("attachments are not allowed in anonymous chat")

// ErrEmptyMessage rejects a turn without text.
var ErrEmptyMessage = errors.New("message is empty")

// StatusClientClosed reports a turn abandoned by its caller.
const StatusClientClosed = 499

// errStopped signals that the consumer stopped reading.
var errStopped = errors.New("consumer stopped")

// Messages shown to end users for known failures.
const (
	msgAttachmentsNotAllowed = "Adjuntos no permitidos cuando el chat no requiere autenticación"
	msgEmptyMessage          = "El mensaje no puede estar vacío."
	msgInsufficientBalance   = "El proveedor de IA no tiene saldo suficiente (HTTP 402). Revisa la cuenta o cambia de modelo/proveedor."
	msgRateLimited           = "El proveedor de IA está devolviendo demasiadas peticiones (HTTP 429). Inténtalo más tarde o cambia de modelo/proveedor."
	msgNotConfigured         = "El proveedor de IA no está configurado. Contacta con el administrador."
	msgTimeout               = "El proveedor de IA ha tardado demasiado en responder. Inténtalo de nuevo."
	msgGeneric               = "No se ha podido generar la respuesta. Inténtalo de nuevo más tarde."
)

// TurnError is the terminal failure of a turn. Message is safe to show to
// end users; ProviderError carries the raw upstream body for operators.
type TurnError struct {
	Status        int
	Message       string
	ProviderError string
	Err           error
}

func (e *TurnError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *TurnError) Unwrap() error {
	return e.Err
}

// newTurnError classifies err into a user-facing failure.
func newTurnError(err error) *TurnError {
	te := &TurnError{Err: err}
	switch {
	case errors.Is(err, ErrAttachmentsNotAllowed):
		te.Status = http.StatusBadRequest
		te.Message = msgAttachmentsNotAllowed
		return te
	case errors.Is(err, ErrEmptyMessage):
		te.Status = http.StatusBadRequest
		te.Message = msgEmptyMessage
		return te
	case errors.Is(err, context.Canceled):
		te.Status = StatusClientClosed
		te.Message = msgGeneric
		return te
	case errors.Is(err, context.DeadlineExceeded):
		te.Status = http.StatusGatewayTimeout
		te.Message = msgTimeout
		return te
	}

	te.Status = llm.HTTPStatus(err)
	if pe, ok := llm.AsProviderError(err); ok {
		te.ProviderError = pe.Body
		if pe.StatusCode == http.StatusPaymentRequired {
			te.Status = http.StatusPaymentRequired
		}
		if pe.StatusCode == http.StatusTooManyRequests {
			te.Status = http.StatusTooManyRequests
		}
	}
	switch {
	case te.Status == http.StatusPaymentRequired:
		te.Message = msgInsufficientBalance
	case te.Status == http.StatusTooManyRequests:
		te.Message = msgRateLimited
	case llm.IsConfigurationError(err):
		te.Message = msgNotConfigured
	case te.Status == http.StatusGatewayTimeout:
		te.Message = msgTimeout
	default:
		te.Message = msgGeneric
	}
	return te
}
