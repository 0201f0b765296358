package httpx

import (
	"context"
	"errors"
	"net/http"

	apperrors "github.com/espeech/espeech-api/internal/errors"
)

const msgInternalError = "internal server error"

// statusForCode maps an application error code to an HTTP status.
func statusForCode(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeNotFound, apperrors.ErrCodeUnknownVoice:
		return http.StatusNotFound
	case apperrors.ErrCodeValidation:
		return http.StatusBadRequest
	case apperrors.ErrCodeConflict:
		return http.StatusConflict
	case apperrors.ErrCodeExpired:
		return http.StatusGone
	case apperrors.ErrCodeCanceled:
		return http.StatusServiceUnavailable
	case apperrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError renders err as a JSON error body. Only the message of an
// application error reaches the client; causes are logged for 5xx replies.
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = classifyUnknown(err)
	}

	status := statusForCode(appErr.Code)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}

	WriteError(w, ErrorParams{
		Code:    status,
		ErrCode: string(appErr.Code),
		Err:     errors.New(appErr.Message),
		Field:   appErr.Field,
	})
}

func classifyUnknown(err error) *apperrors.AppError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.New(apperrors.ErrCodeTimeout, "request timed out")
	case errors.Is(err, context.Canceled):
		return apperrors.New(apperrors.ErrCodeCanceled, "request canceled")
	default:
		return apperrors.Internal(msgInternalError)
	}
}
