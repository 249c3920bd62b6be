package service

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/stellar-payment-gateway/internal/httputil"
)

// HTTPStatus maps an ErrorKind to its corresponding HTTP status code.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case ErrBadRequest:
		return http.StatusBadRequest
	case ErrNotFound:
		return http.StatusNotFound
	case ErrForbidden:
		return http.StatusForbidden
	case ErrInternal:
		return http.StatusInternalServerError
	case ErrUnavailable:
		return http.StatusServiceUnavailable
	case ErrBadGateway:
		return http.StatusBadGateway
	case ErrConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// RespondError writes the response for an error returned by a service.
// Unclassified errors are logged and become a generic 500. Cancelled
// requests only get a status.
func RespondError(w http.ResponseWriter, err error) {
	var svcErr *Error
	switch {
	case errors.As(err, &svcErr):
		httputil.RespondError(w, svcErr.Kind.HTTPStatus(), svcErr.Code, svcErr.Message)
	case errors.Is(err, context.Canceled):
		w.WriteHeader(499)
	case errors.Is(err, context.DeadlineExceeded):
		httputil.RespondError(w, http.StatusGatewayTimeout, "timeout", "The request timed out")
	default:
		log.Error().Err(err).Msg("unhandled service error")
		httputil.RespondError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
