package http

import (
	"errors"
	"net/http"

	"github.com/aretw0/switchboard/pkg/domain"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrGroupNotFound), errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrCapacity):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, domain.ErrSessionInvalidated):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrConnect), errors.Is(err, domain.ErrConnectTimeout):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
	} else {
		s.logger.Warn("Request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
	}
	s.writeJSON(w, status, errorBody{Error: err.Error()})
}
