package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/aretw0/switchboard/pkg/domain"
)

// Browser failures that mean the engine lost its page and cannot recover in place.
var invalidationMarkers = []string{
	"detached frame",
	"execution context was destroyed",
	"session closed",
	"target closed",
}

// IsInvalidation reports whether a bridge error message describes a dead transport.
func IsInvalidation(msg string) bool {
	lower := strings.ToLower(msg)
	for _, marker := range invalidationMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// StatusError is a non-2xx reply from the bridge that maps to no domain sentinel.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bridge returned %d: %s", e.Status, e.Message)
}

// classifyReply turns an error reply into a domain error.
// notFound is returned for 404 replies when set.
func classifyReply(status int, msg string, notFound error) error {
	if IsInvalidation(msg) {
		return fmt.Errorf("%w: %s", domain.ErrSessionInvalidated, msg)
	}
	switch status {
	case http.StatusNotFound:
		if notFound != nil {
			return fmt.Errorf("%w: %s", notFound, msg)
		}
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %s", domain.ErrTimeout, msg)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return domain.NewValidationError("request", msg)
	}
	return &StatusError{Status: status, Message: msg}
}

// classifyTransport maps a failed round trip.
func classifyTransport(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return ctx.Err()
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	}
	if IsInvalidation(err.Error()) {
		return fmt.Errorf("%w: %w", domain.ErrSessionInvalidated, err)
	}
	return fmt.Errorf("bridge request failed: %w", err)
}
