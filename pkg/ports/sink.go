package ports

import (
	"context"

	"github.com/aretw0/switchboard/pkg/domain"
)

// EventSink accepts normalized events for asynchronous delivery to subscribers.
type EventSink interface {
	Publish(ctx context.Context, event domain.Event) error
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, event domain.Event) error

// Publish calls f.
func (f EventSinkFunc) Publish(ctx context.Context, event domain.Event) error {
	return f(ctx, event)
}
