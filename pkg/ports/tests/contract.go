package tests

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/ports"
)

// EventSinkContractTest is a reusable test suite that verifies if an adapter complies with ports.EventSink.
// next must return the events published to sink in publication order.
func EventSinkContractTest(t *testing.T, sink ports.EventSink, next func(ctx context.Context) (domain.Event, error)) {
	t.Helper()

	// 1. Lifecycle event round trip
	t.Run("Publish_Lifecycle", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		sent := domain.Event{ID: "evt-1", Type: domain.EventReady, Tenant: "acme", PhoneNumber: "15550001111"}
		if err := sink.Publish(ctx, sent); err != nil {
			t.Fatalf("unexpected error publishing: %v", err)
		}

		got, err := next(ctx)
		if err != nil {
			t.Fatalf("unexpected error receiving: %v", err)
		}
		if got.ID != sent.ID || got.Type != sent.Type || got.Tenant != sent.Tenant || got.PhoneNumber != sent.PhoneNumber {
			t.Errorf("event mismatch. got %+v, want %+v", got, sent)
		}
	})

	// 2. Payload survives delivery
	t.Run("Publish_Message", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		sent := domain.Event{
			ID:     "evt-2",
			Type:   domain.EventMessage,
			Tenant: "acme",
			Message: &domain.InboundMessage{
				ID:              "m1",
				GroupID:         "g1@g.us",
				Content:         "hello @Ann (1555)",
				MentionedPhones: []string{"1555"},
			},
		}
		if err := sink.Publish(ctx, sent); err != nil {
			t.Fatalf("unexpected error publishing: %v", err)
		}

		got, err := next(ctx)
		if err != nil {
			t.Fatalf("unexpected error receiving: %v", err)
		}
		if got.Message == nil {
			t.Fatalf("message payload missing")
		}
		if got.Message.Content != sent.Message.Content || got.Message.GroupID != sent.Message.GroupID {
			t.Errorf("message mismatch. got %+v, want %+v", got.Message, sent.Message)
		}
		if len(got.Message.MentionedPhones) != 1 {
			t.Errorf("expected 1 mentioned phone, got %d", len(got.Message.MentionedPhones))
		}
	})

	// 3. Ordering
	t.Run("Publish_Order", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		ids := []string{"a", "b", "c"}
		for _, id := range ids {
			if err := sink.Publish(ctx, domain.Event{ID: id, Type: domain.EventQR, Tenant: "acme", QR: id}); err != nil {
				t.Fatalf("unexpected error publishing %s: %v", id, err)
			}
		}
		for _, id := range ids {
			got, err := next(ctx)
			if err != nil {
				t.Fatalf("unexpected error receiving %s: %v", id, err)
			}
			if got.ID != id {
				t.Errorf("order mismatch. got %s, want %s", got.ID, id)
			}
		}
	})
}
