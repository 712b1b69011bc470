package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/library-backend/pkg/config"
	"github.com/angelmondragon/library-backend/pkg/db/models"
	"github.com/angelmondragon/library-backend/pkg/enums"
	"github.com/angelmondragon/library-backend/pkg/outbox"
	"github.com/angelmondragon/library-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
)

func TestEventRegistryResolveSuccess(t *testing.T) {
	reg := newTestEventRegistry(t)

	due := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	payloadBytes := mustMarshal(t, payloads.RentalCreatedEvent{
		RentalID:          7,
		BorrowerID:        3,
		BookID:            9,
		RentalDate:        due.AddDate(0, 0, -14),
		DueDate:           due,
		QuantityRemaining: 2,
	})

	event := models.OutboxEvent{
		EventType:     enums.EventRentalCreated,
		AggregateType: enums.AggregateRental,
		AggregateID:   7,
		Payload:       mustEnvelope(t, payloadBytes),
	}

	resolved, err := reg.Resolve(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Descriptor.Topic != "rentals-topic" {
		t.Fatalf("unexpected topic %q", resolved.Descriptor.Topic)
	}
	if resolved.Descriptor.EventType != enums.EventRentalCreated {
		t.Fatalf("unexpected event type %s", resolved.Descriptor.EventType)
	}
	payload, ok := resolved.Payload.(*payloads.RentalCreatedEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", resolved.Payload)
	}
	if payload.RentalID != 7 || !payload.DueDate.Equal(due) {
		t.Fatalf("payload mismatch %+v", payload)
	}
	if resolved.Envelope.EventID == "" {
		t.Fatalf("envelope missing event id")
	}
	if resolved.Envelope.OccurredAt.IsZero() {
		t.Fatalf("envelope missing occurred_at")
	}
}

func TestEventRegistryRejectsBadRows(t *testing.T) {
	reg := newTestEventRegistry(t)

	cases := map[string]models.OutboxEvent{
		"unknown event": {
			EventType:     enums.OutboxEventType("order_created"),
			AggregateType: enums.AggregateRental,
			AggregateID:   1,
			Payload:       mustEnvelope(t, []byte(`{"reason":"none"}`)),
		},
		"aggregate mismatch": {
			EventType:     enums.EventRentalReturned,
			AggregateType: enums.AggregateBook,
			AggregateID:   1,
			Payload:       mustEnvelope(t, []byte(`{"rental_id":1}`)),
		},
		"missing aggregate id": {
			EventType:     enums.EventRentalCreated,
			AggregateType: enums.AggregateRental,
			Payload:       mustEnvelope(t, []byte(`{}`)),
		},
		"null payload": {
			EventType:     enums.EventRentalCreated,
			AggregateType: enums.AggregateRental,
			AggregateID:   1,
			Payload:       mustEnvelope(t, []byte("null")),
		},
		"broken envelope": {
			EventType:     enums.EventBookDeleted,
			AggregateType: enums.AggregateBook,
			AggregateID:   1,
			Payload:       "{not json",
		},
	}

	for name, event := range cases {
		_, err := reg.Resolve(event)
		if err == nil {
			t.Fatalf("%s: expected error", name)
		}
		var nonRetry NonRetryableError
		if !errors.As(err, &nonRetry) {
			t.Fatalf("%s: expected non-retryable error, got %T", name, err)
		}
	}
}

func TestEventRegistryRoutesCatalogEvents(t *testing.T) {
	reg, err := NewEventRegistry(config.PubSubConfig{RentalsTopic: "rentals-topic", CatalogTopic: "catalog-topic"})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	want := map[enums.OutboxEventType]string{
		enums.EventRentalCreated:   "rentals-topic",
		enums.EventRentalReturned:  "rentals-topic",
		enums.EventBookDeleted:     "catalog-topic",
		enums.EventBorrowerDeleted: "catalog-topic",
	}
	for eventType, topic := range want {
		desc, ok := reg.Descriptor(eventType)
		if !ok || desc.Topic != topic {
			t.Fatalf("%s: expected topic %s, got %+v", eventType, topic, desc)
		}
		if desc.AggregateType != eventType.Aggregate() {
			t.Fatalf("%s: unexpected aggregate %s", eventType, desc.AggregateType)
		}
	}

	resolved, err := reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventBookDeleted,
		AggregateType: enums.AggregateBook,
		AggregateID:   4,
		Payload:       mustEnvelope(t, mustMarshal(t, payloads.BookDeletedEvent{BookID: 4})),
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if p, ok := resolved.Payload.(*payloads.BookDeletedEvent); !ok || p.BookID != 4 {
		t.Fatalf("unexpected payload %#v", resolved.Payload)
	}
}

func TestEventRegistryRejectsUnknownEnvelopeVersion(t *testing.T) {
	reg := newTestEventRegistry(t)
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version: 2,
		EventID: uuid.NewString(),
		Data:    []byte(`{"rental_id":1}`),
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	_, err = reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventRentalReturned,
		AggregateType: enums.AggregateRental,
		AggregateID:   1,
		Payload:       string(payload),
	})
	var nonRetry NonRetryableError
	if !errors.As(err, &nonRetry) {
		t.Fatalf("expected non-retryable version error, got %v", err)
	}
}

func TestNewEventRegistryRequiresTopic(t *testing.T) {
	if _, err := NewEventRegistry(config.PubSubConfig{}); err == nil {
		t.Fatal("expected missing topic to fail")
	}
}

func newTestEventRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{RentalsTopic: "rentals-topic"})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func mustMarshal(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func mustEnvelope(t *testing.T, payload []byte) string {
	t.Helper()
	envelope := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       payload,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return string(data)
}
