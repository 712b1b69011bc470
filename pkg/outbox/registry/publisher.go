package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/angelmondragon/library-backend/pkg/config"
	"github.com/angelmondragon/library-backend/pkg/db/models"
	"github.com/angelmondragon/library-backend/pkg/enums"
	"github.com/angelmondragon/library-backend/pkg/outbox"
	"github.com/angelmondragon/library-backend/pkg/outbox/payloads"
)

// maxEnvelopeVersion is the newest envelope layout this binary can decode.
const maxEnvelopeVersion = 1

// EventDescriptor routes one event type to a topic and payload type.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	NewPayload    func() any
}

// ResolvedEvent is an outbox row decoded into its typed payload.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError marks a row the publisher should park instead of retrying.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func nonRetryable(format string, args ...any) error {
	return NewNonRetryableError(fmt.Errorf(format, args...))
}

func payloadOf[T any]() func() any {
	return func() any { return new(T) }
}

// NewEventRegistry routes rental events to the rentals topic and catalog
// deletions to the catalog topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.RentalsTopic == "" {
		return nil, errors.New("rentals topic is required")
	}
	rentals, catalog := cfg.RentalsTopic, cfg.CatalogTopicOrDefault()

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}
	reg.add(enums.EventRentalCreated, rentals, payloadOf[payloads.RentalCreatedEvent]())
	reg.add(enums.EventRentalReturned, rentals, payloadOf[payloads.RentalReturnedEvent]())
	reg.add(enums.EventBookDeleted, catalog, payloadOf[payloads.BookDeletedEvent]())
	reg.add(enums.EventBorrowerDeleted, catalog, payloadOf[payloads.BorrowerDeletedEvent]())
	return reg, nil
}

func (r *EventRegistry) add(eventType enums.OutboxEventType, topic string, newPayload func() any) {
	r.entries[eventType] = EventDescriptor{
		EventType:     eventType,
		AggregateType: eventType.Aggregate(),
		Topic:         topic,
		NewPayload:    newPayload,
	}
}

// Descriptor returns the routing for eventType.
func (r *EventRegistry) Descriptor(eventType enums.OutboxEventType) (EventDescriptor, bool) {
	desc, ok := r.entries[eventType]
	return desc, ok
}

// Resolve checks the row against its descriptor and decodes the payload.
// Every failure is non-retryable: the row will not decode any better later.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, nonRetryable("unsupported event type %s", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return nil, nonRetryable("aggregate mismatch: %s events belong to %s, row has %s", event.EventType, desc.AggregateType, event.AggregateType)
	case event.AggregateID <= 0:
		return nil, nonRetryable("%s row missing aggregate_id", event.EventType)
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal([]byte(event.Payload), &envelope); err != nil {
		return nil, nonRetryable("decode envelope: %w", err)
	}
	if envelope.Version < 1 || envelope.Version > maxEnvelopeVersion {
		return nil, nonRetryable("unsupported envelope version %d", envelope.Version)
	}
	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nonRetryable("payload missing for %s", event.EventType)
	}

	payload := desc.NewPayload()
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, nonRetryable("decode %s payload: %w", event.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
