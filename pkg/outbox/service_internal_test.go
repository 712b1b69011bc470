package outbox

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/library-backend/pkg/enums"
	"github.com/angelmondragon/library-backend/pkg/outbox/payloads"
)

func TestBuildRowDerivesAggregateAndSharesID(t *testing.T) {
	fixedID := uuid.MustParse("1b4e28ba-2fa1-11d2-883f-0016d3cca427")
	fixedNow := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	svc := &Service{
		now:   func() time.Time { return fixedNow },
		newID: func() uuid.UUID { return fixedID },
	}

	row, err := svc.buildRow(DomainEvent{
		EventType:   enums.EventBookDeleted,
		AggregateID: 7,
		Data:        payloads.BookDeletedEvent{BookID: 7},
	})
	if err != nil {
		t.Fatalf("build row: %v", err)
	}
	if row.ID != fixedID || row.AggregateType != enums.AggregateBook || row.AggregateID != 7 {
		t.Fatalf("unexpected row %+v", row)
	}

	var env PayloadEnvelope
	if err := json.Unmarshal([]byte(row.Payload), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.EventID != fixedID.String() || !env.OccurredAt.Equal(fixedNow) || env.Version != currentEnvelopeVersion {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

func TestBuildRowRejectsInconsistentEvents(t *testing.T) {
	svc := NewService(nil, nil)
	cases := []struct {
		name  string
		event DomainEvent
		want  string
	}{
		{"unknown type", DomainEvent{EventType: "order_paid", AggregateID: 1}, "unknown outbox event type"},
		{"wrong aggregate", DomainEvent{EventType: enums.EventRentalCreated, AggregateType: enums.AggregateBook, AggregateID: 1}, "belongs to rental"},
		{"missing id", DomainEvent{EventType: enums.EventBorrowerDeleted}, "positive aggregate id"},
		{"bad data", DomainEvent{EventType: enums.EventRentalCreated, AggregateID: 1, Data: make(chan int)}, "marshal rental_created data"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.buildRow(tc.event)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}
