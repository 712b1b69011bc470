package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/library-backend/pkg/db/models"
	"github.com/angelmondragon/library-backend/pkg/enums"
	"github.com/angelmondragon/library-backend/pkg/logger"
)

const currentEnvelopeVersion = 1

var errNoTransaction = errors.New("outbox emit requires a transaction")

// DomainEvent is a state change to record alongside the write that caused it.
// AggregateType may be left blank; it is derived from EventType.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   int64
	RequestID     string
	Data          any
	Version       int
	OccurredAt    time.Time
}

func (e *DomainEvent) normalize() error {
	owner := e.EventType.Aggregate()
	if owner == "" {
		return fmt.Errorf("unknown outbox event type %q", e.EventType)
	}
	if e.AggregateType == "" {
		e.AggregateType = owner
	}
	if e.AggregateType != owner {
		return fmt.Errorf("event %s belongs to %s aggregates, not %q", e.EventType, owner, e.AggregateType)
	}
	if e.AggregateID <= 0 {
		return fmt.Errorf("event %s needs a positive aggregate id", e.EventType)
	}
	if e.Version == 0 {
		e.Version = currentEnvelopeVersion
	}
	return nil
}

type Service struct {
	repo  *Repository
	logg  *logger.Logger
	now   func() time.Time
	newID func() uuid.UUID
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{
		repo:  repo,
		logg:  logg,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.New,
	}
}

// Emit queues the event inside tx so it commits or rolls back with the
// state change it describes.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errNoTransaction
	}
	if ctx == nil {
		ctx = context.Background()
	}
	row, err := s.buildRow(event)
	if err != nil {
		return err
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return fmt.Errorf("insert outbox event %s: %w", row.EventType, err)
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"event_id":       row.ID.String(),
			"event_type":     row.EventType,
			"aggregate_type": row.AggregateType,
			"aggregate_id":   row.AggregateID,
		}), "outbox event queued")
	}
	return nil
}

// buildRow wraps the event data in a PayloadEnvelope. The row id doubles as
// the envelope's event id so consumers can dedupe on either.
func (s *Service) buildRow(event DomainEvent) (models.OutboxEvent, error) {
	if err := event.normalize(); err != nil {
		return models.OutboxEvent{}, err
	}
	data, err := json.Marshal(event.Data)
	if err != nil {
		return models.OutboxEvent{}, fmt.Errorf("marshal %s data: %w", event.EventType, err)
	}
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = s.now()
	}
	id := s.newID()
	payload, err := json.Marshal(PayloadEnvelope{
		Version:    event.Version,
		EventID:    id.String(),
		OccurredAt: occurred.UTC(),
		RequestID:  event.RequestID,
		Data:       data,
	})
	if err != nil {
		return models.OutboxEvent{}, fmt.Errorf("marshal envelope: %w", err)
	}
	return models.OutboxEvent{
		ID:            id,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       string(payload),
	}, nil
}
