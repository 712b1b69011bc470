package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/library-backend/pkg/db/models"
	"github.com/angelmondragon/library-backend/pkg/logger"
	"github.com/angelmondragon/library-backend/pkg/metrics"
	"github.com/angelmondragon/library-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

// outcome is what happened to a single outbox row within a batch.
type outcome int

const (
	outcomePublished outcome = iota
	outcomeRetry
	outcomeTerminal
)

func (o outcome) label() string {
	switch o {
	case outcomePublished:
		return metrics.OutboxPublished
	case outcomeRetry:
		return metrics.OutboxRetry
	default:
		return metrics.OutboxTerminal
	}
}

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
	CountPending(maxAttempts int) (int64, error)
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
	ResumePublish(orderingKey string)
	Stop()
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// Settings tune the publish loop. Zero values fall back to defaults.
type Settings struct {
	BatchSize    int
	MaxAttempts  int
	PollInterval time.Duration
}

type ServiceParams struct {
	Settings         Settings
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	Metrics          *metrics.OutboxMetrics
	PublisherFactory publisherFactory
	Jitter           func(time.Duration) time.Duration
}

// Service drains the outbox table into Pub/Sub.
type Service struct {
	logg         *logger.Logger
	db           dbClient
	repo         outboxRepository
	pubsub       pubSubClient
	registry     registryResolver
	metrics      *metrics.OutboxMetrics
	publisherFor publisherFactory
	jitter       func(time.Duration) time.Duration
	publishers   map[string]publisher
	settings     Settings
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	}

	factory := params.PublisherFactory
	if factory == nil {
		factory = orderedPublisherFactory(params.PubSub)
	}
	jitter := params.Jitter
	if jitter == nil {
		jitter = randomJitter(rand.New(rand.NewSource(time.Now().UnixNano())))
	}

	settings := params.Settings
	if settings.BatchSize <= 0 {
		settings.BatchSize = defaultBatchSize
	}
	if settings.MaxAttempts <= 0 {
		settings.MaxAttempts = defaultMaxAttempts
	}
	if settings.PollInterval <= 0 {
		settings.PollInterval = defaultPollInterval
	}

	return &Service{
		logg:         params.Logger,
		db:           params.DB,
		repo:         params.Repository,
		pubsub:       params.PubSub,
		registry:     params.Registry,
		metrics:      params.Metrics,
		publisherFor: factory,
		jitter:       jitter,
		publishers:   make(map[string]publisher),
		settings:     settings,
	}, nil
}

// Run polls until ctx is canceled. Empty polls sleep for the poll interval;
// failed batches back off exponentially up to maxBackoff.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	for name, ping := range map[string]func(context.Context) error{
		"database": s.db.Ping,
		"pubsub":   s.pubsub.Ping,
	} {
		if err := ping(ctx); err != nil {
			s.logg.Error(ctx, name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}

	interval := s.settings.PollInterval
	wait := interval
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox publisher context canceled")
			return err
		}

		handled, err := s.processBatch(ctx)
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox publisher batch error", err)
			wait = nextBackoff(wait, interval, maxBackoff)
		case handled > 0:
			wait = interval
			continue
		default:
			wait = interval
		}

		if err := sleep(ctx, s.jitter(wait)); err != nil {
			return err
		}
	}
}

// processBatch locks one batch of rows, publishes them in order and records
// each outcome in the same transaction. It returns how many rows it handled.
func (s *Service) processBatch(ctx context.Context) (int, error) {
	handled := 0
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.settings.BatchSize, s.settings.MaxAttempts)
		if err != nil {
			return fmt.Errorf("fetch batch: %w", err)
		}
		for _, event := range events {
			result, err := s.handleEvent(ctx, tx, event)
			if err != nil {
				return err
			}
			s.metrics.RecordEvent(string(event.EventType), result.label())
			handled++
		}
		return nil
	})
	if err != nil {
		return handled, err
	}
	if handled > 0 {
		s.refreshPending(ctx)
	}
	return handled, nil
}

func (s *Service) handleEvent(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) (outcome, error) {
	eventCtx := s.logg.WithFields(ctx, eventFields(event))

	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return s.markTerminal(eventCtx, tx, event, "non_retryable", err)
	}
	eventCtx = s.logg.WithFields(eventCtx, map[string]any{
		"event_id": resolved.Envelope.EventID,
		"topic":    resolved.Descriptor.Topic,
	})

	err = s.publish(ctx, event, resolved)
	if err == nil {
		if markErr := s.repo.MarkPublishedTx(tx, event.ID); markErr != nil {
			return 0, fmt.Errorf("mark published %s: %w", event.ID, markErr)
		}
		s.logg.Info(eventCtx, "outbox event published")
		return outcomePublished, nil
	}

	var nonRetry registry.NonRetryableError
	if errors.As(err, &nonRetry) {
		return s.markTerminal(eventCtx, tx, event, "non_retryable", err)
	}
	attempt := event.AttemptCount + 1
	if attempt >= s.settings.MaxAttempts {
		return s.markTerminal(eventCtx, tx, event, "max_attempts", fmt.Errorf("max publish attempts reached: %w", err))
	}

	eventCtx = s.logg.WithFields(eventCtx, map[string]any{
		"attempt_count": attempt,
		"error":         err.Error(),
	})
	s.logg.Warn(eventCtx, "outbox publish failed; will retry")
	if markErr := s.repo.MarkFailedTx(tx, event.ID, err); markErr != nil {
		return 0, fmt.Errorf("mark failure %s: %w", event.ID, markErr)
	}
	return outcomeRetry, nil
}

func (s *Service) markTerminal(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason string, cause error) (outcome, error) {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"terminal_reason": reason,
		"error":           cause.Error(),
	})
	s.logg.Warn(ctx, "outbox event will not be retried")
	if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.settings.MaxAttempts); err != nil {
		return 0, fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return outcomeTerminal, nil
}

// publish sends the stored envelope as-is. Events for one aggregate share an
// ordering key so subscribers see a rental's created event before its return.
func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := s.publisherForTopic(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	key := orderingKey(event)
	attrs := map[string]string{
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   strconv.FormatInt(event.AggregateID, 10),
		"occurred_at":    resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
	if resolved.Envelope.RequestID != "" {
		attrs["request_id"] = resolved.Envelope.RequestID
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, &gcppubsub.Message{
		Data:        []byte(event.Payload),
		Attributes:  attrs,
		OrderingKey: key,
	})
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	if _, err := result.Get(publishCtx); err != nil {
		// A failed ordered publish pauses the key until resumed.
		pub.ResumePublish(key)
		return err
	}
	return nil
}

func (s *Service) publisherForTopic(topic string) publisher {
	if pub, ok := s.publishers[topic]; ok {
		return pub
	}
	pub := s.publisherFor(topic)
	if pub != nil {
		s.publishers[topic] = pub
	}
	return pub
}

// Close flushes and stops every publisher opened by the service.
func (s *Service) Close() {
	for topic, pub := range s.publishers {
		pub.Stop()
		delete(s.publishers, topic)
	}
}

func (s *Service) refreshPending(ctx context.Context) {
	pending, err := s.repo.CountPending(s.settings.MaxAttempts)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "count pending outbox rows failed")
		return
	}
	s.metrics.SetPending(pending)
}

func orderingKey(event models.OutboxEvent) string {
	return fmt.Sprintf("%s-%d", event.AggregateType, event.AggregateID)
}

func eventFields(event models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID,
		"attempt_count":  event.AttemptCount,
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	if next := current * 2; next < max {
		return next
	}
	return max
}

func randomJitter(src *rand.Rand) func(time.Duration) time.Duration {
	return func(d time.Duration) time.Duration {
		if d <= 0 {
			return 0
		}
		return d + time.Duration(src.Int63n(int64(jitterWindow)))
	}
}

// orderedPublisherFactory returns Pub/Sub publishers with message ordering on.
func orderedPublisherFactory(client pubSubClient) publisherFactory {
	return func(topic string) publisher {
		p := client.Publisher(topic)
		if p == nil {
			return nil
		}
		p.EnableMessageOrdering = true
		return gcpPublisher{p}
	}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.Publisher.Publish(ctx, msg)
}
