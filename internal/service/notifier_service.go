package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-exam-api/internal/models"
	"github.com/noah-isme/sma-exam-api/pkg/jobs"
	"github.com/noah-isme/sma-exam-api/pkg/middleware/requestid"
)

type eventPublisher interface {
	Publish(ctx context.Context, event models.Event) error
}

// NotifierService hands domain events to the external notifier through a
// retrying in-process queue. The publisher stores events durably, so the
// notifier does not have to be online; a failed store is retried up to the
// queue's retry limit and then logged as dropped.
type NotifierService struct {
	publisher eventPublisher
	queue     *jobs.Queue[models.Event]
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// NewNotifierService builds the notifier; Start must be called before events
// are queued.
func NewNotifierService(publisher eventPublisher, cfg jobs.QueueConfig, metrics *MetricsService, logger *zap.Logger) *NotifierService {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.Logger = logger
	s := &NotifierService{publisher: publisher, metrics: metrics, logger: logger, now: time.Now}
	s.queue = jobs.NewQueue[models.Event]("notifier", s.handle, cfg)
	return s
}

// Start launches the delivery workers.
func (s *NotifierService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop flushes queued events and stops the workers.
func (s *NotifierService) Stop() {
	s.queue.Stop()
}

// Notify queues an event. It never fails the caller; an event that cannot be
// queued is published inline as a last attempt.
func (s *NotifierService) Notify(ctx context.Context, eventType models.EventType, data interface{}) {
	event := models.Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: s.now().UTC(),
		RequestID:  requestid.FromContext(ctx),
		Data:       data,
	}
	err := s.queue.Enqueue(jobs.Job[models.Event]{ID: event.ID, Type: string(eventType), Payload: event})
	if err == nil {
		return
	}
	s.logger.Warn("event queue unavailable, publishing inline", zap.String("event_type", string(eventType)), zap.Error(err))
	if err := s.handle(context.WithoutCancel(ctx), jobs.Job[models.Event]{ID: event.ID, Type: string(eventType), Payload: event}); err != nil {
		s.logger.Error("event dropped", zap.String("event_id", event.ID), zap.String("event_type", string(eventType)), zap.Error(err))
	}
}

func (s *NotifierService) handle(ctx context.Context, job jobs.Job[models.Event]) error {
	err := s.publisher.Publish(ctx, job.Payload)
	s.metrics.EventPublished(job.Type, err == nil)
	if err != nil {
		return err
	}
	s.logger.Debug("event published", zap.String("event_id", job.ID), zap.String("event_type", job.Type))
	return nil
}
