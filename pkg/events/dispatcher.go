package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sortify-api/internal/models"
	"github.com/noah-isme/sortify-api/pkg/jobs"
)

// Dispatcher publishes events off the request path through a retrying job queue.
type Dispatcher struct {
	publisher Publisher
	queue     *jobs.Queue[models.LifecycleEvent]
	logger    *zap.Logger
}

// NewDispatcher builds the queue; call Start before Emit.
func NewDispatcher(publisher Publisher, cfg jobs.QueueConfig) *Dispatcher {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	d := &Dispatcher{publisher: publisher, logger: cfg.Logger}
	d.queue = jobs.NewQueue("events", d.handle, cfg)
	d.queue.OnDrop(func(job jobs.Job[models.LifecycleEvent], err error) {
		d.logger.Error("event lost",
			zap.String("event_id", job.ID),
			zap.String("type", string(job.Payload.Type)),
			zap.Int64("entity_id", job.Payload.EntityID),
			zap.Error(err))
	})
	return d
}

// Start launches the publishing workers.
func (d *Dispatcher) Start(ctx context.Context) {
	d.queue.Start(ctx)
}

// Stop flushes queued events, bounded by the queue's drain timeout.
func (d *Dispatcher) Stop() {
	d.queue.Stop()
}

// Emit stamps the event and queues it. Failures are logged, never returned:
// the transition that produced the event has already committed.
func (d *Dispatcher) Emit(event models.LifecycleEvent) {
	if d == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := d.queue.Enqueue(jobs.Job[models.LifecycleEvent]{ID: event.ID, Payload: event}); err != nil {
		d.logger.Warn("failed to queue event", zap.String("type", string(event.Type)), zap.Error(err))
	}
}

func (d *Dispatcher) handle(ctx context.Context, job jobs.Job[models.LifecycleEvent]) error {
	return d.publisher.Publish(ctx, job.Payload)
}
