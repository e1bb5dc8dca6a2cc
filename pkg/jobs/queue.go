package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrFull is returned when the buffer is saturated; Enqueue never blocks.
	ErrFull = errors.New("queue full")
	// ErrClosed is returned before Start and after Stop.
	ErrClosed = errors.New("queue not running")
)

// Job wraps one payload with its delivery bookkeeping.
type Job[T any] struct {
	ID       string
	Payload  T
	Attempt  int
	Enqueued time.Time
}

// Handler processes a job. A returned error schedules a retry.
type Handler[T any] func(context.Context, Job[T]) error

// QueueConfig configures the worker pool.
type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	// DrainTimeout bounds how long Stop keeps delivering buffered jobs.
	DrainTimeout time.Duration
	Logger       *zap.Logger
}

type queueState int

const (
	stateIdle queueState = iota
	stateRunning
	stateStopped
)

// Queue is an in-memory worker pool with linear retry backoff.
type Queue[T any] struct {
	name    string
	handler Handler[T]
	cfg     QueueConfig
	logger  *zap.Logger
	onDrop  func(Job[T], error)

	jobs    chan Job[T]
	closing chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu    sync.Mutex
	state queueState
}

// NewQueue builds a stopped queue.
func NewQueue[T any](name string, handler Handler[T], cfg QueueConfig) *Queue[T] {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 256
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Queue[T]{
		name:    name,
		handler: handler,
		cfg:     cfg,
		logger:  cfg.Logger.With(zap.String("queue", name)),
		jobs:    make(chan Job[T], cfg.BufferSize),
		closing: make(chan struct{}),
	}
}

// OnDrop registers a callback for jobs that exhaust their retries or are
// abandoned at shutdown. Call before Start.
func (q *Queue[T]) OnDrop(fn func(Job[T], error)) {
	q.onDrop = fn
}

// Start launches the workers. ctx contributes values only; the queue runs
// until Stop so that a cancelled parent does not discard buffered jobs.
func (q *Queue[T]) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state != stateIdle {
		return
	}
	q.ctx, q.cancel = context.WithCancel(context.WithoutCancel(ctx))
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.state = stateRunning
	q.logger.Info("queue started", zap.Int("workers", q.cfg.Workers))
}

// Stop refuses new jobs, delivers what is buffered for up to DrainTimeout,
// then cancels in-flight handlers.
func (q *Queue[T]) Stop() {
	q.mu.Lock()
	if q.state != stateRunning {
		q.mu.Unlock()
		return
	}
	q.state = stateStopped
	close(q.closing)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(q.cfg.DrainTimeout):
		q.cancel()
		<-done
	}
	q.cancel()
	q.logger.Info("queue stopped", zap.Int("abandoned", len(q.jobs)))
}

// Pending reports buffered jobs not yet picked up.
func (q *Queue[T]) Pending() int {
	return len(q.jobs)
}

// Enqueue buffers a job without blocking.
func (q *Queue[T]) Enqueue(job Job[T]) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state != stateRunning {
		return ErrClosed
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrFull
	}
}

func (q *Queue[T]) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			q.process(job)
		case <-q.closing:
			q.drain()
			return
		}
	}
}

func (q *Queue[T]) drain() {
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			q.process(job)
		default:
			return
		}
	}
}

func (q *Queue[T]) process(job Job[T]) {
	err := q.handler(q.ctx, job)
	if err == nil {
		return
	}
	job.Attempt++
	if job.Attempt > q.cfg.MaxRetries {
		q.drop(job, err)
		return
	}
	q.logger.Warn("job failed, retrying", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		timer := time.NewTimer(q.cfg.RetryDelay * time.Duration(job.Attempt))
		defer timer.Stop()
		select {
		case <-q.closing:
			q.drop(job, ErrClosed)
		case <-timer.C:
			if err := q.Enqueue(job); err != nil {
				q.drop(job, err)
			}
		}
	}()
}

func (q *Queue[T]) drop(job Job[T], err error) {
	q.logger.Error("job dropped", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
	if q.onDrop != nil {
		q.onDrop(job, err)
	}
}
