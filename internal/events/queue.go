package events

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// ErrQueueFull is returned when an event cannot be enqueued before the
// publisher's context ends.
var ErrQueueFull = errors.New("event queue full")

// Queue is a bounded in-process queue with at-least-once delivery: a failing
// handler gets the same event again, with exponential backoff, until it
// succeeds or the queue's context ends. Handlers must be idempotent.
// Handlers may return backoff.Permanent to stop redelivery.
type Queue struct {
	handlerSet
	events        chan Event
	logger        *zap.Logger
	retryInterval time.Duration
	maxInterval   time.Duration
}

// NewQueue creates a queue holding up to size pending events.
func NewQueue(size int, retryInterval time.Duration, logger *zap.Logger) *Queue {
	if size <= 0 {
		size = 1
	}
	if retryInterval <= 0 {
		retryInterval = 200 * time.Millisecond
	}
	return &Queue{
		handlerSet:    newHandlerSet(),
		events:        make(chan Event, size),
		logger:        logger,
		retryInterval: retryInterval,
		maxInterval:   30 * time.Second,
	}
}

// Publish enqueues event, blocking while the queue is full.
func (q *Queue) Publish(ctx context.Context, event Event) error {
	select {
	case q.events <- event:
		return nil
	case <-ctx.Done():
		return errors.Join(ErrQueueFull, ctx.Err())
	}
}

// Run delivers queued events until ctx is done.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-q.events:
			q.deliver(ctx, event)
		}
	}
}

func (q *Queue) deliver(ctx context.Context, event Event) {
	for _, handler := range q.handlersFor(event.Type) {
		attempt := 0
		op := func() error {
			attempt++
			return handler(ctx, event)
		}
		notify := func(err error, wait time.Duration) {
			q.logger.Warn("event handler failed; redelivering",
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)),
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(err))
		}
		if err := backoff.RetryNotify(op, backoff.WithContext(q.backOff(), ctx), notify); err != nil {
			q.logger.Error("event handler gave up",
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)),
				zap.Int("attempts", attempt),
				zap.Error(err))
		}
	}
}

func (q *Queue) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = q.retryInterval
	b.MaxInterval = q.maxInterval
	b.MaxElapsedTime = 0
	return b
}
