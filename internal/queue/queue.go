// Package queue provides an in-memory at-least-once ingestion task
// queue. Deliveries must be acknowledged; an unacknowledged delivery
// is returned to the queue after its visibility timeout, so consumers
// see duplicates and must stay idempotent.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quarrydocs/quarry/internal/core/domain"
	"github.com/quarrydocs/quarry/internal/core/ports/driven"
)

// Ensure Queue implements the interface.
var _ driven.TaskQueue = (*Queue)(nil)

// DefaultVisibilityTimeout is how long a delivery stays invisible
// before redelivery when neither Ack nor Nack arrives.
const DefaultVisibilityTimeout = 5 * time.Minute

// ErrClosed is returned by operations on a closed queue.
var ErrClosed = fmt.Errorf("queue: closed")

// Option configures the queue.
type Option func(*Queue)

// WithVisibilityTimeout overrides the redelivery timeout.
func WithVisibilityTimeout(d time.Duration) Option {
	return func(q *Queue) {
		q.visibility = d
	}
}

// Queue is an in-memory at-least-once task queue.
type Queue struct {
	mu         sync.Mutex
	pending    []domain.IngestionTask
	inflight   map[*delivery]*time.Timer
	notify     chan struct{}
	closed     bool
	visibility time.Duration
}

// New creates an in-memory task queue.
func New(opts ...Option) *Queue {
	q := &Queue{
		inflight:   make(map[*delivery]*time.Timer),
		notify:     make(chan struct{}, 1),
		visibility: DefaultVisibilityTimeout,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue publishes a task.
func (q *Queue) Enqueue(_ context.Context, task domain.IngestionTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	q.pending = append(q.pending, task)
	q.wake()
	return nil
}

// Dequeue blocks until a task is available, the context is done, or
// the queue is closed.
func (q *Queue) Dequeue(ctx context.Context) (driven.TaskDelivery, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, ErrClosed
		}
		if len(q.pending) > 0 {
			task := q.pending[0]
			q.pending = q.pending[1:]
			d := &delivery{queue: q, task: task}
			q.inflight[d] = time.AfterFunc(q.visibility, func() {
				q.redeliver(d)
			})
			if len(q.pending) > 0 {
				// Pass the wakeup on to other blocked consumers.
				q.wake()
			}
			q.mu.Unlock()
			return d, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
		}
	}
}

// Close stops the queue. In-flight deliveries become no-ops.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	for d, timer := range q.inflight {
		timer.Stop()
		delete(q.inflight, d)
	}
	close(q.notify)
	return nil
}

// wake signals one blocked Dequeue. Callers hold q.mu.
func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// redeliver moves an expired in-flight delivery back to pending.
func (q *Queue) redeliver(d *delivery) {
	q.mu.Lock()
	defer q.mu.Unlock()
	timer, ok := q.inflight[d]
	if !ok || q.closed {
		return
	}
	timer.Stop()
	delete(q.inflight, d)
	q.pending = append(q.pending, d.task)
	q.wake()
}

// delivery is one in-flight task handed to a consumer.
type delivery struct {
	queue *Queue
	task  domain.IngestionTask
}

var _ driven.TaskDelivery = (*delivery)(nil)

// Task returns the delivered task.
func (d *delivery) Task() domain.IngestionTask {
	return d.task
}

// Ack marks the task handled. Idempotent; acking after redelivery is a
// no-op because the delivery is no longer in flight.
func (d *delivery) Ack() error {
	q := d.queue
	q.mu.Lock()
	defer q.mu.Unlock()
	if timer, ok := q.inflight[d]; ok {
		timer.Stop()
		delete(q.inflight, d)
	}
	return nil
}

// Nack returns the task to the queue for immediate redelivery.
func (d *delivery) Nack() error {
	q := d.queue
	q.mu.Lock()
	defer q.mu.Unlock()
	timer, ok := q.inflight[d]
	if !ok {
		return nil
	}
	timer.Stop()
	delete(q.inflight, d)
	if !q.closed {
		q.pending = append(q.pending, d.task)
		q.wake()
	}
	return nil
}
