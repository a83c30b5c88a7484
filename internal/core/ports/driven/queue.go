package driven

import (
	"context"

	"github.com/quarrydocs/quarry/internal/core/domain"
)

// TaskDelivery is one received ingestion task. The consumer must Ack
// on success or Nack to trigger redelivery; an unacknowledged delivery
// is redelivered after its visibility timeout.
type TaskDelivery interface {
	// Task returns the delivered task.
	Task() domain.IngestionTask

	// Ack marks the task handled. Idempotent.
	Ack() error

	// Nack returns the task to the queue for redelivery.
	Nack() error
}

// TaskQueue is the at-least-once ingestion task queue. Duplicate
// deliveries are expected and the orchestrator must stay idempotent
// under them.
type TaskQueue interface {
	// Enqueue publishes a task.
	Enqueue(ctx context.Context, task domain.IngestionTask) error

	// Dequeue blocks until a task is available or ctx is done.
	Dequeue(ctx context.Context) (TaskDelivery, error)

	// Close stops the queue; blocked Dequeue calls return an error.
	Close() error
}
