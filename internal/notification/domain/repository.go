package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// QueueRepository is the durable notification store.
type QueueRepository interface {
	// Enqueue inserts a notification due at retryAfter. Enqueues are never
	// silently dropped; any failure is surfaced to the caller.
	Enqueue(ctx context.Context, recipientID int64, payload Payload, retryAfter time.Time) error

	// Due returns up to limit rows whose retry_after has passed, oldest due
	// first, locked against concurrent drains.
	Due(ctx context.Context, limit int) ([]*PendingNotification, error)

	// Delete removes a successfully sent notification.
	Delete(ctx context.Context, id uuid.UUID) error

	// Reschedule pushes retry_after forward, increments attempts and records
	// the error.
	Reschedule(ctx context.Context, id uuid.UUID, retryAfter time.Time, sendErr string) error

	// PendingCount reports the current queue depth, for metrics.
	PendingCount(ctx context.Context) (int, error)
}
