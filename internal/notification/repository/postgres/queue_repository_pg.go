package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/evefleet/srp-gateway/internal/notification/domain"
)

type PgQueueRepository struct {
	db     Querier
	logger *slog.Logger
}

func NewPgQueueRepository(db Querier, logger *slog.Logger) domain.QueueRepository {
	return &PgQueueRepository{db: db, logger: logger.With("component", "notification_queue_pg")}
}

func (r *PgQueueRepository) Enqueue(ctx context.Context, recipientID int64, payload domain.Payload, retryAfter time.Time) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling %s payload: %w", payload.Kind(), err)
	}
	if retryAfter.IsZero() {
		retryAfter = time.Now().UTC()
	}

	query := `
		INSERT INTO pending_notifications (id, kind, recipient_id, payload, retry_after, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6)
	`
	_, err = r.db.Exec(ctx, query, uuid.New(), payload.Kind(), recipientID, raw, retryAfter, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("enqueuing %s notification for %d: %w", payload.Kind(), recipientID, err)
	}
	return nil
}

func (r *PgQueueRepository) Due(ctx context.Context, limit int) ([]*domain.PendingNotification, error) {
	query := `
		SELECT id, kind, recipient_id, payload, retry_after, attempts, last_error, created_at
		FROM pending_notifications
		WHERE retry_after <= $1
		ORDER BY retry_after ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`
	rows, err := r.db.Query(ctx, query, time.Now().UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("querying due notifications: %w", err)
	}
	defer rows.Close()

	var due []*domain.PendingNotification
	for rows.Next() {
		var n domain.PendingNotification
		err := rows.Scan(&n.ID, &n.Kind, &n.RecipientID, &n.Payload, &n.RetryAfter, &n.Attempts, &n.LastError, &n.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning due notification: %w", err)
		}
		due = append(due, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return due, nil
}

func (r *PgQueueRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM pending_notifications WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting notification %s: %w", id, err)
	}
	return nil
}

func (r *PgQueueRepository) Reschedule(ctx context.Context, id uuid.UUID, retryAfter time.Time, sendErr string) error {
	query := `
		UPDATE pending_notifications
		SET retry_after = $2, attempts = attempts + 1, last_error = $3
		WHERE id = $1
	`
	_, err := r.db.Exec(ctx, query, id, retryAfter, sendErr)
	if err != nil {
		return fmt.Errorf("rescheduling notification %s: %w", id, err)
	}
	return nil
}

func (r *PgQueueRepository) PendingCount(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM pending_notifications`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting pending notifications: %w", err)
	}
	return count, nil
}
