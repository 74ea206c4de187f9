package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/evefleet/srp-gateway/internal/srp/domain"
)

type PgProcessedMessageRepository struct {
	db     Querier
	logger *slog.Logger
}

func NewPgProcessedMessageRepository(db Querier, logger *slog.Logger) domain.ProcessedMessageRepository {
	return &PgProcessedMessageRepository{db: db, logger: logger.With("component", "processed_message_repository_pg")}
}

func (r *PgProcessedMessageRepository) FilterProcessed(ctx context.Context, mailIDs []int64) (map[int64]bool, error) {
	processed := make(map[int64]bool, len(mailIDs))
	if len(mailIDs) == 0 {
		return processed, nil
	}

	query := `SELECT mail_id FROM processed_messages WHERE mail_id = ANY($1)`
	rows, err := r.db.Query(ctx, query, mailIDs)
	if err != nil {
		return nil, fmt.Errorf("querying processed mail ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning processed mail id: %w", err)
		}
		processed[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return processed, nil
}

func (r *PgProcessedMessageRepository) Create(ctx context.Context, msg *domain.ProcessedMessage) (bool, error) {
	if msg.ProcessedAt.IsZero() {
		msg.ProcessedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO processed_messages (
			mail_id, sender_id, sender_name, subject, timestamp, body,
			outcome, detail, request_id, processed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.Exec(ctx, query,
		msg.MailID, msg.SenderID, msg.SenderName, msg.Subject, msg.Timestamp, msg.Body,
		msg.Outcome, msg.Detail, msg.RequestID, msg.ProcessedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			// Concurrent run already recorded this mail.
			r.logger.WarnContext(ctx, "mail already recorded as processed", "mail_id", msg.MailID)
			return false, nil
		}
		return false, fmt.Errorf("inserting processed message %d: %w", msg.MailID, err)
	}
	return true, nil
}
