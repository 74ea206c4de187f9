package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/evefleet/srp-gateway/internal/srp/domain"
)

const uniqueViolationCode = "23505"

type PgRequestRepository struct {
	db     Querier
	logger *slog.Logger
}

func NewPgRequestRepository(db Querier, logger *slog.Logger) domain.RequestRepository {
	return &PgRequestRepository{db: db, logger: logger.With("component", "request_repository_pg")}
}

const requestColumns = `
	id, character_id, character_name, corporation_id, corporation_name,
	alliance_id, alliance_name, killmail_id, killmail_hash, killmail_time,
	ship_type_id, ship_type_name, is_polarized, solar_system_id, solar_system_name,
	base_payout, final_payout, status, requires_fc_approval, denial_reason,
	mail_id, mail_subject, mail_body, warnings,
	payment_journal_id, payment_amount, paid_at, details, created_at, updated_at`

func (r *PgRequestRepository) Create(ctx context.Context, req *domain.ReimbursementRequest) error {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now

	// Requests filed without a resolved loss (bans, multi-loss mails) store a
	// NULL killmail id so the unique index only binds real losses.
	var killmailID *int64
	if req.KillmailID != 0 {
		killmailID = &req.KillmailID
	}
	var killmailTime *time.Time
	if !req.KillmailTime.IsZero() {
		killmailTime = &req.KillmailTime
	}
	var denialReason *string
	if req.DenialReason != "" {
		s := string(req.DenialReason)
		denialReason = &s
	}

	query := `
		INSERT INTO reimbursement_requests (` + requestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		        $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30)
	`
	_, err := r.db.Exec(ctx, query,
		req.ID, req.CharacterID, req.CharacterName, req.CorporationID, req.CorporationName,
		req.AllianceID, req.AllianceName, killmailID, req.KillmailHash, killmailTime,
		req.ShipTypeID, req.ShipTypeName, req.IsPolarized, req.SolarSystemID, req.SolarSystemName,
		req.BasePayout, req.FinalPayout, req.Status, req.RequiresFCApproval, denialReason,
		req.MailID, req.MailSubject, req.MailBody, req.Warnings,
		req.PaymentJournalID, req.PaymentAmount, req.PaidAt, req.Details, req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return domain.ErrDuplicateKillmail
		}
		return fmt.Errorf("inserting reimbursement request: %w", err)
	}
	return nil
}

func (r *PgRequestRepository) GetByKillmailID(ctx context.Context, killmailID int64) (*domain.ReimbursementRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM reimbursement_requests WHERE killmail_id = $1`
	row := r.db.QueryRow(ctx, query, killmailID)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRequestNotFound
		}
		return nil, fmt.Errorf("fetching request by killmail id %d: %w", killmailID, err)
	}
	return req, nil
}

func (r *PgRequestRepository) ApprovedUnpaid(ctx context.Context) ([]*domain.ReimbursementRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM reimbursement_requests
		WHERE status = $1 AND payment_journal_id IS NULL
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, domain.StatusApproved)
	if err != nil {
		return nil, fmt.Errorf("querying approved unpaid requests: %w", err)
	}
	defer rows.Close()

	var requests []*domain.ReimbursementRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning approved unpaid request: %w", err)
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *PgRequestRepository) MarkPaid(ctx context.Context, id uuid.UUID, journalID int64, amount decimal.Decimal, paidAt time.Time) (bool, error) {
	// Guarded by payment_journal_id IS NULL: once stamped, the reference is
	// immutable, and concurrent reconciliation runs cannot double-promote.
	query := `
		UPDATE reimbursement_requests
		SET status = $2, payment_journal_id = $3, payment_amount = $4, paid_at = $5, updated_at = $6
		WHERE id = $1 AND payment_journal_id IS NULL
	`
	tag, err := r.db.Exec(ctx, query, id, domain.StatusPaid, journalID, amount, paidAt, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("marking request %s paid: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.DebugContext(ctx, "request already reconciled, skipping", "request_id", id)
		return false, nil
	}
	return true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*domain.ReimbursementRequest, error) {
	var req domain.ReimbursementRequest
	var killmailID *int64
	var killmailTime *time.Time
	var denialReason *string

	err := row.Scan(
		&req.ID, &req.CharacterID, &req.CharacterName, &req.CorporationID, &req.CorporationName,
		&req.AllianceID, &req.AllianceName, &killmailID, &req.KillmailHash, &killmailTime,
		&req.ShipTypeID, &req.ShipTypeName, &req.IsPolarized, &req.SolarSystemID, &req.SolarSystemName,
		&req.BasePayout, &req.FinalPayout, &req.Status, &req.RequiresFCApproval, &denialReason,
		&req.MailID, &req.MailSubject, &req.MailBody, &req.Warnings,
		&req.PaymentJournalID, &req.PaymentAmount, &req.PaidAt, &req.Details, &req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if killmailID != nil {
		req.KillmailID = *killmailID
	}
	if killmailTime != nil {
		req.KillmailTime = *killmailTime
	}
	if denialReason != nil {
		req.DenialReason = domain.DenialReason(*denialReason)
	}
	return &req, nil
}
