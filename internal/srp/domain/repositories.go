package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrRequestNotFound   = errors.New("reimbursement request not found")
	ErrDuplicateKillmail = errors.New("a request for this killmail already exists")
)

// RequestRepository persists reimbursement requests.
type RequestRepository interface {
	// Create inserts a new request. Returns ErrDuplicateKillmail when a
	// request with the same (non-zero) killmail id already exists.
	Create(ctx context.Context, req *ReimbursementRequest) error

	// GetByKillmailID returns the request holding killmailID, or
	// ErrRequestNotFound.
	GetByKillmailID(ctx context.Context, killmailID int64) (*ReimbursementRequest, error)

	// ApprovedUnpaid returns approved requests whose payment journal id is
	// still null.
	ApprovedUnpaid(ctx context.Context) ([]*ReimbursementRequest, error)

	// MarkPaid promotes a request to paid, stamping the journal reference.
	// The update is guarded by payment_journal_id IS NULL; it reports whether
	// the row was actually promoted.
	MarkPaid(ctx context.Context, id uuid.UUID, journalID int64, amount decimal.Decimal, paidAt time.Time) (bool, error)
}

// ProcessedMessageRepository is the pipeline's idempotency ledger.
type ProcessedMessageRepository interface {
	// FilterProcessed returns the subset of mailIDs already recorded.
	FilterProcessed(ctx context.Context, mailIDs []int64) (map[int64]bool, error)

	// Create records a processed mail. It reports false when the mail id was
	// already recorded by another run (conflict-ignore no-op).
	Create(ctx context.Context, msg *ProcessedMessage) (bool, error)
}

// ShipRuleRepository loads the active ship approval rules.
type ShipRuleRepository interface {
	ActiveRules(ctx context.Context) (map[int64]ShipTypeRule, error)
}

// BanListRepository checks senders against the community ban list.
type BanListRepository interface {
	IsBanned(ctx context.Context, characterID int64, characterName string) (bool, error)
}
