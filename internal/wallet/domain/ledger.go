package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// RefTypeWithdrawal is the journal entry type SRP payouts are made with.
const RefTypeWithdrawal = "corporation_account_withdrawal"

// LedgerEntry mirrors one row of the external corporation wallet journal.
// The journal is the financial source of truth; mirrored rows are append-only
// and never mutated after insert.
type LedgerEntry struct {
	ID       int64
	Division int

	Amount  decimal.Decimal
	Balance decimal.Decimal
	Date    time.Time

	RefType     string
	Reason      string
	Description string

	FirstPartyID    int64
	FirstPartyName  string
	SecondPartyID   int64
	SecondPartyName string
}

// LedgerRepository is the local journal mirror.
type LedgerRepository interface {
	// MaxEntryID returns the highest stored journal id for a division, or 0
	// when none. It is the fetch watermark.
	MaxEntryID(ctx context.Context, division int) (int64, error)

	// InsertIgnore bulk-inserts entries, ignoring (id, division) conflicts.
	// Returns how many rows were actually inserted.
	InsertIgnore(ctx context.Context, entries []LedgerEntry) (int, error)

	// FindWithdrawals returns stored withdrawal rows paid to counterpartyID
	// whose absolute amount equals amount, newest first.
	FindWithdrawals(ctx context.Context, counterpartyID int64, amount decimal.Decimal) ([]LedgerEntry, error)
}
