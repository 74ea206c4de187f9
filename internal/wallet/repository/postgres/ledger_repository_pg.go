package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/evefleet/srp-gateway/internal/wallet/domain"
)

type PgLedgerRepository struct {
	db     Querier
	logger *slog.Logger
}

func NewPgLedgerRepository(db Querier, logger *slog.Logger) domain.LedgerRepository {
	return &PgLedgerRepository{db: db, logger: logger.With("component", "ledger_repository_pg")}
}

func (r *PgLedgerRepository) MaxEntryID(ctx context.Context, division int) (int64, error) {
	query := `SELECT COALESCE(MAX(id), 0) FROM wallet_journal WHERE division = $1`
	var maxID int64
	if err := r.db.QueryRow(ctx, query, division).Scan(&maxID); err != nil {
		return 0, fmt.Errorf("querying max journal id for division %d: %w", division, err)
	}
	return maxID, nil
}

// InsertIgnore appends journal rows, skipping ones already mirrored. Each row
// is inserted inside a single transaction so a partial page is never visible.
func (r *PgLedgerRepository) InsertIgnore(ctx context.Context, entries []domain.LedgerEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO wallet_journal (
			id, division, amount, balance, entry_date, ref_type, reason, description,
			first_party_id, first_party_name, second_party_id, second_party_name
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id, division) DO NOTHING
	`

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("beginning journal insert tx: %w", err)
	}
	defer tx.Rollback(ctx)

	inserted := 0
	for _, e := range entries {
		tag, err := tx.Exec(ctx, query,
			e.ID, e.Division, e.Amount, e.Balance, e.Date, e.RefType, e.Reason, e.Description,
			e.FirstPartyID, e.FirstPartyName, e.SecondPartyID, e.SecondPartyName,
		)
		if err != nil {
			return 0, fmt.Errorf("inserting journal entry %d: %w", e.ID, err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing journal insert tx: %w", err)
	}
	return inserted, nil
}

func (r *PgLedgerRepository) FindWithdrawals(ctx context.Context, counterpartyID int64, amount decimal.Decimal) ([]domain.LedgerEntry, error) {
	query := `
		SELECT id, division, amount, balance, entry_date, ref_type, reason, description,
		       first_party_id, first_party_name, second_party_id, second_party_name
		FROM wallet_journal
		WHERE ref_type = $1 AND second_party_id = $2 AND ABS(amount) = $3
		ORDER BY entry_date DESC, id DESC
	`
	rows, err := r.db.Query(ctx, query, domain.RefTypeWithdrawal, counterpartyID, amount.Abs())
	if err != nil {
		return nil, fmt.Errorf("querying withdrawals for party %d: %w", counterpartyID, err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		err := rows.Scan(
			&e.ID, &e.Division, &e.Amount, &e.Balance, &e.Date, &e.RefType, &e.Reason, &e.Description,
			&e.FirstPartyID, &e.FirstPartyName, &e.SecondPartyID, &e.SecondPartyName,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning journal entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
