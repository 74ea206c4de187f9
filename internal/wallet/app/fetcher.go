package app

import (
	"context"
	"log/slog"

	"github.com/evefleet/srp-gateway/internal/esi"
	"github.com/evefleet/srp-gateway/internal/wallet/domain"
)

// JournalSource is the slice of the ESI surface the fetcher needs.
// Satisfied by *esi.Client.
type JournalSource interface {
	WalletJournal(ctx context.Context, division, page int) ([]esi.JournalEntry, error)
	ResolveNames(ctx context.Context, ids []int64) ([]esi.NameRef, error)
}

// Fetcher mirrors the corporation wallet journal into local storage.
type Fetcher struct {
	source   JournalSource
	ledger   domain.LedgerRepository
	maxPages int
	logger   *slog.Logger
}

func NewFetcher(source JournalSource, ledger domain.LedgerRepository, maxPages int, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		source:   source,
		ledger:   ledger,
		maxPages: maxPages,
		logger:   logger.With("component", "wallet_fetcher"),
	}
}

// FetchAndSave pages the journal newest-first until it sees the highest
// already-stored entry id for the division, then resolves counterparty names
// in one bulk call and inserts the new rows. It returns how many rows were
// inserted.
func (f *Fetcher) FetchAndSave(ctx context.Context, division int) (int, error) {
	watermark, err := f.ledger.MaxEntryID(ctx, division)
	if err != nil {
		return 0, err
	}

	var fresh []esi.JournalEntry
	caughtUp := false
	for page := 1; page <= f.maxPages && !caughtUp; page++ {
		entries, err := f.source.WalletJournal(ctx, division, page)
		if err != nil {
			return 0, err
		}
		if len(entries) == 0 {
			break
		}
		for _, e := range entries {
			if e.ID <= watermark {
				caughtUp = true
				continue
			}
			fresh = append(fresh, e)
		}
	}
	if !caughtUp && watermark > 0 && len(fresh) > 0 {
		// The watermark fell off the fetch window. Rows between the window
		// and the watermark are lost until a wider backfill is run.
		f.logger.WarnContext(ctx, "journal watermark not reached within page limit",
			"division", division, "watermark", watermark, "pages", f.maxPages)
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	names, err := f.resolveParties(ctx, fresh)
	if err != nil {
		// Names are display-only. A resolution failure must not block the
		// financial mirror.
		f.logger.WarnContext(ctx, "failed to resolve journal party names", "error", err)
		names = map[int64]string{}
	}

	rows := make([]domain.LedgerEntry, 0, len(fresh))
	for _, e := range fresh {
		rows = append(rows, domain.LedgerEntry{
			ID:              e.ID,
			Division:        division,
			Amount:          e.Amount,
			Balance:         e.Balance,
			Date:            e.Date,
			RefType:         e.RefType,
			Reason:          e.Reason,
			Description:     e.Description,
			FirstPartyID:    e.FirstPartyID,
			FirstPartyName:  names[e.FirstPartyID],
			SecondPartyID:   e.SecondPartyID,
			SecondPartyName: names[e.SecondPartyID],
		})
	}

	inserted, err := f.ledger.InsertIgnore(ctx, rows)
	if err != nil {
		return 0, err
	}
	journalRowsInsertedCounter.Add(float64(inserted))
	f.logger.InfoContext(ctx, "wallet journal mirrored",
		"division", division, "fetched", len(fresh), "inserted", inserted)
	return inserted, nil
}

func (f *Fetcher) resolveParties(ctx context.Context, entries []esi.JournalEntry) (map[int64]string, error) {
	ids := make([]int64, 0, len(entries)*2)
	for _, e := range entries {
		ids = append(ids, e.FirstPartyID, e.SecondPartyID)
	}
	refs, err := f.source.ResolveNames(ctx, ids)
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(refs))
	for _, ref := range refs {
		names[ref.ID] = ref.Name
	}
	return names, nil
}
