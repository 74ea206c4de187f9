package killmail

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/evefleet/srp-gateway/internal/esi"
)

// RecordFetcher fetches the canonical loss record. Satisfied by *esi.Client.
type RecordFetcher interface {
	Killmail(ctx context.Context, killmailID int64, hash string) (*esi.Killmail, error)
}

// HashLookup obtains a killmail hash by id. Satisfied by *ZKillboardClient.
type HashLookup interface {
	Hash(ctx context.Context, killmailID int64) (string, error)
}

// Resolver turns free-text killmail references into canonical loss records.
type Resolver struct {
	records RecordFetcher
	hashes  HashLookup
	logger  *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(records RecordFetcher, hashes HashLookup, logger *slog.Logger) *Resolver {
	return &Resolver{
		records: records,
		hashes:  hashes,
		logger:  logger.With("component", "killmail_resolver"),
	}
}

// Resolved pairs the reference with the fetched record.
type Resolved struct {
	Reference Reference
	Record    *esi.Killmail
}

// Resolve extracts the first reference from text and fetches its canonical
// record, looking up the hash externally when the reference lacks one.
// Returns ErrNoReference when no pattern is present.
func (r *Resolver) Resolve(ctx context.Context, text string) (*Resolved, error) {
	ref, err := ExtractReference(text)
	if err != nil {
		return nil, err
	}

	if ref.Hash == "" {
		hash, err := r.hashes.Hash(ctx, ref.KillmailID)
		if err != nil {
			return nil, fmt.Errorf("killmail: hash lookup for %d failed: %w", ref.KillmailID, err)
		}
		ref.Hash = hash
		r.logger.DebugContext(ctx, "resolved killmail hash externally", "killmail_id", ref.KillmailID)
	}

	record, err := r.records.Killmail(ctx, ref.KillmailID, ref.Hash)
	if err != nil {
		return nil, fmt.Errorf("killmail: fetch of %d failed: %w", ref.KillmailID, err)
	}
	return &Resolved{Reference: ref, Record: record}, nil
}
