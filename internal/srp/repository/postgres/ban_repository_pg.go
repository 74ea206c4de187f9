package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/evefleet/srp-gateway/internal/srp/domain"
)

type PgBanListRepository struct {
	db     Querier
	logger *slog.Logger
}

func NewPgBanListRepository(db Querier, logger *slog.Logger) domain.BanListRepository {
	return &PgBanListRepository{db: db, logger: logger.With("component", "ban_repository_pg")}
}

// IsBanned matches on character id or, for entries added before ids were
// recorded, on the exact character name.
func (r *PgBanListRepository) IsBanned(ctx context.Context, characterID int64, characterName string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM banned_entities WHERE character_id = $1 OR character_name = $2)`

	var banned bool
	if err := r.db.QueryRow(ctx, query, characterID, characterName).Scan(&banned); err != nil {
		return false, fmt.Errorf("checking ban list for %d: %w", characterID, err)
	}
	if banned {
		r.logger.InfoContext(ctx, "sender is banned", "character_id", characterID)
	}
	return banned, nil
}
