package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/evefleet/srp-gateway/internal/srp/domain"
)

type PgShipRuleRepository struct {
	db     Querier
	logger *slog.Logger
}

func NewPgShipRuleRepository(db Querier, logger *slog.Logger) domain.ShipRuleRepository {
	return &PgShipRuleRepository{db: db, logger: logger.With("component", "ship_rule_repository_pg")}
}

// ActiveRules loads the current ship approval snapshot. Callers load this once
// per processing batch; it is never cached across batches so admin edits take
// effect on the next run.
func (r *PgShipRuleRepository) ActiveRules(ctx context.Context) (map[int64]domain.ShipTypeRule, error) {
	query := `
		SELECT type_id, type_name, group_name, approved, base_payout, bonus_payout, requires_fc_approval
		FROM ship_type_rules
		WHERE active = TRUE
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying active ship rules: %w", err)
	}
	defer rows.Close()

	rules := make(map[int64]domain.ShipTypeRule)
	for rows.Next() {
		var rule domain.ShipTypeRule
		err := rows.Scan(
			&rule.TypeID, &rule.TypeName, &rule.GroupName, &rule.Approved,
			&rule.BasePayout, &rule.BonusPayout, &rule.RequiresFCApproval,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning ship rule: %w", err)
		}
		rules[rule.TypeID] = rule
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rules, nil
}
