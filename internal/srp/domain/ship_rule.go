package domain

import "github.com/shopspring/decimal"

// ShipTypeRule is the per-ship approval/payout rule maintained by the admin
// UI. The pipeline loads the active rows once per processing batch and never
// caches them across batches.
type ShipTypeRule struct {
	TypeID    int64
	TypeName  string
	GroupName string

	Approved    bool
	BasePayout  decimal.Decimal
	BonusPayout decimal.Decimal

	// RequiresFCApproval marks ships whose payout needs a fleet commander
	// sign-off; it flags the request but never blocks creation.
	RequiresFCApproval bool
}
