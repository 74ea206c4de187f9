package killmail

import (
	"fmt"

	"github.com/evefleet/srp-gateway/internal/esi"
)

// High-slot inventory flags (HiSlot0 through HiSlot7).
const (
	hiSlotFlagFirst = 27
	hiSlotFlagLast  = 34
)

// BonusFitRule describes the fit qualifying for the bonus payout tier. The
// type id and threshold are long-standing program constants; changing them
// would break comparability with historically recorded requests.
type BonusFitRule struct {
	WeaponTypeID  int64
	RequiredCount int
}

// DefaultBonusFitRule is the polarized-launcher rule the program has always
// used: three polarized rocket launchers fitted in high slots.
func DefaultBonusFitRule() BonusFitRule {
	return BonusFitRule{WeaponTypeID: 34268, RequiredCount: 3}
}

// BonusFit is the result of checking a loss against a BonusFitRule.
type BonusFit struct {
	Qualifies bool
	Warning   string
}

// DetectBonusFit counts rule weapons fitted in high slots. The full count
// qualifies cleanly; a partial fit (at least one, fewer than required) still
// qualifies but carries a warning stating the exact count; zero does not
// qualify.
func DetectBonusFit(items []esi.KillmailItem, rule BonusFitRule) BonusFit {
	var count int
	for _, item := range items {
		if item.ItemTypeID != rule.WeaponTypeID {
			continue
		}
		if item.Flag < hiSlotFlagFirst || item.Flag > hiSlotFlagLast {
			continue
		}
		qty := item.QuantityDestroyed + item.QuantityDropped
		if qty == 0 {
			qty = 1
		}
		count += int(qty)
	}

	switch {
	case count >= rule.RequiredCount:
		return BonusFit{Qualifies: true}
	case count > 0:
		return BonusFit{
			Qualifies: true,
			Warning:   fmt.Sprintf("only %d of %d bonus weapons fitted", count, rule.RequiredCount),
		}
	default:
		return BonusFit{}
	}
}
