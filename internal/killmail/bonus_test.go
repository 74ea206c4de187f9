package killmail

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/evefleet/srp-gateway/internal/esi"
)

func launcher(flag int) esi.KillmailItem {
	return esi.KillmailItem{ItemTypeID: 34268, Flag: flag, QuantityDestroyed: 1}
}

func TestDetectBonusFit(t *testing.T) {
	rule := DefaultBonusFitRule()

	tests := []struct {
		name        string
		items       []esi.KillmailItem
		wantBonus   bool
		wantWarning string
	}{
		{
			name:      "no qualifying weapons",
			items:     []esi.KillmailItem{{ItemTypeID: 555, Flag: 27}},
			wantBonus: false,
		},
		{
			name:        "one weapon warns with count",
			items:       []esi.KillmailItem{launcher(27)},
			wantBonus:   true,
			wantWarning: "only 1 of 3 bonus weapons fitted",
		},
		{
			name:        "two weapons warn with count",
			items:       []esi.KillmailItem{launcher(27), launcher(28)},
			wantBonus:   true,
			wantWarning: "only 2 of 3 bonus weapons fitted",
		},
		{
			name:      "full fit no warning",
			items:     []esi.KillmailItem{launcher(27), launcher(28), launcher(29)},
			wantBonus: true,
		},
		{
			name: "weapon outside high slots does not count",
			items: []esi.KillmailItem{
				launcher(27), launcher(28),
				{ItemTypeID: 34268, Flag: 5, QuantityDestroyed: 1}, // cargo
			},
			wantBonus:   true,
			wantWarning: "only 2 of 3 bonus weapons fitted",
		},
		{
			name: "dropped quantity counts too",
			items: []esi.KillmailItem{
				{ItemTypeID: 34268, Flag: 27, QuantityDropped: 2},
				{ItemTypeID: 34268, Flag: 28, QuantityDestroyed: 1},
			},
			wantBonus: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fit := DetectBonusFit(tt.items, rule)
			assert.Equal(t, tt.wantBonus, fit.Qualifies)
			assert.Equal(t, tt.wantWarning, fit.Warning)
		})
	}
}
