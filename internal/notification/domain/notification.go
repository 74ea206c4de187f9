package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind identifies a notification template. Each kind carries its own typed
// payload; dispatch is on the kind, never on payload inspection.
type Kind string

const (
	KindRequestReceived   Kind = "request_received"
	KindRejectedMultiple  Kind = "rejected_multiple"
	KindRejectedShip      Kind = "rejected_ship"
	KindRejectedAge       Kind = "rejected_age"
	KindRejectedIdentity  Kind = "rejected_identity"
	KindRejectedDuplicate Kind = "rejected_duplicate"
)

// Payload is the kind-specific content of a notification.
type Payload interface {
	Kind() Kind
}

// RequestReceivedPayload confirms a created request to its sender.
type RequestReceivedPayload struct {
	RequestID          uuid.UUID       `json:"request_id"`
	ShipName           string          `json:"ship_name"`
	Payout             decimal.Decimal `json:"payout"`
	IsPolarized        bool            `json:"is_polarized"`
	RequiresFCApproval bool            `json:"requires_fc_approval"`
	Warnings           []string        `json:"warnings,omitempty"`
}

func (RequestReceivedPayload) Kind() Kind { return KindRequestReceived }

// RejectedMultiplePayload rejects a mail referencing several losses.
type RejectedMultiplePayload struct {
	ReferenceCount int `json:"reference_count"`
}

func (RejectedMultiplePayload) Kind() Kind { return KindRejectedMultiple }

// RejectedShipPayload rejects an unapproved ship, listing what is approved.
type RejectedShipPayload struct {
	ShipName string `json:"ship_name"`
	// ApprovedShips maps ship group name to the approved ship names in it.
	ApprovedShips map[string][]string `json:"approved_ships"`
}

func (RejectedShipPayload) Kind() Kind { return KindRejectedShip }

// RejectedAgePayload rejects a loss older than the age limit.
type RejectedAgePayload struct {
	ElapsedDays int `json:"elapsed_days"`
	LimitDays   int `json:"limit_days"`
}

func (RejectedAgePayload) Kind() Kind { return KindRejectedAge }

// RejectedIdentityPayload rejects a submission by someone other than the victim.
type RejectedIdentityPayload struct {
	VictimID   int64  `json:"victim_id"`
	VictimName string `json:"victim_name"`
}

func (RejectedIdentityPayload) Kind() Kind { return KindRejectedIdentity }

// RejectedDuplicatePayload rejects a killmail that already has a request. The
// reply differs depending on whether that request was already paid.
type RejectedDuplicatePayload struct {
	KillmailID int64            `json:"killmail_id"`
	Status     string           `json:"status"`
	PaidAmount *decimal.Decimal `json:"paid_amount,omitempty"`
	PaidAt     *time.Time       `json:"paid_at,omitempty"`
}

func (RejectedDuplicatePayload) Kind() Kind { return KindRejectedDuplicate }

// DecodePayload unmarshals raw into the payload struct for kind.
func DecodePayload(kind Kind, raw json.RawMessage) (Payload, error) {
	switch kind {
	case KindRequestReceived:
		var p RequestReceivedPayload
		return p, json.Unmarshal(raw, &p)
	case KindRejectedMultiple:
		var p RejectedMultiplePayload
		return p, json.Unmarshal(raw, &p)
	case KindRejectedShip:
		var p RejectedShipPayload
		return p, json.Unmarshal(raw, &p)
	case KindRejectedAge:
		var p RejectedAgePayload
		return p, json.Unmarshal(raw, &p)
	case KindRejectedIdentity:
		var p RejectedIdentityPayload
		return p, json.Unmarshal(raw, &p)
	case KindRejectedDuplicate:
		var p RejectedDuplicatePayload
		return p, json.Unmarshal(raw, &p)
	default:
		return nil, fmt.Errorf("unknown notification kind %q", kind)
	}
}

// PendingNotification is one queued outbound reply. Rows are deleted on
// successful send and rescheduled (retry_after pushed forward, attempts
// incremented) on failure; nothing evicts a row automatically.
type PendingNotification struct {
	ID          uuid.UUID
	Kind        Kind
	RecipientID int64
	Payload     json.RawMessage
	RetryAfter  time.Time
	Attempts    int
	LastError   *string
	CreatedAt   time.Time
}
