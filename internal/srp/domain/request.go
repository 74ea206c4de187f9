package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RequestStatus is the lifecycle state of a reimbursement request.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusDenied   RequestStatus = "denied"
	StatusPaid     RequestStatus = "paid"
)

// DenialReason distinguishes why a request was denied, for audit/reporting.
type DenialReason string

const (
	DenialBanned          DenialReason = "banned"
	DenialMultipleLosses  DenialReason = "multiple_losses"
	DenialShipNotApproved DenialReason = "ship_not_approved"
	DenialTooOld          DenialReason = "too_old"
	DenialNotVictim       DenialReason = "not_victim"
	DenialDuplicate       DenialReason = "duplicate"
)

// ReimbursementRequest is one payout record administered by the pipeline.
// KillmailID is globally unique among requests that carry one (it prevents
// double payout); rows filed without a resolved loss (bans, multi-loss mails)
// leave it at zero. Once PaymentJournalID is set it is never cleared.
type ReimbursementRequest struct {
	ID uuid.UUID

	CharacterID     int64
	CharacterName   string
	CorporationID   int64
	CorporationName string
	AllianceID      int64
	AllianceName    string

	KillmailID      int64
	KillmailHash    string
	KillmailTime    time.Time
	ShipTypeID      int64
	ShipTypeName    string
	IsPolarized     bool
	SolarSystemID   int64
	SolarSystemName string

	BasePayout  decimal.Decimal
	FinalPayout decimal.Decimal

	Status             RequestStatus
	RequiresFCApproval bool
	DenialReason       DenialReason

	MailID      int64
	MailSubject string
	MailBody    string

	Warnings []string

	PaymentJournalID *int64
	PaymentAmount    *decimal.Decimal
	PaidAt           *time.Time

	// Details is an opaque enrichment blob (zkb value, fitted modules, ...)
	// kept for the admin UI; the pipeline never branches on it.
	Details json.RawMessage

	CreatedAt time.Time
	UpdatedAt time.Time
}
