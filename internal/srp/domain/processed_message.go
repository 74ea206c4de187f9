package domain

import (
	"time"

	"github.com/google/uuid"
)

// MessageOutcome tags how an inbound mail was disposed of.
type MessageOutcome string

const (
	OutcomeCreated          MessageOutcome = "created"
	OutcomeDuplicate        MessageOutcome = "duplicate"
	OutcomeNotEligible      MessageOutcome = "not_eligible"
	OutcomeBanned           MessageOutcome = "banned"
	OutcomeInvalid          MessageOutcome = "invalid"
	OutcomeRejectedMultiple MessageOutcome = "rejected_multiple"
	OutcomeRejectedShip     MessageOutcome = "rejected_ship"
	OutcomeRejectedAge      MessageOutcome = "rejected_age"
	OutcomeRejectedIdentity MessageOutcome = "rejected_identity"
	OutcomeError            MessageOutcome = "error"
)

// ProcessedMessage records that a mail id has been through the pipeline.
// MailID is the idempotency key for the whole pipeline: a mail id is recorded
// at most once and reprocessing it is a no-op. Mails that errored are kept
// here too so they are not auto-retried on a later run (poison-message
// guard); clearing the row is the manual reprocess path.
type ProcessedMessage struct {
	MailID     int64
	SenderID   int64
	SenderName string
	Subject    string
	Timestamp  time.Time
	Body       string

	Outcome   MessageOutcome
	Detail    string
	RequestID *uuid.UUID

	ProcessedAt time.Time
}
