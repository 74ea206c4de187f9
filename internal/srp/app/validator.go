package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	notifdomain "github.com/evefleet/srp-gateway/internal/notification/domain"

	"github.com/evefleet/srp-gateway/internal/killmail"
	"github.com/evefleet/srp-gateway/internal/srp/domain"
)

// lossAgeLimit is how old a loss may be and still qualify.
const lossAgeLimit = 30 * 24 * time.Hour

// LossResolver resolves a killmail reference from mail text. Satisfied by
// *killmail.Resolver.
type LossResolver interface {
	Resolve(ctx context.Context, text string) (*killmail.Resolved, error)
}

// Inbound is one mail entering the eligibility pipeline.
type Inbound struct {
	MailID    int64
	SenderID  int64
	Subject   string
	Body      string
	Timestamp time.Time
}

// Verdict is the pipeline's decision for one mail. Request, when set, is the
// row to insert (created or denied); Payload, when set, is the reply to
// enqueue. Resolved carries the loss record for name fix-up in phase two.
type Verdict struct {
	Outcome  domain.MessageOutcome
	Detail   string
	Request  *domain.ReimbursementRequest
	Payload  notifdomain.Payload
	Resolved *killmail.Resolved
}

// Validator is the short-circuiting eligibility pipeline. It reads from its
// collaborators but never writes; persisting outcomes is the processor's job.
type Validator struct {
	bans      domain.BanListRepository
	requests  domain.RequestRepository
	resolver  LossResolver
	bonusRule killmail.BonusFitRule
	logger    *slog.Logger

	// now is replaceable in tests.
	now func() time.Time
}

// NewValidator creates the eligibility pipeline.
func NewValidator(
	bans domain.BanListRepository,
	requests domain.RequestRepository,
	resolver LossResolver,
	bonusRule killmail.BonusFitRule,
	logger *slog.Logger,
) *Validator {
	return &Validator{
		bans:      bans,
		requests:  requests,
		resolver:  resolver,
		bonusRule: bonusRule,
		logger:    logger.With("component", "eligibility_validator"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Validate runs the checks in their fixed order and short-circuits on the
// first terminal outcome. rules is the ship approval snapshot loaded for this
// batch.
func (v *Validator) Validate(ctx context.Context, in Inbound, rules map[int64]domain.ShipTypeRule) *Verdict {
	// 1. Ban check. Banned senders get no reply: silence is intentional.
	banned, err := v.bans.IsBanned(ctx, in.SenderID, "")
	if err != nil {
		return &Verdict{Outcome: domain.OutcomeError, Detail: "ban check failed: " + err.Error()}
	}
	if banned {
		return &Verdict{
			Outcome: domain.OutcomeBanned,
			Request: v.deniedRequest(in, domain.DenialBanned),
		}
	}

	// 2. Exactly one loss reference per mail.
	switch count := killmail.CountReferences(in.Body); {
	case count == 0:
		return &Verdict{Outcome: domain.OutcomeNotEligible, Detail: "no killmail reference"}
	case count > 1:
		return &Verdict{
			Outcome: domain.OutcomeRejectedMultiple,
			Request: v.deniedRequest(in, domain.DenialMultipleLosses),
			Payload: notifdomain.RejectedMultiplePayload{ReferenceCount: count},
		}
	}

	// 3. Resolve the loss record. Failures are recorded against this mail
	// and not auto-retried: reprocessing a poison mail is a manual action.
	resolved, err := v.resolver.Resolve(ctx, in.Body)
	if err != nil {
		if errors.Is(err, killmail.ErrNoReference) {
			return &Verdict{Outcome: domain.OutcomeInvalid, Detail: err.Error()}
		}
		return &Verdict{Outcome: domain.OutcomeError, Detail: err.Error()}
	}
	record := resolved.Record

	// 4. Ship approval, from the batch snapshot.
	rule, known := rules[record.Victim.ShipTypeID]
	if !known || !rule.Approved {
		req := v.deniedRequest(in, domain.DenialShipNotApproved)
		v.attachLoss(req, resolved, true)
		return &Verdict{
			Outcome:  domain.OutcomeRejectedShip,
			Request:  req,
			Payload:  notifdomain.RejectedShipPayload{ShipName: rule.TypeName, ApprovedShips: approvedShipsByGroup(rules)},
			Resolved: resolved,
		}
	}

	// 5. Age check.
	if elapsed := v.now().Sub(record.KillmailTime); elapsed > lossAgeLimit {
		req := v.deniedRequest(in, domain.DenialTooOld)
		v.attachLoss(req, resolved, true)
		return &Verdict{
			Outcome: domain.OutcomeRejectedAge,
			Request: req,
			Payload: notifdomain.RejectedAgePayload{
				ElapsedDays: int(elapsed / (24 * time.Hour)),
				LimitDays:   int(lossAgeLimit / (24 * time.Hour)),
			},
			Resolved: resolved,
		}
	}

	// 6. The sender must be the victim. The denied row keeps no killmail id
	// so the actual victim can still submit their loss.
	if in.SenderID != record.Victim.CharacterID {
		req := v.deniedRequest(in, domain.DenialNotVictim)
		v.attachLoss(req, resolved, false)
		return &Verdict{
			Outcome:  domain.OutcomeRejectedIdentity,
			Request:  req,
			Payload:  notifdomain.RejectedIdentityPayload{VictimID: record.Victim.CharacterID},
			Resolved: resolved,
		}
	}

	// 7. Duplicate killmail. The reply discloses payment details when the
	// existing request was already paid.
	existing, err := v.requests.GetByKillmailID(ctx, record.KillmailID)
	if err != nil && !errors.Is(err, domain.ErrRequestNotFound) {
		return &Verdict{Outcome: domain.OutcomeError, Detail: "duplicate check failed: " + err.Error()}
	}
	if existing != nil {
		req := v.deniedRequest(in, domain.DenialDuplicate)
		v.attachLoss(req, resolved, false)
		return &Verdict{
			Outcome: domain.OutcomeDuplicate,
			Request: req,
			Payload: notifdomain.RejectedDuplicatePayload{
				KillmailID: record.KillmailID,
				Status:     string(existing.Status),
				PaidAmount: existing.PaymentAmount,
				PaidAt:     existing.PaidAt,
			},
			Resolved: resolved,
		}
	}

	// 8. Payout computation.
	return v.createVerdict(in, resolved, rule)
}

func (v *Validator) createVerdict(in Inbound, resolved *killmail.Resolved, rule domain.ShipTypeRule) *Verdict {
	record := resolved.Record
	fit := killmail.DetectBonusFit(record.Victim.Items, v.bonusRule)

	final := rule.BasePayout
	if fit.Qualifies {
		final = rule.BonusPayout
	}

	var warnings []string
	if fit.Warning != "" {
		warnings = append(warnings, fit.Warning)
	}

	status := domain.StatusApproved
	if rule.RequiresFCApproval {
		// Discretionary ships wait for an FC sign-off but are still filed.
		status = domain.StatusPending
		warnings = append(warnings, "payout requires fleet commander approval")
	}

	details, _ := json.Marshal(record)

	req := &domain.ReimbursementRequest{
		CharacterID:        in.SenderID,
		CorporationID:      record.Victim.CorporationID,
		AllianceID:         record.Victim.AllianceID,
		KillmailID:         record.KillmailID,
		KillmailHash:       resolved.Reference.Hash,
		KillmailTime:       record.KillmailTime,
		ShipTypeID:         record.Victim.ShipTypeID,
		ShipTypeName:       rule.TypeName,
		IsPolarized:        fit.Qualifies,
		SolarSystemID:      record.SolarSystemID,
		BasePayout:         rule.BasePayout,
		FinalPayout:        final,
		Status:             status,
		RequiresFCApproval: rule.RequiresFCApproval,
		MailID:             in.MailID,
		MailSubject:        in.Subject,
		MailBody:           in.Body,
		Warnings:           warnings,
		Details:            details,
	}

	return &Verdict{
		Outcome: domain.OutcomeCreated,
		Request: req,
		Payload: notifdomain.RequestReceivedPayload{
			ShipName:           rule.TypeName,
			Payout:             final,
			IsPolarized:        fit.Qualifies,
			RequiresFCApproval: rule.RequiresFCApproval,
			Warnings:           warnings,
		},
		Resolved: resolved,
	}
}

// deniedRequest builds the audit row every terminal rejection files.
func (v *Validator) deniedRequest(in Inbound, reason domain.DenialReason) *domain.ReimbursementRequest {
	return &domain.ReimbursementRequest{
		CharacterID:  in.SenderID,
		Status:       domain.StatusDenied,
		DenialReason: reason,
		MailID:       in.MailID,
		MailSubject:  in.Subject,
		MailBody:     in.Body,
	}
}

// attachLoss copies the resolved loss onto a denied row. keepID controls
// whether the killmail id itself is stored; identity and duplicate denials
// leave it null so the unique index stays free for the rightful request.
func (v *Validator) attachLoss(req *domain.ReimbursementRequest, resolved *killmail.Resolved, keepID bool) {
	record := resolved.Record
	if keepID {
		req.KillmailID = record.KillmailID
	}
	req.KillmailHash = resolved.Reference.Hash
	req.KillmailTime = record.KillmailTime
	req.ShipTypeID = record.Victim.ShipTypeID
	req.SolarSystemID = record.SolarSystemID
	details, _ := json.Marshal(record)
	req.Details = details
}

// approvedShipsByGroup flattens the snapshot into group -> approved ship
// names, for the rejection reply.
func approvedShipsByGroup(rules map[int64]domain.ShipTypeRule) map[string][]string {
	groups := make(map[string][]string)
	for _, rule := range rules {
		if !rule.Approved {
			continue
		}
		group := rule.GroupName
		if group == "" {
			group = "Other"
		}
		groups[group] = append(groups[group], rule.TypeName)
	}
	return groups
}
