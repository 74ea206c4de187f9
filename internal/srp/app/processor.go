package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/evefleet/srp-gateway/internal/esi"
	notifdomain "github.com/evefleet/srp-gateway/internal/notification/domain"
	"github.com/evefleet/srp-gateway/internal/srp/domain"
)

// NATS subjects for request lifecycle events, consumed by the admin UI and
// the chat-webhook poster.
const (
	SubjectRequestCreated = "srp.request.created"
	SubjectRequestDenied  = "srp.request.denied"
)

// mailPageSize is the maximum number of headers ESI returns per mail listing
// call; a shorter page means the inbox is exhausted.
const mailPageSize = 50

// Mailbox is the inbound mail surface. Satisfied by *esi.Client.
type Mailbox interface {
	MailHeaders(ctx context.Context, lastMailID int64) ([]esi.MailHeader, error)
	MailContent(ctx context.Context, mailID int64) (*esi.Mail, error)
}

// NameResolver is the bulk id-to-name surface. Satisfied by *esi.Client.
type NameResolver interface {
	ResolveNames(ctx context.Context, ids []int64) ([]esi.NameRef, error)
}

// EventPublisher publishes lifecycle events. Satisfied by
// *messagebroker.NATSClient.
type EventPublisher interface {
	PublishJSON(subject string, payload any) error
}

// RequestEvent is the lifecycle event payload.
type RequestEvent struct {
	RequestID    uuid.UUID `json:"request_id"`
	MailID       int64     `json:"mail_id"`
	CharacterID  int64     `json:"character_id"`
	KillmailID   int64     `json:"killmail_id,omitempty"`
	Status       string    `json:"status"`
	DenialReason string    `json:"denial_reason,omitempty"`
}

// RunSummary is the per-run operator report.
type RunSummary struct {
	Processed int
	Created   int
	Skipped   int
	Errored   int
}

// MailProcessor drives one inbox pass: list new mails, validate each (phase
// one), resolve all names in one bulk call, then persist outcomes and enqueue
// replies (phase two). The phase boundary exists to collapse many small name
// lookups into a single ESI call per batch.
type MailProcessor struct {
	mailbox   Mailbox
	names     NameResolver
	validator *Validator
	shipRules domain.ShipRuleRepository
	requests  domain.RequestRepository
	processed domain.ProcessedMessageRepository
	queue     notifdomain.QueueRepository
	events    EventPublisher
	logger    *slog.Logger
}

// NewMailProcessor wires the inbox pipeline.
func NewMailProcessor(
	mailbox Mailbox,
	names NameResolver,
	validator *Validator,
	shipRules domain.ShipRuleRepository,
	requests domain.RequestRepository,
	processed domain.ProcessedMessageRepository,
	queue notifdomain.QueueRepository,
	events EventPublisher,
	logger *slog.Logger,
) *MailProcessor {
	return &MailProcessor{
		mailbox:   mailbox,
		names:     names,
		validator: validator,
		shipRules: shipRules,
		requests:  requests,
		processed: processed,
		queue:     queue,
		events:    events,
		logger:    logger.With("component", "mail_processor"),
	}
}

type workItem struct {
	inbound Inbound
	verdict *Verdict
}

// Run processes one inbox batch. Per-mail failures are contained to that
// mail; only batch-level failures (config, snapshot load, listing, the bulk
// name call) abort the run.
func (p *MailProcessor) Run(ctx context.Context) (RunSummary, error) {
	var summary RunSummary

	rules, err := p.shipRules.ActiveRules(ctx)
	if err != nil {
		return summary, fmt.Errorf("loading ship rule snapshot: %w", err)
	}

	headers, alreadyProcessed, err := p.listInbox(ctx)
	if err != nil {
		return summary, err
	}
	if len(headers) == 0 {
		return summary, nil
	}

	// Oldest first, so requests are filed in submission order.
	sort.Slice(headers, func(i, j int) bool { return headers[i].MailID < headers[j].MailID })

	// Phase one: validate everything, accumulating ids for one name call.
	var items []*workItem
	for _, h := range headers {
		if alreadyProcessed[h.MailID] {
			summary.Skipped++
			continue
		}
		item := p.validateOne(ctx, h, rules)
		items = append(items, item)
		summary.Processed++
	}
	if len(items) == 0 {
		p.logger.InfoContext(ctx, "inbox pass complete, nothing new", "skipped", summary.Skipped)
		return summary, nil
	}

	names, err := p.resolveNames(ctx, items)
	if err != nil {
		// Nothing has been written yet; the whole batch is safe to redo.
		return summary, fmt.Errorf("bulk name resolution: %w", err)
	}

	// Phase two: apply outcomes.
	for _, item := range items {
		if err := p.apply(ctx, item, names); err != nil {
			p.logger.ErrorContext(ctx, "failed to apply mail outcome", "mail_id", item.inbound.MailID, "error", err)
			summary.Errored++
			continue
		}
		switch item.verdict.Outcome {
		case domain.OutcomeCreated:
			summary.Created++
		case domain.OutcomeError:
			summary.Errored++
		}
		mailsProcessedCounter.WithLabelValues(string(item.verdict.Outcome)).Inc()
	}

	p.logger.InfoContext(ctx, "inbox pass complete",
		"processed", summary.Processed, "created", summary.Created,
		"skipped", summary.Skipped, "errored", summary.Errored)
	return summary, nil
}

// listInbox pages the inbox backward, oldest id per page becoming the cursor
// for the next call, until it sees a mail already recorded as processed or
// runs out of mails. A backlog larger than one page is drained over
// successive pages instead of starving behind the newest ones.
func (p *MailProcessor) listInbox(ctx context.Context) ([]esi.MailHeader, map[int64]bool, error) {
	var headers []esi.MailHeader
	processed := make(map[int64]bool)
	var lastMailID int64
	for {
		page, err := p.mailbox.MailHeaders(ctx, lastMailID)
		if err != nil {
			return nil, nil, fmt.Errorf("listing inbox: %w", err)
		}
		if len(page) == 0 {
			break
		}

		ids := make([]int64, 0, len(page))
		oldest := page[0].MailID
		for _, h := range page {
			ids = append(ids, h.MailID)
			if h.MailID < oldest {
				oldest = h.MailID
			}
		}
		seen, err := p.processed.FilterProcessed(ctx, ids)
		if err != nil {
			return nil, nil, fmt.Errorf("filtering processed mails: %w", err)
		}
		headers = append(headers, page...)
		for id := range seen {
			processed[id] = true
		}

		// Mails are processed oldest-first and every outcome is recorded, so
		// a known id on this page means everything older is recorded too.
		if len(seen) > 0 || len(page) < mailPageSize {
			break
		}
		lastMailID = oldest
	}
	return headers, processed, nil
}

func (p *MailProcessor) validateOne(ctx context.Context, h esi.MailHeader, rules map[int64]domain.ShipTypeRule) *workItem {
	inbound := Inbound{
		MailID:    h.MailID,
		SenderID:  h.From,
		Subject:   h.Subject,
		Timestamp: h.Timestamp,
	}

	content, err := p.mailbox.MailContent(ctx, h.MailID)
	if err != nil {
		// Recorded as an error outcome for this mail only; not auto-retried.
		p.logger.ErrorContext(ctx, "failed to fetch mail content", "mail_id", h.MailID, "error", err)
		return &workItem{
			inbound: inbound,
			verdict: &Verdict{Outcome: domain.OutcomeError, Detail: "fetching mail content: " + err.Error()},
		}
	}
	inbound.Body = content.Body

	return &workItem{inbound: inbound, verdict: p.validator.Validate(ctx, inbound, rules)}
}

// resolveNames performs the single bulk name call for the batch.
func (p *MailProcessor) resolveNames(ctx context.Context, items []*workItem) (map[int64]string, error) {
	var ids []int64
	for _, item := range items {
		ids = append(ids, item.inbound.SenderID)
		if r := item.verdict.Resolved; r != nil {
			ids = append(ids,
				r.Record.Victim.CharacterID,
				r.Record.Victim.CorporationID,
				r.Record.Victim.AllianceID,
				r.Record.Victim.ShipTypeID,
				r.Record.SolarSystemID,
			)
		}
	}

	refs, err := p.names.ResolveNames(ctx, ids)
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(refs))
	for _, ref := range refs {
		names[ref.ID] = ref.Name
	}
	return names, nil
}

func (p *MailProcessor) apply(ctx context.Context, item *workItem, names map[int64]string) error {
	verdict := item.verdict
	inbound := item.inbound

	if verdict.Request != nil {
		verdict.Request.ID = uuid.New()
	}
	p.fillNames(verdict, names)

	var requestID *uuid.UUID
	if req := verdict.Request; req != nil {
		err := p.requests.Create(ctx, req)
		if err != nil {
			if errors.Is(err, domain.ErrDuplicateKillmail) {
				// Lost a race with a concurrent run; file the mail as a
				// duplicate without a new row, replying from the surviving
				// request the same way a pre-validated duplicate would.
				p.logger.WarnContext(ctx, "killmail claimed concurrently", "mail_id", inbound.MailID, "killmail_id", req.KillmailID)
				verdict.Outcome = domain.OutcomeDuplicate
				verdict.Request = nil
				verdict.Payload = p.duplicateReply(ctx, req.KillmailID)
			} else {
				return fmt.Errorf("inserting request: %w", err)
			}
		} else {
			requestID = &req.ID
		}
	}

	msg := &domain.ProcessedMessage{
		MailID:     inbound.MailID,
		SenderID:   inbound.SenderID,
		SenderName: names[inbound.SenderID],
		Subject:    inbound.Subject,
		Timestamp:  inbound.Timestamp,
		Body:       inbound.Body,
		Outcome:    verdict.Outcome,
		Detail:     verdict.Detail,
		RequestID:  requestID,
	}
	recorded, err := p.processed.Create(ctx, msg)
	if err != nil {
		return fmt.Errorf("recording processed mail: %w", err)
	}
	if !recorded {
		// An overlapping run recorded this mail first and owns the reply.
		p.logger.WarnContext(ctx, "mail already recorded, skipping reply", "mail_id", inbound.MailID)
		return nil
	}

	if verdict.Payload != nil {
		if err := p.queue.Enqueue(ctx, inbound.SenderID, verdict.Payload, time.Time{}); err != nil {
			return fmt.Errorf("enqueuing reply: %w", err)
		}
	}

	p.publishEvent(ctx, verdict, requestID, inbound)
	return nil
}

// duplicateReply rebuilds the duplicate rejection from the surviving request
// after a lost insert race. A lookup failure drops the reply rather than the
// whole mail.
func (p *MailProcessor) duplicateReply(ctx context.Context, killmailID int64) notifdomain.Payload {
	existing, err := p.requests.GetByKillmailID(ctx, killmailID)
	if err != nil {
		p.logger.WarnContext(ctx, "failed to load surviving request for duplicate reply", "killmail_id", killmailID, "error", err)
		return nil
	}
	return notifdomain.RejectedDuplicatePayload{
		KillmailID: killmailID,
		Status:     string(existing.Status),
		PaidAmount: existing.PaymentAmount,
		PaidAt:     existing.PaidAt,
	}
}

// fillNames is the phase-two name fix-up for the request row and the
// payloads that carry names.
func (p *MailProcessor) fillNames(verdict *Verdict, names map[int64]string) {
	if req := verdict.Request; req != nil {
		req.CharacterName = names[req.CharacterID]
		req.CorporationName = names[req.CorporationID]
		req.AllianceName = names[req.AllianceID]
		req.SolarSystemName = names[req.SolarSystemID]
		if req.ShipTypeName == "" {
			req.ShipTypeName = names[req.ShipTypeID]
		}
	}

	switch payload := verdict.Payload.(type) {
	case notifdomain.RejectedIdentityPayload:
		payload.VictimName = names[payload.VictimID]
		if payload.VictimName == "" {
			payload.VictimName = "the listed victim"
		}
		verdict.Payload = payload
	case notifdomain.RejectedShipPayload:
		if payload.ShipName == "" && verdict.Resolved != nil {
			payload.ShipName = names[verdict.Resolved.Record.Victim.ShipTypeID]
			verdict.Payload = payload
		}
	case notifdomain.RequestReceivedPayload:
		if verdict.Request != nil {
			payload.RequestID = verdict.Request.ID
			verdict.Payload = payload
		}
	}
}

func (p *MailProcessor) publishEvent(ctx context.Context, verdict *Verdict, requestID *uuid.UUID, inbound Inbound) {
	if p.events == nil || requestID == nil {
		return
	}
	req := verdict.Request
	subject := SubjectRequestDenied
	if verdict.Outcome == domain.OutcomeCreated {
		subject = SubjectRequestCreated
	}
	event := RequestEvent{
		RequestID:    *requestID,
		MailID:       inbound.MailID,
		CharacterID:  inbound.SenderID,
		KillmailID:   req.KillmailID,
		Status:       string(req.Status),
		DenialReason: string(req.DenialReason),
	}
	if err := p.events.PublishJSON(subject, event); err != nil {
		p.logger.WarnContext(ctx, "failed to publish request event", "subject", subject, "error", err)
	}
}
