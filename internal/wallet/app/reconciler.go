package app

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	srpdomain "github.com/evefleet/srp-gateway/internal/srp/domain"
	"github.com/evefleet/srp-gateway/internal/wallet/domain"
)

// SubjectRequestPaid is published when a request is reconciled against a
// wallet withdrawal.
const SubjectRequestPaid = "srp.request.paid"

// EventPublisher publishes lifecycle events. Satisfied by
// *messagebroker.NATSClient.
type EventPublisher interface {
	PublishJSON(subject string, payload any) error
}

// PaidEvent is the reconciliation event payload.
type PaidEvent struct {
	RequestID   uuid.UUID       `json:"request_id"`
	KillmailID  int64           `json:"killmail_id,omitempty"`
	CharacterID int64           `json:"character_id"`
	JournalID   int64           `json:"journal_id"`
	Amount      decimal.Decimal `json:"amount"`
	PaidAt      time.Time       `json:"paid_at"`
}

// ReconcileSummary is the per-run operator report.
type ReconcileSummary struct {
	Checked int
	Paid    int
}

// Reconciler matches approved requests against mirrored wallet withdrawals
// and promotes them to paid. It never demotes: a request with no matching
// withdrawal simply stays approved until the next run.
type Reconciler struct {
	requests srpdomain.RequestRepository
	ledger   domain.LedgerRepository
	events   EventPublisher
	logger   *slog.Logger
}

func NewReconciler(requests srpdomain.RequestRepository, ledger domain.LedgerRepository, events EventPublisher, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		requests: requests,
		ledger:   ledger,
		events:   events,
		logger:   logger.With("component", "wallet_reconciler"),
	}
}

// Reconcile runs one pass over all approved unpaid requests. Match errors on
// one request do not abort the pass.
func (r *Reconciler) Reconcile(ctx context.Context) (ReconcileSummary, error) {
	pending, err := r.requests.ApprovedUnpaid(ctx)
	if err != nil {
		return ReconcileSummary{}, err
	}

	summary := ReconcileSummary{Checked: len(pending)}
	for _, req := range pending {
		paid, err := r.reconcileOne(ctx, req)
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to reconcile request",
				"request_id", req.ID, "error", err)
			continue
		}
		if paid {
			summary.Paid++
		}
	}
	r.logger.InfoContext(ctx, "reconciliation pass finished",
		"checked", summary.Checked, "paid", summary.Paid)
	return summary, nil
}

func (r *Reconciler) reconcileOne(ctx context.Context, req *srpdomain.ReimbursementRequest) (bool, error) {
	candidates, err := r.ledger.FindWithdrawals(ctx, req.CharacterID, req.FinalPayout)
	if err != nil {
		return false, err
	}

	// Candidates arrive newest first; the first memo match wins.
	var match *domain.LedgerEntry
	for i := range candidates {
		if memoMatches(candidates[i].Reason, req) {
			match = &candidates[i]
			break
		}
	}
	if match == nil {
		return false, nil
	}

	amount := match.Amount.Abs()
	promoted, err := r.requests.MarkPaid(ctx, req.ID, match.ID, amount, match.Date)
	if err != nil {
		return false, err
	}
	if !promoted {
		return false, nil
	}

	requestsReconciledCounter.Inc()
	r.logger.InfoContext(ctx, "request reconciled",
		"request_id", req.ID, "journal_id", match.ID, "amount", amount.String())

	if r.events != nil {
		event := PaidEvent{
			RequestID:   req.ID,
			KillmailID:  req.KillmailID,
			CharacterID: req.CharacterID,
			JournalID:   match.ID,
			Amount:      amount,
			PaidAt:      match.Date,
		}
		if err := r.events.PublishJSON(SubjectRequestPaid, event); err != nil {
			r.logger.WarnContext(ctx, "failed to publish paid event",
				"request_id", req.ID, "error", err)
		}
	}
	return true, nil
}

// memoMatches reports whether a journal reason references the request, either
// by request id or by killmail id. In-game transfer reasons are prefixed with
// "DESC:" and may carry stray whitespace.
func memoMatches(reason string, req *srpdomain.ReimbursementRequest) bool {
	memo := normalizeMemo(reason)
	if memo == "" {
		return false
	}
	if strings.Contains(memo, strings.ToLower(req.ID.String())) {
		return true
	}
	if req.KillmailID > 0 && containsWholeNumber(memo, strconv.FormatInt(req.KillmailID, 10)) {
		return true
	}
	return false
}

// containsWholeNumber reports whether s contains num bounded by non-digits,
// so a longer digit run sharing a prefix does not count as a match.
func containsWholeNumber(s, num string) bool {
	for from := 0; ; {
		i := strings.Index(s[from:], num)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(num)
		if (start == 0 || !isDigit(s[start-1])) && (end == len(s) || !isDigit(s[end])) {
			return true
		}
		from = start + 1
	}
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func normalizeMemo(reason string) string {
	memo := strings.TrimSpace(reason)
	memo = strings.TrimPrefix(memo, "DESC:")
	return strings.ToLower(strings.TrimSpace(memo))
}
