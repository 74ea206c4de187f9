package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/evefleet/srp-gateway/internal/esi"
	"github.com/evefleet/srp-gateway/internal/notification/domain"
)

// MailSender sends one EVE mail. Satisfied by *esi.Client.
type MailSender interface {
	SendMail(ctx context.Context, recipientID int64, subject, body string) error
}

// SenderConfig tunes the drain worker.
type SenderConfig struct {
	// BatchSize caps sends per Drain invocation.
	BatchSize int
	// SendDelay is the fixed wait between consecutive sends. The EVE mail
	// endpoint only sustains a few sends per minute; this is an upstream hard
	// constraint, not a tunable.
	SendDelay time.Duration
}

// Sender drains the notification queue through the rate-limited mail
// endpoint, strictly serially.
type Sender struct {
	queue  domain.QueueRepository
	mailer MailSender
	config SenderConfig
	logger *slog.Logger

	// now and sleep are replaceable in tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSender creates a drain worker.
func NewSender(queue domain.QueueRepository, mailer MailSender, config SenderConfig, logger *slog.Logger) *Sender {
	return &Sender{
		queue:  queue,
		mailer: mailer,
		config: config,
		logger: logger.With("component", "notification_sender"),
		now:    func() time.Time { return time.Now().UTC() },
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// DrainResult summarizes one drain invocation.
type DrainResult struct {
	Sent        int
	RateLimited int
	Failed      int
}

// Drain sends due notifications, at most BatchSize, with the fixed
// inter-message delay between sends. A send failure never drops the row: a
// rate-limit rejection pushes retry_after to the server's wait, anything else
// is treated as transient and retried on the next drain.
func (s *Sender) Drain(ctx context.Context) (DrainResult, error) {
	var result DrainResult

	due, err := s.queue.Due(ctx, s.config.BatchSize)
	if err != nil {
		return result, err
	}
	if len(due) == 0 {
		s.logger.DebugContext(ctx, "no notifications due")
		return result, nil
	}
	s.logger.InfoContext(ctx, "draining notification queue", "due", len(due), "batch_size", s.config.BatchSize)

	for i, n := range due {
		if i > 0 {
			if err := s.sleep(ctx, s.config.SendDelay); err != nil {
				return result, err
			}
		}
		s.deliver(ctx, n, &result)
	}

	s.observeQueueDepth(ctx)
	return result, nil
}

func (s *Sender) deliver(ctx context.Context, n *domain.PendingNotification, result *DrainResult) {
	logger := s.logger.With("notification_id", n.ID, "kind", n.Kind, "recipient_id", n.RecipientID)

	payload, err := domain.DecodePayload(n.Kind, n.Payload)
	if err != nil {
		// An undecodable row can never send; park it far in the future so it
		// stops burning mail-send budget but remains visible to operators.
		logger.ErrorContext(ctx, "failed to decode notification payload", "error", err)
		s.reschedule(ctx, n, s.now().Add(24*time.Hour), err.Error())
		result.Failed++
		return
	}

	mail, err := Render(payload)
	if err != nil {
		logger.ErrorContext(ctx, "failed to render notification", "error", err)
		s.reschedule(ctx, n, s.now().Add(24*time.Hour), err.Error())
		result.Failed++
		return
	}

	err = s.mailer.SendMail(ctx, n.RecipientID, mail.Subject, mail.Body)
	if err == nil {
		if err := s.queue.Delete(ctx, n.ID); err != nil {
			// The mail went out but the row survived; the next drain will
			// resend. At-least-once is the accepted trade-off here.
			logger.ErrorContext(ctx, "sent but failed to delete notification", "error", err)
		}
		notificationsSentCounter.WithLabelValues(string(n.Kind)).Inc()
		result.Sent++
		logger.InfoContext(ctx, "notification sent", "attempts", n.Attempts)
		return
	}

	if mrl, ok := esi.AsMailRateLimited(err); ok {
		retryAt := s.now().Add(mrl.RetryAfter)
		logger.WarnContext(ctx, "mail send rate limited", "retry_after", mrl.RetryAfter.String())
		s.reschedule(ctx, n, retryAt, err.Error())
		result.RateLimited++
		return
	}

	// Transient: due again immediately, picked up by the next drain.
	logger.ErrorContext(ctx, "failed to send notification", "error", err, "attempts", n.Attempts)
	s.reschedule(ctx, n, s.now(), err.Error())
	result.Failed++
}

func (s *Sender) reschedule(ctx context.Context, n *domain.PendingNotification, at time.Time, sendErr string) {
	if err := s.queue.Reschedule(ctx, n.ID, at, sendErr); err != nil {
		s.logger.ErrorContext(ctx, "failed to reschedule notification", "notification_id", n.ID, "error", err)
	}
	notificationsRescheduledCounter.WithLabelValues(string(n.Kind)).Inc()
}

func (s *Sender) observeQueueDepth(ctx context.Context) {
	count, err := s.queue.PendingCount(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to read queue depth", "error", err)
		return
	}
	notificationsPendingGauge.Set(float64(count))
}
