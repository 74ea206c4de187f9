package app

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/evefleet/srp-gateway/internal/notification/domain"
)

// RenderedMail is a ready-to-send reply.
type RenderedMail struct {
	Subject string
	Body    string
}

// Render produces the reply mail for a notification payload.
func Render(payload domain.Payload) (RenderedMail, error) {
	switch p := payload.(type) {
	case domain.RequestReceivedPayload:
		return renderRequestReceived(p), nil
	case domain.RejectedMultiplePayload:
		return renderRejectedMultiple(p), nil
	case domain.RejectedShipPayload:
		return renderRejectedShip(p), nil
	case domain.RejectedAgePayload:
		return renderRejectedAge(p), nil
	case domain.RejectedIdentityPayload:
		return renderRejectedIdentity(p), nil
	case domain.RejectedDuplicatePayload:
		return renderRejectedDuplicate(p), nil
	default:
		return RenderedMail{}, fmt.Errorf("no template for notification kind %q", payload.Kind())
	}
}

func renderRequestReceived(p domain.RequestReceivedPayload) RenderedMail {
	var b strings.Builder
	fmt.Fprintf(&b, "Your SRP request for the loss of your %s has been filed.\n\n", p.ShipName)
	fmt.Fprintf(&b, "Payout: %s ISK\n", formatISK(p.Payout))
	if p.IsPolarized {
		b.WriteString("Bonus fit detected: the bonus payout rate was applied.\n")
	}
	if p.RequiresFCApproval {
		b.WriteString("\nThis ship requires fleet commander approval; your payout will be processed once an FC signs off.\n")
	}
	if len(p.Warnings) > 0 {
		b.WriteString("\nNotes:\n")
		for _, w := range p.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}
	fmt.Fprintf(&b, "\nReference: %s\n", p.RequestID)
	b.WriteString("Payments include this reference in the transfer reason. Fly safe!\n")
	return RenderedMail{Subject: "SRP request received", Body: b.String()}
}

func renderRejectedMultiple(p domain.RejectedMultiplePayload) RenderedMail {
	body := fmt.Sprintf(
		"Your mail referenced %d losses. Please submit one loss per mail so each can be tracked and paid individually.\n",
		p.ReferenceCount,
	)
	return RenderedMail{Subject: "SRP request rejected: one loss per mail", Body: body}
}

func renderRejectedShip(p domain.RejectedShipPayload) RenderedMail {
	var b strings.Builder
	fmt.Fprintf(&b, "The %s is not on the reimbursable ship list.\n\nCurrently approved ships:\n", p.ShipName)

	groups := make([]string, 0, len(p.ApprovedShips))
	for group := range p.ApprovedShips {
		groups = append(groups, group)
	}
	sort.Strings(groups)
	for _, group := range groups {
		ships := append([]string(nil), p.ApprovedShips[group]...)
		sort.Strings(ships)
		fmt.Fprintf(&b, "\n%s:\n", group)
		for _, ship := range ships {
			fmt.Fprintf(&b, "- %s\n", ship)
		}
	}
	return RenderedMail{Subject: "SRP request rejected: ship not approved", Body: b.String()}
}

func renderRejectedAge(p domain.RejectedAgePayload) RenderedMail {
	body := fmt.Sprintf(
		"This loss is %d days old; only losses within the last %d days are reimbursable.\n",
		p.ElapsedDays, p.LimitDays,
	)
	return RenderedMail{Subject: "SRP request rejected: loss too old", Body: body}
}

func renderRejectedIdentity(p domain.RejectedIdentityPayload) RenderedMail {
	body := fmt.Sprintf(
		"This loss belongs to %s, not to you. Please ask %s to submit the loss directly so the payout reaches the right pilot.\n",
		p.VictimName, p.VictimName,
	)
	return RenderedMail{Subject: "SRP request rejected: not your loss", Body: body}
}

func renderRejectedDuplicate(p domain.RejectedDuplicatePayload) RenderedMail {
	var body string
	if p.PaidAmount != nil && p.PaidAt != nil {
		body = fmt.Sprintf(
			"Killmail %d has already been reimbursed: %s ISK paid on %s.\n",
			p.KillmailID, formatISK(*p.PaidAmount), p.PaidAt.Format("2006-01-02"),
		)
	} else {
		body = fmt.Sprintf(
			"Killmail %d already has a request on file (status: %s). No further action is needed.\n",
			p.KillmailID, p.Status,
		)
	}
	return RenderedMail{Subject: "SRP request rejected: already submitted", Body: body}
}

// formatISK renders an amount with thousands separators, e.g. 70,000,000.
func formatISK(amount decimal.Decimal) string {
	s := amount.StringFixed(0)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
