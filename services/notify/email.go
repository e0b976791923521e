package notifysvc

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/finance"
)

const (
	dateLayout      = "Jan 2, 2006"
	receiptTemplate = "receipt"
)

var errNoEmail = errors.New("guardian has no email address")

// EmailChannel sends reminders and receipts to the guardian's email address.
type EmailChannel struct {
	emails   core.EmailService
	currency string
}

var (
	_ finance.Notifier        = (*EmailChannel)(nil)
	_ finance.ReceiptNotifier = (*EmailChannel)(nil)
)

func NewEmailChannel(emails core.EmailService, currency string) *EmailChannel {
	return &EmailChannel{emails: emails, currency: currency}
}

func money(d decimal.Decimal) string {
	return humanize.FormatFloat("#,###.##", d.Round(2).InexactFloat64())
}

func recipient(name, address string) ([]mail.Address, error) {
	if address == "" {
		return nil, errNoEmail
	}
	return []mail.Address{{Name: name, Address: address}}, nil
}

// Notify renders the rule's template (eg. "reminder") and waits for the delivery.
func (ch *EmailChannel) Notify(ctx context.Context, r finance.Reminder) error {
	to, err := recipient(r.Fee.GuardianName, r.Fee.GuardianEmail)
	if err != nil {
		return err
	}
	return ch.emails.Send(ctx, &core.EmailMessage{
		To:           to,
		Subject:      fmt.Sprintf("%s fee reminder for %s", r.Fee.FeeTypeName, r.Fee.StudentName),
		TemplateName: r.Rule.Template,
		TemplateData: map[string]interface{}{
			"GuardianName": r.Fee.GuardianName,
			"StudentName":  r.Fee.StudentName,
			"Class":        r.Fee.Class,
			"FeeTypeName":  r.Fee.FeeTypeName,
			"Period":       r.Fee.Period,
			"DaysOverdue":  r.DaysOverdue,
			"Currency":     ch.currency,
			"RemainingDue": money(r.RemainingDue),
			"DueDate":      r.Fee.DueDate.Format(dateLayout),
			"Message":      r.Rule.Message,
		},
	})
}

type receiptLine struct {
	FeeTypeName string
	Period      string
	Amount      string
}

// NotifyReceipt queues the receipt email; delivery failures are logged by the email service.
func (ch *EmailChannel) NotifyReceipt(_ context.Context, rcpt finance.Receipt, student finance.StudentSnapshot) error {
	to, err := recipient(student.GuardianName, student.GuardianEmail)
	if err != nil {
		return nil // nobody to send it to
	}
	lines := make([]receiptLine, len(rcpt.Lines))
	for i, l := range rcpt.Lines {
		lines[i] = receiptLine{FeeTypeName: l.FeeTypeName, Period: l.Period, Amount: money(l.Amount)}
	}
	ch.emails.SendMessages(&core.EmailMessage{
		To:           to,
		Subject:      "Payment receipt " + rcpt.Number,
		TemplateName: receiptTemplate,
		TemplateData: map[string]interface{}{
			"GuardianName":  student.GuardianName,
			"StudentName":   rcpt.StudentName,
			"ReceiptNumber": rcpt.Number,
			"Date":          rcpt.CreatedAt.Format(dateLayout),
			"Mode":          string(rcpt.Mode),
			"Currency":      ch.currency,
			"Total":         money(rcpt.TotalAmount),
			"Lines":         lines,
		},
	})
	return nil
}
