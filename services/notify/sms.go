package notifysvc

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/finance"
)

// SMS is a short text for one phone number.
type SMS struct {
	To   string
	Body string
}

// ConsoleSMSChannel logs the text messages it would send, and keeps them.
type ConsoleSMSChannel struct {
	logger   core.Logger
	currency string

	mu   sync.Mutex
	sent []SMS
}

var _ finance.Notifier = (*ConsoleSMSChannel)(nil)

func NewConsoleSMSChannel(logger core.Logger, currency string) *ConsoleSMSChannel {
	return &ConsoleSMSChannel{logger: logger, currency: currency}
}

func (ch *ConsoleSMSChannel) Notify(_ context.Context, r finance.Reminder) error {
	if r.Fee.GuardianPhone == "" {
		return errors.New("guardian has no phone number")
	}
	body := fmt.Sprintf("%s (%s) for %s is %d day(s) overdue: %s %s due.",
		r.Fee.FeeTypeName, r.Fee.Period, r.Fee.StudentName, r.DaysOverdue, ch.currency, money(r.RemainingDue))
	if r.Rule.Message != "" {
		body += " " + r.Rule.Message
	}
	sms := SMS{To: r.Fee.GuardianPhone, Body: body}

	ch.mu.Lock()
	ch.sent = append(ch.sent, sms)
	ch.mu.Unlock()
	ch.logger.Info(fmt.Sprintf("sms to %s: %s", sms.To, sms.Body))
	return nil
}

func (ch *ConsoleSMSChannel) Sent() []SMS {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return append([]SMS(nil), ch.sent...)
}
