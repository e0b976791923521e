package finance

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/trezcool/bursar/core"
)

type (
	// Notifier delivers a reminder through one channel (email, sms, ...).
	Notifier interface {
		Notify(ctx context.Context, r Reminder) error
	}

	Reminder struct {
		Fee          StudentFee
		Rule         EscalationRule
		DaysOverdue  int
		RemainingDue decimal.Decimal
	}

	// ReceiptNotifier sends a receipt to the guardian once a collection is committed.
	ReceiptNotifier interface {
		NotifyReceipt(ctx context.Context, rcpt Receipt, student StudentSnapshot) error
	}

	// Gateway is the online payment provider.
	Gateway interface {
		CreateOrder(ctx context.Context, order GatewayOrder) (GatewayCheckout, error)
		OrderStatus(ctx context.Context, orderID string) (GatewayStatus, error)
	}

	GatewayCheckout struct {
		Token       string
		RedirectURL string
	}

	Options struct {
		OpeningBalance decimal.Decimal
		ReceiptPrefix  string
	}

	Deps struct {
		Repo      Repository
		Validate  *validator.Validate
		Logger    core.Logger
		Gateway   Gateway             // optional
		Notifiers map[string]Notifier // by channel name
		Receipts  ReceiptNotifier     // optional
		Clock     func() time.Time    // optional
	}

	Service struct {
		repo      Repository
		validate  *validator.Validate
		logger    core.Logger
		gateway   Gateway
		notifiers map[string]Notifier
		receipts  ReceiptNotifier
		opts      Options
		now       func() time.Time
	}
)

func NewService(deps Deps, opts Options) *Service {
	svc := &Service{
		repo:      deps.Repo,
		validate:  deps.Validate,
		logger:    deps.Logger,
		gateway:   deps.Gateway,
		notifiers: deps.Notifiers,
		receipts:  deps.Receipts,
		opts:      opts,
		now:       deps.Clock,
	}
	if svc.validate == nil {
		svc.validate = NewValidate(core.NewTranslator())
	}
	if svc.logger == nil {
		svc.logger = core.NopLogger{}
	}
	if svc.notifiers == nil {
		svc.notifiers = make(map[string]Notifier)
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	if svc.opts.ReceiptPrefix == "" {
		svc.opts.ReceiptPrefix = "RCP"
	}
	return svc
}

func (svc *Service) today() time.Time {
	return DateOf(svc.now())
}

func (svc *Service) timestamp() time.Time {
	return svc.now().UTC()
}

func newID() string {
	return uuid.New().String()
}

// refresh recomputes the status of fees for today, in place.
func (svc *Service) refresh(fees []StudentFee) []StudentFee {
	today := svc.today()
	for i := range fees {
		fees[i].Refresh(today)
	}
	return fees
}
