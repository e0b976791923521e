package finance

import (
	"time"

	"github.com/shopspring/decimal"
)

type FeeFrequency string

const (
	FrequencyOneTime FeeFrequency = "one_time"
	FrequencyMonthly FeeFrequency = "monthly"
	FrequencyTerm    FeeFrequency = "term"
	FrequencyAnnual  FeeFrequency = "annual"
)

type FeeStatus string

const (
	StatusPending FeeStatus = "pending"
	StatusPartial FeeStatus = "partial"
	StatusPaid    FeeStatus = "paid"
	StatusOverdue FeeStatus = "overdue"
)

type PaymentMode string

const (
	ModeCash         PaymentMode = "cash"
	ModeCheque       PaymentMode = "cheque"
	ModeCard         PaymentMode = "card"
	ModeBankTransfer PaymentMode = "bank_transfer"
	ModeUPI          PaymentMode = "upi"
	ModeOnline       PaymentMode = "online"
)

var PaymentModes = []PaymentMode{ModeCash, ModeCheque, ModeCard, ModeBankTransfer, ModeUPI, ModeOnline}

type EntryType string

const (
	EntryCredit EntryType = "credit"
	EntryDebit  EntryType = "debit"
)

// Ledger categories posted by the engine itself.
const (
	CategoryFeeCollection = "fee_collection"
	CategoryReversal      = "reversal"
)

type FeeType struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

type FeeStructure struct {
	ID           string          `json:"id"`
	FeeTypeID    string          `json:"fee_type_id"`
	FeeTypeName  string          `json:"fee_type_name"`
	AcademicYear string          `json:"academic_year"`
	Classes      []string        `json:"classes"` // empty: every class
	Amount       decimal.Decimal `json:"amount"`
	Frequency    FeeFrequency    `json:"frequency"`
	DueDay       int             `json:"due_day"` // 0: period start
	IsOptional   bool            `json:"is_optional"`
	IsActive     bool            `json:"is_active"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (fs FeeStructure) AppliesToClass(class string) bool {
	if len(fs.Classes) == 0 {
		return true
	}
	return containsString(fs.Classes, class)
}

// StudentSnapshot is the student data copied onto an obligation when it is created.
// It is never refreshed afterwards.
type StudentSnapshot struct {
	ID            string `json:"id" validate:"required,notblank"`
	Name          string `json:"name" validate:"required,notblank"`
	Class         string `json:"class" validate:"required,notblank"`
	Section       string `json:"section"`
	GuardianName  string `json:"guardian_name"`
	GuardianEmail string `json:"guardian_email" validate:"omitempty,email"`
	GuardianPhone string `json:"guardian_phone"`
}

// Period is one billing period of a structure, eg. "2026-04" for a monthly fee.
type Period struct {
	Label string    `json:"label" validate:"required,notblank,max=40"`
	Start time.Time `json:"start" validate:"required"`
}

type StudentFee struct {
	ID             string          `json:"id"`
	StudentID      string          `json:"student_id"`
	StudentName    string          `json:"student_name"`
	Class          string          `json:"class"`
	Section        string          `json:"section"`
	GuardianName   string          `json:"guardian_name,omitempty"`
	GuardianEmail  string          `json:"guardian_email,omitempty"`
	GuardianPhone  string          `json:"guardian_phone,omitempty"`
	FeeTypeID      string          `json:"fee_type_id"`
	FeeTypeName    string          `json:"fee_type_name"`
	StructureID    string          `json:"structure_id"`
	AcademicYear   string          `json:"academic_year"`
	Period         string          `json:"period"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	DueDate        time.Time       `json:"due_date"`
	Status         FeeStatus       `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (sf StudentFee) RemainingDue() decimal.Decimal {
	return RemainingDue(sf.TotalAmount, sf.DiscountAmount, sf.PaidAmount)
}

// Headroom is what discounts may still take off without breaking discount + paid <= total.
func (sf StudentFee) Headroom() decimal.Decimal {
	h := sf.RemainingDue()
	if h.IsNegative() {
		return decimal.Zero
	}
	return h
}

// Refresh recomputes Status for `today`.
func (sf *StudentFee) Refresh(today time.Time) {
	sf.Status = ComputeStatus(sf.TotalAmount, sf.DiscountAmount, sf.PaidAmount, sf.DueDate, today)
}

func (sf StudentFee) Snapshot() StudentSnapshot {
	return StudentSnapshot{
		ID:            sf.StudentID,
		Name:          sf.StudentName,
		Class:         sf.Class,
		Section:       sf.Section,
		GuardianName:  sf.GuardianName,
		GuardianEmail: sf.GuardianEmail,
		GuardianPhone: sf.GuardianPhone,
	}
}

type FeeSummary struct {
	Count    int             `json:"count"`
	Total    decimal.Decimal `json:"total"`
	Discount decimal.Decimal `json:"discount"`
	Paid     decimal.Decimal `json:"paid"`
	Due      decimal.Decimal `json:"due"`
}

func Summarize(fees []StudentFee) FeeSummary {
	s := FeeSummary{Count: len(fees)}
	for _, f := range fees {
		s.Total = s.Total.Add(f.TotalAmount)
		s.Discount = s.Discount.Add(f.DiscountAmount)
		s.Paid = s.Paid.Add(f.PaidAmount)
		s.Due = s.Due.Add(f.Headroom())
	}
	return s
}

// Payment is one line of a receipt. Immutable.
type Payment struct {
	ID             string          `json:"id"`
	ReceiptID      string          `json:"receipt_id"`
	ReceiptNumber  string          `json:"receipt_number"`
	StudentFeeID   string          `json:"student_fee_id"`
	StudentID      string          `json:"student_id"`
	Amount         decimal.Decimal `json:"amount"`
	Mode           PaymentMode     `json:"mode"`
	TransactionRef string          `json:"transaction_ref,omitempty"`
	CollectedBy    string          `json:"collected_by"`
	CreatedAt      time.Time       `json:"created_at"`
}

type ReceiptLine struct {
	StudentFeeID string          `json:"student_fee_id"`
	FeeTypeName  string          `json:"fee_type_name"`
	Period       string          `json:"period"`
	Amount       decimal.Decimal `json:"amount"`
}

type Receipt struct {
	ID             string          `json:"id"`
	Number         string          `json:"number"`
	StudentID      string          `json:"student_id"`
	StudentName    string          `json:"student_name"`
	Lines          []ReceiptLine   `json:"lines"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Mode           PaymentMode     `json:"mode"`
	TransactionRef string          `json:"transaction_ref,omitempty"`
	Remarks        string          `json:"remarks,omitempty"`
	GeneratedBy    string          `json:"generated_by"`
	CreatedAt      time.Time       `json:"created_at"`
}

// CollectionResult is what a successful collection hands back to the payer.
type CollectionResult struct {
	Receipt  Receipt      `json:"receipt"`
	Payments []Payment    `json:"payments"`
	Fees     []StudentFee `json:"fees"`
	// Replayed is set when the transaction reference was already collected.
	Replayed bool `json:"replayed,omitempty"`
}

type LedgerEntry struct {
	ID              string          `json:"id"`
	Seq             int64           `json:"seq"`
	Date            time.Time       `json:"date"`
	Type            EntryType       `json:"type"`
	Category        string          `json:"category"`
	ReferenceID     string          `json:"reference_id,omitempty"`
	ReferenceNumber string          `json:"reference_number,omitempty"`
	Description     string          `json:"description"`
	Amount          decimal.Decimal `json:"amount"`
	Balance         decimal.Decimal `json:"balance"`
	ReversalOf      string          `json:"reversal_of,omitempty"`
	ReversedBy      string          `json:"reversed_by,omitempty"`
	CreatedBy       string          `json:"created_by"`
	CreatedAt       time.Time       `json:"created_at"`
}

type DiscountRuleType string

const (
	RuleMerit      DiscountRuleType = "merit"
	RuleSibling    DiscountRuleType = "sibling"
	RuleStaffChild DiscountRuleType = "staff_child"
	RuleHardship   DiscountRuleType = "hardship"
	RuleEarlyBird  DiscountRuleType = "early_bird"
	RuleOther      DiscountRuleType = "other"
)

type ValueKind string

const (
	KindPercentage ValueKind = "percentage"
	KindFixed      ValueKind = "fixed"
)

type DiscountRule struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Type       DiscountRuleType `json:"type"`
	FeeTypeIDs []string         `json:"fee_type_ids"` // empty: every fee type
	Classes    []string         `json:"classes"`      // empty: every class
	StudentIDs []string         `json:"student_ids"`  // empty: every student
	Kind       ValueKind        `json:"kind"`
	Value      decimal.Decimal  `json:"value"`
	IsActive   bool             `json:"is_active"`
	ValidFrom  time.Time        `json:"valid_from"`
	ValidTo    time.Time        `json:"valid_to"` // zero: open ended
	CreatedAt  time.Time        `json:"created_at"`
}

type DiscountSource string

const (
	SourceRule       DiscountSource = "rule"
	SourceConcession DiscountSource = "concession"
	SourceManual     DiscountSource = "manual"
)

type AppliedDiscount struct {
	ID           string          `json:"id"`
	StudentFeeID string          `json:"student_fee_id"`
	Source       DiscountSource  `json:"source"`
	SourceID     string          `json:"source_id,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Reason       string          `json:"reason,omitempty"`
	CreatedBy    string          `json:"created_by"`
	CreatedAt    time.Time       `json:"created_at"`
}

type ConcessionStatus string

const (
	ConcessionPending  ConcessionStatus = "pending"
	ConcessionApproved ConcessionStatus = "approved"
	ConcessionRejected ConcessionStatus = "rejected"
)

type ConcessionRequest struct {
	ID              string           `json:"id"`
	StudentID       string           `json:"student_id"`
	FeeTypeIDs      []string         `json:"fee_type_ids"`
	Kind            ValueKind        `json:"kind"`
	Value           decimal.Decimal  `json:"value"`
	Reason          string           `json:"reason"`
	Status          ConcessionStatus `json:"status"`
	RequestedBy     string           `json:"requested_by"`
	RequestedAt     time.Time        `json:"requested_at"`
	DecidedBy       string           `json:"decided_by,omitempty"`
	DecidedAt       time.Time        `json:"decided_at,omitempty"`
	RejectionReason string           `json:"rejection_reason,omitempty"`
	AppliedAmount   decimal.Decimal  `json:"applied_amount"`
}

type Installment struct {
	Number     int             `json:"number"`
	Amount     decimal.Decimal `json:"amount"`
	DueDate    time.Time       `json:"due_date"`
	PaidAmount decimal.Decimal `json:"paid_amount"`
	Status     FeeStatus       `json:"status"`
}

type InstallmentPlan struct {
	ID           string          `json:"id"`
	StructureID  string          `json:"structure_id"`
	StudentFeeID string          `json:"student_fee_id,omitempty"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Installments []Installment   `json:"installments"`
	CreatedBy    string          `json:"created_by"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Notification channels known to the default wiring; rules may name any registered channel.
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

type EscalationRule struct {
	ID            string    `json:"id"`
	ThresholdDays int       `json:"threshold_days"`
	Channel       string    `json:"channel"`
	Template      string    `json:"template"`
	Message       string    `json:"message,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type ReminderStatus string

const (
	ReminderSent   ReminderStatus = "sent"
	ReminderFailed ReminderStatus = "failed"
)

type ReminderLog struct {
	ID           string         `json:"id"`
	StudentFeeID string         `json:"student_fee_id"`
	StudentID    string         `json:"student_id"`
	RuleID       string         `json:"rule_id"`
	Channel      string         `json:"channel"`
	DaysOverdue  int            `json:"days_overdue"`
	Status       ReminderStatus `json:"status"`
	Error        string         `json:"error,omitempty"`
	SentAt       time.Time      `json:"sent_at"`
}

type GatewayStatus string

const (
	GatewayPending GatewayStatus = "pending"
	GatewaySettled GatewayStatus = "settled"
	GatewayFailed  GatewayStatus = "failed"
)

type GatewayOrder struct {
	ID            string          `json:"id"` // also the order id sent to the gateway
	StudentID     string          `json:"student_id"`
	StudentName   string          `json:"student_name"`
	Lines         []CollectLine   `json:"lines"`
	Amount        decimal.Decimal `json:"amount"`
	Status        GatewayStatus   `json:"status"`
	Token         string          `json:"token,omitempty"`
	RedirectURL   string          `json:"redirect_url,omitempty"`
	ReceiptNumber string          `json:"receipt_number,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`
	CreatedBy     string          `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
