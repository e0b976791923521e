package sqlxrepos

import (
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/bursar/core/finance"
)

// Row types map table columns; nullable columns use volatiletech/null.

type feeTypeRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Category  string    `db:"category"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
}

func (r feeTypeRow) model() finance.FeeType {
	return finance.FeeType{ID: r.ID, Name: r.Name, Category: r.Category, IsActive: r.IsActive, CreatedAt: r.CreatedAt}
}

type feeStructureRow struct {
	ID           string          `db:"id"`
	FeeTypeID    string          `db:"fee_type_id"`
	FeeTypeName  string          `db:"fee_type_name"`
	AcademicYear string          `db:"academic_year"`
	Classes      pq.StringArray  `db:"classes"`
	Amount       decimal.Decimal `db:"amount"`
	Frequency    string          `db:"frequency"`
	DueDay       int             `db:"due_day"`
	IsOptional   bool            `db:"is_optional"`
	IsActive     bool            `db:"is_active"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

func (r feeStructureRow) model() finance.FeeStructure {
	return finance.FeeStructure{
		ID:           r.ID,
		FeeTypeID:    r.FeeTypeID,
		FeeTypeName:  r.FeeTypeName,
		AcademicYear: r.AcademicYear,
		Classes:      []string(r.Classes),
		Amount:       r.Amount,
		Frequency:    finance.FeeFrequency(r.Frequency),
		DueDay:       r.DueDay,
		IsOptional:   r.IsOptional,
		IsActive:     r.IsActive,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

type studentFeeRow struct {
	ID             string          `db:"id"`
	StudentID      string          `db:"student_id"`
	StudentName    string          `db:"student_name"`
	Class          string          `db:"class"`
	Section        string          `db:"section"`
	GuardianName   null.String     `db:"guardian_name"`
	GuardianEmail  null.String     `db:"guardian_email"`
	GuardianPhone  null.String     `db:"guardian_phone"`
	FeeTypeID      string          `db:"fee_type_id"`
	FeeTypeName    string          `db:"fee_type_name"`
	StructureID    string          `db:"structure_id"`
	AcademicYear   string          `db:"academic_year"`
	Period         string          `db:"period"`
	TotalAmount    decimal.Decimal `db:"total_amount"`
	DiscountAmount decimal.Decimal `db:"discount_amount"`
	PaidAmount     decimal.Decimal `db:"paid_amount"`
	DueDate        time.Time       `db:"due_date"`
	Status         string          `db:"status"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

func newStudentFeeRow(sf finance.StudentFee) studentFeeRow {
	return studentFeeRow{
		ID:             sf.ID,
		StudentID:      sf.StudentID,
		StudentName:    sf.StudentName,
		Class:          sf.Class,
		Section:        sf.Section,
		GuardianName:   nullString(sf.GuardianName),
		GuardianEmail:  nullString(sf.GuardianEmail),
		GuardianPhone:  nullString(sf.GuardianPhone),
		FeeTypeID:      sf.FeeTypeID,
		FeeTypeName:    sf.FeeTypeName,
		StructureID:    sf.StructureID,
		AcademicYear:   sf.AcademicYear,
		Period:         sf.Period,
		TotalAmount:    sf.TotalAmount,
		DiscountAmount: sf.DiscountAmount,
		PaidAmount:     sf.PaidAmount,
		DueDate:        sf.DueDate,
		Status:         string(sf.Status),
		CreatedAt:      sf.CreatedAt,
		UpdatedAt:      sf.UpdatedAt,
	}
}

func (r studentFeeRow) model() finance.StudentFee {
	return finance.StudentFee{
		ID:             r.ID,
		StudentID:      r.StudentID,
		StudentName:    r.StudentName,
		Class:          r.Class,
		Section:        r.Section,
		GuardianName:   r.GuardianName.String,
		GuardianEmail:  r.GuardianEmail.String,
		GuardianPhone:  r.GuardianPhone.String,
		FeeTypeID:      r.FeeTypeID,
		FeeTypeName:    r.FeeTypeName,
		StructureID:    r.StructureID,
		AcademicYear:   r.AcademicYear,
		Period:         r.Period,
		TotalAmount:    r.TotalAmount,
		DiscountAmount: r.DiscountAmount,
		PaidAmount:     r.PaidAmount,
		DueDate:        finance.DateOf(r.DueDate),
		Status:         finance.FeeStatus(r.Status),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

type appliedDiscountRow struct {
	ID           string          `db:"id"`
	StudentFeeID string          `db:"student_fee_id"`
	Source       string          `db:"source"`
	SourceID     null.String     `db:"source_id"`
	Amount       decimal.Decimal `db:"amount"`
	Reason       null.String     `db:"reason"`
	CreatedBy    string          `db:"created_by"`
	CreatedAt    time.Time       `db:"created_at"`
}

func (r appliedDiscountRow) model() finance.AppliedDiscount {
	return finance.AppliedDiscount{
		ID:           r.ID,
		StudentFeeID: r.StudentFeeID,
		Source:       finance.DiscountSource(r.Source),
		SourceID:     r.SourceID.String,
		Amount:       r.Amount,
		Reason:       r.Reason.String,
		CreatedBy:    r.CreatedBy,
		CreatedAt:    r.CreatedAt,
	}
}

type receiptRow struct {
	ID             string          `db:"id"`
	Number         string          `db:"number"`
	StudentID      string          `db:"student_id"`
	StudentName    string          `db:"student_name"`
	TotalAmount    decimal.Decimal `db:"total_amount"`
	Mode           string          `db:"mode"`
	TransactionRef null.String     `db:"transaction_ref"`
	Remarks        null.String     `db:"remarks"`
	GeneratedBy    string          `db:"generated_by"`
	CreatedAt      time.Time       `db:"created_at"`
}

func (r receiptRow) model(lines []finance.ReceiptLine) finance.Receipt {
	return finance.Receipt{
		ID:             r.ID,
		Number:         r.Number,
		StudentID:      r.StudentID,
		StudentName:    r.StudentName,
		Lines:          lines,
		TotalAmount:    r.TotalAmount,
		Mode:           finance.PaymentMode(r.Mode),
		TransactionRef: r.TransactionRef.String,
		Remarks:        r.Remarks.String,
		GeneratedBy:    r.GeneratedBy,
		CreatedAt:      r.CreatedAt,
	}
}

type paymentRow struct {
	ID             string          `db:"id"`
	ReceiptID      string          `db:"receipt_id"`
	ReceiptNumber  string          `db:"receipt_number"`
	LineNo         int             `db:"line_no"`
	StudentFeeID   string          `db:"student_fee_id"`
	StudentID      string          `db:"student_id"`
	FeeTypeName    string          `db:"fee_type_name"`
	Period         string          `db:"period"`
	Amount         decimal.Decimal `db:"amount"`
	Mode           string          `db:"mode"`
	TransactionRef null.String     `db:"transaction_ref"`
	CollectedBy    string          `db:"collected_by"`
	CreatedAt      time.Time       `db:"created_at"`
}

func (r paymentRow) model() finance.Payment {
	return finance.Payment{
		ID:             r.ID,
		ReceiptID:      r.ReceiptID,
		ReceiptNumber:  r.ReceiptNumber,
		StudentFeeID:   r.StudentFeeID,
		StudentID:      r.StudentID,
		Amount:         r.Amount,
		Mode:           finance.PaymentMode(r.Mode),
		TransactionRef: r.TransactionRef.String,
		CollectedBy:    r.CollectedBy,
		CreatedAt:      r.CreatedAt,
	}
}

func (r paymentRow) line() finance.ReceiptLine {
	return finance.ReceiptLine{StudentFeeID: r.StudentFeeID, FeeTypeName: r.FeeTypeName, Period: r.Period, Amount: r.Amount}
}

type ledgerEntryRow struct {
	ID              string          `db:"id"`
	Seq             int64           `db:"seq"`
	Date            time.Time       `db:"date"`
	Type            string          `db:"type"`
	Category        string          `db:"category"`
	ReferenceID     null.String     `db:"reference_id"`
	ReferenceNumber null.String     `db:"reference_number"`
	Description     string          `db:"description"`
	Amount          decimal.Decimal `db:"amount"`
	Balance         decimal.Decimal `db:"balance"`
	ReversalOf      null.String     `db:"reversal_of"`
	ReversedBy      null.String     `db:"reversed_by"`
	CreatedBy       string          `db:"created_by"`
	CreatedAt       time.Time       `db:"created_at"`
}

func newLedgerEntryRow(e finance.LedgerEntry) ledgerEntryRow {
	return ledgerEntryRow{
		ID:              e.ID,
		Seq:             e.Seq,
		Date:            e.Date,
		Type:            string(e.Type),
		Category:        e.Category,
		ReferenceID:     nullString(e.ReferenceID),
		ReferenceNumber: nullString(e.ReferenceNumber),
		Description:     e.Description,
		Amount:          e.Amount,
		Balance:         e.Balance,
		ReversalOf:      nullString(e.ReversalOf),
		ReversedBy:      nullString(e.ReversedBy),
		CreatedBy:       e.CreatedBy,
		CreatedAt:       e.CreatedAt,
	}
}

func (r ledgerEntryRow) model() finance.LedgerEntry {
	return finance.LedgerEntry{
		ID:              r.ID,
		Seq:             r.Seq,
		Date:            finance.DateOf(r.Date),
		Type:            finance.EntryType(r.Type),
		Category:        r.Category,
		ReferenceID:     r.ReferenceID.String,
		ReferenceNumber: r.ReferenceNumber.String,
		Description:     r.Description,
		Amount:          r.Amount,
		Balance:         r.Balance,
		ReversalOf:      r.ReversalOf.String,
		ReversedBy:      r.ReversedBy.String,
		CreatedBy:       r.CreatedBy,
		CreatedAt:       r.CreatedAt,
	}
}

type discountRuleRow struct {
	ID         string          `db:"id"`
	Name       string          `db:"name"`
	Type       string          `db:"type"`
	FeeTypeIDs pq.StringArray  `db:"fee_type_ids"`
	Classes    pq.StringArray  `db:"classes"`
	StudentIDs pq.StringArray  `db:"student_ids"`
	Kind       string          `db:"kind"`
	Value      decimal.Decimal `db:"value"`
	IsActive   bool            `db:"is_active"`
	ValidFrom  null.Time       `db:"valid_from"`
	ValidTo    null.Time       `db:"valid_to"`
	CreatedAt  time.Time       `db:"created_at"`
}

func newDiscountRuleRow(rule finance.DiscountRule) discountRuleRow {
	return discountRuleRow{
		ID:         rule.ID,
		Name:       rule.Name,
		Type:       string(rule.Type),
		FeeTypeIDs: stringArray(rule.FeeTypeIDs),
		Classes:    stringArray(rule.Classes),
		StudentIDs: stringArray(rule.StudentIDs),
		Kind:       string(rule.Kind),
		Value:      rule.Value,
		IsActive:   rule.IsActive,
		ValidFrom:  nullTime(rule.ValidFrom),
		ValidTo:    nullTime(rule.ValidTo),
		CreatedAt:  rule.CreatedAt,
	}
}

func (r discountRuleRow) model() finance.DiscountRule {
	return finance.DiscountRule{
		ID:         r.ID,
		Name:       r.Name,
		Type:       finance.DiscountRuleType(r.Type),
		FeeTypeIDs: []string(r.FeeTypeIDs),
		Classes:    []string(r.Classes),
		StudentIDs: []string(r.StudentIDs),
		Kind:       finance.ValueKind(r.Kind),
		Value:      r.Value,
		IsActive:   r.IsActive,
		ValidFrom:  r.ValidFrom.Time,
		ValidTo:    r.ValidTo.Time,
		CreatedAt:  r.CreatedAt,
	}
}

type concessionRow struct {
	ID              string          `db:"id"`
	StudentID       string          `db:"student_id"`
	FeeTypeIDs      pq.StringArray  `db:"fee_type_ids"`
	Kind            string          `db:"kind"`
	Value           decimal.Decimal `db:"value"`
	Reason          string          `db:"reason"`
	Status          string          `db:"status"`
	RequestedBy     string          `db:"requested_by"`
	RequestedAt     time.Time       `db:"requested_at"`
	DecidedBy       null.String     `db:"decided_by"`
	DecidedAt       null.Time       `db:"decided_at"`
	RejectionReason null.String     `db:"rejection_reason"`
	AppliedAmount   decimal.Decimal `db:"applied_amount"`
}

func newConcessionRow(cr finance.ConcessionRequest) concessionRow {
	return concessionRow{
		ID:              cr.ID,
		StudentID:       cr.StudentID,
		FeeTypeIDs:      stringArray(cr.FeeTypeIDs),
		Kind:            string(cr.Kind),
		Value:           cr.Value,
		Reason:          cr.Reason,
		Status:          string(cr.Status),
		RequestedBy:     cr.RequestedBy,
		RequestedAt:     cr.RequestedAt,
		DecidedBy:       nullString(cr.DecidedBy),
		DecidedAt:       nullTime(cr.DecidedAt),
		RejectionReason: nullString(cr.RejectionReason),
		AppliedAmount:   cr.AppliedAmount,
	}
}

func (r concessionRow) model() finance.ConcessionRequest {
	return finance.ConcessionRequest{
		ID:              r.ID,
		StudentID:       r.StudentID,
		FeeTypeIDs:      []string(r.FeeTypeIDs),
		Kind:            finance.ValueKind(r.Kind),
		Value:           r.Value,
		Reason:          r.Reason,
		Status:          finance.ConcessionStatus(r.Status),
		RequestedBy:     r.RequestedBy,
		RequestedAt:     r.RequestedAt,
		DecidedBy:       r.DecidedBy.String,
		DecidedAt:       r.DecidedAt.Time,
		RejectionReason: r.RejectionReason.String,
		AppliedAmount:   r.AppliedAmount,
	}
}

type installmentPlanRow struct {
	ID           string          `db:"id"`
	StructureID  string          `db:"structure_id"`
	StudentFeeID null.String     `db:"student_fee_id"`
	TotalAmount  decimal.Decimal `db:"total_amount"`
	CreatedBy    string          `db:"created_by"`
	CreatedAt    time.Time       `db:"created_at"`
}

type installmentRow struct {
	PlanID  string          `db:"plan_id"`
	Number  int             `db:"number"`
	Amount  decimal.Decimal `db:"amount"`
	DueDate time.Time       `db:"due_date"`
}

func (r installmentPlanRow) model(insts []installmentRow) finance.InstallmentPlan {
	plan := finance.InstallmentPlan{
		ID:           r.ID,
		StructureID:  r.StructureID,
		StudentFeeID: r.StudentFeeID.String,
		TotalAmount:  r.TotalAmount,
		Installments: make([]finance.Installment, 0, len(insts)),
		CreatedBy:    r.CreatedBy,
		CreatedAt:    r.CreatedAt,
	}
	for _, inst := range insts {
		plan.Installments = append(plan.Installments, finance.Installment{
			Number:  inst.Number,
			Amount:  inst.Amount,
			DueDate: finance.DateOf(inst.DueDate),
		})
	}
	return plan
}

type escalationRuleRow struct {
	ID            string    `db:"id"`
	ThresholdDays int       `db:"threshold_days"`
	Channel       string    `db:"channel"`
	Template      string    `db:"template"`
	Message       string    `db:"message"`
	CreatedAt     time.Time `db:"created_at"`
}

func (r escalationRuleRow) model() finance.EscalationRule {
	return finance.EscalationRule{
		ID:            r.ID,
		ThresholdDays: r.ThresholdDays,
		Channel:       r.Channel,
		Template:      r.Template,
		Message:       r.Message,
		CreatedAt:     r.CreatedAt,
	}
}

type reminderLogRow struct {
	ID           string      `db:"id"`
	StudentFeeID string      `db:"student_fee_id"`
	StudentID    string      `db:"student_id"`
	RuleID       string      `db:"rule_id"`
	Channel      string      `db:"channel"`
	DaysOverdue  int         `db:"days_overdue"`
	Status       string      `db:"status"`
	Error        null.String `db:"error"`
	SentAt       time.Time   `db:"sent_at"`
}

func (r reminderLogRow) model() finance.ReminderLog {
	return finance.ReminderLog{
		ID:           r.ID,
		StudentFeeID: r.StudentFeeID,
		StudentID:    r.StudentID,
		RuleID:       r.RuleID,
		Channel:      r.Channel,
		DaysOverdue:  r.DaysOverdue,
		Status:       finance.ReminderStatus(r.Status),
		Error:        r.Error.String,
		SentAt:       r.SentAt,
	}
}

type gatewayOrderRow struct {
	ID            string          `db:"id"`
	StudentID     string          `db:"student_id"`
	StudentName   string          `db:"student_name"`
	Lines         types.JSONText  `db:"lines"`
	Amount        decimal.Decimal `db:"amount"`
	Status        string          `db:"status"`
	Token         null.String     `db:"token"`
	RedirectURL   null.String     `db:"redirect_url"`
	ReceiptNumber null.String     `db:"receipt_number"`
	FailureReason null.String     `db:"failure_reason"`
	CreatedBy     string          `db:"created_by"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

func newGatewayOrderRow(o finance.GatewayOrder) (gatewayOrderRow, error) {
	lines, err := json.Marshal(o.Lines)
	if err != nil {
		return gatewayOrderRow{}, err
	}
	return gatewayOrderRow{
		ID:            o.ID,
		StudentID:     o.StudentID,
		StudentName:   o.StudentName,
		Lines:         types.JSONText(lines),
		Amount:        o.Amount,
		Status:        string(o.Status),
		Token:         nullString(o.Token),
		RedirectURL:   nullString(o.RedirectURL),
		ReceiptNumber: nullString(o.ReceiptNumber),
		FailureReason: nullString(o.FailureReason),
		CreatedBy:     o.CreatedBy,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}, nil
}

func (r gatewayOrderRow) model() (finance.GatewayOrder, error) {
	var lines []finance.CollectLine
	if err := r.Lines.Unmarshal(&lines); err != nil {
		return finance.GatewayOrder{}, err
	}
	return finance.GatewayOrder{
		ID:            r.ID,
		StudentID:     r.StudentID,
		StudentName:   r.StudentName,
		Lines:         lines,
		Amount:        r.Amount,
		Status:        finance.GatewayStatus(r.Status),
		Token:         r.Token.String,
		RedirectURL:   r.RedirectURL.String,
		ReceiptNumber: r.ReceiptNumber.String,
		FailureReason: r.FailureReason.String,
		CreatedBy:     r.CreatedBy,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}, nil
}

func nullString(s string) null.String {
	return null.NewString(s, s != "")
}

func nullTime(t time.Time) null.Time {
	return null.NewTime(t, !t.IsZero())
}

func stringArray(ss []string) pq.StringArray {
	if ss == nil {
		return pq.StringArray{}
	}
	return pq.StringArray(ss)
}
