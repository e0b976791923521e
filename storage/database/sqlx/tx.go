package sqlxrepos

import (
	"context"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/bursar/core/finance"
)

// ledgerLockKey is the advisory lock serializing ledger writers.
const ledgerLockKey = 0x6c6564676572 // "ledger"

type tx struct {
	reader
}

var _ finance.Tx = (*tx)(nil)

func (t *tx) exec(ctx context.Context, action, query string, args ...interface{}) error {
	_, err := t.q.ExecContext(ctx, query, args...)
	return dbErr(err, action)
}

func (t *tx) namedExec(ctx context.Context, action, query string, arg interface{}) error {
	_, err := sqlx.NamedExecContext(ctx, t.q, query, arg)
	return dbErr(err, action)
}

// execOne fails with NotFoundError when no row was affected.
func (t *tx) execOne(ctx context.Context, entity, id, query string, arg interface{}) error {
	res, err := sqlx.NamedExecContext(ctx, t.q, query, arg)
	if err != nil {
		return dbErr(err, "updating "+entity)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbErr(err, "updating "+entity)
	}
	if n == 0 {
		return &finance.NotFoundError{Entity: entity, ID: id}
	}
	return nil
}

// Catalog

func (t *tx) CreateFeeType(ctx context.Context, ft finance.FeeType) error {
	row := feeTypeRow{ID: ft.ID, Name: ft.Name, Category: ft.Category, IsActive: ft.IsActive, CreatedAt: ft.CreatedAt}
	return t.namedExec(ctx, "creating fee type", `
		INSERT INTO fee_types (id, name, category, is_active, created_at)
		VALUES (:id, :name, :category, :is_active, :created_at)`, row)
}

func (t *tx) UpdateFeeType(ctx context.Context, ft finance.FeeType) error {
	row := feeTypeRow{ID: ft.ID, Name: ft.Name, Category: ft.Category, IsActive: ft.IsActive}
	return t.execOne(ctx, "fee type", ft.ID, `
		UPDATE fee_types SET name = :name, category = :category, is_active = :is_active WHERE id = :id`, row)
}

func newFeeStructureRow(fs finance.FeeStructure) feeStructureRow {
	return feeStructureRow{
		ID:           fs.ID,
		FeeTypeID:    fs.FeeTypeID,
		AcademicYear: fs.AcademicYear,
		Classes:      stringArray(fs.Classes),
		Amount:       fs.Amount,
		Frequency:    string(fs.Frequency),
		DueDay:       fs.DueDay,
		IsOptional:   fs.IsOptional,
		IsActive:     fs.IsActive,
		CreatedAt:    fs.CreatedAt,
		UpdatedAt:    fs.UpdatedAt,
	}
}

func (t *tx) CreateFeeStructure(ctx context.Context, fs finance.FeeStructure) error {
	return t.namedExec(ctx, "creating fee structure", `
		INSERT INTO fee_structures (id, fee_type_id, academic_year, classes, amount, frequency, due_day,
			is_optional, is_active, created_at, updated_at)
		VALUES (:id, :fee_type_id, :academic_year, :classes, :amount, :frequency, :due_day,
			:is_optional, :is_active, :created_at, :updated_at)`, newFeeStructureRow(fs))
}

func (t *tx) UpdateFeeStructure(ctx context.Context, fs finance.FeeStructure) error {
	return t.execOne(ctx, "fee structure", fs.ID, `
		UPDATE fee_structures
		SET classes = :classes, amount = :amount, due_day = :due_day, is_optional = :is_optional,
			is_active = :is_active, updated_at = :updated_at
		WHERE id = :id`, newFeeStructureRow(fs))
}

// Student fees

func (t *tx) CreateStudentFee(ctx context.Context, sf finance.StudentFee) error {
	return t.namedExec(ctx, "creating student fee", `
		INSERT INTO student_fees (id, student_id, student_name, class, section, guardian_name, guardian_email,
			guardian_phone, fee_type_id, fee_type_name, structure_id, academic_year, period, total_amount,
			discount_amount, paid_amount, due_date, status, created_at, updated_at)
		VALUES (:id, :student_id, :student_name, :class, :section, :guardian_name, :guardian_email,
			:guardian_phone, :fee_type_id, :fee_type_name, :structure_id, :academic_year, :period, :total_amount,
			:discount_amount, :paid_amount, :due_date, :status, :created_at, :updated_at)`, newStudentFeeRow(sf))
}

func (t *tx) LockStudentFees(ctx context.Context, ids ...string) ([]finance.StudentFee, error) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	var rows []studentFeeRow
	query := `SELECT * FROM student_fees WHERE id = ANY($1) ORDER BY id FOR UPDATE`
	if err := sqlx.SelectContext(ctx, t.q, &rows, query, pq.Array(sorted)); err != nil {
		return nil, dbErr(err, "locking student fees")
	}

	found := make(map[string]bool, len(rows))
	for _, row := range rows {
		found[row.ID] = true
	}
	for _, id := range sorted {
		if !found[id] {
			return nil, &finance.NotFoundError{Entity: "student fee", ID: id}
		}
	}
	return studentFees(rows), nil
}

func (t *tx) UpdateStudentFee(ctx context.Context, sf finance.StudentFee) error {
	return t.execOne(ctx, "student fee", sf.ID, `
		UPDATE student_fees
		SET total_amount = :total_amount, discount_amount = :discount_amount, paid_amount = :paid_amount,
			status = :status, updated_at = :updated_at
		WHERE id = :id`, newStudentFeeRow(sf))
}

func (t *tx) DeleteStudentFee(ctx context.Context, id string) error {
	return t.execOne(ctx, "student fee", id, `DELETE FROM student_fees WHERE id = :id`, map[string]interface{}{"id": id})
}

func (t *tx) CreateAppliedDiscounts(ctx context.Context, ads ...finance.AppliedDiscount) error {
	for _, ad := range ads {
		row := appliedDiscountRow{
			ID:           ad.ID,
			StudentFeeID: ad.StudentFeeID,
			Source:       string(ad.Source),
			SourceID:     nullString(ad.SourceID),
			Amount:       ad.Amount,
			Reason:       nullString(ad.Reason),
			CreatedBy:    ad.CreatedBy,
			CreatedAt:    ad.CreatedAt,
		}
		err := t.namedExec(ctx, "creating applied discount", `
			INSERT INTO applied_discounts (id, student_fee_id, source, source_id, amount, reason, created_by, created_at)
			VALUES (:id, :student_fee_id, :source, :source_id, :amount, :reason, :created_by, :created_at)`, row)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *tx) DeleteAppliedDiscounts(ctx context.Context, studentFeeID string, source finance.DiscountSource) error {
	return t.exec(ctx, "deleting applied discounts",
		`DELETE FROM applied_discounts WHERE student_fee_id = $1 AND source = $2`, studentFeeID, string(source))
}

// Collections

func (t *tx) NextReceiptSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := sqlx.GetContext(ctx, t.q, &seq, `SELECT nextval('receipt_number_seq')`)
	return seq, dbErr(err, "getting receipt sequence")
}

func (t *tx) CreateReceipt(ctx context.Context, rcpt finance.Receipt, payments []finance.Payment) error {
	row := receiptRow{
		ID:             rcpt.ID,
		Number:         rcpt.Number,
		StudentID:      rcpt.StudentID,
		StudentName:    rcpt.StudentName,
		TotalAmount:    rcpt.TotalAmount,
		Mode:           string(rcpt.Mode),
		TransactionRef: nullString(rcpt.TransactionRef),
		Remarks:        nullString(rcpt.Remarks),
		GeneratedBy:    rcpt.GeneratedBy,
		CreatedAt:      rcpt.CreatedAt,
	}
	err := t.namedExec(ctx, "creating receipt", `
		INSERT INTO receipts (id, number, student_id, student_name, total_amount, mode, transaction_ref,
			remarks, generated_by, created_at)
		VALUES (:id, :number, :student_id, :student_name, :total_amount, :mode, :transaction_ref,
			:remarks, :generated_by, :created_at)`, row)
	if err != nil {
		return err
	}

	if len(payments) != len(rcpt.Lines) {
		return errors.Errorf("receipt %q has %d lines but %d payments", rcpt.Number, len(rcpt.Lines), len(payments))
	}
	for i, p := range payments {
		prow := paymentRow{
			ID:             p.ID,
			ReceiptID:      rcpt.ID,
			LineNo:         i + 1,
			StudentFeeID:   p.StudentFeeID,
			StudentID:      p.StudentID,
			FeeTypeName:    rcpt.Lines[i].FeeTypeName,
			Period:         rcpt.Lines[i].Period,
			Amount:         p.Amount,
			Mode:           string(p.Mode),
			TransactionRef: nullString(p.TransactionRef),
			CollectedBy:    p.CollectedBy,
			CreatedAt:      p.CreatedAt,
		}
		err = t.namedExec(ctx, "creating payment", `
			INSERT INTO payments (id, receipt_id, line_no, student_fee_id, student_id, fee_type_name, period,
				amount, mode, transaction_ref, collected_by, created_at)
			VALUES (:id, :receipt_id, :line_no, :student_fee_id, :student_id, :fee_type_name, :period,
				:amount, :mode, :transaction_ref, :collected_by, :created_at)`, prow)
		if err != nil {
			return err
		}
	}
	return nil
}

// Ledger

func (t *tx) LockLedger(ctx context.Context) (finance.LedgerEntry, error) {
	if err := t.exec(ctx, "locking ledger", `SELECT pg_advisory_xact_lock($1)`, ledgerLockKey); err != nil {
		return finance.LedgerEntry{}, err
	}
	return t.LastLedgerEntry(ctx)
}

func (t *tx) CreateLedgerEntry(ctx context.Context, entry finance.LedgerEntry) error {
	return t.namedExec(ctx, "creating ledger entry", `
		INSERT INTO ledger_entries (id, seq, date, type, category, reference_id, reference_number, description,
			amount, balance, reversal_of, reversed_by, created_by, created_at)
		VALUES (:id, :seq, :date, :type, :category, :reference_id, :reference_number, :description,
			:amount, :balance, :reversal_of, :reversed_by, :created_by, :created_at)`, newLedgerEntryRow(entry))
}

func (t *tx) MarkLedgerEntryReversed(ctx context.Context, id, reversedBy string) error {
	return t.execOne(ctx, "ledger entry", id, `UPDATE ledger_entries SET reversed_by = :reversed_by WHERE id = :id`,
		map[string]interface{}{"id": id, "reversed_by": reversedBy})
}

// Discounts & concessions

const discountRuleColumns = `SET name = :name, type = :type, fee_type_ids = :fee_type_ids, classes = :classes,
	student_ids = :student_ids, kind = :kind, value = :value, is_active = :is_active,
	valid_from = :valid_from, valid_to = :valid_to`

func (t *tx) CreateDiscountRule(ctx context.Context, rule finance.DiscountRule) error {
	return t.namedExec(ctx, "creating discount rule", `
		INSERT INTO discount_rules (id, name, type, fee_type_ids, classes, student_ids, kind, value, is_active,
			valid_from, valid_to, created_at)
		VALUES (:id, :name, :type, :fee_type_ids, :classes, :student_ids, :kind, :value, :is_active,
			:valid_from, :valid_to, :created_at)`, newDiscountRuleRow(rule))
}

func (t *tx) UpdateDiscountRule(ctx context.Context, rule finance.DiscountRule) error {
	return t.execOne(ctx, "discount rule", rule.ID,
		`UPDATE discount_rules `+discountRuleColumns+` WHERE id = :id`, newDiscountRuleRow(rule))
}

func (t *tx) LockConcession(ctx context.Context, id string) (finance.ConcessionRequest, error) {
	var row concessionRow
	query := `SELECT * FROM concession_requests WHERE id = $1 FOR UPDATE`
	if err := getOne(ctx, t.q, &row, "concession", id, query, id); err != nil {
		return finance.ConcessionRequest{}, err
	}
	return row.model(), nil
}

func (t *tx) CreateConcession(ctx context.Context, cr finance.ConcessionRequest) error {
	return t.namedExec(ctx, "creating concession", `
		INSERT INTO concession_requests (id, student_id, fee_type_ids, kind, value, reason, status, requested_by,
			requested_at, decided_by, decided_at, rejection_reason, applied_amount)
		VALUES (:id, :student_id, :fee_type_ids, :kind, :value, :reason, :status, :requested_by,
			:requested_at, :decided_by, :decided_at, :rejection_reason, :applied_amount)`, newConcessionRow(cr))
}

func (t *tx) UpdateConcession(ctx context.Context, cr finance.ConcessionRequest) error {
	return t.execOne(ctx, "concession", cr.ID, `
		UPDATE concession_requests
		SET status = :status, decided_by = :decided_by, decided_at = :decided_at,
			rejection_reason = :rejection_reason, applied_amount = :applied_amount
		WHERE id = :id`, newConcessionRow(cr))
}

// Installments

func (t *tx) CreateInstallmentPlan(ctx context.Context, plan finance.InstallmentPlan) error {
	row := installmentPlanRow{
		ID:           plan.ID,
		StructureID:  plan.StructureID,
		StudentFeeID: nullString(plan.StudentFeeID),
		TotalAmount:  plan.TotalAmount,
		CreatedBy:    plan.CreatedBy,
		CreatedAt:    plan.CreatedAt,
	}
	err := t.namedExec(ctx, "creating installment plan", `
		INSERT INTO installment_plans (id, structure_id, student_fee_id, total_amount, created_by, created_at)
		VALUES (:id, :structure_id, :student_fee_id, :total_amount, :created_by, :created_at)`, row)
	if err != nil {
		return err
	}

	for _, inst := range plan.Installments {
		irow := installmentRow{PlanID: plan.ID, Number: inst.Number, Amount: inst.Amount, DueDate: inst.DueDate}
		err = t.namedExec(ctx, "creating installment", `
			INSERT INTO installments (plan_id, number, amount, due_date)
			VALUES (:plan_id, :number, :amount, :due_date)`, irow)
		if err != nil {
			return err
		}
	}
	return nil
}

// Escalation

func (t *tx) CreateEscalationRule(ctx context.Context, rule finance.EscalationRule) error {
	row := escalationRuleRow{
		ID:            rule.ID,
		ThresholdDays: rule.ThresholdDays,
		Channel:       rule.Channel,
		Template:      rule.Template,
		Message:       rule.Message,
		CreatedAt:     rule.CreatedAt,
	}
	return t.namedExec(ctx, "creating escalation rule", `
		INSERT INTO escalation_rules (id, threshold_days, channel, template, message, created_at)
		VALUES (:id, :threshold_days, :channel, :template, :message, :created_at)`, row)
}

func (t *tx) DeleteEscalationRule(ctx context.Context, id string) error {
	return t.execOne(ctx, "escalation rule", id, `DELETE FROM escalation_rules WHERE id = :id`,
		map[string]interface{}{"id": id})
}

func (t *tx) CreateReminderLog(ctx context.Context, log finance.ReminderLog) error {
	row := reminderLogRow{
		ID:           log.ID,
		StudentFeeID: log.StudentFeeID,
		StudentID:    log.StudentID,
		RuleID:       log.RuleID,
		Channel:      log.Channel,
		DaysOverdue:  log.DaysOverdue,
		Status:       string(log.Status),
		Error:        nullString(log.Error),
		SentAt:       log.SentAt,
	}
	return t.namedExec(ctx, "creating reminder log", `
		INSERT INTO reminder_logs (id, student_fee_id, student_id, rule_id, channel, days_overdue, status, error, sent_at)
		VALUES (:id, :student_fee_id, :student_id, :rule_id, :channel, :days_overdue, :status, :error, :sent_at)`, row)
}

// Gateway

func (t *tx) CreateGatewayOrder(ctx context.Context, order finance.GatewayOrder) error {
	row, err := newGatewayOrderRow(order)
	if err != nil {
		return errors.Wrap(err, "encoding gateway order lines")
	}
	return t.namedExec(ctx, "creating gateway order", `
		INSERT INTO gateway_orders (id, student_id, student_name, lines, amount, status, token, redirect_url,
			receipt_number, failure_reason, created_by, created_at, updated_at)
		VALUES (:id, :student_id, :student_name, :lines, :amount, :status, :token, :redirect_url,
			:receipt_number, :failure_reason, :created_by, :created_at, :updated_at)`, row)
}

func (t *tx) LockGatewayOrder(ctx context.Context, id string) (finance.GatewayOrder, error) {
	return t.getGatewayOrder(ctx, id, `SELECT * FROM gateway_orders WHERE id = $1 FOR UPDATE`)
}

func (t *tx) UpdateGatewayOrder(ctx context.Context, order finance.GatewayOrder) error {
	row, err := newGatewayOrderRow(order)
	if err != nil {
		return errors.Wrap(err, "encoding gateway order lines")
	}
	return t.execOne(ctx, "gateway order", order.ID, `
		UPDATE gateway_orders
		SET status = :status, token = :token, redirect_url = :redirect_url, receipt_number = :receipt_number,
			failure_reason = :failure_reason, updated_at = :updated_at
		WHERE id = :id`, row)
}
