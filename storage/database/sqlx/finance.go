package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/finance"
)

const defaultLockTimeout = 3 * time.Second

type (
	financeRepository struct {
		reader
		db          *sqlx.DB
		lockTimeout time.Duration
	}

	// reader runs queries on the pool or, inside RunInTx, on the transaction.
	reader struct {
		q sqlx.ExtContext
	}
)

var _ finance.Repository = (*financeRepository)(nil)

// NewFinanceRepository returns a Postgres repository. Row locks give up after lockTimeout (3s when zero).
func NewFinanceRepository(db *sqlx.DB, lockTimeout time.Duration) finance.Repository {
	if lockTimeout <= 0 {
		lockTimeout = defaultLockTimeout
	}
	return &financeRepository{reader: reader{q: db}, db: db, lockTimeout: lockTimeout}
}

func (repo *financeRepository) RunInTx(ctx context.Context, fn func(tx finance.Tx) error) (err error) {
	stx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = stx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = stx.Rollback()
		}
	}()

	timeout := fmt.Sprintf("SET LOCAL lock_timeout = %d", repo.lockTimeout.Milliseconds())
	if _, err = stx.ExecContext(ctx, timeout); err != nil {
		return dbErr(err, "setting lock timeout")
	}
	if err = fn(&tx{reader: reader{q: stx}}); err != nil {
		return err
	}
	return dbErr(stx.Commit(), "committing transaction")
}

// dbErr maps driver errors onto the engine's error kinds.
func dbErr(err error, action string) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			return errors.Wrapf(finance.ErrDuplicate, "%s: %s", action, pqErr.Constraint)
		case "55P03", "40001", "40P01", "57014": // lock_not_available, serialization_failure, deadlock_detected, query_canceled
			return errors.Wrapf(finance.ErrConcurrencyConflict, "%s: %s", action, pqErr.Message)
		}
	}
	return errors.Wrap(err, action)
}

func getOne(ctx context.Context, q sqlx.QueryerContext, dest interface{}, entity, id, query string, args ...interface{}) error {
	err := sqlx.GetContext(ctx, q, dest, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return &finance.NotFoundError{Entity: entity, ID: id}
	}
	return dbErr(err, "getting "+entity)
}

// where builds an AND clause with `?` placeholders, rebound to the driver's bindvar on use.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

const (
	feeStructureSelect = `SELECT fs.*, ft.name AS fee_type_name FROM fee_structures fs JOIN fee_types ft ON ft.id = fs.fee_type_id`
	paymentSelect      = `SELECT p.*, r.number AS receipt_number FROM payments p JOIN receipts r ON r.id = p.receipt_id`
)

// Catalog

func (r reader) GetFeeType(ctx context.Context, id string) (finance.FeeType, error) {
	var row feeTypeRow
	if err := getOne(ctx, r.q, &row, "fee type", id, `SELECT * FROM fee_types WHERE id = $1`, id); err != nil {
		return finance.FeeType{}, err
	}
	return row.model(), nil
}

func (r reader) QueryFeeTypes(ctx context.Context) ([]finance.FeeType, error) {
	var rows []feeTypeRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, `SELECT * FROM fee_types ORDER BY name`); err != nil {
		return nil, dbErr(err, "querying fee types")
	}
	fts := make([]finance.FeeType, 0, len(rows))
	for _, row := range rows {
		fts = append(fts, row.model())
	}
	return fts, nil
}

func (r reader) GetFeeStructure(ctx context.Context, id string) (finance.FeeStructure, error) {
	var row feeStructureRow
	if err := getOne(ctx, r.q, &row, "fee structure", id, feeStructureSelect+` WHERE fs.id = $1`, id); err != nil {
		return finance.FeeStructure{}, err
	}
	return row.model(), nil
}

func (r reader) QueryFeeStructures(ctx context.Context, filter finance.StructureFilter) ([]finance.FeeStructure, error) {
	var w where
	if filter.AcademicYear != "" {
		w.add("fs.academic_year = ?", filter.AcademicYear)
	}
	if filter.FeeTypeID != "" {
		w.add("fs.fee_type_id = ?", filter.FeeTypeID)
	}
	if filter.Class != "" {
		w.add("(cardinality(fs.classes) = 0 OR ? = ANY(fs.classes))", filter.Class)
	}
	if filter.ActiveOnly {
		w.add("fs.is_active")
	}
	order := core.DBOrdering{Field: "fs.created_at, fs.id", Ascending: true}

	var rows []feeStructureRow
	query := r.q.Rebind(feeStructureSelect + w.String() + " ORDER BY " + order.String())
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, w.args...); err != nil {
		return nil, dbErr(err, "querying fee structures")
	}
	fss := make([]finance.FeeStructure, 0, len(rows))
	for _, row := range rows {
		fss = append(fss, row.model())
	}
	return fss, nil
}

func (r reader) CountStructuresByFeeType(ctx context.Context, feeTypeID string) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, r.q, &count, `SELECT count(*) FROM fee_structures WHERE fee_type_id = $1`, feeTypeID)
	return count, dbErr(err, "counting fee structures")
}

// Student fees

func (r reader) GetStudentFee(ctx context.Context, id string) (finance.StudentFee, error) {
	var row studentFeeRow
	if err := getOne(ctx, r.q, &row, "student fee", id, `SELECT * FROM student_fees WHERE id = $1`, id); err != nil {
		return finance.StudentFee{}, err
	}
	return row.model(), nil
}

func (r reader) QueryStudentFees(ctx context.Context, filter finance.StudentFeeFilter) ([]finance.StudentFee, error) {
	var w where
	if len(filter.StudentIDs) > 0 {
		w.add("student_id = ANY(?)", pq.Array(filter.StudentIDs))
	}
	if len(filter.FeeTypeIDs) > 0 {
		w.add("fee_type_id = ANY(?)", pq.Array(filter.FeeTypeIDs))
	}
	if filter.AcademicYear != "" {
		w.add("academic_year = ?", filter.AcademicYear)
	}
	if filter.Class != "" {
		w.add("class = ?", filter.Class)
	}
	if filter.Section != "" {
		w.add("section = ?", filter.Section)
	}
	if filter.UnpaidOnly {
		w.add("discount_amount + paid_amount < total_amount")
	}

	var rows []studentFeeRow
	query := r.q.Rebind(`SELECT * FROM student_fees` + w.String() + ` ORDER BY due_date, id`)
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, w.args...); err != nil {
		return nil, dbErr(err, "querying student fees")
	}
	return studentFees(rows), nil
}

func studentFees(rows []studentFeeRow) []finance.StudentFee {
	fees := make([]finance.StudentFee, 0, len(rows))
	for _, row := range rows {
		fees = append(fees, row.model())
	}
	return fees
}

func (r reader) QueryAppliedDiscounts(ctx context.Context, studentFeeID string) ([]finance.AppliedDiscount, error) {
	var rows []appliedDiscountRow
	query := `SELECT * FROM applied_discounts WHERE student_fee_id = $1 ORDER BY created_at, id`
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, studentFeeID); err != nil {
		return nil, dbErr(err, "querying applied discounts")
	}
	ads := make([]finance.AppliedDiscount, 0, len(rows))
	for _, row := range rows {
		ads = append(ads, row.model())
	}
	return ads, nil
}

// Collections

func (r reader) GetReceipt(ctx context.Context, number string) (finance.Receipt, error) {
	return r.getReceipt(ctx, "receipt", number, `SELECT * FROM receipts WHERE number = $1`)
}

func (r reader) GetReceiptByTransactionRef(ctx context.Context, ref string) (finance.Receipt, error) {
	if ref == "" {
		return finance.Receipt{}, &finance.NotFoundError{Entity: "receipt with transaction reference", ID: ref}
	}
	return r.getReceipt(ctx, "receipt with transaction reference", ref, `SELECT * FROM receipts WHERE transaction_ref = $1`)
}

func (r reader) getReceipt(ctx context.Context, entity, key, query string) (finance.Receipt, error) {
	var row receiptRow
	if err := getOne(ctx, r.q, &row, entity, key, query, key); err != nil {
		return finance.Receipt{}, err
	}
	rcpts, err := r.withLines(ctx, []receiptRow{row})
	if err != nil {
		return finance.Receipt{}, err
	}
	return rcpts[0], nil
}

func (r reader) QueryReceipts(ctx context.Context, studentID string) ([]finance.Receipt, error) {
	var rows []receiptRow
	query := `SELECT * FROM receipts WHERE student_id = $1 ORDER BY created_at DESC, number DESC`
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, studentID); err != nil {
		return nil, dbErr(err, "querying receipts")
	}
	return r.withLines(ctx, rows)
}

// withLines loads the lines of every receipt in one query.
func (r reader) withLines(ctx context.Context, rows []receiptRow) ([]finance.Receipt, error) {
	if len(rows) == 0 {
		return []finance.Receipt{}, nil
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}

	var prows []paymentRow
	query := paymentSelect + ` WHERE p.receipt_id = ANY($1) ORDER BY p.receipt_id, p.line_no`
	if err := sqlx.SelectContext(ctx, r.q, &prows, query, pq.Array(ids)); err != nil {
		return nil, dbErr(err, "querying receipt lines")
	}
	lines := make(map[string][]finance.ReceiptLine, len(rows))
	for _, p := range prows {
		lines[p.ReceiptID] = append(lines[p.ReceiptID], p.line())
	}

	rcpts := make([]finance.Receipt, 0, len(rows))
	for _, row := range rows {
		rcpts = append(rcpts, row.model(lines[row.ID]))
	}
	return rcpts, nil
}

func (r reader) QueryPayments(ctx context.Context, studentFeeID string) ([]finance.Payment, error) {
	var rows []paymentRow
	query := paymentSelect + ` WHERE p.student_fee_id = $1 ORDER BY p.created_at, p.id`
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, studentFeeID); err != nil {
		return nil, dbErr(err, "querying payments")
	}
	payments := make([]finance.Payment, 0, len(rows))
	for _, row := range rows {
		payments = append(payments, row.model())
	}
	return payments, nil
}

func (r reader) CountPayments(ctx context.Context, studentFeeID string) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, r.q, &count, `SELECT count(*) FROM payments WHERE student_fee_id = $1`, studentFeeID)
	return count, dbErr(err, "counting payments")
}

// Ledger

func (r reader) GetLedgerEntry(ctx context.Context, id string) (finance.LedgerEntry, error) {
	var row ledgerEntryRow
	if err := getOne(ctx, r.q, &row, "ledger entry", id, `SELECT * FROM ledger_entries WHERE id = $1`, id); err != nil {
		return finance.LedgerEntry{}, err
	}
	return row.model(), nil
}

func (r reader) LastLedgerEntry(ctx context.Context) (finance.LedgerEntry, error) {
	var row ledgerEntryRow
	query := `SELECT * FROM ledger_entries ORDER BY seq DESC LIMIT 1`
	if err := getOne(ctx, r.q, &row, "ledger entry", "last", query); err != nil {
		return finance.LedgerEntry{}, err
	}
	return row.model(), nil
}

func (r reader) QueryLedger(ctx context.Context, filter finance.LedgerFilter) ([]finance.LedgerEntry, int, error) {
	var w where
	if !filter.From.IsZero() {
		w.add("date >= ?", finance.DateOf(filter.From))
	}
	if !filter.To.IsZero() {
		w.add("date <= ?", finance.DateOf(filter.To))
	}
	if filter.Type != "" {
		w.add("type = ?", string(filter.Type))
	}
	if filter.Category != "" {
		w.add("category = ?", filter.Category)
	}

	var total int
	if err := sqlx.GetContext(ctx, r.q, &total, r.q.Rebind(`SELECT count(*) FROM ledger_entries`+w.String()), w.args...); err != nil {
		return nil, 0, dbErr(err, "counting ledger entries")
	}

	filter.Page.Clean()
	order := core.DBOrdering{Field: "seq"}
	query := r.q.Rebind(`SELECT * FROM ledger_entries` + w.String() + ` ORDER BY ` + order.String() + ` LIMIT ? OFFSET ?`)
	args := append(w.args, filter.PageSize, filter.Offset())

	var rows []ledgerEntryRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, args...); err != nil {
		return nil, 0, dbErr(err, "querying ledger")
	}
	entries := make([]finance.LedgerEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.model())
	}
	return entries, total, nil
}

// Discounts & concessions

func (r reader) GetDiscountRule(ctx context.Context, id string) (finance.DiscountRule, error) {
	var row discountRuleRow
	if err := getOne(ctx, r.q, &row, "discount rule", id, `SELECT * FROM discount_rules WHERE id = $1`, id); err != nil {
		return finance.DiscountRule{}, err
	}
	return row.model(), nil
}

func (r reader) QueryDiscountRules(ctx context.Context, activeOnly bool) ([]finance.DiscountRule, error) {
	var w where
	if activeOnly {
		w.add("is_active")
	}
	var rows []discountRuleRow
	query := `SELECT * FROM discount_rules` + w.String() + ` ORDER BY created_at, id`
	if err := sqlx.SelectContext(ctx, r.q, &rows, query); err != nil {
		return nil, dbErr(err, "querying discount rules")
	}
	rules := make([]finance.DiscountRule, 0, len(rows))
	for _, row := range rows {
		rules = append(rules, row.model())
	}
	return rules, nil
}

func (r reader) GetConcession(ctx context.Context, id string) (finance.ConcessionRequest, error) {
	var row concessionRow
	if err := getOne(ctx, r.q, &row, "concession", id, `SELECT * FROM concession_requests WHERE id = $1`, id); err != nil {
		return finance.ConcessionRequest{}, err
	}
	return row.model(), nil
}

func (r reader) QueryConcessions(ctx context.Context, filter finance.ConcessionFilter) ([]finance.ConcessionRequest, error) {
	var w where
	if filter.StudentID != "" {
		w.add("student_id = ?", filter.StudentID)
	}
	if filter.Status != "" {
		w.add("status = ?", string(filter.Status))
	}
	var rows []concessionRow
	query := r.q.Rebind(`SELECT * FROM concession_requests` + w.String() + ` ORDER BY requested_at, id`)
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, w.args...); err != nil {
		return nil, dbErr(err, "querying concessions")
	}
	crs := make([]finance.ConcessionRequest, 0, len(rows))
	for _, row := range rows {
		crs = append(crs, row.model())
	}
	return crs, nil
}

// Installments

func (r reader) GetInstallmentPlan(ctx context.Context, id string) (finance.InstallmentPlan, error) {
	var row installmentPlanRow
	if err := getOne(ctx, r.q, &row, "installment plan", id, `SELECT * FROM installment_plans WHERE id = $1`, id); err != nil {
		return finance.InstallmentPlan{}, err
	}
	plans, err := r.withInstallments(ctx, []installmentPlanRow{row})
	if err != nil {
		return finance.InstallmentPlan{}, err
	}
	return plans[0], nil
}

func (r reader) QueryInstallmentPlans(ctx context.Context, structureID string) ([]finance.InstallmentPlan, error) {
	var w where
	if structureID != "" {
		w.add("structure_id = ?", structureID)
	}
	var rows []installmentPlanRow
	query := r.q.Rebind(`SELECT * FROM installment_plans` + w.String() + ` ORDER BY created_at, id`)
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, w.args...); err != nil {
		return nil, dbErr(err, "querying installment plans")
	}
	return r.withInstallments(ctx, rows)
}

func (r reader) withInstallments(ctx context.Context, rows []installmentPlanRow) ([]finance.InstallmentPlan, error) {
	if len(rows) == 0 {
		return []finance.InstallmentPlan{}, nil
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}

	var irows []installmentRow
	query := `SELECT * FROM installments WHERE plan_id = ANY($1) ORDER BY plan_id, number`
	if err := sqlx.SelectContext(ctx, r.q, &irows, query, pq.Array(ids)); err != nil {
		return nil, dbErr(err, "querying installments")
	}
	byPlan := make(map[string][]installmentRow, len(rows))
	for _, inst := range irows {
		byPlan[inst.PlanID] = append(byPlan[inst.PlanID], inst)
	}

	plans := make([]finance.InstallmentPlan, 0, len(rows))
	for _, row := range rows {
		plans = append(plans, row.model(byPlan[row.ID]))
	}
	return plans, nil
}

// Escalation

func (r reader) QueryEscalationRules(ctx context.Context) ([]finance.EscalationRule, error) {
	var rows []escalationRuleRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, `SELECT * FROM escalation_rules ORDER BY threshold_days`); err != nil {
		return nil, dbErr(err, "querying escalation rules")
	}
	rules := make([]finance.EscalationRule, 0, len(rows))
	for _, row := range rows {
		rules = append(rules, row.model())
	}
	return rules, nil
}

func (r reader) QueryReminderLogs(ctx context.Context, filter finance.ReminderLogFilter) ([]finance.ReminderLog, error) {
	var w where
	if filter.StudentFeeID != "" {
		w.add("student_fee_id = ?", filter.StudentFeeID)
	}
	if filter.RuleID != "" {
		w.add("rule_id = ?", filter.RuleID)
	}
	if filter.Status != "" {
		w.add("status = ?", string(filter.Status))
	}
	if !filter.Since.IsZero() {
		w.add("sent_at >= ?", filter.Since)
	}
	var rows []reminderLogRow
	query := r.q.Rebind(`SELECT * FROM reminder_logs` + w.String() + ` ORDER BY sent_at, id`)
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, w.args...); err != nil {
		return nil, dbErr(err, "querying reminder logs")
	}
	logs := make([]finance.ReminderLog, 0, len(rows))
	for _, row := range rows {
		logs = append(logs, row.model())
	}
	return logs, nil
}

// Gateway

func (r reader) GetGatewayOrder(ctx context.Context, id string) (finance.GatewayOrder, error) {
	return r.getGatewayOrder(ctx, id, `SELECT * FROM gateway_orders WHERE id = $1`)
}

func (r reader) getGatewayOrder(ctx context.Context, id, query string) (finance.GatewayOrder, error) {
	var row gatewayOrderRow
	if err := getOne(ctx, r.q, &row, "gateway order", id, query, id); err != nil {
		return finance.GatewayOrder{}, err
	}
	order, err := row.model()
	return order, errors.Wrap(err, "decoding gateway order lines")
}
