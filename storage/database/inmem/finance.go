package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/bursar/core/finance"
)

type (
	financeRepository struct {
		reader
	}

	// reader serves committed data. Reads inside a transaction do not see its own pending writes.
	reader struct {
		db *DB
	}
)

var _ finance.Repository = (*financeRepository)(nil)

func NewFinanceRepository(db *DB) finance.Repository {
	return &financeRepository{reader{db: db}}
}

func (repo *financeRepository) RunInTx(ctx context.Context, fn func(tx finance.Tx) error) error {
	t := &tx{reader: repo.reader, held: make(map[string]bool)}
	defer t.releaseAll()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(t); err != nil {
		return err
	}
	return t.commit()
}

func notFound(entity, id string) error {
	return &finance.NotFoundError{Entity: entity, ID: id}
}

func (r reader) GetFeeType(_ context.Context, id string) (finance.FeeType, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	if ft, ok := r.db.feeTypes[id]; ok {
		return ft, nil
	}
	return finance.FeeType{}, notFound("fee type", id)
}

func (r reader) QueryFeeTypes(_ context.Context) ([]finance.FeeType, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	fts := make([]finance.FeeType, 0, len(r.db.feeTypes))
	for _, ft := range r.db.feeTypes {
		fts = append(fts, ft)
	}
	sort.Slice(fts, func(i, j int) bool { return fts[i].Name < fts[j].Name })
	return fts, nil
}

func (r reader) GetFeeStructure(_ context.Context, id string) (finance.FeeStructure, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	if fs, ok := r.db.structures[id]; ok {
		return fs, nil
	}
	return finance.FeeStructure{}, notFound("fee structure", id)
}

func (r reader) QueryFeeStructures(_ context.Context, filter finance.StructureFilter) ([]finance.FeeStructure, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	var fss []finance.FeeStructure
	for _, fs := range r.db.structures {
		if (filter.AcademicYear != "" && fs.AcademicYear != filter.AcademicYear) ||
			(filter.FeeTypeID != "" && fs.FeeTypeID != filter.FeeTypeID) ||
			(filter.Class != "" && !fs.AppliesToClass(filter.Class)) ||
			(filter.ActiveOnly && !fs.IsActive) {
			continue
		}
		fss = append(fss, fs)
	}
	sort.Slice(fss, func(i, j int) bool {
		if fss[i].CreatedAt.Equal(fss[j].CreatedAt) {
			return fss[i].ID < fss[j].ID
		}
		return fss[i].CreatedAt.Before(fss[j].CreatedAt)
	})
	return fss, nil
}

func (r reader) CountStructuresByFeeType(_ context.Context, feeTypeID string) (int, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	var count int
	for _, fs := range r.db.structures {
		if fs.FeeTypeID == feeTypeID {
			count++
		}
	}
	return count, nil
}

func (r reader) GetStudentFee(_ context.Context, id string) (finance.StudentFee, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	if sf, ok := r.db.studentFees[id]; ok {
		return sf, nil
	}
	return finance.StudentFee{}, notFound("student fee", id)
}

func (r reader) QueryStudentFees(_ context.Context, filter finance.StudentFeeFilter) ([]finance.StudentFee, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	var fees []finance.StudentFee
	for _, sf := range r.db.studentFees {
		if (len(filter.StudentIDs) > 0 && !contains(filter.StudentIDs, sf.StudentID)) ||
			(len(filter.FeeTypeIDs) > 0 && !contains(filter.FeeTypeIDs, sf.FeeTypeID)) ||
			(filter.AcademicYear != "" && sf.AcademicYear != filter.AcademicYear) ||
			(filter.Class != "" && sf.Class != filter.Class) ||
			(filter.Section != "" && sf.Section != filter.Section) ||
			(filter.UnpaidOnly && !sf.RemainingDue().IsPositive()) {
			continue
		}
		fees = append(fees, sf)
	}
	sort.Slice(fees, func(i, j int) bool {
		if fees[i].DueDate.Equal(fees[j].DueDate) {
			return fees[i].ID < fees[j].ID
		}
		return fees[i].DueDate.Before(fees[j].DueDate)
	})
	return fees, nil
}

func (r reader) QueryAppliedDiscounts(_ context.Context, studentFeeID string) ([]finance.AppliedDiscount, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()
	return append([]finance.AppliedDiscount(nil), r.db.discounts[studentFeeID]...), nil
}

func (r reader) GetReceipt(_ context.Context, number string) (finance.Receipt, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	if rcpt, ok := r.db.receipts[number]; ok {
		return rcpt, nil
	}
	return finance.Receipt{}, notFound("receipt", number)
}

func (r reader) GetReceiptByTransactionRef(_ context.Context, ref string) (finance.Receipt, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	if ref != "" {
		for _, rcpt := range r.db.receipts {
			if rcpt.TransactionRef == ref {
				return rcpt, nil
			}
		}
	}
	return finance.Receipt{}, notFound("receipt with transaction reference", ref)
}

func (r reader) QueryReceipts(_ context.Context, studentID string) ([]finance.Receipt, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	var rcpts []finance.Receipt
	for _, rcpt := range r.db.receipts {
		if rcpt.StudentID == studentID {
			rcpts = append(rcpts, rcpt)
		}
	}
	sort.Slice(rcpts, func(i, j int) bool { return rcpts[i].CreatedAt.After(rcpts[j].CreatedAt) })
	return rcpts, nil
}

func (r reader) QueryPayments(_ context.Context, studentFeeID string) ([]finance.Payment, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()
	return append([]finance.Payment(nil), r.db.payments[studentFeeID]...), nil
}

func (r reader) CountPayments(_ context.Context, studentFeeID string) (int, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()
	return len(r.db.payments[studentFeeID]), nil
}

func (r reader) GetLedgerEntry(_ context.Context, id string) (finance.LedgerEntry, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	if idx, ok := r.db.ledgerIdx[id]; ok {
		return r.db.ledger[idx], nil
	}
	return finance.LedgerEntry{}, notFound("ledger entry", id)
}

func (r reader) LastLedgerEntry(_ context.Context) (finance.LedgerEntry, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()
	return r.db.lastLedgerEntry()
}

func (db *DB) lastLedgerEntry() (finance.LedgerEntry, error) {
	if n := len(db.ledger); n > 0 {
		return db.ledger[n-1], nil
	}
	return finance.LedgerEntry{}, notFound("ledger entry", "last")
}

func (r reader) QueryLedger(_ context.Context, filter finance.LedgerFilter) ([]finance.LedgerEntry, int, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	from, to := finance.DateOf(filter.From), finance.DateOf(filter.To)
	var matched []finance.LedgerEntry
	for i := len(r.db.ledger) - 1; i >= 0; i-- {
		e := r.db.ledger[i]
		if (!filter.From.IsZero() && e.Date.Before(from)) ||
			(!filter.To.IsZero() && e.Date.After(to)) ||
			(filter.Type != "" && e.Type != filter.Type) ||
			(filter.Category != "" && e.Category != filter.Category) {
			continue
		}
		matched = append(matched, e)
	}
	filter.Page.Clean()
	start, end := filter.Page.Bounds(len(matched))
	return matched[start:end], len(matched), nil
}

func (r reader) GetDiscountRule(_ context.Context, id string) (finance.DiscountRule, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	if rule, ok := r.db.rules[id]; ok {
		return rule, nil
	}
	return finance.DiscountRule{}, notFound("discount rule", id)
}

func (r reader) QueryDiscountRules(_ context.Context, activeOnly bool) ([]finance.DiscountRule, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	var rules []finance.DiscountRule
	for _, rule := range r.db.rules {
		if activeOnly && !rule.IsActive {
			continue
		}
		rules = append(rules, rule)
	}
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].ID < rules[j].ID
		}
		return rules[i].CreatedAt.Before(rules[j].CreatedAt)
	})
	return rules, nil
}

func (r reader) GetConcession(_ context.Context, id string) (finance.ConcessionRequest, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	if cr, ok := r.db.concessions[id]; ok {
		return cr, nil
	}
	return finance.ConcessionRequest{}, notFound("concession", id)
}

func (r reader) QueryConcessions(_ context.Context, filter finance.ConcessionFilter) ([]finance.ConcessionRequest, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	var crs []finance.ConcessionRequest
	for _, cr := range r.db.concessions {
		if (filter.StudentID != "" && cr.StudentID != filter.StudentID) ||
			(filter.Status != "" && cr.Status != filter.Status) {
			continue
		}
		crs = append(crs, cr)
	}
	sort.Slice(crs, func(i, j int) bool { return crs[i].RequestedAt.Before(crs[j].RequestedAt) })
	return crs, nil
}

func (r reader) GetInstallmentPlan(_ context.Context, id string) (finance.InstallmentPlan, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	if plan, ok := r.db.plans[id]; ok {
		return plan, nil
	}
	return finance.InstallmentPlan{}, notFound("installment plan", id)
}

func (r reader) QueryInstallmentPlans(_ context.Context, structureID string) ([]finance.InstallmentPlan, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	var plans []finance.InstallmentPlan
	for _, plan := range r.db.plans {
		if structureID == "" || plan.StructureID == structureID {
			plans = append(plans, plan)
		}
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].CreatedAt.Before(plans[j].CreatedAt) })
	return plans, nil
}

func (r reader) QueryEscalationRules(_ context.Context) ([]finance.EscalationRule, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	rules := make([]finance.EscalationRule, 0, len(r.db.escalations))
	for _, rule := range r.db.escalations {
		rules = append(rules, rule)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ThresholdDays < rules[j].ThresholdDays })
	return rules, nil
}

func (r reader) QueryReminderLogs(_ context.Context, filter finance.ReminderLogFilter) ([]finance.ReminderLog, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	var logs []finance.ReminderLog
	for _, log := range r.db.reminders {
		if (filter.StudentFeeID != "" && log.StudentFeeID != filter.StudentFeeID) ||
			(filter.RuleID != "" && log.RuleID != filter.RuleID) ||
			(filter.Status != "" && log.Status != filter.Status) ||
			(!filter.Since.IsZero() && log.SentAt.Before(filter.Since)) {
			continue
		}
		logs = append(logs, log)
	}
	return logs, nil
}

func (r reader) GetGatewayOrder(_ context.Context, id string) (finance.GatewayOrder, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	if order, ok := r.db.orders[id]; ok {
		return order, nil
	}
	return finance.GatewayOrder{}, notFound("gateway order", id)
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
