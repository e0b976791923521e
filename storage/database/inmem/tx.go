package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/bursar/core/finance"
)

const ledgerLockKey = "ledger"

type (
	// op is a staged write. check runs for every op before any apply, both under the write lock.
	op struct {
		check func(db *DB) error
		apply func(db *DB)
	}

	tx struct {
		reader
		held  map[string]bool
		order []string // lock keys, in acquisition order
		ops   []op
	}
)

var _ finance.Tx = (*tx)(nil)

func (t *tx) stage(check func(db *DB) error, apply func(db *DB)) {
	t.ops = append(t.ops, op{check: check, apply: apply})
}

func (t *tx) commit() error {
	db := t.db
	db.mutex.Lock()
	defer db.mutex.Unlock()

	for _, o := range t.ops {
		if o.check == nil {
			continue
		}
		if err := o.check(db); err != nil {
			return err
		}
	}
	for _, o := range t.ops {
		o.apply(db)
	}
	return nil
}

func (t *tx) lock(ctx context.Context, key string) error {
	if t.held[key] {
		return nil
	}
	if err := t.db.locks.acquire(ctx, key, t.db.lockTimeout); err != nil {
		return err
	}
	t.held[key] = true
	t.order = append(t.order, key)
	return nil
}

func (t *tx) releaseAll() {
	for i := len(t.order) - 1; i >= 0; i-- {
		t.db.locks.release(t.order[i])
	}
	t.order = nil
	t.held = nil
}

func exists(entity, id string, found func(db *DB) bool) func(db *DB) error {
	return func(db *DB) error {
		if !found(db) {
			return notFound(entity, id)
		}
		return nil
	}
}

// Catalog

func (t *tx) CreateFeeType(_ context.Context, ft finance.FeeType) error {
	t.stage(
		func(db *DB) error { return db.checkFeeTypeName(ft) },
		func(db *DB) { db.feeTypes[ft.ID] = ft },
	)
	return nil
}

func (t *tx) UpdateFeeType(_ context.Context, ft finance.FeeType) error {
	t.stage(
		func(db *DB) error {
			if _, ok := db.feeTypes[ft.ID]; !ok {
				return notFound("fee type", ft.ID)
			}
			return db.checkFeeTypeName(ft)
		},
		func(db *DB) { db.feeTypes[ft.ID] = ft },
	)
	return nil
}

func (db *DB) checkFeeTypeName(ft finance.FeeType) error {
	for _, other := range db.feeTypes {
		if other.ID != ft.ID && strings.EqualFold(other.Name, ft.Name) {
			return errors.Wrapf(finance.ErrDuplicate, "fee type %q", ft.Name)
		}
	}
	return nil
}

func (t *tx) CreateFeeStructure(_ context.Context, fs finance.FeeStructure) error {
	t.stage(nil, func(db *DB) { db.structures[fs.ID] = fs })
	return nil
}

func (t *tx) UpdateFeeStructure(_ context.Context, fs finance.FeeStructure) error {
	t.stage(
		exists("fee structure", fs.ID, func(db *DB) bool { _, ok := db.structures[fs.ID]; return ok }),
		func(db *DB) { db.structures[fs.ID] = fs },
	)
	return nil
}

// Student fees

func (t *tx) CreateStudentFee(_ context.Context, sf finance.StudentFee) error {
	t.stage(
		func(db *DB) error {
			for _, other := range db.studentFees {
				if other.StudentID == sf.StudentID && other.StructureID == sf.StructureID && other.Period == sf.Period {
					return errors.Wrapf(finance.ErrDuplicate, "student fee %s/%s/%s", sf.StudentID, sf.StructureID, sf.Period)
				}
			}
			return nil
		},
		func(db *DB) { db.studentFees[sf.ID] = sf },
	)
	return nil
}

func (t *tx) LockStudentFees(ctx context.Context, ids ...string) ([]finance.StudentFee, error) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	fees := make([]finance.StudentFee, 0, len(sorted))
	for i, id := range sorted {
		if i > 0 && id == sorted[i-1] {
			continue
		}
		if err := t.lock(ctx, "fee:"+id); err != nil {
			return nil, err
		}
		sf, err := t.GetStudentFee(ctx, id)
		if err != nil {
			return nil, err
		}
		fees = append(fees, sf)
	}
	return fees, nil
}

func (t *tx) UpdateStudentFee(_ context.Context, sf finance.StudentFee) error {
	if !t.held["fee:"+sf.ID] {
		return errors.Errorf("student fee %q updated without holding its lock", sf.ID)
	}
	t.stage(
		exists("student fee", sf.ID, func(db *DB) bool { _, ok := db.studentFees[sf.ID]; return ok }),
		func(db *DB) { db.studentFees[sf.ID] = sf },
	)
	return nil
}

func (t *tx) DeleteStudentFee(_ context.Context, id string) error {
	t.stage(
		exists("student fee", id, func(db *DB) bool { _, ok := db.studentFees[id]; return ok }),
		func(db *DB) {
			delete(db.studentFees, id)
			delete(db.discounts, id)
		},
	)
	return nil
}

func (t *tx) CreateAppliedDiscounts(_ context.Context, ads ...finance.AppliedDiscount) error {
	t.stage(nil, func(db *DB) {
		for _, ad := range ads {
			db.discounts[ad.StudentFeeID] = append(db.discounts[ad.StudentFeeID], ad)
		}
	})
	return nil
}

func (t *tx) DeleteAppliedDiscounts(_ context.Context, studentFeeID string, source finance.DiscountSource) error {
	t.stage(nil, func(db *DB) {
		kept := db.discounts[studentFeeID][:0]
		for _, ad := range db.discounts[studentFeeID] {
			if ad.Source != source {
				kept = append(kept, ad)
			}
		}
		db.discounts[studentFeeID] = kept
	})
	return nil
}

// Collections

func (t *tx) NextReceiptSeq(_ context.Context) (int64, error) {
	return t.db.nextReceiptSeq(), nil
}

func (t *tx) CreateReceipt(_ context.Context, rcpt finance.Receipt, payments []finance.Payment) error {
	t.stage(
		func(db *DB) error {
			if _, ok := db.receipts[rcpt.Number]; ok {
				return errors.Wrapf(finance.ErrDuplicate, "receipt %q", rcpt.Number)
			}
			if rcpt.TransactionRef == "" {
				return nil
			}
			for _, other := range db.receipts {
				if other.TransactionRef == rcpt.TransactionRef {
					return errors.Wrapf(finance.ErrDuplicate, "transaction reference %q", rcpt.TransactionRef)
				}
			}
			return nil
		},
		func(db *DB) {
			db.receipts[rcpt.Number] = rcpt
			for _, p := range payments {
				db.payments[p.StudentFeeID] = append(db.payments[p.StudentFeeID], p)
			}
		},
	)
	return nil
}

// Ledger

func (t *tx) LockLedger(ctx context.Context) (finance.LedgerEntry, error) {
	if err := t.lock(ctx, ledgerLockKey); err != nil {
		return finance.LedgerEntry{}, err
	}
	return t.LastLedgerEntry(ctx)
}

func (t *tx) CreateLedgerEntry(_ context.Context, entry finance.LedgerEntry) error {
	if !t.held[ledgerLockKey] {
		return errors.New("ledger entry created without holding the ledger lock")
	}
	t.stage(nil, func(db *DB) {
		db.ledgerIdx[entry.ID] = len(db.ledger)
		db.ledger = append(db.ledger, entry)
	})
	return nil
}

func (t *tx) MarkLedgerEntryReversed(_ context.Context, id, reversedBy string) error {
	t.stage(
		exists("ledger entry", id, func(db *DB) bool { _, ok := db.ledgerIdx[id]; return ok }),
		func(db *DB) { db.ledger[db.ledgerIdx[id]].ReversedBy = reversedBy },
	)
	return nil
}

// Discounts & concessions

func (t *tx) CreateDiscountRule(_ context.Context, rule finance.DiscountRule) error {
	t.stage(nil, func(db *DB) { db.rules[rule.ID] = rule })
	return nil
}

func (t *tx) UpdateDiscountRule(_ context.Context, rule finance.DiscountRule) error {
	t.stage(
		exists("discount rule", rule.ID, func(db *DB) bool { _, ok := db.rules[rule.ID]; return ok }),
		func(db *DB) { db.rules[rule.ID] = rule },
	)
	return nil
}

func (t *tx) LockConcession(ctx context.Context, id string) (finance.ConcessionRequest, error) {
	if err := t.lock(ctx, "concession:"+id); err != nil {
		return finance.ConcessionRequest{}, err
	}
	return t.GetConcession(ctx, id)
}

func (t *tx) CreateConcession(_ context.Context, cr finance.ConcessionRequest) error {
	t.stage(nil, func(db *DB) { db.concessions[cr.ID] = cr })
	return nil
}

func (t *tx) UpdateConcession(_ context.Context, cr finance.ConcessionRequest) error {
	t.stage(
		exists("concession", cr.ID, func(db *DB) bool { _, ok := db.concessions[cr.ID]; return ok }),
		func(db *DB) { db.concessions[cr.ID] = cr },
	)
	return nil
}

// Installments

func (t *tx) CreateInstallmentPlan(_ context.Context, plan finance.InstallmentPlan) error {
	t.stage(nil, func(db *DB) { db.plans[plan.ID] = plan })
	return nil
}

// Escalation

func (t *tx) CreateEscalationRule(_ context.Context, rule finance.EscalationRule) error {
	t.stage(
		func(db *DB) error {
			for _, other := range db.escalations {
				if other.ThresholdDays == rule.ThresholdDays {
					return errors.Wrapf(finance.ErrDuplicate, "escalation rule for %d days", rule.ThresholdDays)
				}
			}
			return nil
		},
		func(db *DB) { db.escalations[rule.ID] = rule },
	)
	return nil
}

func (t *tx) DeleteEscalationRule(_ context.Context, id string) error {
	t.stage(
		exists("escalation rule", id, func(db *DB) bool { _, ok := db.escalations[id]; return ok }),
		func(db *DB) { delete(db.escalations, id) },
	)
	return nil
}

func (t *tx) CreateReminderLog(_ context.Context, log finance.ReminderLog) error {
	t.stage(nil, func(db *DB) { db.reminders = append(db.reminders, log) })
	return nil
}

// Gateway

func (t *tx) CreateGatewayOrder(_ context.Context, order finance.GatewayOrder) error {
	t.stage(nil, func(db *DB) { db.orders[order.ID] = order })
	return nil
}

func (t *tx) LockGatewayOrder(ctx context.Context, id string) (finance.GatewayOrder, error) {
	if err := t.lock(ctx, "order:"+id); err != nil {
		return finance.GatewayOrder{}, err
	}
	return t.GetGatewayOrder(ctx, id)
}

func (t *tx) UpdateGatewayOrder(_ context.Context, order finance.GatewayOrder) error {
	t.stage(
		exists("gateway order", order.ID, func(db *DB) bool { _, ok := db.orders[order.ID]; return ok }),
		func(db *DB) { db.orders[order.ID] = order },
	)
	return nil
}
