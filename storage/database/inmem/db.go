package inmemdb

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/bursar/core/finance"
)

const defaultLockTimeout = 3 * time.Second

type (
	// DB holds every table behind one RWMutex so that a commit is atomic across tables.
	DB struct {
		mutex sync.RWMutex

		feeTypes    map[string]finance.FeeType
		structures  map[string]finance.FeeStructure
		studentFees map[string]finance.StudentFee
		discounts   map[string][]finance.AppliedDiscount // {student fee id: discounts}
		receipts    map[string]finance.Receipt           // {number: receipt}
		payments    map[string][]finance.Payment         // {student fee id: payments}
		ledger      []finance.LedgerEntry                // ascending seq
		ledgerIdx   map[string]int                       // {entry id: position}
		rules       map[string]finance.DiscountRule
		concessions map[string]finance.ConcessionRequest
		plans       map[string]finance.InstallmentPlan
		escalations map[string]finance.EscalationRule
		reminders   []finance.ReminderLog
		orders      map[string]finance.GatewayOrder

		receiptSeq  int64
		seqMutex    sync.Mutex
		locks       *lockTable
		lockTimeout time.Duration
	}

	lockTable struct {
		mutex sync.Mutex
		locks map[string]chan struct{}
	}
)

// Open returns an empty database. Row locks give up after lockTimeout (3s when zero).
func Open(lockTimeout time.Duration) *DB {
	if lockTimeout <= 0 {
		lockTimeout = defaultLockTimeout
	}
	return &DB{
		feeTypes:    make(map[string]finance.FeeType),
		structures:  make(map[string]finance.FeeStructure),
		studentFees: make(map[string]finance.StudentFee),
		discounts:   make(map[string][]finance.AppliedDiscount),
		receipts:    make(map[string]finance.Receipt),
		payments:    make(map[string][]finance.Payment),
		ledgerIdx:   make(map[string]int),
		rules:       make(map[string]finance.DiscountRule),
		concessions: make(map[string]finance.ConcessionRequest),
		plans:       make(map[string]finance.InstallmentPlan),
		escalations: make(map[string]finance.EscalationRule),
		orders:      make(map[string]finance.GatewayOrder),
		locks:       &lockTable{locks: make(map[string]chan struct{})},
		lockTimeout: lockTimeout,
	}
}

func (db *DB) nextReceiptSeq() int64 {
	db.seqMutex.Lock()
	defer db.seqMutex.Unlock()
	db.receiptSeq++
	return db.receiptSeq
}

// acquire takes the exclusive lock `key`, waiting at most timeout or until ctx is done.
func (lt *lockTable) acquire(ctx context.Context, key string, timeout time.Duration) error {
	lt.mutex.Lock()
	ch, ok := lt.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		lt.locks[key] = ch
	}
	lt.mutex.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return errors.Wrapf(finance.ErrConcurrencyConflict, "waiting for %s: %v", key, ctx.Err())
	case <-timer.C:
		return errors.Wrapf(finance.ErrConcurrencyConflict, "waiting for %s: timed out after %s", key, timeout)
	}
}

func (lt *lockTable) release(key string) {
	lt.mutex.Lock()
	ch := lt.locks[key]
	lt.mutex.Unlock()
	<-ch
}
