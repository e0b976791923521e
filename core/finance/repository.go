package finance

import (
	"context"
	"time"

	"github.com/trezcool/bursar/core"
)

type (
	// Repository is the persistence port of the engine.
	// Reads never take obligation locks; every mutation goes through RunInTx.
	Repository interface {
		Reader

		// RunInTx runs fn in a transaction. Writes made through tx are committed only if fn returns nil.
		// Locks taken through tx are held until the transaction ends.
		RunInTx(ctx context.Context, fn func(tx Tx) error) error
	}

	Reader interface {
		GetFeeType(ctx context.Context, id string) (FeeType, error)
		QueryFeeTypes(ctx context.Context) ([]FeeType, error)
		GetFeeStructure(ctx context.Context, id string) (FeeStructure, error)
		QueryFeeStructures(ctx context.Context, filter StructureFilter) ([]FeeStructure, error)
		CountStructuresByFeeType(ctx context.Context, feeTypeID string) (int, error)

		GetStudentFee(ctx context.Context, id string) (StudentFee, error)
		QueryStudentFees(ctx context.Context, filter StudentFeeFilter) ([]StudentFee, error)
		QueryAppliedDiscounts(ctx context.Context, studentFeeID string) ([]AppliedDiscount, error)

		GetReceipt(ctx context.Context, number string) (Receipt, error)
		GetReceiptByTransactionRef(ctx context.Context, ref string) (Receipt, error)
		QueryReceipts(ctx context.Context, studentID string) ([]Receipt, error)
		QueryPayments(ctx context.Context, studentFeeID string) ([]Payment, error)
		CountPayments(ctx context.Context, studentFeeID string) (int, error)

		GetLedgerEntry(ctx context.Context, id string) (LedgerEntry, error)
		// LastLedgerEntry returns ErrNotFound on an empty ledger.
		LastLedgerEntry(ctx context.Context) (LedgerEntry, error)
		// QueryLedger returns the matching entries newest first, and their total count.
		QueryLedger(ctx context.Context, filter LedgerFilter) ([]LedgerEntry, int, error)

		GetDiscountRule(ctx context.Context, id string) (DiscountRule, error)
		QueryDiscountRules(ctx context.Context, activeOnly bool) ([]DiscountRule, error)
		GetConcession(ctx context.Context, id string) (ConcessionRequest, error)
		QueryConcessions(ctx context.Context, filter ConcessionFilter) ([]ConcessionRequest, error)

		GetInstallmentPlan(ctx context.Context, id string) (InstallmentPlan, error)
		QueryInstallmentPlans(ctx context.Context, structureID string) ([]InstallmentPlan, error)

		// QueryEscalationRules returns rules sorted by ascending threshold.
		QueryEscalationRules(ctx context.Context) ([]EscalationRule, error)
		QueryReminderLogs(ctx context.Context, filter ReminderLogFilter) ([]ReminderLog, error)

		GetGatewayOrder(ctx context.Context, id string) (GatewayOrder, error)
	}

	Tx interface {
		Reader

		CreateFeeType(ctx context.Context, ft FeeType) error
		UpdateFeeType(ctx context.Context, ft FeeType) error
		CreateFeeStructure(ctx context.Context, fs FeeStructure) error
		UpdateFeeStructure(ctx context.Context, fs FeeStructure) error

		// CreateStudentFee returns ErrDuplicate when (student, structure, period) exists.
		CreateStudentFee(ctx context.Context, sf StudentFee) error
		// LockStudentFees takes exclusive locks on the given obligations, in ascending id order,
		// and returns their current state in that order.
		// Failing to get a lock in time is ErrConcurrencyConflict.
		LockStudentFees(ctx context.Context, ids ...string) ([]StudentFee, error)
		// UpdateStudentFee saves amounts & status of a locked obligation.
		UpdateStudentFee(ctx context.Context, sf StudentFee) error
		DeleteStudentFee(ctx context.Context, id string) error
		CreateAppliedDiscounts(ctx context.Context, ads ...AppliedDiscount) error
		DeleteAppliedDiscounts(ctx context.Context, studentFeeID string, source DiscountSource) error

		// NextReceiptSeq hands out a unique, increasing receipt sequence number.
		NextReceiptSeq(ctx context.Context) (int64, error)
		// CreateReceipt returns ErrDuplicate when the number or transaction reference is taken.
		CreateReceipt(ctx context.Context, rcpt Receipt, payments []Payment) error

		// LockLedger makes tx the single ledger writer and returns the last entry
		// (ErrNotFound on an empty ledger). Always taken after obligation locks.
		LockLedger(ctx context.Context) (LedgerEntry, error)
		CreateLedgerEntry(ctx context.Context, entry LedgerEntry) error
		// MarkLedgerEntryReversed records the compensating entry of id.
		MarkLedgerEntryReversed(ctx context.Context, id, reversedBy string) error

		CreateDiscountRule(ctx context.Context, rule DiscountRule) error
		UpdateDiscountRule(ctx context.Context, rule DiscountRule) error
		// LockConcession is always taken before obligation locks.
		LockConcession(ctx context.Context, id string) (ConcessionRequest, error)
		CreateConcession(ctx context.Context, cr ConcessionRequest) error
		UpdateConcession(ctx context.Context, cr ConcessionRequest) error

		CreateInstallmentPlan(ctx context.Context, plan InstallmentPlan) error

		// CreateEscalationRule returns ErrDuplicate when the threshold exists.
		CreateEscalationRule(ctx context.Context, rule EscalationRule) error
		DeleteEscalationRule(ctx context.Context, id string) error
		CreateReminderLog(ctx context.Context, log ReminderLog) error

		CreateGatewayOrder(ctx context.Context, order GatewayOrder) error
		// LockGatewayOrder is always taken before obligation locks.
		LockGatewayOrder(ctx context.Context, id string) (GatewayOrder, error)
		UpdateGatewayOrder(ctx context.Context, order GatewayOrder) error
	}
)

type StructureFilter struct {
	AcademicYear string
	Class        string
	FeeTypeID    string
	ActiveOnly   bool
}

// StudentFeeFilter applies AND on its non-empty fields.
type StudentFeeFilter struct {
	StudentIDs   []string
	AcademicYear string
	Class        string
	Section      string
	FeeTypeIDs   []string
	// UnpaidOnly keeps obligations with a positive remaining due.
	UnpaidOnly bool
}

type LedgerFilter struct {
	From     time.Time
	To       time.Time // inclusive day
	Type     EntryType
	Category string
	core.Page
}

type ConcessionFilter struct {
	StudentID string
	Status    ConcessionStatus
}

type ReminderLogFilter struct {
	StudentFeeID string
	RuleID       string
	Status       ReminderStatus
	// Since keeps logs sent at or after it.
	Since time.Time
}
