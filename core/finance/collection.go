package finance

import (
	"context"
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Collect records a payment against one or more obligations of a single student.
// Everything (obligations, payments, receipt, ledger entries) is written in one transaction.
// A TransactionRef already collected returns the existing receipt without side effects.
func (svc *Service) Collect(ctx context.Context, caller Caller, req CollectRequest) (CollectionResult, error) {
	if err := caller.mustBeAdmin("collecting payments"); err != nil {
		return CollectionResult{}, err
	}
	if err := req.Validate(svc.validate); err != nil {
		return CollectionResult{}, err
	}
	return svc.collect(ctx, caller, req)
}

func (svc *Service) collect(ctx context.Context, caller Caller, req CollectRequest) (CollectionResult, error) {
	if req.TransactionRef != "" {
		rcpt, err := svc.repo.GetReceiptByTransactionRef(ctx, req.TransactionRef)
		switch {
		case err == nil:
			return svc.replay(ctx, rcpt)
		case !errors.Is(err, ErrNotFound):
			return CollectionResult{}, err
		}
	}

	var res CollectionResult
	err := svc.repo.RunInTx(ctx, func(tx Tx) error {
		ids := make([]string, len(req.Lines))
		for i, line := range req.Lines {
			ids[i] = line.StudentFeeID
		}
		sort.Strings(ids)
		locked, err := tx.LockStudentFees(ctx, ids...)
		if err != nil {
			return err
		}
		fees := make(map[string]StudentFee, len(locked))
		for _, sf := range locked {
			fees[sf.ID] = sf
		}

		// every check happens before the first write
		if err := checkLines(caller, req.Lines, fees); err != nil {
			return err
		}

		seq, err := tx.NextReceiptSeq(ctx)
		if err != nil {
			return err
		}
		now := svc.timestamp()
		today := svc.today()
		first := fees[req.Lines[0].StudentFeeID]
		rcpt := Receipt{
			ID:             newID(),
			Number:         svc.receiptNumber(seq),
			StudentID:      first.StudentID,
			StudentName:    first.StudentName,
			Lines:          make([]ReceiptLine, 0, len(req.Lines)),
			TotalAmount:    decimal.Zero,
			Mode:           req.Mode,
			TransactionRef: req.TransactionRef,
			Remarks:        req.Remarks,
			GeneratedBy:    caller.ID,
			CreatedAt:      now,
		}
		payments := make([]Payment, 0, len(req.Lines))
		updated := make([]StudentFee, 0, len(req.Lines))
		for _, line := range req.Lines {
			sf := fees[line.StudentFeeID]
			sf.PaidAmount = sf.PaidAmount.Add(line.Amount)
			sf.UpdatedAt = now
			sf.Refresh(today)
			if err := tx.UpdateStudentFee(ctx, sf); err != nil {
				return err
			}
			fees[sf.ID] = sf
			updated = append(updated, sf)

			payments = append(payments, Payment{
				ID:             newID(),
				ReceiptID:      rcpt.ID,
				ReceiptNumber:  rcpt.Number,
				StudentFeeID:   sf.ID,
				StudentID:      sf.StudentID,
				Amount:         line.Amount,
				Mode:           req.Mode,
				TransactionRef: req.TransactionRef,
				CollectedBy:    caller.ID,
				CreatedAt:      now,
			})
			rcpt.Lines = append(rcpt.Lines, ReceiptLine{
				StudentFeeID: sf.ID,
				FeeTypeName:  sf.FeeTypeName,
				Period:       sf.Period,
				Amount:       line.Amount,
			})
			rcpt.TotalAmount = rcpt.TotalAmount.Add(line.Amount)
		}
		if err := tx.CreateReceipt(ctx, rcpt, payments); err != nil {
			return err
		}

		cur, err := svc.lockLedger(ctx, tx)
		if err != nil {
			return err
		}
		for _, line := range rcpt.Lines {
			entry := cur.next(LedgerEntry{
				ID:              newID(),
				Date:            today,
				Type:            EntryCredit,
				Category:        CategoryFeeCollection,
				ReferenceID:     rcpt.ID,
				ReferenceNumber: rcpt.Number,
				Description:     fmt.Sprintf("%s %s - %s", line.FeeTypeName, line.Period, rcpt.StudentName),
				Amount:          line.Amount,
				CreatedBy:       caller.ID,
				CreatedAt:       now,
			})
			if err := tx.CreateLedgerEntry(ctx, entry); err != nil {
				return err
			}
		}

		res = CollectionResult{Receipt: rcpt, Payments: payments, Fees: updated}
		return nil
	})
	if err != nil {
		if req.TransactionRef != "" && errors.Is(err, ErrDuplicate) {
			// lost the race against a concurrent collection of the same reference
			if rcpt, rerr := svc.repo.GetReceiptByTransactionRef(ctx, req.TransactionRef); rerr == nil {
				return svc.replay(ctx, rcpt)
			}
		}
		return CollectionResult{}, err
	}

	svc.logger.Info(fmt.Sprintf("receipt %s: collected %s from %s (%s)",
		res.Receipt.Number, humanize.CommafWithDigits(res.Receipt.TotalAmount.InexactFloat64(), 2),
		res.Receipt.StudentName, res.Receipt.Mode), caller)
	svc.notifyReceipt(ctx, res)
	return res, nil
}

// checkLines validates collection lines against the obligations they reference.
func checkLines(caller Caller, lines []CollectLine, fees map[string]StudentFee) error {
	var studentID string
	for i, line := range lines {
		sf, ok := fees[line.StudentFeeID]
		if !ok {
			return notFound("student fee", line.StudentFeeID)
		}
		if studentID == "" {
			studentID = sf.StudentID
		} else if sf.StudentID != studentID {
			return fieldError("lines", "line %d: student fee %q belongs to another student than line 0", i, sf.ID)
		}
		if err := caller.mustAccess(sf.StudentID); err != nil {
			return err
		}
		if remaining := sf.RemainingDue(); line.Amount.GreaterThan(remaining) {
			return &ExceedsDueError{Line: i, StudentFeeID: sf.ID, Amount: line.Amount, RemainingDue: remaining}
		}
	}
	return nil
}

func (svc *Service) receiptNumber(seq int64) string {
	return fmt.Sprintf("%s-%d-%06d", svc.opts.ReceiptPrefix, svc.now().Year(), seq)
}

// replay rebuilds the result of an already committed collection.
func (svc *Service) replay(ctx context.Context, rcpt Receipt) (CollectionResult, error) {
	res := CollectionResult{Receipt: rcpt, Replayed: true}
	for _, line := range rcpt.Lines {
		payments, err := svc.repo.QueryPayments(ctx, line.StudentFeeID)
		if err != nil {
			return CollectionResult{}, err
		}
		for _, p := range payments {
			if p.ReceiptID == rcpt.ID {
				res.Payments = append(res.Payments, p)
			}
		}
		sf, err := svc.repo.GetStudentFee(ctx, line.StudentFeeID)
		if err != nil {
			return CollectionResult{}, err
		}
		sf.Refresh(svc.today())
		res.Fees = append(res.Fees, sf)
	}
	return res, nil
}

func (svc *Service) notifyReceipt(ctx context.Context, res CollectionResult) {
	if svc.receipts == nil || len(res.Fees) == 0 {
		return
	}
	if err := svc.receipts.NotifyReceipt(ctx, res.Receipt, res.Fees[0].Snapshot()); err != nil {
		svc.logger.Error("finance.notifyReceipt: "+res.Receipt.Number, err)
	}
}

func (svc *Service) GetReceipt(ctx context.Context, caller Caller, number string) (Receipt, error) {
	rcpt, err := svc.repo.GetReceipt(ctx, number)
	if err != nil {
		return Receipt{}, err
	}
	if err := caller.mustAccess(rcpt.StudentID); err != nil {
		return Receipt{}, err
	}
	return rcpt, nil
}

func (svc *Service) ListReceipts(ctx context.Context, caller Caller, studentID string) ([]Receipt, error) {
	if err := caller.mustAccess(studentID); err != nil {
		return nil, err
	}
	return svc.repo.QueryReceipts(ctx, studentID)
}

func (svc *Service) ListPayments(ctx context.Context, caller Caller, feeID string) ([]Payment, error) {
	if _, err := svc.GetStudentFee(ctx, caller, feeID); err != nil {
		return nil, err
	}
	return svc.repo.QueryPayments(ctx, feeID)
}
