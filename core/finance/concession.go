package finance

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// CreateConcession files a pending concession request for a student the caller can access.
func (svc *Service) CreateConcession(ctx context.Context, caller Caller, nc NewConcession) (ConcessionRequest, error) {
	if err := nc.Validate(svc.validate); err != nil {
		return ConcessionRequest{}, err
	}
	if err := caller.mustAccess(nc.StudentID); err != nil {
		return ConcessionRequest{}, err
	}

	cr := ConcessionRequest{
		ID:          newID(),
		StudentID:   nc.StudentID,
		FeeTypeIDs:  nc.FeeTypeIDs,
		Kind:        nc.Kind,
		Value:       nc.Value,
		Reason:      nc.Reason,
		Status:      ConcessionPending,
		RequestedBy: caller.ID,
		RequestedAt: svc.timestamp(),
	}
	if err := svc.repo.RunInTx(ctx, func(tx Tx) error { return tx.CreateConcession(ctx, cr) }); err != nil {
		return ConcessionRequest{}, err
	}
	return cr, nil
}

// ApproveConcession applies a pending concession on the student's unpaid targeted obligations, atomically.
// Percentages apply to each obligation; a fixed value is spread over them in due date order.
// Every amount is clamped to the obligation's headroom.
func (svc *Service) ApproveConcession(ctx context.Context, caller Caller, id string) (ConcessionRequest, []StudentFee, error) {
	if err := caller.mustBeAdmin("approving concessions"); err != nil {
		return ConcessionRequest{}, nil, err
	}

	var (
		cr      ConcessionRequest
		updated []StudentFee
	)
	err := svc.repo.RunInTx(ctx, func(tx Tx) error {
		var err error
		if cr, err = tx.LockConcession(ctx, id); err != nil {
			return err
		}
		if cr.Status != ConcessionPending {
			return &InvalidStateError{Entity: "concession", ID: id, State: string(cr.Status), Action: "approve"}
		}

		targets, err := tx.QueryStudentFees(ctx, StudentFeeFilter{
			StudentIDs: []string{cr.StudentID},
			FeeTypeIDs: cr.FeeTypeIDs,
			UnpaidOnly: true,
		})
		if err != nil {
			return err
		}
		ids := make([]string, len(targets))
		for i, sf := range targets {
			ids[i] = sf.ID
		}
		fees, err := tx.LockStudentFees(ctx, ids...)
		if err != nil {
			return err
		}
		sort.SliceStable(fees, func(i, j int) bool {
			if fees[i].DueDate.Equal(fees[j].DueDate) {
				return fees[i].ID < fees[j].ID
			}
			return fees[i].DueDate.Before(fees[j].DueDate)
		})

		now := svc.timestamp()
		today := svc.today()
		left := cr.Value // fixed value still to distribute
		total := decimal.Zero
		var applied []AppliedDiscount
		for _, sf := range fees {
			var amount decimal.Decimal
			if cr.Kind == KindPercentage {
				amount = clamp(valueOn(KindPercentage, cr.Value, sf.TotalAmount), sf.Headroom())
			} else {
				amount = clamp(left, sf.Headroom())
				left = left.Sub(amount)
			}
			if !amount.IsPositive() {
				continue
			}
			sf.DiscountAmount = sf.DiscountAmount.Add(amount)
			sf.UpdatedAt = now
			sf.Refresh(today)
			if err := tx.UpdateStudentFee(ctx, sf); err != nil {
				return err
			}
			updated = append(updated, sf)
			applied = append(applied, AppliedDiscount{
				ID:           newID(),
				StudentFeeID: sf.ID,
				Source:       SourceConcession,
				SourceID:     cr.ID,
				Amount:       amount,
				Reason:       cr.Reason,
				CreatedBy:    caller.ID,
				CreatedAt:    now,
			})
			total = total.Add(amount)
		}
		if len(applied) > 0 {
			if err := tx.CreateAppliedDiscounts(ctx, applied...); err != nil {
				return err
			}
		}

		cr.Status = ConcessionApproved
		cr.DecidedBy = caller.ID
		cr.DecidedAt = now
		cr.AppliedAmount = total
		return tx.UpdateConcession(ctx, cr)
	})
	if err != nil {
		return ConcessionRequest{}, nil, err
	}

	if cr.AppliedAmount.IsZero() {
		svc.logger.Warn(fmt.Sprintf("concession %s approved but nothing was left to discount", cr.ID), caller)
	} else {
		svc.logger.Info(fmt.Sprintf("concession %s approved: %s over %d fees", cr.ID, cr.AppliedAmount.String(), len(updated)), caller)
	}
	return cr, updated, nil
}

func (svc *Service) RejectConcession(ctx context.Context, caller Caller, id string, rc RejectConcession) (ConcessionRequest, error) {
	if err := caller.mustBeAdmin("rejecting concessions"); err != nil {
		return ConcessionRequest{}, err
	}
	if err := rc.Validate(svc.validate); err != nil {
		return ConcessionRequest{}, err
	}

	var cr ConcessionRequest
	err := svc.repo.RunInTx(ctx, func(tx Tx) error {
		var err error
		if cr, err = tx.LockConcession(ctx, id); err != nil {
			return err
		}
		if cr.Status != ConcessionPending {
			return &InvalidStateError{Entity: "concession", ID: id, State: string(cr.Status), Action: "reject"}
		}
		cr.Status = ConcessionRejected
		cr.DecidedBy = caller.ID
		cr.DecidedAt = svc.timestamp()
		cr.RejectionReason = rc.Reason
		return tx.UpdateConcession(ctx, cr)
	})
	if err != nil {
		return ConcessionRequest{}, err
	}
	return cr, nil
}

func (svc *Service) GetConcession(ctx context.Context, caller Caller, id string) (ConcessionRequest, error) {
	cr, err := svc.repo.GetConcession(ctx, id)
	if err != nil {
		return ConcessionRequest{}, err
	}
	if err := caller.mustAccess(cr.StudentID); err != nil {
		return ConcessionRequest{}, err
	}
	return cr, nil
}

// ListConcessions only returns the requests of students the caller can access.
func (svc *Service) ListConcessions(ctx context.Context, caller Caller, filter ConcessionFilter) ([]ConcessionRequest, error) {
	if filter.StudentID != "" {
		if err := caller.mustAccess(filter.StudentID); err != nil {
			return nil, err
		}
	}
	crs, err := svc.repo.QueryConcessions(ctx, filter)
	if err != nil {
		return nil, err
	}
	visible := crs[:0]
	for _, cr := range crs {
		if caller.CanAccessStudent(cr.StudentID) {
			visible = append(visible, cr)
		}
	}
	return visible, nil
}
