package finance

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

type (
	AssignOutcome string

	AssignResult struct {
		StudentID    string        `json:"student_id"`
		StudentFeeID string        `json:"student_fee_id,omitempty"`
		Outcome      AssignOutcome `json:"outcome"`
		Error        string        `json:"error,omitempty"`
	}

	AssignReport struct {
		Created int            `json:"created"`
		Skipped int            `json:"skipped"`
		Failed  int            `json:"failed"`
		Results []AssignResult `json:"results"`
	}

	StudentFeeList struct {
		Fees    []StudentFee `json:"fees"`
		Summary FeeSummary   `json:"summary"`
	}
)

const (
	AssignCreated AssignOutcome = "created"
	AssignSkipped AssignOutcome = "skipped" // already instantiated for the period
	AssignFailed  AssignOutcome = "failed"
)

// Instantiate creates the obligation of one student for one period of a structure.
// Active discount rules are evaluated right away.
func (svc *Service) Instantiate(ctx context.Context, caller Caller, in InstantiateFee) (StudentFee, error) {
	if err := caller.mustBeAdmin("instantiating fees"); err != nil {
		return StudentFee{}, err
	}
	if err := in.Validate(svc.validate); err != nil {
		return StudentFee{}, err
	}

	fs, err := svc.repo.GetFeeStructure(ctx, in.StructureID)
	if err != nil {
		return StudentFee{}, err
	}
	rules, err := svc.repo.QueryDiscountRules(ctx, true)
	if err != nil {
		return StudentFee{}, err
	}
	return svc.instantiate(ctx, caller, fs, rules, in.Student, in.Period)
}

// AssignStructure instantiates a structure for many students. Every student is handled
// in its own transaction, so one failure does not prevent the others.
func (svc *Service) AssignStructure(ctx context.Context, caller Caller, structureID string, as AssignStructure) (AssignReport, error) {
	if err := caller.mustBeAdmin("assigning fee structures"); err != nil {
		return AssignReport{}, err
	}
	if err := as.Validate(svc.validate); err != nil {
		return AssignReport{}, err
	}

	fs, err := svc.repo.GetFeeStructure(ctx, structureID)
	if err != nil {
		return AssignReport{}, err
	}
	if !fs.IsActive {
		return AssignReport{}, &InvalidStateError{Entity: "fee structure", ID: fs.ID, State: "inactive", Action: "assign"}
	}
	rules, err := svc.repo.QueryDiscountRules(ctx, true)
	if err != nil {
		return AssignReport{}, err
	}

	report := AssignReport{Results: make([]AssignResult, 0, len(as.Students))}
	for _, student := range as.Students {
		res := AssignResult{StudentID: student.ID}
		sf, err := svc.instantiate(ctx, caller, fs, rules, student, as.Period)
		var invalid *InvalidStateError
		switch {
		case err == nil:
			res.Outcome, res.StudentFeeID = AssignCreated, sf.ID
			report.Created++
		case errors.As(err, &invalid) && invalid.State == stateAlreadyInstantiated:
			res.Outcome = AssignSkipped
			report.Skipped++
		case Kind(err) == KindInternal:
			return report, err
		default:
			res.Outcome, res.Error = AssignFailed, err.Error()
			report.Failed++
		}
		report.Results = append(report.Results, res)
	}
	svc.logger.Info(fmt.Sprintf("fee structure %s assigned: %d created, %d skipped, %d failed",
		fs.ID, report.Created, report.Skipped, report.Failed))
	return report, nil
}

const stateAlreadyInstantiated = "already instantiated for this period"

func (svc *Service) instantiate(
	ctx context.Context,
	caller Caller,
	fs FeeStructure,
	rules []DiscountRule,
	student StudentSnapshot,
	period Period,
) (StudentFee, error) {
	if !fs.IsActive {
		return StudentFee{}, &InvalidStateError{Entity: "fee structure", ID: fs.ID, State: "inactive", Action: "instantiate"}
	}
	if !fs.AppliesToClass(student.Class) {
		return StudentFee{}, fieldError("class", "fee structure %q does not apply to class %q", fs.ID, student.Class)
	}

	now := svc.timestamp()
	sf := StudentFee{
		ID:            newID(),
		StudentID:     student.ID,
		StudentName:   student.Name,
		Class:         student.Class,
		Section:       student.Section,
		GuardianName:  student.GuardianName,
		GuardianEmail: student.GuardianEmail,
		GuardianPhone: student.GuardianPhone,
		FeeTypeID:     fs.FeeTypeID,
		FeeTypeName:   fs.FeeTypeName,
		StructureID:   fs.ID,
		AcademicYear:  fs.AcademicYear,
		Period:        period.Label,
		TotalAmount:   fs.Amount,
		DueDate:       DueDateFor(period.Start, fs.DueDay),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	applied := evaluateRules(rules, sf, svc.today(), caller.ID, now)
	for _, ad := range applied {
		sf.DiscountAmount = sf.DiscountAmount.Add(ad.Amount)
	}
	sf.Refresh(svc.today())

	err := svc.repo.RunInTx(ctx, func(tx Tx) error {
		if err := tx.CreateStudentFee(ctx, sf); err != nil {
			return err
		}
		if len(applied) == 0 {
			return nil
		}
		return tx.CreateAppliedDiscounts(ctx, applied...)
	})
	// the unique key may only be checked on commit
	if errors.Is(err, ErrDuplicate) {
		return StudentFee{}, &InvalidStateError{
			Entity: "student fee",
			ID:     fmt.Sprintf("%s/%s/%s", student.ID, fs.ID, period.Label),
			State:  stateAlreadyInstantiated,
			Action: "instantiate",
		}
	}
	if err != nil {
		return StudentFee{}, err
	}
	return sf, nil
}

// ApplyDiscount grants a manual discount. It fails with ErrInvalidDiscount when
// discount + paid would exceed the total.
func (svc *Service) ApplyDiscount(ctx context.Context, caller Caller, feeID string, nd NewDiscount) (StudentFee, error) {
	if err := caller.mustBeAdmin("applying discounts"); err != nil {
		return StudentFee{}, err
	}
	if err := nd.Validate(svc.validate); err != nil {
		return StudentFee{}, err
	}

	var sf StudentFee
	err := svc.repo.RunInTx(ctx, func(tx Tx) error {
		fees, err := tx.LockStudentFees(ctx, feeID)
		if err != nil {
			return err
		}
		sf = fees[0]
		if headroom := sf.Headroom(); nd.Amount.GreaterThan(headroom) {
			return errors.Wrapf(ErrInvalidDiscount, "student fee %q: discount %s exceeds remaining due %s",
				sf.ID, nd.Amount.String(), headroom.String())
		}

		now := svc.timestamp()
		sf.DiscountAmount = sf.DiscountAmount.Add(nd.Amount)
		sf.UpdatedAt = now
		sf.Refresh(svc.today())
		if err := tx.UpdateStudentFee(ctx, sf); err != nil {
			return err
		}
		return tx.CreateAppliedDiscounts(ctx, AppliedDiscount{
			ID:           newID(),
			StudentFeeID: sf.ID,
			Source:       SourceManual,
			Amount:       nd.Amount,
			Reason:       nd.Reason,
			CreatedBy:    caller.ID,
			CreatedAt:    now,
		})
	})
	if err != nil {
		return StudentFee{}, err
	}
	svc.logger.Info(fmt.Sprintf("discount of %s applied on student fee %s", nd.Amount.String(), sf.ID), caller)
	return sf, nil
}

// DeleteStudentFee removes an obligation nobody paid anything on yet.
func (svc *Service) DeleteStudentFee(ctx context.Context, caller Caller, id string) error {
	if err := caller.mustBeAdmin("deleting student fees"); err != nil {
		return err
	}
	return svc.repo.RunInTx(ctx, func(tx Tx) error {
		if _, err := tx.LockStudentFees(ctx, id); err != nil {
			return err
		}
		count, err := tx.CountPayments(ctx, id)
		if err != nil {
			return err
		}
		if count > 0 {
			return &InvalidStateError{Entity: "student fee", ID: id, State: "has payments", Action: "delete"}
		}
		return tx.DeleteStudentFee(ctx, id)
	})
}

func (svc *Service) GetStudentFee(ctx context.Context, caller Caller, id string) (StudentFee, error) {
	sf, err := svc.repo.GetStudentFee(ctx, id)
	if err != nil {
		return StudentFee{}, err
	}
	if err := caller.mustAccess(sf.StudentID); err != nil {
		return StudentFee{}, err
	}
	sf.Refresh(svc.today())
	return sf, nil
}

// ListStudentFees lists the obligations of a student with their totals.
// An empty academicYear means every year.
func (svc *Service) ListStudentFees(ctx context.Context, caller Caller, studentID, academicYear string) (StudentFeeList, error) {
	if err := caller.mustAccess(studentID); err != nil {
		return StudentFeeList{}, err
	}
	fees, err := svc.repo.QueryStudentFees(ctx, StudentFeeFilter{StudentIDs: []string{studentID}, AcademicYear: academicYear})
	if err != nil {
		return StudentFeeList{}, err
	}
	fees = svc.refresh(fees)
	return StudentFeeList{Fees: fees, Summary: Summarize(fees)}, nil
}

func (svc *Service) ListAppliedDiscounts(ctx context.Context, caller Caller, feeID string) ([]AppliedDiscount, error) {
	if _, err := svc.GetStudentFee(ctx, caller, feeID); err != nil {
		return nil, err
	}
	return svc.repo.QueryAppliedDiscounts(ctx, feeID)
}
