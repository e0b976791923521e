package finance

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// splitInstallments splits total in len(dueDates) parts of floor(total/n);
// the last part takes the remainder so that the parts always sum to total.
func splitInstallments(total decimal.Decimal, dueDates []time.Time) []Installment {
	n := len(dueDates)
	if n == 0 {
		return nil
	}
	part := total.Div(decimal.NewFromInt(int64(n))).Floor()
	insts := make([]Installment, n)
	allocated := decimal.Zero
	for i, due := range dueDates {
		amount := part
		if i == n-1 {
			amount = total.Sub(allocated)
		}
		allocated = allocated.Add(amount)
		insts[i] = Installment{
			Number:     i + 1,
			Amount:     amount,
			DueDate:    DateOf(due),
			PaidAmount: decimal.Zero,
			Status:     StatusPending,
		}
	}
	return insts
}

func strictlyIncreasing(dates []time.Time) bool {
	for i := 1; i < len(dates); i++ {
		if !dates[i].After(dates[i-1]) {
			return false
		}
	}
	return true
}

// project spreads what was settled on the linked obligation (paid + discount) over the
// installments, earliest first, and recomputes their statuses.
func project(insts []Installment, settled decimal.Decimal, today time.Time) []Installment {
	out := make([]Installment, len(insts))
	for i, inst := range insts {
		share := clamp(settled, inst.Amount)
		settled = settled.Sub(share)
		inst.PaidAmount = share
		inst.Status = ComputeStatus(inst.Amount, decimal.Zero, share, inst.DueDate, today)
		out[i] = inst
	}
	return out
}

// CreatePlan splits a structure amount, or the total of one of its obligations, into installments.
func (svc *Service) CreatePlan(ctx context.Context, caller Caller, np NewInstallmentPlan) (InstallmentPlan, error) {
	if err := caller.mustBeAdmin("creating installment plans"); err != nil {
		return InstallmentPlan{}, err
	}
	if err := np.Validate(svc.validate); err != nil {
		return InstallmentPlan{}, err
	}

	fs, err := svc.repo.GetFeeStructure(ctx, np.StructureID)
	if err != nil {
		return InstallmentPlan{}, err
	}
	total := fs.Amount
	if np.StudentFeeID != "" {
		sf, err := svc.repo.GetStudentFee(ctx, np.StudentFeeID)
		if err != nil {
			return InstallmentPlan{}, err
		}
		if sf.StructureID != fs.ID {
			return InstallmentPlan{}, fieldError("student_fee_id", "student fee %q was not instantiated from structure %q", sf.ID, fs.ID)
		}
		total = sf.TotalAmount
	}

	plan := InstallmentPlan{
		ID:           newID(),
		StructureID:  fs.ID,
		StudentFeeID: np.StudentFeeID,
		TotalAmount:  total,
		Installments: splitInstallments(total, np.DueDates),
		CreatedBy:    caller.ID,
		CreatedAt:    svc.timestamp(),
	}
	if err := svc.repo.RunInTx(ctx, func(tx Tx) error { return tx.CreateInstallmentPlan(ctx, plan) }); err != nil {
		return InstallmentPlan{}, err
	}
	return svc.withProgress(ctx, caller, plan)
}

func (svc *Service) GetPlan(ctx context.Context, caller Caller, id string) (InstallmentPlan, error) {
	plan, err := svc.repo.GetInstallmentPlan(ctx, id)
	if err != nil {
		return InstallmentPlan{}, err
	}
	return svc.withProgress(ctx, caller, plan)
}

func (svc *Service) ListPlans(ctx context.Context, caller Caller, structureID string) ([]InstallmentPlan, error) {
	plans, err := svc.repo.QueryInstallmentPlans(ctx, structureID)
	if err != nil {
		return nil, err
	}
	visible := make([]InstallmentPlan, 0, len(plans))
	for _, plan := range plans {
		plan, err := svc.withProgress(ctx, caller, plan)
		if Kind(err) == KindForbidden {
			continue
		}
		if err != nil {
			return nil, err
		}
		visible = append(visible, plan)
	}
	return visible, nil
}

// withProgress fills installment progress from the linked obligation, if any.
func (svc *Service) withProgress(ctx context.Context, caller Caller, plan InstallmentPlan) (InstallmentPlan, error) {
	today := svc.today()
	if plan.StudentFeeID == "" {
		plan.Installments = project(plan.Installments, decimal.Zero, today)
		return plan, nil
	}
	sf, err := svc.GetStudentFee(ctx, caller, plan.StudentFeeID)
	if err != nil {
		return InstallmentPlan{}, err
	}
	plan.Installments = project(plan.Installments, sf.PaidAmount.Add(sf.DiscountAmount), today)
	return plan, nil
}
