package finance

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/trezcool/bursar/core"
)

type (
	OutstandingFilter struct {
		Class          string
		Section        string
		StudentIDs     []string
		MinDaysOverdue int
		core.Page
	}

	OutstandingDue struct {
		StudentFee
		DaysOverdue  int             `json:"days_overdue"`
		RemainingDue decimal.Decimal `json:"remaining_due"`
	}

	OutstandingReport struct {
		Dues       []OutstandingDue `json:"dues"`
		TotalDue   decimal.Decimal  `json:"total_due"`
		Pagination core.Pagination  `json:"pagination"`
	}

	AgingBucket struct {
		Label   string          `json:"label"`
		MinDays int             `json:"min_days"`
		MaxDays int             `json:"max_days"` // -1: unbounded
		Count   int             `json:"count"`
		Amount  decimal.Decimal `json:"amount"`
	}

	AgingReport struct {
		Buckets []AgingBucket   `json:"buckets"`
		Count   int             `json:"count"`
		Total   decimal.Decimal `json:"total"`
	}
)

func agingBuckets() []AgingBucket {
	return []AgingBucket{
		{Label: "current", MinDays: 0, MaxDays: 0},
		{Label: "1-30", MinDays: 1, MaxDays: 30},
		{Label: "31-60", MinDays: 31, MaxDays: 60},
		{Label: "61-90", MinDays: 61, MaxDays: 90},
		{Label: "90+", MinDays: 91, MaxDays: -1},
	}
}

func (b AgingBucket) holds(days int) bool {
	return days >= b.MinDays && (b.MaxDays < 0 || days <= b.MaxDays)
}

// outstanding projects every unpaid obligation matching filter, most overdue first.
func (svc *Service) outstanding(ctx context.Context, caller Caller, filter OutstandingFilter) ([]OutstandingDue, error) {
	studentIDs, ok := caller.scope(filter.StudentIDs)
	if !ok {
		return nil, nil
	}
	fees, err := svc.repo.QueryStudentFees(ctx, StudentFeeFilter{
		StudentIDs: studentIDs,
		Class:      filter.Class,
		Section:    filter.Section,
		UnpaidOnly: true,
	})
	if err != nil {
		return nil, err
	}

	today := svc.today()
	dues := make([]OutstandingDue, 0, len(fees))
	for _, sf := range fees {
		sf.Refresh(today)
		if sf.Status == StatusPaid {
			continue
		}
		days := DaysOverdue(sf.DueDate, today)
		if days < filter.MinDaysOverdue {
			continue
		}
		dues = append(dues, OutstandingDue{StudentFee: sf, DaysOverdue: days, RemainingDue: sf.RemainingDue()})
	}
	sort.SliceStable(dues, func(i, j int) bool {
		if dues[i].DaysOverdue != dues[j].DaysOverdue {
			return dues[i].DaysOverdue > dues[j].DaysOverdue
		}
		if !dues[i].DueDate.Equal(dues[j].DueDate) {
			return dues[i].DueDate.Before(dues[j].DueDate)
		}
		return dues[i].ID < dues[j].ID
	})
	return dues, nil
}

// ListOutstanding lists unpaid obligations sorted by days overdue (desc) then due date.
func (svc *Service) ListOutstanding(ctx context.Context, caller Caller, filter OutstandingFilter) (OutstandingReport, error) {
	filter.Page.Clean()
	dues, err := svc.outstanding(ctx, caller, filter)
	if err != nil {
		return OutstandingReport{}, err
	}

	total := decimal.Zero
	for _, d := range dues {
		total = total.Add(d.RemainingDue)
	}
	start, end := filter.Page.Bounds(len(dues))
	return OutstandingReport{
		Dues:       dues[start:end],
		TotalDue:   total,
		Pagination: core.NewPagination(filter.Page, len(dues)),
	}, nil
}

// AgingSummary buckets the remaining dues of the same projection by days overdue.
func (svc *Service) AgingSummary(ctx context.Context, caller Caller, filter OutstandingFilter) (AgingReport, error) {
	dues, err := svc.outstanding(ctx, caller, filter)
	if err != nil {
		return AgingReport{}, err
	}

	report := AgingReport{Buckets: agingBuckets(), Total: decimal.Zero}
	for i := range report.Buckets {
		report.Buckets[i].Amount = decimal.Zero
	}
	for _, d := range dues {
		for i := range report.Buckets {
			if report.Buckets[i].holds(d.DaysOverdue) {
				report.Buckets[i].Count++
				report.Buckets[i].Amount = report.Buckets[i].Amount.Add(d.RemainingDue)
				break
			}
		}
		report.Count++
		report.Total = report.Total.Add(d.RemainingDue)
	}
	return report, nil
}
