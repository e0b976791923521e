package finance

import (
	"time"

	"github.com/shopspring/decimal"
)

// RemainingDue is total - discount - paid. It may be negative only on corrupted data.
func RemainingDue(total, discount, paid decimal.Decimal) decimal.Decimal {
	return total.Sub(discount).Sub(paid)
}

// ComputeStatus derives the status of an obligation. Dates are compared at day granularity.
func ComputeStatus(total, discount, paid decimal.Decimal, dueDate, today time.Time) FeeStatus {
	switch {
	case !RemainingDue(total, discount, paid).IsPositive():
		return StatusPaid
	case paid.IsPositive():
		return StatusPartial
	case DateOf(today).After(DateOf(dueDate)):
		return StatusOverdue
	default:
		return StatusPending
	}
}

// DaysOverdue is the number of whole days `today` is past `dueDate`, never negative.
func DaysOverdue(dueDate, today time.Time) int {
	days := int(DateOf(today).Sub(DateOf(dueDate)).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// DateOf truncates t to midnight UTC of its calendar day.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DueDateFor returns the due date of a period: `dueDay` of the month the period starts in,
// clamped to the length of that month. A zero dueDay means the period start itself.
func DueDateFor(periodStart time.Time, dueDay int) time.Time {
	start := DateOf(periodStart)
	if dueDay <= 0 {
		return start
	}
	// day 0 of the next month is the last day of this one
	last := time.Date(start.Year(), start.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if dueDay > last {
		dueDay = last
	}
	return time.Date(start.Year(), start.Month(), dueDay, 0, 0, 0, 0, time.UTC)
}
