package finance

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestComputeStatus(t *testing.T) {
	today := date(2026, 5, 10)
	tests := []struct {
		name                  string
		total, discount, paid string
		due                   time.Time
		want                  FeeStatus
	}{
		{"untouched before due", "5000", "0", "0", date(2026, 5, 15), StatusPending},
		{"untouched on due date", "5000", "0", "0", today, StatusPending},
		{"untouched after due", "5000", "0", "0", date(2026, 5, 9), StatusOverdue},
		{"partially paid after due", "5000", "0", "2000", date(2026, 4, 1), StatusPartial},
		{"partially paid before due", "5000", "0", "1", date(2026, 6, 1), StatusPartial},
		{"fully paid", "5000", "0", "5000", date(2026, 4, 1), StatusPaid},
		{"covered by discount", "5000", "5000", "0", date(2026, 4, 1), StatusPaid},
		{"discount and payment", "5000", "1000", "4000", date(2026, 4, 1), StatusPaid},
		{"discount only, after due", "5000", "1000", "0", date(2026, 4, 1), StatusOverdue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeStatus(dec(tt.total), dec(tt.discount), dec(tt.paid), tt.due, today)
			if got != tt.want {
				t.Errorf("ComputeStatus() = %q; want %q", got, tt.want)
			}
		})
	}
}

func TestDaysOverdue(t *testing.T) {
	today := time.Date(2026, 5, 10, 18, 30, 0, 0, time.UTC)
	tests := []struct {
		due  time.Time
		want int
	}{
		{date(2026, 5, 20), 0},
		{date(2026, 5, 10), 0},
		{date(2026, 5, 9), 1},
		{time.Date(2026, 5, 9, 23, 59, 0, 0, time.UTC), 1},
		{date(2026, 2, 9), 90},
	}
	for _, tt := range tests {
		if got := DaysOverdue(tt.due, today); got != tt.want {
			t.Errorf("DaysOverdue(%s) = %d; want %d", tt.due.Format("2006-01-02"), got, tt.want)
		}
	}
}

func TestDueDateFor(t *testing.T) {
	tests := []struct {
		start  time.Time
		dueDay int
		want   time.Time
	}{
		{date(2026, 4, 1), 0, date(2026, 4, 1)},
		{date(2026, 4, 1), 10, date(2026, 4, 10)},
		{date(2026, 2, 1), 31, date(2026, 2, 28)},
		{date(2028, 2, 1), 30, date(2028, 2, 29)},
		{date(2026, 4, 15), 5, date(2026, 4, 5)},
	}
	for _, tt := range tests {
		if got := DueDateFor(tt.start, tt.dueDay); !got.Equal(tt.want) {
			t.Errorf("DueDateFor(%s, %d) = %s; want %s", tt.start.Format("2006-01-02"), tt.dueDay, got, tt.want)
		}
	}
}
