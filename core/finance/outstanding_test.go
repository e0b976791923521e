package finance_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/finance"
	testutil "github.com/trezcool/bursar/tests"
)

func seedOutstanding(t *testing.T, env *testutil.Env) {
	t.Helper()
	env.OverdueFee(t, "100", testutil.Student("s1", "5"), 0)
	env.OverdueFee(t, "200", testutil.Student("s1", "5"), 10)
	env.OverdueFee(t, "300", testutil.Student("s2", "6"), 45)
	env.OverdueFee(t, "400", testutil.Student("s3", "6"), 75)
	partial := env.OverdueFee(t, "500", testutil.Student("s3", "6"), 120)
	env.Collect(t, partial.ID, "100")
	paid := env.OverdueFee(t, "600", testutil.Student("s4", "5"), 5)
	env.Collect(t, paid.ID, "600")
}

func TestService_ListOutstanding(t *testing.T) {
	env := newEnv(t)
	seedOutstanding(t, env)
	ctx := context.Background()

	tests := []struct {
		name      string
		caller    finance.Caller
		filter    finance.OutstandingFilter
		wantDays  []int
		wantTotal string
	}{
		{"everything", admin, finance.OutstandingFilter{}, []int{120, 75, 45, 10, 0}, "1400"},
		{"class", admin, finance.OutstandingFilter{Class: "6"}, []int{120, 75, 45}, "1100"},
		{"min days", admin, finance.OutstandingFilter{MinDaysOverdue: 45}, []int{120, 75, 45}, "1100"},
		{"students", admin, finance.OutstandingFilter{StudentIDs: []string{"s1", "s4"}}, []int{10, 0}, "300"},
		{"guardian", testutil.Guardian("g1", "s1", "s2"), finance.OutstandingFilter{}, []int{45, 10, 0}, "600"},
		{"guardian asking for others", testutil.Guardian("g1", "s1"), finance.OutstandingFilter{StudentIDs: []string{"s3"}}, []int{}, "0"},
		{"guardian without students", testutil.Guardian("g2"), finance.OutstandingFilter{}, []int{}, "0"},
		{"paged", admin, finance.OutstandingFilter{Page: core.Page{Page: 2, PageSize: 2}}, []int{45, 10}, "1400"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := env.Svc.ListOutstanding(ctx, tt.caller, tt.filter)
			require.NoError(t, err)
			days := make([]int, len(report.Dues))
			for i, d := range report.Dues {
				days[i] = d.DaysOverdue
			}
			assert.Equal(t, tt.wantDays, days)
			assertDec(t, tt.wantTotal, report.TotalDue)
		})
	}

	report, err := env.Svc.ListOutstanding(ctx, admin, finance.OutstandingFilter{Class: "6"})
	require.NoError(t, err)
	assertDec(t, "400", report.Dues[0].RemainingDue)
	assert.Equal(t, finance.StatusPartial, report.Dues[0].Status)
	assert.Equal(t, 3, report.Pagination.TotalItems)
}

func TestService_ListOutstanding_daysOverdueGrowWithTime(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	fee := env.OverdueFee(t, "500", testutil.Student("s1", "5"), 10)

	days := func() int {
		t.Helper()
		report, err := env.Svc.ListOutstanding(ctx, admin, finance.OutstandingFilter{})
		require.NoError(t, err)
		require.Len(t, report.Dues, 1)
		return report.Dues[0].DaysOverdue
	}

	prev := days()
	assert.Equal(t, 10, prev)
	for i := 0; i < 10; i++ {
		env.Now = env.Now.Add(7 * time.Hour)
		if i == 4 {
			env.Collect(t, fee.ID, "100")
		}
		got := days()
		assert.GreaterOrEqual(t, got, prev, "at %s", env.Now)
		prev = got
	}
	// 09:00 + 70h is 07:00 three days later
	assert.Equal(t, 13, prev)
}

func TestService_AgingSummary(t *testing.T) {
	env := newEnv(t)
	seedOutstanding(t, env)

	report, err := env.Svc.AgingSummary(context.Background(), admin, finance.OutstandingFilter{})
	require.NoError(t, err)
	assert.Equal(t, 5, report.Count)
	assertDec(t, "1400", report.Total)

	want := map[string]struct {
		count  int
		amount string
	}{
		"current": {1, "100"},
		"1-30":    {1, "200"},
		"31-60":   {1, "300"},
		"61-90":   {1, "400"},
		"90+":     {1, "400"},
	}
	require.Len(t, report.Buckets, len(want))
	for _, b := range report.Buckets {
		assert.Equal(t, want[b.Label].count, b.Count, b.Label)
		assertDec(t, want[b.Label].amount, b.Amount, b.Label)
	}

	// the same projection as ListOutstanding
	list, err := env.Svc.ListOutstanding(context.Background(), admin, finance.OutstandingFilter{})
	require.NoError(t, err)
	assert.True(t, list.TotalDue.Equal(report.Total))
}
