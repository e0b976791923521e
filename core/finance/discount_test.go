package finance_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/bursar/core/finance"
	testutil "github.com/trezcool/bursar/tests"
)

func TestService_ApproveConcession(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	sf := env.OverdueFee(t, "5000", testutil.Student("s1", "5"), 1)
	guardian := testutil.Guardian("g1", "s1")

	cr, err := env.Svc.CreateConcession(ctx, guardian, finance.NewConcession{
		StudentID:  "s1",
		FeeTypeIDs: []string{sf.FeeTypeID},
		Kind:       finance.KindFixed,
		Value:      dec("1000"),
		Reason:     "hardship",
	})
	require.NoError(t, err)
	assert.Equal(t, finance.ConcessionPending, cr.Status)

	approved, fees, err := env.Svc.ApproveConcession(ctx, admin, cr.ID)
	require.NoError(t, err)
	assert.Equal(t, finance.ConcessionApproved, approved.Status)
	assert.Equal(t, admin.ID, approved.DecidedBy)
	assertDec(t, "1000", approved.AppliedAmount)
	require.Len(t, fees, 1)
	assertDec(t, "1000", fees[0].DiscountAmount)
	assertDec(t, "4000", fees[0].RemainingDue())

	_, _, err = env.Svc.ApproveConcession(ctx, admin, cr.ID)
	var invalid *finance.InvalidStateError
	assert.True(t, errors.As(err, &invalid), "got %v", err)

	_, err = env.Svc.RejectConcession(ctx, admin, cr.ID, finance.RejectConcession{Reason: "late"})
	assert.Equal(t, finance.KindInvalidState, finance.Kind(err))

	ads, err := env.Svc.ListAppliedDiscounts(ctx, admin, sf.ID)
	require.NoError(t, err)
	require.Len(t, ads, 1)
	assert.Equal(t, finance.SourceConcession, ads[0].Source)
	assert.Equal(t, cr.ID, ads[0].SourceID)
}

func TestService_ApproveConcession_clampsAndSpreads(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	student := testutil.Student("s1", "5")
	ft := env.FeeType(t, "Tuition")
	fs := env.Structure(t, ft.ID, "1000")
	jan := env.Fee(t, fs.ID, student, "2024-01", testutil.Now.AddDate(0, -2, 0))
	feb := env.Fee(t, fs.ID, student, "2024-02", testutil.Now.AddDate(0, -1, 0))
	mar := env.Fee(t, fs.ID, student, "2024-03", testutil.Now)
	env.Collect(t, jan.ID, "1000")
	env.Collect(t, feb.ID, "700")

	cr, err := env.Svc.CreateConcession(ctx, admin, finance.NewConcession{
		StudentID:  student.ID,
		FeeTypeIDs: []string{ft.ID},
		Kind:       finance.KindFixed,
		Value:      dec("800"),
		Reason:     "sibling",
	})
	require.NoError(t, err)

	approved, fees, err := env.Svc.ApproveConcession(ctx, admin, cr.ID)
	require.NoError(t, err)
	assertDec(t, "800", approved.AppliedAmount)
	require.Len(t, fees, 2) // jan is fully paid
	assert.Equal(t, feb.ID, fees[0].ID)
	assertDec(t, "300", fees[0].DiscountAmount)
	assert.Equal(t, finance.StatusPaid, fees[0].Status)
	assert.Equal(t, mar.ID, fees[1].ID)
	assertDec(t, "500", fees[1].DiscountAmount)

	for _, sf := range fees {
		assert.True(t, sf.DiscountAmount.Add(sf.PaidAmount).LessThanOrEqual(sf.TotalAmount))
	}
}

func TestService_RejectConcession(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	sf := env.OverdueFee(t, "5000", testutil.Student("s1", "5"), 1)

	cr, err := env.Svc.CreateConcession(ctx, admin, finance.NewConcession{
		StudentID:  "s1",
		FeeTypeIDs: []string{sf.FeeTypeID},
		Kind:       finance.KindPercentage,
		Value:      dec("50"),
		Reason:     "merit",
	})
	require.NoError(t, err)

	rejected, err := env.Svc.RejectConcession(ctx, admin, cr.ID, finance.RejectConcession{Reason: "not eligible"})
	require.NoError(t, err)
	assert.Equal(t, finance.ConcessionRejected, rejected.Status)
	assert.Equal(t, "not eligible", rejected.RejectionReason)

	_, _, err = env.Svc.ApproveConcession(ctx, admin, cr.ID)
	assert.Equal(t, finance.KindInvalidState, finance.Kind(err))

	got, err := env.Svc.GetStudentFee(ctx, admin, sf.ID)
	require.NoError(t, err)
	assertDec(t, "0", got.DiscountAmount)
}

func TestService_CreateConcession_rejects(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		caller   finance.Caller
		nc       finance.NewConcession
		wantKind finance.ErrorKind
	}{
		{
			name:     "other student",
			caller:   testutil.Guardian("g1", "s1"),
			nc:       finance.NewConcession{StudentID: "s2", FeeTypeIDs: []string{"ft"}, Kind: finance.KindFixed, Value: dec("1"), Reason: "r"},
			wantKind: finance.KindForbidden,
		},
		{
			name:     "percentage above 100",
			caller:   admin,
			nc:       finance.NewConcession{StudentID: "s1", FeeTypeIDs: []string{"ft"}, Kind: finance.KindPercentage, Value: dec("120"), Reason: "r"},
			wantKind: finance.KindValidation,
		},
		{
			name:     "no fee types",
			caller:   admin,
			nc:       finance.NewConcession{StudentID: "s1", Kind: finance.KindFixed, Value: dec("1"), Reason: "r"},
			wantKind: finance.KindValidation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.Svc.CreateConcession(ctx, tt.caller, tt.nc)
			assert.Equal(t, tt.wantKind, finance.Kind(err), "error: %v", err)
		})
	}

	crs, err := env.Svc.ListConcessions(ctx, admin, finance.ConcessionFilter{})
	require.NoError(t, err)
	assert.Empty(t, crs)
}

func TestService_ApplyDiscount(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	sf := env.OverdueFee(t, "5000", testutil.Student("s1", "5"), 1)
	env.Collect(t, sf.ID, "3000")

	got, err := env.Svc.ApplyDiscount(ctx, admin, sf.ID, finance.NewDiscount{Amount: dec("1500"), Reason: "goodwill"})
	require.NoError(t, err)
	assertDec(t, "1500", got.DiscountAmount)
	assertDec(t, "500", got.RemainingDue())

	_, err = env.Svc.ApplyDiscount(ctx, admin, sf.ID, finance.NewDiscount{Amount: dec("501"), Reason: "too much"})
	assert.True(t, errors.Is(err, finance.ErrInvalidDiscount), "got %v", err)
	assert.Equal(t, finance.KindInvalidDiscount, finance.Kind(err))

	got, err = env.Svc.ApplyDiscount(ctx, admin, sf.ID, finance.NewDiscount{Amount: dec("500"), Reason: "rest"})
	require.NoError(t, err)
	assert.Equal(t, finance.StatusPaid, got.Status)

	// nothing left to collect either
	_, err = env.Svc.Collect(ctx, admin, finance.CollectRequest{
		Lines: []finance.CollectLine{{StudentFeeID: sf.ID, Amount: dec("0.01")}},
		Mode:  finance.ModeCash,
	})
	assert.Equal(t, finance.KindExceedsDue, finance.Kind(err))
}

func TestService_discountRules(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	ft := env.FeeType(t, "Tuition")
	fs := env.Structure(t, ft.ID, "1999")

	merit, err := env.Svc.CreateDiscountRule(ctx, admin, finance.NewDiscountRule{
		Name:    "Merit 10%",
		Type:    finance.RuleMerit,
		Classes: []string{"5"},
		Kind:    finance.KindPercentage,
		Value:   dec("10"),
	})
	require.NoError(t, err)
	_, err = env.Svc.CreateDiscountRule(ctx, admin, finance.NewDiscountRule{
		Name:       "Staff child",
		Type:       finance.RuleStaffChild,
		StudentIDs: []string{"s1"},
		Kind:       finance.KindFixed,
		Value:      dec("5000"),
	})
	require.NoError(t, err)
	_, err = env.Svc.CreateDiscountRule(ctx, admin, finance.NewDiscountRule{
		Name:      "Early bird (expired)",
		Type:      finance.RuleEarlyBird,
		Kind:      finance.KindFixed,
		Value:     dec("100"),
		ValidFrom: testutil.Now.AddDate(0, -2, 0),
		ValidTo:   testutil.Now.AddDate(0, 0, -1),
	})
	require.NoError(t, err)

	s1 := env.Fee(t, fs.ID, testutil.Student("s1", "5"), "2024-03", testutil.Now)
	s2 := env.Fee(t, fs.ID, testutil.Student("s2", "5"), "2024-03", testutil.Now)
	s3 := env.Fee(t, fs.ID, testutil.Student("s3", "6"), "2024-03", testutil.Now)

	assertDec(t, "1999", s1.DiscountAmount) // both rules, clamped to the total
	assert.Equal(t, finance.StatusPaid, s1.Status)
	assertDec(t, "199.9", s2.DiscountAmount)
	assertDec(t, "0", s3.DiscountAmount)

	_, err = env.Svc.SetDiscountRuleActive(ctx, admin, merit.ID, false)
	require.NoError(t, err)
	s2, err = env.Svc.RecomputeDiscounts(ctx, admin, s2.ID)
	require.NoError(t, err)
	assertDec(t, "0", s2.DiscountAmount)

	ads, err := env.Svc.ListAppliedDiscounts(ctx, admin, s2.ID)
	require.NoError(t, err)
	assert.Empty(t, ads)
}

func TestService_discountRules_percentageValidation(t *testing.T) {
	env := newEnv(t)
	tests := []struct {
		name    string
		rule    finance.NewDiscountRule
		wantErr bool
	}{
		{"100 percent", finance.NewDiscountRule{Name: "free", Type: finance.RuleOther, Kind: finance.KindPercentage, Value: dec("100")}, false},
		{"over 100 percent", finance.NewDiscountRule{Name: "x", Type: finance.RuleOther, Kind: finance.KindPercentage, Value: dec("100.01")}, true},
		{"big fixed", finance.NewDiscountRule{Name: "y", Type: finance.RuleOther, Kind: finance.KindFixed, Value: dec("100000")}, false},
		{"inverted range", finance.NewDiscountRule{
			Name: "z", Type: finance.RuleOther, Kind: finance.KindFixed, Value: dec("1"),
			ValidFrom: testutil.Now, ValidTo: testutil.Now.Add(-48 * time.Hour),
		}, true},
		{"unknown type", finance.NewDiscountRule{Name: "w", Type: "lottery", Kind: finance.KindFixed, Value: dec("1")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.Svc.CreateDiscountRule(context.Background(), admin, tt.rule)
			if tt.wantErr {
				assert.Equal(t, finance.KindValidation, finance.Kind(err), "error: %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
