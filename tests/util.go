package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trezcool/bursar/core/finance"
	inmemdb "github.com/trezcool/bursar/storage/database/inmem"
)

var (
	Admin = finance.Caller{ID: "bursar-1", Name: "Bursar", Roles: []string{finance.RoleAdminBursar}}
	// Now is the default clock of an Env: 2024-03-15 09:00 UTC.
	Now = time.Date(2024, time.March, 15, 9, 0, 0, 0, time.UTC)
)

func Guardian(id string, studentIDs ...string) finance.Caller {
	if studentIDs == nil {
		studentIDs = []string{}
	}
	return finance.Caller{ID: id, Name: "Guardian " + id, Roles: []string{finance.RoleGuardian}, StudentIDs: studentIDs}
}

// Env is a finance service over an in-memory repository with a settable clock.
type Env struct {
	Svc  *finance.Service
	Repo finance.Repository
	DB   *inmemdb.DB
	Now  time.Time
}

// NewEnv builds an Env. deps.Repo and deps.Clock are overwritten.
func NewEnv(t testing.TB, deps finance.Deps, opts finance.Options) *Env {
	t.Helper()
	env := &Env{DB: inmemdb.Open(200 * time.Millisecond), Now: Now}
	env.Repo = inmemdb.NewFinanceRepository(env.DB)
	deps.Repo = env.Repo
	deps.Clock = func() time.Time { return env.Now }
	env.Svc = finance.NewService(deps, opts)
	return env
}

func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func Student(id, class string) finance.StudentSnapshot {
	return finance.StudentSnapshot{
		ID:            id,
		Name:          "Student " + id,
		Class:         class,
		Section:       "A",
		GuardianName:  "Guardian of " + id,
		GuardianEmail: id + "@guardians.test",
		GuardianPhone: "+62811000" + id,
	}
}

func (env *Env) Today() time.Time {
	return finance.DateOf(env.Now)
}

func (env *Env) FeeType(t testing.TB, name string) finance.FeeType {
	t.Helper()
	ft, err := env.Svc.CreateFeeType(context.Background(), Admin, finance.NewFeeType{Name: name, Category: "academic"})
	if err != nil {
		t.Fatalf("FeeType() failed: %v", err)
	}
	return ft
}

// Structure creates a monthly structure due at the start of its periods.
func (env *Env) Structure(t testing.TB, feeTypeID, amount string, classes ...string) finance.FeeStructure {
	t.Helper()
	fs, err := env.Svc.CreateFeeStructure(context.Background(), Admin, finance.NewFeeStructure{
		FeeTypeID:    feeTypeID,
		AcademicYear: "2023-2024",
		Classes:      classes,
		Amount:       Dec(amount),
		Frequency:    finance.FrequencyMonthly,
	})
	if err != nil {
		t.Fatalf("Structure() failed: %v", err)
	}
	return fs
}

func (env *Env) Fee(t testing.TB, structureID string, student finance.StudentSnapshot, label string, due time.Time) finance.StudentFee {
	t.Helper()
	sf, err := env.Svc.Instantiate(context.Background(), Admin, finance.InstantiateFee{
		StructureID: structureID,
		Student:     student,
		Period:      finance.Period{Label: label, Start: due},
	})
	if err != nil {
		t.Fatalf("Fee() failed: %v", err)
	}
	return sf
}

// OverdueFee creates a fresh fee type, structure and obligation of `amount` for student, due daysOverdue days ago.
func (env *Env) OverdueFee(t testing.TB, amount string, student finance.StudentSnapshot, daysOverdue int) finance.StudentFee {
	t.Helper()
	ft := env.FeeType(t, fmt.Sprintf("Tuition %s %s %d", student.ID, amount, daysOverdue))
	fs := env.Structure(t, ft.ID, amount)
	return env.Fee(t, fs.ID, student, "2024-03", env.Today().AddDate(0, 0, -daysOverdue))
}

func (env *Env) Collect(t testing.TB, feeID, amount string) finance.CollectionResult {
	t.Helper()
	res, err := env.Svc.Collect(context.Background(), Admin, finance.CollectRequest{
		Lines: []finance.CollectLine{{StudentFeeID: feeID, Amount: Dec(amount)}},
		Mode:  finance.ModeCash,
	})
	if err != nil {
		t.Fatalf("Collect() failed: %v", err)
	}
	return res
}
