package finance_test

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/bursar/core/finance"
	testutil "github.com/trezcool/bursar/tests"
)

type fakeNotifier struct {
	mu   sync.Mutex
	sent []finance.Reminder
	err  error
}

func (n *fakeNotifier) Notify(_ context.Context, r finance.Reminder) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, r)
	return nil
}

func TestService_SendReminders(t *testing.T) {
	email, sms := &fakeNotifier{}, &fakeNotifier{err: errors.New("gateway down")}
	env := testutil.NewEnv(t, finance.Deps{
		Notifiers: map[string]finance.Notifier{"email": email, "sms": sms},
	}, finance.Options{})
	ctx := context.Background()

	for _, ne := range []finance.NewEscalationRule{
		{ThresholdDays: 1, Channel: "Email", Template: "gentle"},
		{ThresholdDays: 15, Channel: "sms", Template: "firm"},
		{ThresholdDays: 30, Channel: "whatsapp", Template: "final"},
	} {
		_, err := env.Svc.CreateEscalationRule(ctx, admin, ne)
		require.NoError(t, err)
	}
	_, err := env.Svc.CreateEscalationRule(ctx, admin, finance.NewEscalationRule{ThresholdDays: 15, Channel: "email", Template: "dup"})
	assert.Equal(t, finance.KindValidation, finance.Kind(err))

	gentle := env.OverdueFee(t, "100", testutil.Student("s1", "5"), 3)
	firm := env.OverdueFee(t, "200", testutil.Student("s2", "5"), 20)
	final := env.OverdueFee(t, "300", testutil.Student("s3", "5"), 45)
	env.OverdueFee(t, "400", testutil.Student("s4", "5"), 0) // due today
	paid := env.OverdueFee(t, "500", testutil.Student("s5", "5"), 10)
	env.Collect(t, paid.ID, "500")

	report, err := env.Svc.SendReminders(ctx, admin, nil)
	require.NoError(t, err)
	assert.Equal(t, finance.RemindReport{Sent: 1, Failed: 2}, report)
	require.Len(t, email.sent, 1)
	assert.Equal(t, gentle.ID, email.sent[0].Fee.ID)
	assert.Equal(t, 3, email.sent[0].DaysOverdue)
	assertDec(t, "100", email.sent[0].RemainingDue)

	logs, err := env.Svc.ListReminderLogs(ctx, admin, firm.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, finance.ReminderFailed, logs[0].Status)
	assert.Equal(t, "gateway down", logs[0].Error)

	logs, err = env.Svc.ListReminderLogs(ctx, admin, final.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Contains(t, logs[0].Error, "unknown channel")

	// same day: the sent reminder is skipped, the failed ones are retried
	report, err = env.Svc.SendReminders(ctx, admin, nil)
	require.NoError(t, err)
	assert.Equal(t, finance.RemindReport{Skipped: 1, Failed: 2}, report)

	// next day: reminded again
	env.Now = env.Now.AddDate(0, 0, 1)
	report, err = env.Svc.SendReminders(ctx, admin, []string{"s1"})
	require.NoError(t, err)
	assert.Equal(t, finance.RemindReport{Sent: 1}, report)
	assert.Len(t, email.sent, 2)
}

func TestService_SendReminders_rejects(t *testing.T) {
	env := newEnv(t)
	_, err := env.Svc.SendReminders(context.Background(), testutil.Guardian("g1", "s1"), nil)
	assert.Equal(t, finance.KindForbidden, finance.Kind(err))

	// no rules: nothing to do
	env.OverdueFee(t, "100", testutil.Student("s1", "5"), 3)
	report, err := env.Svc.SendReminders(context.Background(), admin, nil)
	require.NoError(t, err)
	assert.Equal(t, finance.RemindReport{}, report)
}

func TestService_DeleteEscalationRule(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	rule, err := env.Svc.CreateEscalationRule(ctx, admin, finance.NewEscalationRule{ThresholdDays: 7, Channel: "email", Template: "gentle"})
	require.NoError(t, err)
	assert.Equal(t, "email", rule.Channel)

	require.NoError(t, env.Svc.DeleteEscalationRule(ctx, admin, rule.ID))
	rules, err := env.Svc.ListEscalationRules(ctx)
	require.NoError(t, err)
	assert.Empty(t, rules)

	err = env.Svc.DeleteEscalationRule(ctx, admin, rule.ID)
	assert.Equal(t, finance.KindNotFound, finance.Kind(err))
}
