package notifysvc_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appfs "github.com/trezcool/bursar/assets"
	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/finance"
	emailsvc "github.com/trezcool/bursar/services/email"
	notifysvc "github.com/trezcool/bursar/services/notify"
	testutil "github.com/trezcool/bursar/tests"
)

var conf = &core.Config{AppName: "Bursar", Email: core.EmailConfig{DefaultFromAddress: "accounts@school.test"}}

func reminder(email, phone string) finance.Reminder {
	return finance.Reminder{
		Fee: finance.StudentFee{
			ID:            "sf1",
			StudentName:   "Tom",
			Class:         "5",
			GuardianName:  "Jane",
			GuardianEmail: email,
			GuardianPhone: phone,
			FeeTypeName:   "Tuition",
			Period:        "2024-03",
			DueDate:       time.Date(2024, time.March, 3, 0, 0, 0, 0, time.UTC),
		},
		Rule:         finance.EscalationRule{Channel: "email", Template: "reminder", Message: "Call us if needed."},
		DaysOverdue:  12,
		RemainingDue: testutil.Dec("12500.5"),
	}
}

func TestEmailChannel_Notify(t *testing.T) {
	core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, core.NopLogger{})
	emails := emailsvc.NewConsoleServiceMock(conf)
	ch := notifysvc.NewEmailChannel(emails, "Rs.")

	require.NoError(t, ch.Notify(context.Background(), reminder("jane@guardians.test", "")))
	sent := emails.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "jane@guardians.test", sent[0].To[0].Address)
	assert.Equal(t, "Tuition fee reminder for Tom", sent[0].Subject)
	assert.Contains(t, sent[0].TextContent, "Rs. 12,500.50")
	assert.Contains(t, sent[0].TextContent, "due on Mar 3, 2024")
	assert.Contains(t, sent[0].TextContent, "Call us if needed.")

	err := ch.Notify(context.Background(), reminder("", "+62811"))
	assert.Error(t, err)

	r := reminder("jane@guardians.test", "")
	r.Rule.Template = "missing"
	assert.Error(t, ch.Notify(context.Background(), r))
}

func TestEmailChannel_NotifyReceipt(t *testing.T) {
	core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, core.NopLogger{})
	emails := emailsvc.NewConsoleServiceMock(conf)
	ch := notifysvc.NewEmailChannel(emails, "Rs.")

	rcpt := finance.Receipt{
		Number:      "RCP-2024-000042",
		StudentName: "Tom",
		TotalAmount: testutil.Dec("3000"),
		Mode:        finance.ModeUPI,
		CreatedAt:   testutil.Now,
		Lines: []finance.ReceiptLine{
			{FeeTypeName: "Tuition", Period: "2024-03", Amount: testutil.Dec("2000")},
			{FeeTypeName: "Transport", Period: "2024-03", Amount: testutil.Dec("1000")},
		},
	}
	require.NoError(t, ch.NotifyReceipt(context.Background(), rcpt, testutil.Student("s1", "5")))
	sent := emails.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "Payment receipt RCP-2024-000042", sent[0].Subject)
	assert.Contains(t, sent[0].TextContent, "We received Rs. 3,000.00 for Tom by upi.")
	assert.Contains(t, sent[0].TextContent, "- Transport: Rs. 1,000.00")
	assert.Contains(t, sent[0].HTMLContent, "<li>Tuition: Rs. 2,000.00</li>")

	// no email address: silently skipped
	require.NoError(t, ch.NotifyReceipt(context.Background(), rcpt, finance.StudentSnapshot{ID: "s2"}))
	assert.Len(t, emails.SentMessages(), 1)
}

func TestConsoleSMSChannel_Notify(t *testing.T) {
	ch := notifysvc.NewConsoleSMSChannel(core.NopLogger{}, "Rs.")

	require.NoError(t, ch.Notify(context.Background(), reminder("", "+62811000")))
	assert.Error(t, ch.Notify(context.Background(), reminder("jane@guardians.test", "")))

	sent := ch.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "+62811000", sent[0].To)
	assert.Equal(t, "Tuition (2024-03) for Tom is 12 day(s) overdue: Rs. 12,500.50 due. Call us if needed.", sent[0].Body)
}
