package finance

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

type RemindReport struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"` // already reminded today at the same level
}

// selectRule picks the rule with the largest threshold <= daysOverdue. rules are sorted ascending.
func selectRule(rules []EscalationRule, daysOverdue int) (EscalationRule, bool) {
	var (
		picked EscalationRule
		found  bool
	)
	for _, rule := range rules {
		if rule.ThresholdDays > daysOverdue {
			break
		}
		picked, found = rule, true
	}
	return picked, found
}

func (svc *Service) CreateEscalationRule(ctx context.Context, caller Caller, ne NewEscalationRule) (EscalationRule, error) {
	if err := caller.mustBeAdmin("creating escalation rules"); err != nil {
		return EscalationRule{}, err
	}
	if err := ne.Validate(svc.validate); err != nil {
		return EscalationRule{}, err
	}

	rule := EscalationRule{
		ID:            newID(),
		ThresholdDays: ne.ThresholdDays,
		Channel:       ne.Channel,
		Template:      ne.Template,
		Message:       ne.Message,
		CreatedAt:     svc.timestamp(),
	}
	err := svc.repo.RunInTx(ctx, func(tx Tx) error { return tx.CreateEscalationRule(ctx, rule) })
	if errors.Is(err, ErrDuplicate) {
		return EscalationRule{}, fieldError("threshold_days", "a rule for %d days overdue already exists", rule.ThresholdDays)
	}
	if err != nil {
		return EscalationRule{}, err
	}
	return rule, nil
}

func (svc *Service) ListEscalationRules(ctx context.Context) ([]EscalationRule, error) {
	return svc.repo.QueryEscalationRules(ctx)
}

func (svc *Service) DeleteEscalationRule(ctx context.Context, caller Caller, id string) error {
	if err := caller.mustBeAdmin("deleting escalation rules"); err != nil {
		return err
	}
	return svc.repo.RunInTx(ctx, func(tx Tx) error { return tx.DeleteEscalationRule(ctx, id) })
}

// SendReminders reminds the guardians of every outstanding obligation of studentIDs
// (every student when empty) through the channel of the matching escalation rule.
// Every attempt is logged; a failing channel never stops the run.
func (svc *Service) SendReminders(ctx context.Context, caller Caller, studentIDs []string) (RemindReport, error) {
	if err := caller.mustBeAdmin("sending reminders"); err != nil {
		return RemindReport{}, err
	}

	var report RemindReport
	rules, err := svc.repo.QueryEscalationRules(ctx)
	if err != nil || len(rules) == 0 {
		return report, err
	}
	dues, err := svc.outstanding(ctx, caller, OutstandingFilter{StudentIDs: studentIDs})
	if err != nil {
		return report, err
	}

	today := svc.today()
	for _, due := range dues {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		rule, ok := selectRule(rules, due.DaysOverdue)
		if !ok {
			continue
		}
		sent, err := svc.repo.QueryReminderLogs(ctx, ReminderLogFilter{
			StudentFeeID: due.ID,
			RuleID:       rule.ID,
			Status:       ReminderSent,
			Since:        today,
		})
		if err != nil {
			return report, err
		}
		if len(sent) > 0 {
			report.Skipped++
			continue
		}

		log := ReminderLog{
			ID:           newID(),
			StudentFeeID: due.ID,
			StudentID:    due.StudentID,
			RuleID:       rule.ID,
			Channel:      rule.Channel,
			DaysOverdue:  due.DaysOverdue,
			Status:       ReminderSent,
		}
		if err := svc.dispatch(ctx, rule, due); err != nil {
			log.Status, log.Error = ReminderFailed, err.Error()
			report.Failed++
			svc.logger.Warn(fmt.Sprintf("reminder for student fee %s via %s failed", due.ID, rule.Channel), err)
		} else {
			report.Sent++
		}
		log.SentAt = svc.timestamp()
		if err := svc.repo.RunInTx(ctx, func(tx Tx) error { return tx.CreateReminderLog(ctx, log) }); err != nil {
			return report, err
		}
	}
	svc.logger.Info(fmt.Sprintf("reminders: %d sent, %d failed, %d skipped", report.Sent, report.Failed, report.Skipped))
	return report, nil
}

func (svc *Service) dispatch(ctx context.Context, rule EscalationRule, due OutstandingDue) error {
	notifier, ok := svc.notifiers[rule.Channel]
	if !ok {
		return errors.Errorf("unknown channel %q", rule.Channel)
	}
	return notifier.Notify(ctx, Reminder{
		Fee:          due.StudentFee,
		Rule:         rule,
		DaysOverdue:  due.DaysOverdue,
		RemainingDue: due.RemainingDue,
	})
}

func (svc *Service) ListReminderLogs(ctx context.Context, caller Caller, feeID string) ([]ReminderLog, error) {
	if _, err := svc.GetStudentFee(ctx, caller, feeID); err != nil {
		return nil, err
	}
	return svc.repo.QueryReminderLogs(ctx, ReminderLogFilter{StudentFeeID: feeID})
}
