package finance

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Matches tells whether the rule targets sf on day `on`.
func (r DiscountRule) Matches(sf StudentFee, on time.Time) bool {
	if !r.IsActive {
		return false
	}
	on = DateOf(on)
	if !r.ValidFrom.IsZero() && on.Before(DateOf(r.ValidFrom)) {
		return false
	}
	if !r.ValidTo.IsZero() && on.After(DateOf(r.ValidTo)) {
		return false
	}
	if len(r.FeeTypeIDs) > 0 && !containsString(r.FeeTypeIDs, sf.FeeTypeID) {
		return false
	}
	if len(r.Classes) > 0 && !containsString(r.Classes, sf.Class) {
		return false
	}
	if len(r.StudentIDs) > 0 && !containsString(r.StudentIDs, sf.StudentID) {
		return false
	}
	return true
}

// valueOn returns the discount a percentage or fixed value is worth on `base`.
func valueOn(kind ValueKind, value, base decimal.Decimal) decimal.Decimal {
	if kind == KindPercentage {
		return base.Mul(value).Div(hundred).Round(2)
	}
	return value
}

// clamp bounds amount to [0, headroom].
func clamp(amount, headroom decimal.Decimal) decimal.Decimal {
	if headroom.IsNegative() {
		return decimal.Zero
	}
	return decimal.Min(amount, headroom)
}

// evaluateRules produces the rule discounts sf is entitled to on `today`.
// Amounts are clamped so that the running discount never breaks discount + paid <= total.
func evaluateRules(rules []DiscountRule, sf StudentFee, today time.Time, by string, at time.Time) []AppliedDiscount {
	var applied []AppliedDiscount
	headroom := sf.Headroom()
	for _, rule := range rules {
		if !headroom.IsPositive() {
			break
		}
		if !rule.Matches(sf, today) {
			continue
		}
		amount := clamp(valueOn(rule.Kind, rule.Value, sf.TotalAmount), headroom)
		if !amount.IsPositive() {
			continue
		}
		headroom = headroom.Sub(amount)
		applied = append(applied, AppliedDiscount{
			ID:           newID(),
			StudentFeeID: sf.ID,
			Source:       SourceRule,
			SourceID:     rule.ID,
			Amount:       amount,
			Reason:       rule.Name,
			CreatedBy:    by,
			CreatedAt:    at,
		})
	}
	return applied
}

// RecomputeDiscounts replaces the rule discounts of an obligation with those the active rules give today.
// Manual and concession discounts are kept.
func (svc *Service) RecomputeDiscounts(ctx context.Context, caller Caller, feeID string) (StudentFee, error) {
	if err := caller.mustBeAdmin("recomputing discounts"); err != nil {
		return StudentFee{}, err
	}
	rules, err := svc.repo.QueryDiscountRules(ctx, true)
	if err != nil {
		return StudentFee{}, err
	}

	var sf StudentFee
	err = svc.repo.RunInTx(ctx, func(tx Tx) error {
		fees, err := tx.LockStudentFees(ctx, feeID)
		if err != nil {
			return err
		}
		sf = fees[0]

		current, err := tx.QueryAppliedDiscounts(ctx, sf.ID)
		if err != nil {
			return err
		}
		for _, ad := range current {
			if ad.Source == SourceRule {
				sf.DiscountAmount = sf.DiscountAmount.Sub(ad.Amount)
			}
		}
		if err := tx.DeleteAppliedDiscounts(ctx, sf.ID, SourceRule); err != nil {
			return err
		}

		now := svc.timestamp()
		applied := evaluateRules(rules, sf, svc.today(), caller.ID, now)
		for _, ad := range applied {
			sf.DiscountAmount = sf.DiscountAmount.Add(ad.Amount)
		}
		sf.UpdatedAt = now
		sf.Refresh(svc.today())
		if err := tx.UpdateStudentFee(ctx, sf); err != nil {
			return err
		}
		if len(applied) == 0 {
			return nil
		}
		return tx.CreateAppliedDiscounts(ctx, applied...)
	})
	if err != nil {
		return StudentFee{}, err
	}
	return sf, nil
}

func (svc *Service) CreateDiscountRule(ctx context.Context, caller Caller, nr NewDiscountRule) (DiscountRule, error) {
	if err := caller.mustBeAdmin("creating discount rules"); err != nil {
		return DiscountRule{}, err
	}
	if err := nr.Validate(svc.validate); err != nil {
		return DiscountRule{}, err
	}

	rule := DiscountRule{
		ID:         newID(),
		Name:       nr.Name,
		Type:       nr.Type,
		FeeTypeIDs: nr.FeeTypeIDs,
		Classes:    nr.Classes,
		StudentIDs: nr.StudentIDs,
		Kind:       nr.Kind,
		Value:      nr.Value,
		IsActive:   true,
		ValidFrom:  nr.ValidFrom,
		ValidTo:    nr.ValidTo,
		CreatedAt:  svc.timestamp(),
	}
	if err := svc.repo.RunInTx(ctx, func(tx Tx) error { return tx.CreateDiscountRule(ctx, rule) }); err != nil {
		return DiscountRule{}, err
	}
	return rule, nil
}

func (svc *Service) ListDiscountRules(ctx context.Context, activeOnly bool) ([]DiscountRule, error) {
	return svc.repo.QueryDiscountRules(ctx, activeOnly)
}

// SetDiscountRuleActive toggles a rule. Existing applied discounts are left alone until recomputed.
func (svc *Service) SetDiscountRuleActive(ctx context.Context, caller Caller, id string, active bool) (DiscountRule, error) {
	if err := caller.mustBeAdmin("updating discount rules"); err != nil {
		return DiscountRule{}, err
	}

	var rule DiscountRule
	err := svc.repo.RunInTx(ctx, func(tx Tx) error {
		var err error
		if rule, err = tx.GetDiscountRule(ctx, id); err != nil {
			return err
		}
		rule.IsActive = active
		return tx.UpdateDiscountRule(ctx, rule)
	})
	if err != nil {
		return DiscountRule{}, err
	}
	svc.logger.Info(fmt.Sprintf("discount rule %s active=%t", id, active), caller)
	return rule, nil
}
