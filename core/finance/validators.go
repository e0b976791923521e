package finance

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/trezcool/bursar/core"
)

var (
	paymentModeTag  = "paymentmode"
	paymentModeText = "invalid payment mode"

	maxPercentTag  = "maxpercent"
	maxPercentText = "a percentage cannot exceed 100"

	validRangeTag  = "validrange"
	validRangeText = "valid_to must not be before valid_from"

	dueDatesLenTag  = "duedateslen"
	dueDatesLenText = "one due date is required per installment"

	ascendingTag  = "ascending"
	ascendingText = "due dates must be strictly increasing"

	positiveTag  = "positive"
	positiveText = "this field must be greater than 0"

	reservedCategoryTag  = "reservedcategory"
	reservedCategoryText = "this category is reserved"

	hundred = decimal.NewFromInt(100)
)

// NewValidate returns a validator with the core and finance validations registered.
func NewValidate(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	InitValidators(validate, translator)
	return validate
}

// InitValidators registers the finance validations on validate.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(paymentModeTag, paymentModeValidation)
	core.RegisterCustomTranslation(validate, translator, paymentModeTag, paymentModeText)

	validate.RegisterStructValidation(
		financeStructValidation,
		UpdateFeeStructure{}, NewDiscountRule{}, NewConcession{}, NewInstallmentPlan{}, NewExpense{},
	)
	core.RegisterCustomTranslation(validate, translator, maxPercentTag, maxPercentText)
	core.RegisterCustomTranslation(validate, translator, validRangeTag, validRangeText)
	core.RegisterCustomTranslation(validate, translator, dueDatesLenTag, dueDatesLenText)
	core.RegisterCustomTranslation(validate, translator, ascendingTag, ascendingText)
	core.RegisterCustomTranslation(validate, translator, positiveTag, positiveText)
	core.RegisterCustomTranslation(validate, translator, reservedCategoryTag, reservedCategoryText)
}

// Custom Validators

func paymentModeValidation(fl validator.FieldLevel) bool {
	mode := PaymentMode(fl.Field().String())
	for _, m := range PaymentModes {
		if m == mode {
			return true
		}
	}
	return false
}

// financeStructValidation does the cross-field checks of the finance requests.
func financeStructValidation(sl validator.StructLevel) {
	switch req := sl.Current().Interface().(type) {
	case UpdateFeeStructure:
		switch {
		case !req.Amount.Valid:
		case !req.Amount.Decimal.IsPositive():
			sl.ReportError(req.Amount, "amount", "Amount", positiveTag, "")
		case !core.IsMoney(req.Amount.Decimal):
			sl.ReportError(req.Amount, "amount", "Amount", core.MoneyTag, "")
		}
	case NewDiscountRule:
		validatePercentage(req.Kind, req.Value, sl)
		if !req.ValidTo.IsZero() && req.ValidTo.Before(req.ValidFrom) {
			sl.ReportError(req.ValidTo, "valid_to", "ValidTo", validRangeTag, "")
		}
	case NewConcession:
		validatePercentage(req.Kind, req.Value, sl)
	case NewInstallmentPlan:
		if len(req.DueDates) != req.Installments {
			sl.ReportError(req.DueDates, "due_dates", "DueDates", dueDatesLenTag, "")
			return
		}
		if !strictlyIncreasing(req.DueDates) {
			sl.ReportError(req.DueDates, "due_dates", "DueDates", ascendingTag, "")
		}
	case NewExpense:
		if req.Category == CategoryFeeCollection || req.Category == CategoryReversal {
			sl.ReportError(req.Category, "category", "Category", reservedCategoryTag, "")
		}
	}
}

func validatePercentage(kind ValueKind, value decimal.Decimal, sl validator.StructLevel) {
	if kind == KindPercentage && value.GreaterThan(hundred) {
		sl.ReportError(value, "value", "Value", maxPercentTag, "")
	}
}
