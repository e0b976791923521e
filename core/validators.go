package core

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/shopspring/decimal"
)

var (
	// custom validation tags & texts
	alphaNumUnderTag   = "alphanum_"
	alphaNumUnderText  = "only alphanumeric characters and underscores are allowed"
	alphaNumUnderRegex = regexp.MustCompile(`^[\w\s]+$`)

	notBlankTag  = "notblank"
	notBlankText = "this field cannot be blank"

	// MoneyTag validates amounts: `validate:"gt=0,money"`.
	MoneyTag  = "money"
	moneyText = "must be an amount with at most 2 decimal places, below 1,000,000,000,000"

	// MaxMoney bounds every amount; stored amounts are numeric(14, 2).
	MaxMoney = decimal.New(1, 12)

	requiredTag     = "required"
	requiredWithTag = "required_with"
	requiredText    = "this field is required"
)

// NewTranslator returns the english translator used for validation messages.
func NewTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

// InitValidators instantiates the validator for use.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// amounts are validated like numbers: `validate:"gt=0"`
	validate.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})

	// register custom validators
	_ = validate.RegisterValidation(alphaNumUnderTag, alphaNumUnderValidation)
	RegisterCustomTranslation(validate, translator, alphaNumUnderTag, alphaNumUnderText)

	_ = validate.RegisterValidation(notBlankTag, notBlankValidation)
	RegisterCustomTranslation(validate, translator, notBlankTag, notBlankText)

	_ = validate.RegisterValidation(MoneyTag, moneyValidation)
	RegisterCustomTranslation(validate, translator, MoneyTag, moneyText)

	RegisterCustomTranslation(validate, translator, requiredTag, requiredText, true)
	RegisterCustomTranslation(validate, translator, requiredWithTag, requiredText, true)
}

// RegisterCustomTranslation registers a custom translation for the specified validation tag.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

func decimalValue(field reflect.Value) interface{} {
	if d, ok := field.Interface().(decimal.Decimal); ok {
		f, _ := d.Float64()
		return f
	}
	return nil
}

// Custom Global Validators

// alphaNumUnderValidation only allows alphanumeric characters and underscores.
func alphaNumUnderValidation(fl validator.FieldLevel) bool {
	return alphaNumUnderRegex.MatchString(fl.Field().String())
}

func notBlankValidation(fl validator.FieldLevel) bool {
	if str, ok := fl.Field().Interface().(string); ok {
		return strings.TrimSpace(str) != ""
	}
	return false
}

// IsMoney reports whether d has at most 2 decimal places and stays strictly below MaxMoney.
func IsMoney(d decimal.Decimal) bool {
	return d.Equal(d.Round(2)) && d.Abs().LessThan(MaxMoney)
}

func moneyValidation(fl validator.FieldLevel) bool {
	d, ok := decimalField(fl)
	return ok && IsMoney(d)
}

// decimalField reads the original decimal of fl: the registered custom type hands
// validations a float64, which cannot be trusted with the scale.
func decimalField(fl validator.FieldLevel) (decimal.Decimal, bool) {
	if parent := reflect.Indirect(fl.Parent()); parent.Kind() == reflect.Struct {
		if f := parent.FieldByName(fl.StructFieldName()); f.IsValid() && f.CanInterface() {
			if d, ok := f.Interface().(decimal.Decimal); ok {
				return d, true
			}
		}
	}
	if fl.Field().Kind() == reflect.Float64 {
		return decimal.NewFromFloat(fl.Field().Float()), true
	}
	return decimal.Decimal{}, false
}
