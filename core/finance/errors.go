package finance

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/bursar/core"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidDiscount     = errors.New("invalid discount")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrForbidden           = errors.New("permission denied")
	// ErrDuplicate is returned by repositories when a unique key is violated.
	ErrDuplicate = errors.New("already exists")
)

type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func notFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// ExceedsDueError rejects a collection line paying more than what is left on the obligation.
type ExceedsDueError struct {
	Line         int // 0-based index in the request
	StudentFeeID string
	Amount       decimal.Decimal
	RemainingDue decimal.Decimal
}

func (e *ExceedsDueError) Error() string {
	return fmt.Sprintf("line %d: amount %s exceeds remaining due %s of student fee %q",
		e.Line, e.Amount.String(), e.RemainingDue.String(), e.StudentFeeID)
}

type InvalidStateError struct {
	Entity string
	ID     string
	State  string
	Action string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s %s %q: %s", e.Action, e.Entity, e.ID, e.State)
}

type ErrorKind string

const (
	KindInternal            ErrorKind = "internal"
	KindNotFound            ErrorKind = "not_found"
	KindExceedsDue          ErrorKind = "exceeds_due"
	KindInvalidState        ErrorKind = "invalid_state"
	KindInvalidDiscount     ErrorKind = "invalid_discount"
	KindValidation          ErrorKind = "validation"
	KindConcurrencyConflict ErrorKind = "concurrency_conflict"
	KindForbidden           ErrorKind = "forbidden"
	KindDuplicate           ErrorKind = "duplicate"
)

// Kind classifies err for the transport layers.
func Kind(err error) ErrorKind {
	var (
		exceeds *ExceedsDueError
		invalid *InvalidStateError
		verrs   validator.ValidationErrors
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.As(err, &exceeds):
		return KindExceedsDue
	case errors.As(err, &invalid):
		return KindInvalidState
	case errors.Is(err, ErrInvalidDiscount):
		return KindInvalidDiscount
	case errors.Is(err, ErrConcurrencyConflict):
		return KindConcurrencyConflict
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrDuplicate):
		return KindDuplicate
	case core.IsValidationError(err), errors.As(err, &verrs):
		return KindValidation
	default:
		return KindInternal
	}
}

func fieldError(field, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	return core.NewValidationError(errors.New(field+": "+msg), core.FieldError{Field: field, Error: msg})
}
