package finance

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/trezcool/bursar/core"
)

// NewFeeType contains information needed to create a new FeeType.
type NewFeeType struct {
	Name     string `json:"name" validate:"required,notblank,max=100"`
	Category string `json:"category" validate:"required,notblank,max=50"`
}

func (nf *NewFeeType) Validate(validate *validator.Validate) error {
	nf.Name = core.CleanString(nf.Name)
	nf.Category = core.CleanString(nf.Category, true)
	return validate.Struct(nf)
}

// UpdateFeeType defines what may change on a FeeType. Empty fields are left untouched.
type UpdateFeeType struct {
	Name     string `json:"name" validate:"omitempty,notblank,max=100"`
	Category string `json:"category" validate:"omitempty,notblank,max=50"`
	IsActive *bool  `json:"is_active"`
}

func (uf *UpdateFeeType) Validate(validate *validator.Validate) error {
	uf.Name = core.CleanString(uf.Name)
	uf.Category = core.CleanString(uf.Category, true)
	return validate.Struct(uf)
}

type NewFeeStructure struct {
	FeeTypeID    string          `json:"fee_type_id" validate:"required"`
	AcademicYear string          `json:"academic_year" validate:"required,notblank,max=20"`
	Classes      []string        `json:"classes" validate:"omitempty,unique,dive,notblank"`
	Amount       decimal.Decimal `json:"amount" validate:"gt=0,money"`
	Frequency    FeeFrequency    `json:"frequency" validate:"required,oneof=one_time monthly term annual"`
	DueDay       int             `json:"due_day" validate:"min=0,max=31"`
	IsOptional   bool            `json:"is_optional"`
}

func (ns *NewFeeStructure) Validate(validate *validator.Validate) error {
	ns.AcademicYear = core.CleanString(ns.AcademicYear)
	ns.Classes = core.CleanStrings(ns.Classes)
	return validate.Struct(ns)
}

// UpdateFeeStructure never touches obligations already instantiated from the structure.
type UpdateFeeStructure struct {
	Amount     decimal.NullDecimal `json:"amount"`
	Classes    []string            `json:"classes" validate:"omitempty,unique,dive,notblank"`
	DueDay     *int                `json:"due_day" validate:"omitempty,min=0,max=31"`
	IsOptional *bool               `json:"is_optional"`
	IsActive   *bool               `json:"is_active"`
}

func (us *UpdateFeeStructure) Validate(validate *validator.Validate) error {
	us.Classes = core.CleanStrings(us.Classes)
	return validate.Struct(us)
}

type InstantiateFee struct {
	StructureID string          `json:"structure_id" validate:"required"`
	Student     StudentSnapshot `json:"student"`
	Period      Period          `json:"period"`
}

func (in *InstantiateFee) Validate(validate *validator.Validate) error {
	in.Student.clean()
	in.Period.Label = core.CleanString(in.Period.Label)
	return validate.Struct(in)
}

type AssignStructure struct {
	Students []StudentSnapshot `json:"students" validate:"required,min=1,max=1000,unique=ID,dive"`
	Period   Period            `json:"period"`
}

func (as *AssignStructure) Validate(validate *validator.Validate) error {
	for i := range as.Students {
		as.Students[i].clean()
	}
	as.Period.Label = core.CleanString(as.Period.Label)
	return validate.Struct(as)
}

func (ss *StudentSnapshot) clean() {
	ss.ID = core.CleanString(ss.ID)
	ss.Name = core.CleanString(ss.Name)
	ss.Class = core.CleanString(ss.Class)
	ss.Section = core.CleanString(ss.Section)
	ss.GuardianName = core.CleanString(ss.GuardianName)
	ss.GuardianEmail = core.CleanString(ss.GuardianEmail, true)
	ss.GuardianPhone = core.CleanString(ss.GuardianPhone)
}

// NewDiscount is a manual discount on one obligation.
type NewDiscount struct {
	Amount decimal.Decimal `json:"amount" validate:"gt=0,money"`
	Reason string          `json:"reason" validate:"required,notblank,max=255"`
}

func (nd *NewDiscount) Validate(validate *validator.Validate) error {
	nd.Reason = core.CleanString(nd.Reason)
	return validate.Struct(nd)
}

type CollectLine struct {
	StudentFeeID string          `json:"student_fee_id" validate:"required"`
	Amount       decimal.Decimal `json:"amount" validate:"gt=0,money"`
}

type CollectRequest struct {
	Lines          []CollectLine `json:"lines" validate:"required,min=1,max=50,unique=StudentFeeID,dive"`
	Mode           PaymentMode   `json:"mode" validate:"required,paymentmode"`
	TransactionRef string        `json:"transaction_ref" validate:"max=100"`
	Remarks        string        `json:"remarks" validate:"max=255"`
}

func (cr *CollectRequest) Validate(validate *validator.Validate) error {
	for i := range cr.Lines {
		cr.Lines[i].StudentFeeID = core.CleanString(cr.Lines[i].StudentFeeID)
	}
	cr.Mode = PaymentMode(core.CleanString(string(cr.Mode), true))
	cr.TransactionRef = core.CleanString(cr.TransactionRef)
	cr.Remarks = core.CleanString(cr.Remarks)
	return validate.Struct(cr)
}

type NewDiscountRule struct {
	Name       string           `json:"name" validate:"required,notblank,max=100"`
	Type       DiscountRuleType `json:"type" validate:"required,oneof=merit sibling staff_child hardship early_bird other"`
	FeeTypeIDs []string         `json:"fee_type_ids" validate:"omitempty,unique"`
	Classes    []string         `json:"classes" validate:"omitempty,unique"`
	StudentIDs []string         `json:"student_ids" validate:"omitempty,unique"`
	Kind       ValueKind        `json:"kind" validate:"required,oneof=percentage fixed"`
	Value      decimal.Decimal  `json:"value" validate:"gt=0,money"`
	ValidFrom  time.Time        `json:"valid_from"`
	ValidTo    time.Time        `json:"valid_to"`
}

func (nr *NewDiscountRule) Validate(validate *validator.Validate) error {
	nr.Name = core.CleanString(nr.Name)
	nr.FeeTypeIDs = core.CleanStrings(nr.FeeTypeIDs)
	nr.Classes = core.CleanStrings(nr.Classes)
	nr.StudentIDs = core.CleanStrings(nr.StudentIDs)
	return validate.Struct(nr)
}

type NewConcession struct {
	StudentID  string          `json:"student_id" validate:"required"`
	FeeTypeIDs []string        `json:"fee_type_ids" validate:"required,min=1,unique,dive,required"`
	Kind       ValueKind       `json:"kind" validate:"required,oneof=percentage fixed"`
	Value      decimal.Decimal `json:"value" validate:"gt=0,money"`
	Reason     string          `json:"reason" validate:"required,notblank,max=500"`
}

func (nc *NewConcession) Validate(validate *validator.Validate) error {
	nc.StudentID = core.CleanString(nc.StudentID)
	nc.FeeTypeIDs = core.CleanStrings(nc.FeeTypeIDs)
	nc.Reason = core.CleanString(nc.Reason)
	return validate.Struct(nc)
}

type RejectConcession struct {
	Reason string `json:"reason" validate:"required,notblank,max=500"`
}

func (rc *RejectConcession) Validate(validate *validator.Validate) error {
	rc.Reason = core.CleanString(rc.Reason)
	return validate.Struct(rc)
}

type NewInstallmentPlan struct {
	StructureID  string      `json:"structure_id" validate:"required"`
	StudentFeeID string      `json:"student_fee_id"`
	Installments int         `json:"installments" validate:"min=1,max=36"`
	DueDates     []time.Time `json:"due_dates" validate:"required"`
}

func (np *NewInstallmentPlan) Validate(validate *validator.Validate) error {
	for i := range np.DueDates {
		np.DueDates[i] = DateOf(np.DueDates[i])
	}
	return validate.Struct(np)
}

type NewEscalationRule struct {
	ThresholdDays int    `json:"threshold_days" validate:"min=0,max=3650"`
	Channel       string `json:"channel" validate:"required,notblank,max=20"`
	Template      string `json:"template" validate:"required,notblank,max=50"`
	Message       string `json:"message" validate:"max=500"`
}

func (ne *NewEscalationRule) Validate(validate *validator.Validate) error {
	ne.Channel = core.CleanString(ne.Channel, true)
	ne.Template = core.CleanString(ne.Template)
	ne.Message = core.CleanString(ne.Message)
	return validate.Struct(ne)
}

type NewExpense struct {
	Category        string          `json:"category" validate:"required,notblank,max=50"`
	Amount          decimal.Decimal `json:"amount" validate:"gt=0,money"`
	Description     string          `json:"description" validate:"required,notblank,max=255"`
	ReferenceID     string          `json:"reference_id" validate:"max=100"`
	ReferenceNumber string          `json:"reference_number" validate:"max=100"`
	Date            time.Time       `json:"date"` // zero: today
}

func (ne *NewExpense) Validate(validate *validator.Validate) error {
	ne.Category = core.CleanString(ne.Category, true)
	ne.Description = core.CleanString(ne.Description)
	ne.ReferenceID = core.CleanString(ne.ReferenceID)
	ne.ReferenceNumber = core.CleanString(ne.ReferenceNumber)
	return validate.Struct(ne)
}

type ReverseEntry struct {
	Reason string `json:"reason" validate:"required,notblank,max=255"`
}

func (re *ReverseEntry) Validate(validate *validator.Validate) error {
	re.Reason = core.CleanString(re.Reason)
	return validate.Struct(re)
}

type NewGatewayOrder struct {
	Lines []CollectLine `json:"lines" validate:"required,min=1,max=50,unique=StudentFeeID,dive"`
}

func (no *NewGatewayOrder) Validate(validate *validator.Validate) error {
	for i := range no.Lines {
		no.Lines[i].StudentFeeID = core.CleanString(no.Lines[i].StudentFeeID)
	}
	return validate.Struct(no)
}
