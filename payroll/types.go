/*
Package payroll computes a single employee's monthly payroll.

PURPOSE:
  This package contains the domain model and the calculation pipeline for
  one employee/period pair: gross pay built from layered, configurable pay
  elements, leave-driven day accounting, statutory insurance and tax
  withholdings, and the final net amount.

KEY CONCEPTS IN THIS FILE (types.go):
  - Element / Context: A configurable salary component (fixed value or
    formula), optionally overridden for a specific institution, org
    structure, org group, or pay grade scope
  - ElementRef: A resolved element-or-context pair evaluated by the stages
  - Enrollment: One employee in one position, with its per-period
    collections (working days, leaves, overtime, supplements, deductions)
  - Payroll: The aggregate result with day counts, totals, and line items
  - LineItem: One evaluated element's outcome on the payroll

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point errors;
     every intermediate monetary value is rounded half away from zero
     to the currency's minor unit (see money.go)
  2. Purity: The pipeline mutates only its per-run state; collaborators
     (repositories, providers, the formula evaluator) are interfaces
  3. Strict order: Stages run in a fixed sequence; each stage consumes
     factors produced by earlier stages (see factors.go)

SEE ALSO:
  - factors.go: The per-run factor accumulator (formula namespace)
  - calculator.go: The orchestrator sequencing all stages
  - providers.go: External collaborator contracts
*/
package payroll

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// GENERAL PARAMETERS - Period-independent statutory constants
// =============================================================================

// GeneralParameters holds the statutory norms every calculation scales
// against: how many working days a standard month has and how many working
// hours a standard day has.
type GeneralParameters struct {
	DaysPerMonth int
	HoursPerDay  int
}

// =============================================================================
// PAY PERIOD - Institution-scoped year/month
// =============================================================================

// Period identifies one institution's pay period. A payroll may not be
// calculated or modified once its period is approved.
type Period struct {
	Key           string
	InstitutionID string
	Year          int
	Month         time.Month
	Approved      bool
}

// Start returns the first day of the period.
func (p Period) Start() Date { return NewDate(p.Year, p.Month, 1) }

// NextStart returns the first day of the following period. Day-range scans
// over the period iterate [Start, NextStart).
func (p Period) NextStart() Date { return p.Start().AddMonths(1) }

// End returns the last day of the period.
func (p Period) End() Date { return p.NextStart().AddDays(-1) }

// InstitutionBatch is the institution-wide payroll run for a period. Once
// approved, no individual payroll inside it may be recalculated.
type InstitutionBatch struct {
	InstitutionID string
	PeriodKey     string
	Approved      bool
	Period        *Period
}

// Holiday is an institutional non-working day inside a period.
type Holiday struct {
	Day  Date
	Name string
}

// =============================================================================
// EMPLOYEE / ENROLLMENT
// =============================================================================

type Bank struct {
	Key  string
	Name string
}

type Employee struct {
	Key         string
	FirstName   string
	LastName    string
	SSN         string
	DateOfBirth Date
	BankAccount string
	Bank        *Bank
}

type Position struct {
	Key            string
	Name           string
	PayGradeID     string
	OrgStructureID string
	OrgGroupID     string
}

// LeaveType classifies leave records. Socially insured types drive the
// leave adjustment stage; non-payable types withhold pay for the day.
type LeaveType struct {
	Key             string
	Name            string
	Payable         bool
	SociallyInsured bool
	MaxDays         int
	Percentage      decimal.Decimal
	AccountingCode  string
}

// Leave is one day of leave for an enrollment.
type Leave struct {
	Key    string
	Day    Date
	Type   *LeaveType
	Active bool
	Audit  Audit
}

// WorkDay is a working-day override: a day whose hours were logged
// explicitly, payable or not.
type WorkDay struct {
	Key     string
	Day     Date
	Payable bool
	Hours   decimal.Decimal
	Audit   Audit
}

// OvertimeRecord is a day of overtime hours for an enrollment.
type OvertimeRecord struct {
	Key   string
	Day   Date
	Hours decimal.Decimal
	Audit Audit
}

// PersonalElement attaches a pay element to one employee with a
// user-entered value. Used for supplements and deductions.
type PersonalElement struct {
	Key     string
	Element *Element
	Value   decimal.Decimal
	Audit   Audit
}

// Enrollment identifies one employee in one position. Its collections are
// cleared and reloaded from the enrollment repository at the start of each
// calculation, never left partially stale.
type Enrollment struct {
	Key      string
	Employee *Employee
	Position *Position

	StartFrom Date
	EndTo     *Date // nil = open-ended employment

	Contracted      bool
	ContractedHours int

	WorkDays    []*WorkDay
	Leaves      []*Leave
	Overtime    []*OvertimeRecord
	Supplements []*PersonalElement
	Deductions  []*PersonalElement
}

// ClearCollections drops all per-period collections ahead of a reload.
func (e *Enrollment) ClearCollections() {
	e.WorkDays = nil
	e.Leaves = nil
	e.Overtime = nil
	e.Supplements = nil
	e.Deductions = nil
}

// =============================================================================
// PAY ELEMENTS - Configurable salary/deduction/insurance components
// =============================================================================

// Kind is the element type category. The numeric values are load-bearing:
// the salary build stages admit elements by numeric range (see stages.go).
type Kind int

const (
	KindBaseSalary          Kind = 1
	KindInstitutionSalary   Kind = 2
	KindStructureSalary     Kind = 3
	KindIncomeTax           Kind = 4
	KindSocialInsurance     Kind = 5
	KindHealthInsurance     Kind = 6
	KindAdditionalInsurance Kind = 7
	KindSupplement          Kind = 8
	KindDeduction           Kind = 9
)

// Reserved element codes with special handling in the statutory stages.
const (
	// CodeIncomeTax marks the tax element whose formula consumes the
	// private-insurance and blind-exemption factors.
	CodeIncomeTax = "E8"

	// CodeVoluntaryInsurance marks the personal deduction capped by the
	// age-dependent private-insurance ceiling before entering the tax base.
	CodeVoluntaryInsurance = "VI"

	// CodeBlindExemption marks the personal deduction that zeroes income
	// tax when set to 1.
	CodeBlindExemption = "BE"
)

// Element is a named salary/deduction/insurance/tax definition: either a
// fixed user-entered value or a formula evaluated against the factor
// namespace.
type Element struct {
	Key  string
	Code string // short code cached into the factor namespace
	Name string
	Kind Kind

	Active                 bool
	UserDefined            bool // fixed value instead of formula
	Taxable                bool
	Insured                bool
	EmployerBorne          bool
	BasedOnWorkingDays     bool
	BasedOnContractedHours bool
	IncludedInLeaveBase    bool
	ContextOnly            bool // evaluated only through scoped contexts
	InPayrollDetail        bool // detailed-payroll rows skip the deduction totals

	Value     *decimal.Decimal
	Formula   string
	Procedure string

	AccountingCode string
	Version        int
}

// Context is a scope-specific override of an Element for an institution /
// org-structure / org-group / pay-grade combination. Several contexts may
// match one element; specificity decides (see resolver.go).
type Context struct {
	Key     string
	Element *Element

	InstitutionID  string
	OrgStructureID string
	OrgGroupID     string
	PayGradeID     string

	Active                 bool
	UserDefined            bool
	Taxable                bool
	Insured                bool
	EmployerBorne          bool
	BasedOnContractedHours bool

	Value     *decimal.Decimal
	Formula   string
	Procedure string

	Version int
}

// ElementRef is the tagged variant the evaluator works on: a plain element,
// or an element seen through one scoped context. Resolved once at lookup
// time so the stages never branch on runtime types.
type ElementRef struct {
	Element *Element
	Context *Context // nil for a plain element
}

func PlainRef(el *Element) ElementRef { return ElementRef{Element: el} }

func ScopedRef(cx *Context) ElementRef { return ElementRef{Element: cx.Element, Context: cx} }

func (r ElementRef) Scoped() bool { return r.Context != nil }

// Active reports whether both the element and, when scoped, the context
// are active.
func (r ElementRef) Active() bool {
	if r.Scoped() && !r.Context.Active {
		return false
	}
	return r.Element.Active
}

// The evaluation-facing flags come from the context when scoped; the
// identity and day-scaling flags always come from the element.

func (r ElementRef) UserDefined() bool {
	if r.Scoped() {
		return r.Context.UserDefined
	}
	return r.Element.UserDefined
}

func (r ElementRef) Taxable() bool {
	if r.Scoped() {
		return r.Context.Taxable
	}
	return r.Element.Taxable
}

func (r ElementRef) Insured() bool {
	if r.Scoped() {
		return r.Context.Insured
	}
	return r.Element.Insured
}

func (r ElementRef) EmployerBorne() bool {
	if r.Scoped() {
		return r.Context.EmployerBorne
	}
	return r.Element.EmployerBorne
}

func (r ElementRef) BasedOnContractedHours() bool {
	if r.Scoped() {
		return r.Context.BasedOnContractedHours
	}
	return r.Element.BasedOnContractedHours
}

func (r ElementRef) FixedValue() *decimal.Decimal {
	if r.Scoped() {
		return r.Context.Value
	}
	return r.Element.Value
}

func (r ElementRef) Formula() string {
	if r.Scoped() && r.Context.Formula != "" {
		return r.Context.Formula
	}
	return r.Element.Formula
}

func (r ElementRef) Procedure() string {
	if r.Scoped() && r.Context.Procedure != "" {
		return r.Context.Procedure
	}
	return r.Element.Procedure
}

func (r ElementRef) Version() int {
	if r.Scoped() {
		return r.Context.Version
	}
	return r.Element.Version
}

func (r ElementRef) Kind() Kind { return r.Element.Kind }

func (r ElementRef) Code() string { return r.Element.Code }

func (r ElementRef) Name() string { return r.Element.Name }

func (r ElementRef) AccountingCode() string { return r.Element.AccountingCode }

func (r ElementRef) BasedOnWorkingDays() bool { return r.Element.BasedOnWorkingDays }

func (r ElementRef) IncludedInLeaveBase() bool { return r.Element.IncludedInLeaveBase }

// =============================================================================
// PAYROLL - The aggregate result
// =============================================================================

// SyntheticLeaveVersion marks a line item produced by the leave adjustment
// stage rather than by a configured element. Its element reference is
// cleared before persistence.
const SyntheticLeaveVersion = -1

// LineItem is one evaluated element's outcome. Deductions and withholdings
// carry negative values.
type LineItem struct {
	Key             string
	Ref             ElementRef
	Version         int
	Description     string
	AccountingCode  string
	Value           decimal.Decimal
	ContextResolved bool

	// EvaluationRecord is the JSON audit snapshot of how the value was
	// derived (see audit.go). Filled just before persistence.
	EvaluationRecord string

	Audit Audit
}

// Synthetic reports whether the item was produced by the leave stage.
func (li *LineItem) Synthetic() bool { return li.Version == SyntheticLeaveVersion }

// Payroll is the calculated monthly payroll for one enrollment in one
// period. Created on the first calculation for an employee/period pair;
// later calculations load and overwrite it unless approved.
type Payroll struct {
	Key           string
	InstitutionID string
	PeriodKey     string

	Enrollment  *Enrollment
	EmployeeSSN string
	BankAccount string
	Bank        *Bank
	Batch       *InstitutionBatch

	// Institutional holidays falling inside the period, loaded by the
	// payroll repository.
	Holidays []Holiday

	// Day accounting (work-time calculator output).
	PaidWorkDays     int
	UnpaidAbsentDays int
	PaidAbsentDays   int
	InsuredLeaveDays int

	// Monetary totals. All values are rounded to the minor unit.
	GrossSalary   decimal.Decimal
	NetSalary     decimal.Decimal
	InsuredAmount decimal.Decimal // base for social/health insurance (C)
	TaxedAmount   decimal.Decimal // base for income tax (T)
	LeaveSalary   decimal.Decimal
	Deductions    decimal.Decimal

	SocialInsuranceEmployee decimal.Decimal
	SocialInsuranceEmployer decimal.Decimal
	HealthInsuranceEmployee decimal.Decimal
	HealthInsuranceEmployer decimal.Decimal
	AdditionalInsurance     decimal.Decimal
	IncomeTax               decimal.Decimal

	// Bracket base values looked up per statutory element.
	SocialInsuranceBase decimal.Decimal
	HealthInsuranceBase decimal.Decimal
	TaxBase             decimal.Decimal

	Lines []*LineItem

	Approved bool
	Audit    Audit
}

// =============================================================================
// AUDIT - Creator/modifier identity stamping
// =============================================================================

// Audit carries the creator/modifier identity, timestamps, and originating
// address stamped from the invoking security context.
type Audit struct {
	CreatedBy  string
	CreatedOn  time.Time
	CreatedIP  string
	ModifiedBy string
	ModifiedOn time.Time
	ModifiedIP string
}

// StampNew fills the full audit trail for a freshly created record.
func (a *Audit) StampNew(userID, addr string, now time.Time) {
	a.CreatedBy = userID
	a.CreatedOn = now
	a.CreatedIP = addr
	a.ModifiedBy = userID
	a.ModifiedOn = now
	a.ModifiedIP = addr
}

// StampModified updates only the modifier fields.
func (a *Audit) StampModified(userID, addr string, now time.Time) {
	a.ModifiedBy = userID
	a.ModifiedOn = now
	a.ModifiedIP = addr
}
