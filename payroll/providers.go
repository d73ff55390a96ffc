/*
Collaborator contracts for the calculation pipeline.

PURPOSE:
  The calculator never talks to storage, configuration, or formula parsing
  directly. Everything external arrives through the small interfaces in
  this file, so the pipeline can run against the in-memory store in tests
  and the sqlite store in production unchanged.

CONVENTIONS:
  - Lookups return (nil, nil) when the entity simply does not exist;
    a non-nil error always means the lookup itself failed
  - Methods that reload collections mutate their argument in place
*/
package payroll

import "github.com/shopspring/decimal"

// PeriodProvider resolves the currently active pay period of an
// institution.
type PeriodProvider interface {
	ActivePeriod(institutionID string) (*Period, error)
}

// ParameterProvider supplies the active statutory norms.
type ParameterProvider interface {
	ActiveParameters() (GeneralParameters, error)
}

// InstitutionPayrollProvider resolves the institution-wide payroll batch
// for a period.
type InstitutionPayrollProvider interface {
	InstitutionBatch(institutionID, periodKey string) (*InstitutionBatch, error)
}

// ElementProvider serves the pay-element catalog: plain elements by kind,
// scoped contexts by the lookups the stages need, and bracket base values
// for statutory elements.
type ElementProvider interface {
	// ElementsByKind returns all elements of one type category.
	ElementsByKind(kind Kind) ([]*Element, error)

	// ContextsByPayGrade returns the contexts bound to a pay grade,
	// regardless of element kind.
	ContextsByPayGrade(payGradeID string) ([]*Context, error)

	// ContextsByScope returns the contexts matching an institution /
	// structure / group combination. Empty arguments mean "must be unset
	// on the context"; see resolver.go for how matches are ranked.
	ContextsByScope(institutionID, orgStructureID, orgGroupID string) ([]*Context, error)

	// ContextsForElement returns every context of one element that could
	// apply within the given scope, across all specificity levels.
	ContextsForElement(elementKey, institutionID, orgStructureID, orgGroupID string) ([]*Context, error)

	// BracketBase looks up the statutory base value whose bracket contains
	// amount, for the brackets configured on one element. Returns zero
	// when no bracket matches.
	BracketBase(elementKey string, amount decimal.Decimal) (decimal.Decimal, error)
}

// EnrollmentRepository loads and saves the per-period collections hanging
// off an enrollment.
type EnrollmentRepository interface {
	// LoadRelatedElements clears the enrollment's collections and reloads
	// working days, leaves, overtime, supplements and deductions for the
	// period.
	LoadRelatedElements(e *Enrollment, periodKey string) error

	// LoadLeaves reloads only the leave collection.
	LoadLeaves(e *Enrollment, periodKey string) error

	// SaveRelatedElements persists all five collections for the period,
	// replacing what was stored before.
	SaveRelatedElements(e *Enrollment, periodKey string) error
}

// PayrollRepository persists calculated payrolls and their line items.
type PayrollRepository interface {
	Get(key string) (*Payroll, error)

	// GetByEnrollment finds the payroll of one enrollment in one period.
	// With full set, line items and the enrollment collections are loaded
	// too.
	GetByEnrollment(e *Enrollment, periodKey string, full bool) (*Payroll, error)

	// GetForEmployee returns every payroll of the enrolled employee in
	// the period, across all of the employee's enrollments.
	GetForEmployee(e *Enrollment, periodKey string) ([]*Payroll, error)

	// GetAll returns every payroll of an institution in a period.
	GetAll(institutionID, periodKey string) ([]*Payroll, error)

	Add(p *Payroll) error
	Update(p *Payroll) error
}

// SecurityContext identifies the invoking operator for audit stamping.
type SecurityContext interface {
	UserID() string
	Address() string
}

// EvalRequest carries one formula evaluation: the expression, the variable
// namespace visible to it, and the identifiers a stored procedure would
// need.
type EvalRequest struct {
	Formula   string
	Procedure string
	Vars      map[string]decimal.Decimal

	EmployeeKey string
	PositionKey string
}

// FormulaEvaluator computes the numeric value of a pay-element formula.
// Implementations own the expression syntax; the pipeline only supplies
// the namespace and consumes the number.
type FormulaEvaluator interface {
	Evaluate(req EvalRequest) (decimal.Decimal, error)
}
