// Package store provides collaborator implementations for the
// calculation pipeline.
package store

import (
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Bracket is one statutory base-value bracket: the base applies when the
// looked-up amount falls inside [From, To]. A nil To leaves the bracket
// open-ended upward.
type Bracket struct {
	From decimal.Decimal
	To   *decimal.Decimal
	Base decimal.Decimal
}

type batchKey struct {
	InstitutionID string
	PeriodKey     string
}

type relatedKey struct {
	EnrollmentKey string
	PeriodKey     string
}

type related struct {
	workDays    []*payroll.WorkDay
	leaves      []*payroll.Leave
	overtime    []*payroll.OvertimeRecord
	supplements []*payroll.PersonalElement
	deductions  []*payroll.PersonalElement
}

// Memory implements every pipeline collaborator against in-process maps.
// Fixture data goes in through the Set*/Add* methods.
type Memory struct {
	mu sync.RWMutex

	params   payroll.GeneralParameters
	periods  map[string]*payroll.Period // institution -> active period
	batches  map[batchKey]*payroll.InstitutionBatch
	elements []*payroll.Element
	contexts []*payroll.Context
	brackets map[string][]Bracket // element key -> brackets
	related  map[relatedKey]related
	payrolls map[string]*payroll.Payroll
	order    []string // payroll keys in insertion order
	holidays map[batchKey][]payroll.Holiday
}

func NewMemory() *Memory {
	return &Memory{
		periods:  make(map[string]*payroll.Period),
		batches:  make(map[batchKey]*payroll.InstitutionBatch),
		brackets: make(map[string][]Bracket),
		related:  make(map[relatedKey]related),
		payrolls: make(map[string]*payroll.Payroll),
		holidays: make(map[batchKey][]payroll.Holiday),
	}
}

// -----------------------------------------------------------------------------
// Fixture setup
// -----------------------------------------------------------------------------

func (m *Memory) SetParameters(p payroll.GeneralParameters) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.params = p
}

func (m *Memory) SetActivePeriod(p *payroll.Period) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.periods[p.InstitutionID] = p
}

func (m *Memory) SetBatch(b *payroll.InstitutionBatch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches[batchKey{b.InstitutionID, b.PeriodKey}] = b
}

func (m *Memory) AddElement(el *payroll.Element) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.elements = append(m.elements, el)
}

func (m *Memory) AddContext(cx *payroll.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contexts = append(m.contexts, cx)
}

func (m *Memory) AddBracket(elementKey string, b Bracket) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.brackets[elementKey] = append(m.brackets[elementKey], b)
}

func (m *Memory) SetHolidays(institutionID, periodKey string, hs []payroll.Holiday) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holidays[batchKey{institutionID, periodKey}] = hs
}

// SetRelated seeds the per-period collections an enrollment will load.
func (m *Memory) SetRelated(enrollmentKey, periodKey string, e *payroll.Enrollment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.related[relatedKey{enrollmentKey, periodKey}] = related{
		workDays:    e.WorkDays,
		leaves:      e.Leaves,
		overtime:    e.Overtime,
		supplements: e.Supplements,
		deductions:  e.Deductions,
	}
}

// Holidays returns the institutional holidays registered for a period.
func (m *Memory) Holidays(institutionID, periodKey string) []payroll.Holiday {
	m.mu.RLock()
	defer m.mu.RUnlock()
	hs := m.holidays[batchKey{institutionID, periodKey}]
	out := make([]payroll.Holiday, len(hs))
	copy(out, hs)
	return out
}

// -----------------------------------------------------------------------------
// PeriodProvider / ParameterProvider / InstitutionPayrollProvider
// -----------------------------------------------------------------------------

func (m *Memory) ActivePeriod(institutionID string) (*payroll.Period, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.periods[institutionID], nil
}

func (m *Memory) ActiveParameters() (payroll.GeneralParameters, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.params, nil
}

func (m *Memory) InstitutionBatch(institutionID, periodKey string) (*payroll.InstitutionBatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.batches[batchKey{institutionID, periodKey}], nil
}

// -----------------------------------------------------------------------------
// ElementProvider
// -----------------------------------------------------------------------------

func (m *Memory) ElementsByKind(kind payroll.Kind) ([]*payroll.Element, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*payroll.Element
	for _, el := range m.elements {
		if el.Kind == kind {
			out = append(out, el)
		}
	}
	return out, nil
}

func (m *Memory) ContextsByPayGrade(payGradeID string) ([]*payroll.Context, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*payroll.Context
	for _, cx := range m.contexts {
		if cx.PayGradeID != "" && cx.PayGradeID == payGradeID {
			out = append(out, cx)
		}
	}
	return out, nil
}

func (m *Memory) ContextsByScope(institutionID, orgStructureID, orgGroupID string) ([]*payroll.Context, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*payroll.Context
	for _, cx := range m.contexts {
		if cx.PayGradeID != "" {
			continue
		}
		if cx.InstitutionID == institutionID && cx.OrgStructureID == orgStructureID && cx.OrgGroupID == orgGroupID {
			out = append(out, cx)
		}
	}
	return out, nil
}

func (m *Memory) ContextsForElement(elementKey, institutionID, orgStructureID, orgGroupID string) ([]*payroll.Context, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*payroll.Context
	for _, cx := range m.contexts {
		if cx.Element == nil || cx.Element.Key != elementKey {
			continue
		}
		if cx.InstitutionID == institutionID && cx.OrgStructureID == orgStructureID && cx.OrgGroupID == orgGroupID {
			out = append(out, cx)
		}
	}
	return out, nil
}

func (m *Memory) BracketBase(elementKey string, amount decimal.Decimal) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.brackets[elementKey] {
		if amount.LessThan(b.From) {
			continue
		}
		if b.To != nil && amount.GreaterThan(*b.To) {
			continue
		}
		return b.Base, nil
	}
	return decimal.Zero, nil
}

// -----------------------------------------------------------------------------
// EnrollmentRepository
// -----------------------------------------------------------------------------

func (m *Memory) LoadRelatedElements(e *payroll.Enrollment, periodKey string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e.ClearCollections()
	rel := m.related[relatedKey{e.Key, periodKey}]
	e.WorkDays = append(e.WorkDays, rel.workDays...)
	e.Leaves = append(e.Leaves, rel.leaves...)
	e.Overtime = append(e.Overtime, rel.overtime...)
	e.Supplements = append(e.Supplements, rel.supplements...)
	e.Deductions = append(e.Deductions, rel.deductions...)
	return nil
}

func (m *Memory) LoadLeaves(e *payroll.Enrollment, periodKey string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rel := m.related[relatedKey{e.Key, periodKey}]
	e.Leaves = append([]*payroll.Leave{}, rel.leaves...)
	return nil
}

func (m *Memory) SaveRelatedElements(e *payroll.Enrollment, periodKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.related[relatedKey{e.Key, periodKey}] = related{
		workDays:    append([]*payroll.WorkDay{}, e.WorkDays...),
		leaves:      append([]*payroll.Leave{}, e.Leaves...),
		overtime:    append([]*payroll.OvertimeRecord{}, e.Overtime...),
		supplements: append([]*payroll.PersonalElement{}, e.Supplements...),
		deductions:  append([]*payroll.PersonalElement{}, e.Deductions...),
	}
	return nil
}

// -----------------------------------------------------------------------------
// PayrollRepository
// -----------------------------------------------------------------------------

func (m *Memory) Get(key string) (*payroll.Payroll, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.payrolls[key], nil
}

func (m *Memory) GetByEnrollment(e *payroll.Enrollment, periodKey string, full bool) (*payroll.Payroll, error) {
	m.mu.RLock()
	p := m.findByEnrollment(e.Key, periodKey)
	m.mu.RUnlock()
	if p == nil {
		return nil, nil
	}
	p.Enrollment = e
	if full {
		if err := m.LoadRelatedElements(e, periodKey); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (m *Memory) GetForEmployee(e *payroll.Enrollment, periodKey string) ([]*payroll.Payroll, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*payroll.Payroll
	for _, key := range m.order {
		p := m.payrolls[key]
		if p.PeriodKey == periodKey && p.EmployeeSSN == e.Employee.SSN {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *Memory) GetAll(institutionID, periodKey string) ([]*payroll.Payroll, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*payroll.Payroll
	for _, key := range m.order {
		p := m.payrolls[key]
		if p.InstitutionID == institutionID && p.PeriodKey == periodKey {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *Memory) Add(p *payroll.Payroll) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.Key == "" {
		p.Key = uuid.NewString()
	}
	for _, li := range p.Lines {
		if li.Key == "" {
			li.Key = uuid.NewString()
		}
	}
	m.payrolls[p.Key] = p
	m.order = append(m.order, p.Key)
	return nil
}

func (m *Memory) Update(p *payroll.Payroll) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, li := range p.Lines {
		if li.Key == "" {
			li.Key = uuid.NewString()
		}
	}
	if _, ok := m.payrolls[p.Key]; !ok {
		m.order = append(m.order, p.Key)
	}
	m.payrolls[p.Key] = p
	return nil
}

func (m *Memory) findByEnrollment(enrollmentKey, periodKey string) *payroll.Payroll {
	for _, key := range m.order {
		p := m.payrolls[key]
		if p.PeriodKey != periodKey {
			continue
		}
		if p.Enrollment != nil && p.Enrollment.Key == enrollmentKey {
			return p
		}
	}
	return nil
}

// =============================================================================
// OPERATOR - Static security context
// =============================================================================

// Operator is a fixed SecurityContext for tests and single-operator
// deployments.
type Operator struct {
	User string
	Addr string
}

func (o Operator) UserID() string  { return o.User }
func (o Operator) Address() string { return o.Addr }

// =============================================================================
// STUB EVALUATOR - Deterministic arithmetic over the factor namespace
// =============================================================================

// StubEvaluator resolves formulas of the shape
//
//	term (op term)*
//
// evaluated left to right, where a term is a decimal literal or a
// variable name looked up in the request namespace and op is one of
// + - * /. A variable absent from the namespace is a FormulaError, not
// zero: a factor that was never produced must not be read. Suitable for
// tests and development; production deployments plug in their own
// evaluator.
type StubEvaluator struct{}

func (StubEvaluator) Evaluate(req payroll.EvalRequest) (decimal.Decimal, error) {
	fields := strings.Fields(req.Formula)
	if len(fields) == 0 {
		return decimal.Zero, nil
	}
	acc, err := stubTerm(fields[0], req.Vars)
	if err != nil {
		return decimal.Zero, err
	}
	for i := 1; i+1 < len(fields); i += 2 {
		rhs, err := stubTerm(fields[i+1], req.Vars)
		if err != nil {
			return decimal.Zero, err
		}
		switch fields[i] {
		case "+":
			acc = acc.Add(rhs)
		case "-":
			acc = acc.Sub(rhs)
		case "*":
			acc = acc.Mul(rhs)
		case "/":
			if rhs.IsZero() {
				return decimal.Zero, errDivisionByZero
			}
			acc = acc.Div(rhs)
		default:
			return decimal.Zero, &FormulaError{Formula: req.Formula, Token: fields[i]}
		}
	}
	return acc, nil
}

func stubTerm(tok string, vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	if v, ok := vars[tok]; ok {
		return v, nil
	}
	if v, err := decimal.NewFromString(tok); err == nil {
		return v, nil
	}
	return decimal.Zero, &FormulaError{Token: tok}
}

// FormulaError reports an unparseable or unbound token in a formula.
type FormulaError struct {
	Formula string
	Token   string
}

func (e *FormulaError) Error() string {
	return "formula: unrecognized token " + strconv.Quote(e.Token)
}

var errDivisionByZero = errors.New("formula: division by zero")
