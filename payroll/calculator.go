/*
The calculation orchestrator.

PURPOSE:
  Calculator sequences a full payroll run for one enrollment: operator
  validations, period and batch gating, collection reload, work-time
  accounting, the gross build stages, the leave adjustment, the statutory
  section, the optional second-position merge, audit stamping, and
  persistence.

DESIGN PRINCIPLES:
  1. Stateless service: Calculator holds only collaborators; every run
     works on its own calculation value, so concurrent runs never share
     factor state
  2. Two failure tiers: operator validation errors come back as a failed
     Result with their message; stage faults are logged in full and
     surface only as a generic failure, with nothing persisted
  3. Nothing partial: the payroll is written once, at the end of a fully
     successful run

SEE ALSO:
  - service.go: The read/update surface around stored payrolls
*/
package payroll

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Config wires a Calculator's collaborators. All fields except Logger and
// Now are required.
type Config struct {
	Payrolls    PayrollRepository
	Enrollments EnrollmentRepository
	Periods     PeriodProvider
	Parameters  ParameterProvider
	Batches     InstitutionPayrollProvider
	Elements    ElementProvider
	Evaluator   FormulaEvaluator
	Security    SecurityContext

	Logger *logrus.Logger
	Now    func() time.Time
}

// Calculator computes, persists, and serves employee payrolls.
type Calculator struct {
	payrolls    PayrollRepository
	enrollments EnrollmentRepository
	periods     PeriodProvider
	params      ParameterProvider
	batches     InstitutionPayrollProvider
	elements    ElementProvider
	eval        FormulaEvaluator
	sec         SecurityContext

	log *logrus.Logger
	now func() time.Time
}

// NewCalculator validates the collaborators and builds a Calculator.
func NewCalculator(cfg Config) (*Calculator, error) {
	switch {
	case cfg.Payrolls == nil:
		return nil, fmt.Errorf("calculator needs a payroll repository")
	case cfg.Enrollments == nil:
		return nil, fmt.Errorf("calculator needs an enrollment repository")
	case cfg.Periods == nil:
		return nil, fmt.Errorf("calculator needs a period provider")
	case cfg.Parameters == nil:
		return nil, fmt.Errorf("calculator needs a parameter provider")
	case cfg.Batches == nil:
		return nil, fmt.Errorf("calculator needs an institution payroll provider")
	case cfg.Elements == nil:
		return nil, fmt.Errorf("calculator needs an element provider")
	case cfg.Evaluator == nil:
		return nil, fmt.Errorf("calculator needs a formula evaluator")
	case cfg.Security == nil:
		return nil, fmt.Errorf("calculator needs a security context")
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Calculator{
		payrolls:    cfg.Payrolls,
		enrollments: cfg.Enrollments,
		periods:     cfg.Periods,
		params:      cfg.Parameters,
		batches:     cfg.Batches,
		elements:    cfg.Elements,
		eval:        cfg.Evaluator,
		sec:         cfg.Security,
		log:         log,
		now:         now,
	}, nil
}

// calculation is the per-run state. A fresh value is built for every
// payroll run and discarded afterwards.
type calculation struct {
	calc     *Calculator
	eval     FormulaEvaluator
	elements ElementProvider

	payroll    *Payroll
	enrollment *Enrollment
	period     *Period
	params     GeneralParameters

	factors *Factors
	steps   []string

	// Concurrent enrollments of the employee counted by this run.
	posCount int

	contractHours decimal.Decimal
	hoursOnLeave  decimal.Decimal
	paidDays      decimal.Decimal
	daysPerMonth  decimal.Decimal
	hoursPerDay   decimal.Decimal

	leaveBase  decimal.Decimal
	totalMonth decimal.Decimal
	gross      decimal.Decimal

	insuredAmount decimal.Decimal
	taxedAmount   decimal.Decimal

	socialEmployee decimal.Decimal
	socialEmployer decimal.Decimal
	healthEmployee decimal.Decimal
	healthEmployer decimal.Decimal
	addInsurance   decimal.Decimal
	taxTotal       decimal.Decimal

	socialBase decimal.Decimal
	healthBase decimal.Decimal
	taxBase    decimal.Decimal
}

func (cl *Calculator) newCalculation(p *Payroll, period *Period, params GeneralParameters, posCount int) *calculation {
	return &calculation{
		calc:         cl,
		eval:         cl.eval,
		elements:     cl.elements,
		payroll:      p,
		enrollment:   p.Enrollment,
		period:       period,
		params:       params,
		factors:      NewFactors(),
		posCount:     posCount,
		daysPerMonth: decimal.NewFromInt(int64(params.DaysPerMonth)),
		hoursPerDay:  decimal.NewFromInt(int64(params.HoursPerDay)),
	}
}

// Calculate runs the payroll for one enrollment in the institution's
// active period.
func (cl *Calculator) Calculate(p *Payroll) Result {
	return cl.run(p, nil, false)
}

// CalculateDetailed runs the payroll and, when a previous payroll of the
// same employee is supplied, merges it in so the statutory brackets see
// the combined income.
func (cl *Calculator) CalculateDetailed(p *Payroll, previous *Payroll) Result {
	return cl.run(p, previous, true)
}

func (cl *Calculator) run(p *Payroll, previous *Payroll, detailed bool) (res Result) {
	// A stage blowing up must never escape the calculation boundary: it is
	// logged like any other fault and surfaces as the generic failure, with
	// nothing persisted.
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		entry := cl.log.WithField("panic", r)
		if p != nil {
			entry = entry.WithFields(logrus.Fields{
				"institution": p.InstitutionID,
				"enrollment":  enrollmentKey(p),
			})
		}
		entry.Error("payroll calculation failed")
		res = failure(ErrCalculationFailed.Error(), nil)
	}()

	p, steps, err := cl.runPipeline(p, previous, detailed)
	if err == nil {
		return success(p, steps)
	}
	if IsBusiness(err) {
		return failure(err.Error(), steps)
	}

	entry := cl.log.WithError(err)
	if p != nil {
		entry = entry.WithFields(logrus.Fields{
			"institution": p.InstitutionID,
			"enrollment":  enrollmentKey(p),
		})
	}
	var sf *StageFault
	if errors.As(err, &sf) {
		entry = entry.WithField("stage", sf.Stage)
	}
	entry.Error("payroll calculation failed")
	return failure(ErrCalculationFailed.Error(), steps)
}

func enrollmentKey(p *Payroll) string {
	if p.Enrollment == nil {
		return ""
	}
	return p.Enrollment.Key
}

func (cl *Calculator) runPipeline(p *Payroll, previous *Payroll, detailed bool) (*Payroll, []string, error) {
	if err := validatePayrollInput(p); err != nil {
		return p, nil, err
	}
	enr := p.Enrollment
	emp := enr.Employee

	period, err := cl.periods.ActivePeriod(p.InstitutionID)
	if err != nil {
		return p, nil, fault("active period", err)
	}
	if period == nil {
		return p, nil, ErrNoActivePeriod
	}
	if !employmentOverlapsPeriod(enr, period) {
		return p, nil, ErrOutsidePeriod
	}

	batch, err := cl.batches.InstitutionBatch(p.InstitutionID, period.Key)
	if err != nil {
		return p, nil, fault("institution batch", err)
	}
	if batch == nil {
		return p, nil, faultf("institution batch", "no institution payroll for period %q", period.Key)
	}
	if batch.Approved {
		return p, nil, ErrBatchApproved
	}

	// An already calculated payroll for this enrollment/period is
	// recomputed in place unless approved.
	existing, err := cl.payrolls.GetByEnrollment(enr, period.Key, false)
	if err != nil {
		return p, nil, fault("load payroll", err)
	}
	if existing != nil {
		if existing.Approved {
			return existing, nil, ErrPayrollApproved
		}
		if existing.Enrollment == nil {
			existing.Enrollment = enr
		}
		existing.InstitutionID = p.InstitutionID
		existing.Holidays = p.Holidays
		p = existing
		enr = p.Enrollment
	}

	batch.Period = period
	p.Batch = batch
	p.PeriodKey = period.Key
	p.Bank = emp.Bank
	p.BankAccount = emp.BankAccount
	p.EmployeeSSN = emp.SSN

	params, err := cl.params.ActiveParameters()
	if err != nil {
		return p, nil, fault("parameters", err)
	}

	posCount := 1
	if detailed && previous != nil && previous.EmployeeSSN == p.EmployeeSSN {
		posCount = 2
	}

	c := cl.newCalculation(p, period, params, posCount)
	p.Lines = nil

	if err := cl.enrollments.LoadRelatedElements(enr, period.Key); err != nil {
		return p, c.steps, fault("load related elements", err)
	}

	c.computeWorkTime()

	d1, err := c.stageBaseSalary()
	if err != nil {
		return p, c.steps, err
	}
	d2, err := c.stageInstitution()
	if err != nil {
		return p, c.steps, err
	}
	d3, err := c.stageStructure()
	if err != nil {
		return p, c.steps, err
	}
	d4, err := c.stageGroup()
	if err != nil {
		return p, c.steps, err
	}
	d5, err := c.stageSupplements()
	if err != nil {
		return p, c.steps, err
	}
	c.totalMonth = d1.Add(d2).Add(d3).Add(d4).Add(d5)

	leave, err := c.stageLeaveAdjustment()
	if err != nil {
		return p, c.steps, err
	}
	c.totalMonth = c.totalMonth.Add(leave)

	if !detailed {
		c.factors.AddGrossToDate(c.totalMonth)
	}

	if err := c.fillCalculatedFields(); err != nil {
		return p, c.steps, err
	}

	if detailed && previous != nil && previous.EmployeeSSN == p.EmployeeSSN {
		if err := c.mergePrevious(previous); err != nil {
			return p, c.steps, err
		}
	}

	cl.stampLines(p)

	if err := cl.persist(p); err != nil {
		return p, c.steps, fault("persist", err)
	}
	return p, c.steps, nil
}

// stampLines clears the element reference of synthetic leave lines,
// records each line's evaluation snapshot, and stamps the audit trail.
func (cl *Calculator) stampLines(p *Payroll) {
	now := cl.now()
	for _, li := range p.Lines {
		if li.Synthetic() {
			li.Ref = ElementRef{}
		}
		li.EvaluationRecord = lineEvaluationRecord(li)
		li.Audit.StampNew(cl.sec.UserID(), cl.sec.Address(), now)
	}
}

func (cl *Calculator) persist(p *Payroll) error {
	now := cl.now()
	if p.Key != "" {
		p.Audit.StampModified(cl.sec.UserID(), cl.sec.Address(), now)
		return cl.payrolls.Update(p)
	}
	p.Audit.StampNew(cl.sec.UserID(), cl.sec.Address(), now)
	return cl.payrolls.Add(p)
}

func validatePayrollInput(p *Payroll) error {
	switch {
	case p.Enrollment == nil:
		return ErrNoEnrollment
	case p.Enrollment.Employee == nil:
		return ErrNoEmployee
	case p.Enrollment.Position == nil:
		return ErrNoPosition
	case p.InstitutionID == "":
		return ErrNoInstitution
	case p.Enrollment.Employee.BankAccount == "":
		return ErrNoBankAccount
	case p.Enrollment.Employee.Bank == nil:
		return ErrNoBank
	}
	return nil
}

// employmentOverlapsPeriod reports whether the employment span touches
// the period at all.
func employmentOverlapsPeriod(enr *Enrollment, period *Period) bool {
	if enr.StartFrom.After(period.End()) {
		return false
	}
	if enr.EndTo != nil && enr.EndTo.Before(period.Start()) {
		return false
	}
	return true
}
