/*
Package sqlite provides a SQLite-backed implementation of the calculation
pipeline's storage interfaces.

PURPOSE:
  Implements all persistence collaborators (pay periods, statutory
  parameters, institution batches, the pay-element catalog with contexts
  and brackets, enrollment collections, and calculated payrolls with
  their line items) using SQLite. In production, the same patterns apply
  to PostgreSQL - only minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  payroll.PeriodProvider:             Active pay period per institution
  payroll.ParameterProvider:          Statutory norms
  payroll.InstitutionPayrollProvider: Institution-wide batch gating
  payroll.ElementProvider:            Element catalog, contexts, brackets
  payroll.EnrollmentRepository:       Per-period enrollment collections
  payroll.PayrollRepository:          Payroll records and line items

KEY TABLES:
  periods:             Institution pay periods; one active per institution
  parameters:          Days-per-month / hours-per-day norms
  institution_batches: Institution-wide payroll runs (approval gate)
  elements:            Pay-element definitions
  element_contexts:    Scope-specific element overrides
  element_brackets:    Statutory base-value brackets
  work_days, leaves, overtime, personal_elements:
                       Enrollment collections keyed by enrollment+period
  payrolls:            Calculated payroll records
  payroll_lines:       Evaluated element outcomes per payroll

MONEY:
  Monetary values are stored as decimal strings, never as REAL. They
  round-trip through shopspring/decimal without losing precision.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/payroll.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  calc, err := payroll.NewCalculator(payroll.Config{
      Payrolls:    store,
      Enrollments: store,
      ...
  })

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - payroll/providers.go: Interface definitions
  - payroll/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/payroll"
)

// Store implements all storage collaborators using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Statutory norms; exactly one row flagged active
	CREATE TABLE IF NOT EXISTS parameters (
		id TEXT PRIMARY KEY,
		days_per_month INTEGER NOT NULL,
		hours_per_day INTEGER NOT NULL,
		active BOOLEAN NOT NULL DEFAULT FALSE
	);

	-- Pay periods; one active per institution
	CREATE TABLE IF NOT EXISTS periods (
		key TEXT PRIMARY KEY,
		institution_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		approved BOOLEAN NOT NULL DEFAULT FALSE,
		active BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_periods_institution_active
		ON periods(institution_id, active);

	-- Institution-wide payroll runs; approval gates recalculation
	CREATE TABLE IF NOT EXISTS institution_batches (
		institution_id TEXT NOT NULL,
		period_key TEXT NOT NULL,
		approved BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (institution_id, period_key)
	);

	-- Pay-element definitions
	CREATE TABLE IF NOT EXISTS elements (
		key TEXT PRIMARY KEY,
		code TEXT NOT NULL,
		name TEXT NOT NULL,
		kind INTEGER NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		user_defined BOOLEAN NOT NULL DEFAULT FALSE,
		taxable BOOLEAN NOT NULL DEFAULT FALSE,
		insured BOOLEAN NOT NULL DEFAULT FALSE,
		employer_borne BOOLEAN NOT NULL DEFAULT FALSE,
		based_on_working_days BOOLEAN NOT NULL DEFAULT FALSE,
		based_on_contracted_hours BOOLEAN NOT NULL DEFAULT FALSE,
		included_in_leave_base BOOLEAN NOT NULL DEFAULT FALSE,
		context_only BOOLEAN NOT NULL DEFAULT FALSE,
		in_payroll_detail BOOLEAN NOT NULL DEFAULT FALSE,
		fixed_value TEXT,
		formula TEXT NOT NULL DEFAULT '',
		procedure TEXT NOT NULL DEFAULT '',
		accounting_code TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_elements_kind ON elements(kind);

	-- Scope-specific element overrides
	CREATE TABLE IF NOT EXISTS element_contexts (
		key TEXT PRIMARY KEY,
		element_key TEXT NOT NULL REFERENCES elements(key),
		institution_id TEXT NOT NULL DEFAULT '',
		org_structure_id TEXT NOT NULL DEFAULT '',
		org_group_id TEXT NOT NULL DEFAULT '',
		pay_grade_id TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		user_defined BOOLEAN NOT NULL DEFAULT FALSE,
		taxable BOOLEAN NOT NULL DEFAULT FALSE,
		insured BOOLEAN NOT NULL DEFAULT FALSE,
		employer_borne BOOLEAN NOT NULL DEFAULT FALSE,
		based_on_contracted_hours BOOLEAN NOT NULL DEFAULT FALSE,
		fixed_value TEXT,
		formula TEXT NOT NULL DEFAULT '',
		procedure TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_contexts_scope
		ON element_contexts(institution_id, org_structure_id, org_group_id);
	CREATE INDEX IF NOT EXISTS idx_contexts_pay_grade
		ON element_contexts(pay_grade_id) WHERE pay_grade_id != '';
	CREATE INDEX IF NOT EXISTS idx_contexts_element
		ON element_contexts(element_key);

	-- Statutory base-value brackets; bounds stored as decimal strings,
	-- compared in Go
	CREATE TABLE IF NOT EXISTS element_brackets (
		id TEXT PRIMARY KEY,
		element_key TEXT NOT NULL REFERENCES elements(key),
		from_amount TEXT NOT NULL,
		to_amount TEXT,
		base_amount TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_brackets_element
		ON element_brackets(element_key);

	-- Leave classifications
	CREATE TABLE IF NOT EXISTS leave_types (
		key TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		payable BOOLEAN NOT NULL DEFAULT TRUE,
		socially_insured BOOLEAN NOT NULL DEFAULT FALSE,
		max_days INTEGER NOT NULL DEFAULT 0,
		percentage TEXT NOT NULL DEFAULT '0',
		accounting_code TEXT NOT NULL DEFAULT ''
	);

	-- Enrollment collections, keyed by enrollment+period
	CREATE TABLE IF NOT EXISTS work_days (
		key TEXT PRIMARY KEY,
		enrollment_key TEXT NOT NULL,
		period_key TEXT NOT NULL,
		day TEXT NOT NULL,
		payable BOOLEAN NOT NULL DEFAULT TRUE,
		hours TEXT NOT NULL,
		created_by TEXT, created_on TEXT, created_ip TEXT,
		modified_by TEXT, modified_on TEXT, modified_ip TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_work_days_enrollment
		ON work_days(enrollment_key, period_key);

	CREATE TABLE IF NOT EXISTS leaves (
		key TEXT PRIMARY KEY,
		enrollment_key TEXT NOT NULL,
		period_key TEXT NOT NULL,
		day TEXT NOT NULL,
		leave_type_key TEXT NOT NULL REFERENCES leave_types(key),
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_by TEXT, created_on TEXT, created_ip TEXT,
		modified_by TEXT, modified_on TEXT, modified_ip TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_leaves_enrollment
		ON leaves(enrollment_key, period_key);

	CREATE TABLE IF NOT EXISTS overtime (
		key TEXT PRIMARY KEY,
		enrollment_key TEXT NOT NULL,
		period_key TEXT NOT NULL,
		day TEXT NOT NULL,
		hours TEXT NOT NULL,
		created_by TEXT, created_on TEXT, created_ip TEXT,
		modified_by TEXT, modified_on TEXT, modified_ip TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_overtime_enrollment
		ON overtime(enrollment_key, period_key);

	-- Supplements and deductions attached to one employee
	CREATE TABLE IF NOT EXISTS personal_elements (
		key TEXT PRIMARY KEY,
		enrollment_key TEXT NOT NULL,
		period_key TEXT NOT NULL,
		element_key TEXT NOT NULL REFERENCES elements(key),
		collection TEXT NOT NULL CHECK (collection IN ('supplement', 'deduction')),
		value TEXT NOT NULL,
		created_by TEXT, created_on TEXT, created_ip TEXT,
		modified_by TEXT, modified_on TEXT, modified_ip TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_personal_elements_enrollment
		ON personal_elements(enrollment_key, period_key, collection);

	-- Institutional non-working days
	CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		institution_id TEXT NOT NULL,
		day TEXT NOT NULL,
		name TEXT NOT NULL,
		UNIQUE(institution_id, day, name)
	);

	CREATE INDEX IF NOT EXISTS idx_holidays_institution_day
		ON holidays(institution_id, day);

	-- Calculated payroll records
	CREATE TABLE IF NOT EXISTS payrolls (
		key TEXT PRIMARY KEY,
		institution_id TEXT NOT NULL,
		period_key TEXT NOT NULL,
		enrollment_key TEXT NOT NULL,
		employee_ssn TEXT NOT NULL,
		bank_account TEXT NOT NULL DEFAULT '',
		bank_key TEXT NOT NULL DEFAULT '',
		bank_name TEXT NOT NULL DEFAULT '',
		paid_work_days INTEGER NOT NULL DEFAULT 0,
		unpaid_absent_days INTEGER NOT NULL DEFAULT 0,
		paid_absent_days INTEGER NOT NULL DEFAULT 0,
		insured_leave_days INTEGER NOT NULL DEFAULT 0,
		gross_salary TEXT NOT NULL DEFAULT '0',
		net_salary TEXT NOT NULL DEFAULT '0',
		insured_amount TEXT NOT NULL DEFAULT '0',
		taxed_amount TEXT NOT NULL DEFAULT '0',
		leave_salary TEXT NOT NULL DEFAULT '0',
		deductions TEXT NOT NULL DEFAULT '0',
		social_insurance_employee TEXT NOT NULL DEFAULT '0',
		social_insurance_employer TEXT NOT NULL DEFAULT '0',
		health_insurance_employee TEXT NOT NULL DEFAULT '0',
		health_insurance_employer TEXT NOT NULL DEFAULT '0',
		additional_insurance TEXT NOT NULL DEFAULT '0',
		income_tax TEXT NOT NULL DEFAULT '0',
		social_insurance_base TEXT NOT NULL DEFAULT '0',
		health_insurance_base TEXT NOT NULL DEFAULT '0',
		tax_base TEXT NOT NULL DEFAULT '0',
		approved BOOLEAN NOT NULL DEFAULT FALSE,
		created_by TEXT, created_on TEXT, created_ip TEXT,
		modified_by TEXT, modified_on TEXT, modified_ip TEXT,
		UNIQUE(enrollment_key, period_key)
	);

	CREATE INDEX IF NOT EXISTS idx_payrolls_institution_period
		ON payrolls(institution_id, period_key);
	CREATE INDEX IF NOT EXISTS idx_payrolls_employee_period
		ON payrolls(employee_ssn, period_key);

	-- Evaluated element outcomes per payroll
	CREATE TABLE IF NOT EXISTS payroll_lines (
		key TEXT PRIMARY KEY,
		payroll_key TEXT NOT NULL REFERENCES payrolls(key),
		element_key TEXT,
		context_key TEXT,
		version INTEGER NOT NULL DEFAULT 1,
		description TEXT NOT NULL DEFAULT '',
		accounting_code TEXT NOT NULL DEFAULT '',
		value TEXT NOT NULL DEFAULT '0',
		context_resolved BOOLEAN NOT NULL DEFAULT FALSE,
		evaluation_record TEXT NOT NULL DEFAULT '{}',
		created_by TEXT, created_on TEXT, created_ip TEXT,
		modified_by TEXT, modified_on TEXT, modified_ip TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_payroll_lines_payroll
		ON payroll_lines(payroll_key);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// PERIOD / PARAMETER / BATCH PROVIDERS
// =============================================================================

func (s *Store) ActivePeriod(institutionID string) (*payroll.Period, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT key, institution_id, year, month, approved
		FROM periods
		WHERE institution_id = ? AND active
	`, institutionID)

	var p payroll.Period
	var month int
	err := row.Scan(&p.Key, &p.InstitutionID, &p.Year, &month, &p.Approved)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load active period: %w", err)
	}
	p.Month = time.Month(month)
	return &p, nil
}

func (s *Store) ActiveParameters() (payroll.GeneralParameters, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var p payroll.GeneralParameters
	err := s.db.QueryRow(`
		SELECT days_per_month, hours_per_day FROM parameters WHERE active
	`).Scan(&p.DaysPerMonth, &p.HoursPerDay)
	if err == sql.ErrNoRows {
		return p, fmt.Errorf("no active general parameters configured")
	}
	if err != nil {
		return p, fmt.Errorf("failed to load parameters: %w", err)
	}
	return p, nil
}

func (s *Store) InstitutionBatch(institutionID, periodKey string) (*payroll.InstitutionBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b := payroll.InstitutionBatch{InstitutionID: institutionID, PeriodKey: periodKey}
	err := s.db.QueryRow(`
		SELECT approved FROM institution_batches
		WHERE institution_id = ? AND period_key = ?
	`, institutionID, periodKey).Scan(&b.Approved)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load institution batch: %w", err)
	}
	return &b, nil
}

// =============================================================================
// ELEMENT PROVIDER
// =============================================================================

const elementCols = `key, code, name, kind, active, user_defined, taxable,
	insured, employer_borne, based_on_working_days, based_on_contracted_hours,
	included_in_leave_base, context_only, in_payroll_detail, fixed_value,
	formula, procedure, accounting_code, version`

func (s *Store) ElementsByKind(kind payroll.Kind) ([]*payroll.Element, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT `+elementCols+` FROM elements WHERE kind = ? ORDER BY code`,
		int(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query elements: %w", err)
	}
	defer rows.Close()

	var out []*payroll.Element
	for rows.Next() {
		el, err := scanElement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, el)
	}
	return out, rows.Err()
}

func (s *Store) ContextsByPayGrade(payGradeID string) ([]*payroll.Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryContexts(`
		WHERE c.pay_grade_id != '' AND c.pay_grade_id = ?
	`, payGradeID)
}

func (s *Store) ContextsByScope(institutionID, orgStructureID, orgGroupID string) ([]*payroll.Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryContexts(`
		WHERE c.pay_grade_id = ''
		  AND c.institution_id = ? AND c.org_structure_id = ? AND c.org_group_id = ?
	`, institutionID, orgStructureID, orgGroupID)
}

func (s *Store) ContextsForElement(elementKey, institutionID, orgStructureID, orgGroupID string) ([]*payroll.Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryContexts(`
		WHERE c.element_key = ?
		  AND c.institution_id = ? AND c.org_structure_id = ? AND c.org_group_id = ?
	`, elementKey, institutionID, orgStructureID, orgGroupID)
}

func (s *Store) queryContexts(where string, args ...any) ([]*payroll.Context, error) {
	query := `
		SELECT c.key, c.institution_id, c.org_structure_id, c.org_group_id,
		       c.pay_grade_id, c.active, c.user_defined, c.taxable, c.insured,
		       c.employer_borne, c.based_on_contracted_hours, c.fixed_value,
		       c.formula, c.procedure, c.version,
		       e.key, e.code, e.name, e.kind, e.active, e.user_defined,
		       e.taxable, e.insured, e.employer_borne, e.based_on_working_days,
		       e.based_on_contracted_hours, e.included_in_leave_base,
		       e.context_only, e.in_payroll_detail, e.fixed_value, e.formula,
		       e.procedure, e.accounting_code, e.version
		FROM element_contexts c
		JOIN elements e ON e.key = c.element_key
	` + where + ` ORDER BY c.key`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query contexts: %w", err)
	}
	defer rows.Close()

	var out []*payroll.Context
	for rows.Next() {
		var (
			cx      payroll.Context
			el      payroll.Element
			cxValue sql.NullString
			elValue sql.NullString
			kind    int
		)
		err := rows.Scan(
			&cx.Key, &cx.InstitutionID, &cx.OrgStructureID, &cx.OrgGroupID,
			&cx.PayGradeID, &cx.Active, &cx.UserDefined, &cx.Taxable, &cx.Insured,
			&cx.EmployerBorne, &cx.BasedOnContractedHours, &cxValue,
			&cx.Formula, &cx.Procedure, &cx.Version,
			&el.Key, &el.Code, &el.Name, &kind, &el.Active, &el.UserDefined,
			&el.Taxable, &el.Insured, &el.EmployerBorne, &el.BasedOnWorkingDays,
			&el.BasedOnContractedHours, &el.IncludedInLeaveBase,
			&el.ContextOnly, &el.InPayrollDetail, &elValue, &el.Formula,
			&el.Procedure, &el.AccountingCode, &el.Version,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan context: %w", err)
		}
		el.Kind = payroll.Kind(kind)
		el.Value = decPtr(elValue)
		cx.Value = decPtr(cxValue)
		cx.Element = &el
		out = append(out, &cx)
	}
	return out, rows.Err()
}

func (s *Store) BracketBase(elementKey string, amount decimal.Decimal) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT from_amount, to_amount, base_amount
		FROM element_brackets WHERE element_key = ?
	`, elementKey)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query brackets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var fromStr, baseStr string
		var toStr sql.NullString
		if err := rows.Scan(&fromStr, &toStr, &baseStr); err != nil {
			return decimal.Zero, fmt.Errorf("failed to scan bracket: %w", err)
		}
		from, err := decimal.NewFromString(fromStr)
		if err != nil {
			return decimal.Zero, fmt.Errorf("bad bracket bound %q: %w", fromStr, err)
		}
		if amount.LessThan(from) {
			continue
		}
		if toStr.Valid {
			to, err := decimal.NewFromString(toStr.String)
			if err != nil {
				return decimal.Zero, fmt.Errorf("bad bracket bound %q: %w", toStr.String, err)
			}
			if amount.GreaterThan(to) {
				continue
			}
		}
		return decimal.NewFromString(baseStr)
	}
	return decimal.Zero, rows.Err()
}

func scanElement(rows *sql.Rows) (*payroll.Element, error) {
	var (
		el    payroll.Element
		kind  int
		value sql.NullString
	)
	err := rows.Scan(
		&el.Key, &el.Code, &el.Name, &kind, &el.Active, &el.UserDefined,
		&el.Taxable, &el.Insured, &el.EmployerBorne, &el.BasedOnWorkingDays,
		&el.BasedOnContractedHours, &el.IncludedInLeaveBase, &el.ContextOnly,
		&el.InPayrollDetail, &value, &el.Formula, &el.Procedure,
		&el.AccountingCode, &el.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan element: %w", err)
	}
	el.Kind = payroll.Kind(kind)
	el.Value = decPtr(value)
	return &el, nil
}

// ElementByKey fetches one element definition, or nil when absent.
func (s *Store) ElementByKey(key string) (*payroll.Element, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.elementByKey(key)
}

func (s *Store) elementByKey(key string) (*payroll.Element, error) {
	rows, err := s.db.Query(`SELECT `+elementCols+` FROM elements WHERE key = ?`, key)
	if err != nil {
		return nil, fmt.Errorf("failed to query element: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanElement(rows)
}

// =============================================================================
// ENROLLMENT REPOSITORY
// =============================================================================

func (s *Store) LoadRelatedElements(e *payroll.Enrollment, periodKey string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e.ClearCollections()

	if err := s.loadWorkDays(e, periodKey); err != nil {
		return err
	}
	if err := s.loadLeaves(e, periodKey); err != nil {
		return err
	}
	if err := s.loadOvertime(e, periodKey); err != nil {
		return err
	}
	supplements, err := s.loadPersonalElements(e.Key, periodKey, "supplement")
	if err != nil {
		return err
	}
	deductions, err := s.loadPersonalElements(e.Key, periodKey, "deduction")
	if err != nil {
		return err
	}
	e.Supplements = supplements
	e.Deductions = deductions
	return nil
}

func (s *Store) LoadLeaves(e *payroll.Enrollment, periodKey string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e.Leaves = nil
	return s.loadLeaves(e, periodKey)
}

func (s *Store) loadWorkDays(e *payroll.Enrollment, periodKey string) error {
	rows, err := s.db.Query(`
		SELECT key, day, payable, hours, `+auditCols+`
		FROM work_days
		WHERE enrollment_key = ? AND period_key = ?
		ORDER BY day
	`, e.Key, periodKey)
	if err != nil {
		return fmt.Errorf("failed to query work days: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var wd payroll.WorkDay
		var day, hours string
		var audit auditRow
		args := append([]any{&wd.Key, &day, &wd.Payable, &hours}, audit.targets()...)
		if err := rows.Scan(args...); err != nil {
			return fmt.Errorf("failed to scan work day: %w", err)
		}
		if wd.Day, err = payroll.ParseDate(day); err != nil {
			return err
		}
		if wd.Hours, err = decimal.NewFromString(hours); err != nil {
			return err
		}
		wd.Audit = audit.toAudit()
		e.WorkDays = append(e.WorkDays, &wd)
	}
	return rows.Err()
}

func (s *Store) loadLeaves(e *payroll.Enrollment, periodKey string) error {
	rows, err := s.db.Query(`
		SELECT l.key, l.day, l.active, `+auditColsPrefixed("l")+`,
		       t.key, t.name, t.payable, t.socially_insured, t.max_days,
		       t.percentage, t.accounting_code
		FROM leaves l
		JOIN leave_types t ON t.key = l.leave_type_key
		WHERE l.enrollment_key = ? AND l.period_key = ?
		ORDER BY l.day
	`, e.Key, periodKey)
	if err != nil {
		return fmt.Errorf("failed to query leaves: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			lv    payroll.Leave
			lt    payroll.LeaveType
			day   string
			pct   string
			audit auditRow
		)
		args := append([]any{&lv.Key, &day, &lv.Active}, audit.targets()...)
		args = append(args, &lt.Key, &lt.Name, &lt.Payable, &lt.SociallyInsured,
			&lt.MaxDays, &pct, &lt.AccountingCode)
		if err := rows.Scan(args...); err != nil {
			return fmt.Errorf("failed to scan leave: %w", err)
		}
		if lv.Day, err = payroll.ParseDate(day); err != nil {
			return err
		}
		if lt.Percentage, err = decimal.NewFromString(pct); err != nil {
			return err
		}
		lv.Audit = audit.toAudit()
		lv.Type = &lt
		e.Leaves = append(e.Leaves, &lv)
	}
	return rows.Err()
}

func (s *Store) loadOvertime(e *payroll.Enrollment, periodKey string) error {
	rows, err := s.db.Query(`
		SELECT key, day, hours, `+auditCols+`
		FROM overtime
		WHERE enrollment_key = ? AND period_key = ?
		ORDER BY day
	`, e.Key, periodKey)
	if err != nil {
		return fmt.Errorf("failed to query overtime: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ot payroll.OvertimeRecord
		var day, hours string
		var audit auditRow
		args := append([]any{&ot.Key, &day, &hours}, audit.targets()...)
		if err := rows.Scan(args...); err != nil {
			return fmt.Errorf("failed to scan overtime: %w", err)
		}
		if ot.Day, err = payroll.ParseDate(day); err != nil {
			return err
		}
		if ot.Hours, err = decimal.NewFromString(hours); err != nil {
			return err
		}
		ot.Audit = audit.toAudit()
		e.Overtime = append(e.Overtime, &ot)
	}
	return rows.Err()
}

func (s *Store) loadPersonalElements(enrollmentKey, periodKey, collection string) ([]*payroll.PersonalElement, error) {
	rows, err := s.db.Query(`
		SELECT key, element_key, value, `+auditCols+`
		FROM personal_elements
		WHERE enrollment_key = ? AND period_key = ? AND collection = ?
		ORDER BY key
	`, enrollmentKey, periodKey, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to query personal elements: %w", err)
	}
	defer rows.Close()

	type rowData struct {
		pe         *payroll.PersonalElement
		elementKey string
	}
	var loaded []rowData
	for rows.Next() {
		var pe payroll.PersonalElement
		var elementKey, value string
		var audit auditRow
		args := append([]any{&pe.Key, &elementKey, &value}, audit.targets()...)
		if err := rows.Scan(args...); err != nil {
			return nil, fmt.Errorf("failed to scan personal element: %w", err)
		}
		if pe.Value, err = decimal.NewFromString(value); err != nil {
			return nil, err
		}
		pe.Audit = audit.toAudit()
		loaded = append(loaded, rowData{&pe, elementKey})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Resolve elements after the scan loop; sqlite dislikes nested queries
	// on one connection while rows are open.
	cache := make(map[string]*payroll.Element)
	var out []*payroll.PersonalElement
	for _, r := range loaded {
		el, ok := cache[r.elementKey]
		if !ok {
			var err error
			el, err = s.elementByKey(r.elementKey)
			if err != nil {
				return nil, err
			}
			cache[r.elementKey] = el
		}
		r.pe.Element = el
		out = append(out, r.pe)
	}
	return out, nil
}

func (s *Store) SaveRelatedElements(e *payroll.Enrollment, periodKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"work_days", "leaves", "overtime", "personal_elements"} {
		if _, err := tx.Exec(
			`DELETE FROM `+table+` WHERE enrollment_key = ? AND period_key = ?`,
			e.Key, periodKey,
		); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for _, wd := range e.WorkDays {
		if wd.Key == "" {
			wd.Key = uuid.NewString()
		}
		if _, err := tx.Exec(`
			INSERT INTO work_days (key, enrollment_key, period_key, day, payable, hours, `+auditCols+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, append([]any{wd.Key, e.Key, periodKey, wd.Day.String(), wd.Payable, wd.Hours.String()},
			auditArgs(wd.Audit)...)...); err != nil {
			return fmt.Errorf("failed to insert work day: %w", err)
		}
	}

	for _, lv := range e.Leaves {
		if lv.Key == "" {
			lv.Key = uuid.NewString()
		}
		if err := upsertLeaveType(tx, lv.Type); err != nil {
			return err
		}
		if _, err := tx.Exec(`
			INSERT INTO leaves (key, enrollment_key, period_key, day, leave_type_key, active, `+auditCols+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, append([]any{lv.Key, e.Key, periodKey, lv.Day.String(), lv.Type.Key, lv.Active},
			auditArgs(lv.Audit)...)...); err != nil {
			return fmt.Errorf("failed to insert leave: %w", err)
		}
	}

	for _, ot := range e.Overtime {
		if ot.Key == "" {
			ot.Key = uuid.NewString()
		}
		if _, err := tx.Exec(`
			INSERT INTO overtime (key, enrollment_key, period_key, day, hours, `+auditCols+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, append([]any{ot.Key, e.Key, periodKey, ot.Day.String(), ot.Hours.String()},
			auditArgs(ot.Audit)...)...); err != nil {
			return fmt.Errorf("failed to insert overtime: %w", err)
		}
	}

	insertPersonal := func(collection string, pes []*payroll.PersonalElement) error {
		for _, pe := range pes {
			if pe.Key == "" {
				pe.Key = uuid.NewString()
			}
			if _, err := tx.Exec(`
				INSERT INTO personal_elements (key, enrollment_key, period_key, element_key, collection, value, `+auditCols+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, append([]any{pe.Key, e.Key, periodKey, pe.Element.Key, collection, pe.Value.String()},
				auditArgs(pe.Audit)...)...); err != nil {
				return fmt.Errorf("failed to insert personal element: %w", err)
			}
		}
		return nil
	}
	if err := insertPersonal("supplement", e.Supplements); err != nil {
		return err
	}
	if err := insertPersonal("deduction", e.Deductions); err != nil {
		return err
	}

	return tx.Commit()
}

func upsertLeaveType(tx *sql.Tx, lt *payroll.LeaveType) error {
	_, err := tx.Exec(`
		INSERT INTO leave_types (key, name, payable, socially_insured, max_days, percentage, accounting_code)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			name = excluded.name,
			payable = excluded.payable,
			socially_insured = excluded.socially_insured,
			max_days = excluded.max_days,
			percentage = excluded.percentage,
			accounting_code = excluded.accounting_code
	`, lt.Key, lt.Name, lt.Payable, lt.SociallyInsured, lt.MaxDays,
		lt.Percentage.String(), lt.AccountingCode)
	if err != nil {
		return fmt.Errorf("failed to upsert leave type: %w", err)
	}
	return nil
}

// =============================================================================
// PAYROLL REPOSITORY
// =============================================================================

const payrollCols = `key, institution_id, period_key, enrollment_key,
	employee_ssn, bank_account, bank_key, bank_name, paid_work_days,
	unpaid_absent_days, paid_absent_days, insured_leave_days, gross_salary,
	net_salary, insured_amount, taxed_amount, leave_salary, deductions,
	social_insurance_employee, social_insurance_employer,
	health_insurance_employee, health_insurance_employer,
	additional_insurance, income_tax, social_insurance_base,
	health_insurance_base, tax_base, approved`

func (s *Store) Get(key string) (*payroll.Payroll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, _, err := s.queryOnePayroll(`WHERE key = ?`, key)
	if err != nil || p == nil {
		return p, err
	}
	if err := s.loadLines(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) GetByEnrollment(e *payroll.Enrollment, periodKey string, full bool) (*payroll.Payroll, error) {
	s.mu.RLock()
	p, _, err := s.queryOnePayroll(
		`WHERE enrollment_key = ? AND period_key = ?`, e.Key, periodKey,
	)
	if err == nil && p != nil && full {
		err = s.loadLines(p)
	}
	s.mu.RUnlock()
	if err != nil || p == nil {
		return nil, err
	}

	p.Enrollment = e
	if full {
		if err := s.LoadRelatedElements(e, periodKey); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (s *Store) GetForEmployee(e *payroll.Enrollment, periodKey string) ([]*payroll.Payroll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryPayrolls(
		`WHERE employee_ssn = ? AND period_key = ? ORDER BY key`,
		e.Employee.SSN, periodKey,
	)
}

func (s *Store) GetAll(institutionID, periodKey string) ([]*payroll.Payroll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryPayrolls(
		`WHERE institution_id = ? AND period_key = ? ORDER BY key`,
		institutionID, periodKey,
	)
}

func (s *Store) Add(p *payroll.Payroll) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.Key == "" {
		p.Key = uuid.NewString()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO payrolls (`+payrollCols+`, `+auditCols+`)
		VALUES (`+placeholders(34)+`)
	`, payrollArgs(p)...); err != nil {
		return fmt.Errorf("failed to insert payroll: %w", err)
	}
	if err := insertLines(tx, p); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Update(p *payroll.Payroll) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	args := payrollArgs(p)
	// Move the key to the WHERE clause position.
	args = append(args[1:], p.Key)
	if _, err := tx.Exec(`
		UPDATE payrolls SET
			institution_id = ?, period_key = ?, enrollment_key = ?,
			employee_ssn = ?, bank_account = ?, bank_key = ?, bank_name = ?,
			paid_work_days = ?, unpaid_absent_days = ?, paid_absent_days = ?,
			insured_leave_days = ?, gross_salary = ?, net_salary = ?,
			insured_amount = ?, taxed_amount = ?, leave_salary = ?,
			deductions = ?, social_insurance_employee = ?,
			social_insurance_employer = ?, health_insurance_employee = ?,
			health_insurance_employer = ?, additional_insurance = ?,
			income_tax = ?, social_insurance_base = ?,
			health_insurance_base = ?, tax_base = ?, approved = ?,
			created_by = ?, created_on = ?, created_ip = ?,
			modified_by = ?, modified_on = ?, modified_ip = ?
		WHERE key = ?
	`, args...); err != nil {
		return fmt.Errorf("failed to update payroll: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM payroll_lines WHERE payroll_key = ?`, p.Key); err != nil {
		return fmt.Errorf("failed to clear payroll lines: %w", err)
	}
	if err := insertLines(tx, p); err != nil {
		return err
	}
	return tx.Commit()
}

func insertLines(tx *sql.Tx, p *payroll.Payroll) error {
	for _, li := range p.Lines {
		if li.Key == "" {
			li.Key = uuid.NewString()
		}
		var elementKey, contextKey any
		if li.Ref.Element != nil {
			elementKey = li.Ref.Element.Key
		}
		if li.Ref.Context != nil {
			contextKey = li.Ref.Context.Key
		}
		if _, err := tx.Exec(`
			INSERT INTO payroll_lines
			(key, payroll_key, element_key, context_key, version, description,
			 accounting_code, value, context_resolved, evaluation_record, `+auditCols+`)
			VALUES (`+placeholders(16)+`)
		`, append([]any{
			li.Key, p.Key, elementKey, contextKey, li.Version, li.Description,
			li.AccountingCode, li.Value.String(), li.ContextResolved,
			li.EvaluationRecord,
		}, auditArgs(li.Audit)...)...); err != nil {
			return fmt.Errorf("failed to insert payroll line: %w", err)
		}
	}
	return nil
}

func (s *Store) loadLines(p *payroll.Payroll) error {
	rows, err := s.db.Query(`
		SELECT key, element_key, context_key, version, description,
		       accounting_code, value, context_resolved, evaluation_record,
		       `+auditCols+`
		FROM payroll_lines
		WHERE payroll_key = ?
		ORDER BY key
	`, p.Key)
	if err != nil {
		return fmt.Errorf("failed to query payroll lines: %w", err)
	}

	type lineRow struct {
		li         *payroll.LineItem
		elementKey sql.NullString
	}
	var loaded []lineRow
	for rows.Next() {
		var (
			li         payroll.LineItem
			elementKey sql.NullString
			contextKey sql.NullString
			value      string
			audit      auditRow
		)
		args := []any{&li.Key, &elementKey, &contextKey, &li.Version,
			&li.Description, &li.AccountingCode, &value, &li.ContextResolved,
			&li.EvaluationRecord}
		if err := rows.Scan(append(args, audit.targets()...)...); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan payroll line: %w", err)
		}
		if li.Value, err = decimal.NewFromString(value); err != nil {
			rows.Close()
			return err
		}
		li.Audit = audit.toAudit()
		loaded = append(loaded, lineRow{&li, elementKey})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	cache := make(map[string]*payroll.Element)
	for _, r := range loaded {
		if r.elementKey.Valid {
			el, ok := cache[r.elementKey.String]
			if !ok {
				var err error
				el, err = s.elementByKey(r.elementKey.String)
				if err != nil {
					return err
				}
				cache[r.elementKey.String] = el
			}
			if el != nil {
				r.li.Ref = payroll.PlainRef(el)
			}
		}
		p.Lines = append(p.Lines, r.li)
	}
	return nil
}

func (s *Store) queryOnePayroll(where string, args ...any) (*payroll.Payroll, bool, error) {
	ps, err := s.queryPayrolls(where, args...)
	if err != nil {
		return nil, false, err
	}
	if len(ps) == 0 {
		return nil, false, nil
	}
	return ps[0], true, nil
}

func (s *Store) queryPayrolls(where string, args ...any) ([]*payroll.Payroll, error) {
	rows, err := s.db.Query(
		`SELECT `+payrollCols+`, `+auditCols+` FROM payrolls `+where,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query payrolls: %w", err)
	}
	defer rows.Close()

	var out []*payroll.Payroll
	for rows.Next() {
		p, err := scanPayroll(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPayroll(rows *sql.Rows) (*payroll.Payroll, error) {
	var (
		p             payroll.Payroll
		enrollmentKey string
		bankKey       string
		bankName      string
		money         [15]string
		audit         auditRow
	)
	args := []any{
		&p.Key, &p.InstitutionID, &p.PeriodKey, &enrollmentKey,
		&p.EmployeeSSN, &p.BankAccount, &bankKey, &bankName,
		&p.PaidWorkDays, &p.UnpaidAbsentDays, &p.PaidAbsentDays,
		&p.InsuredLeaveDays,
	}
	for i := range money {
		args = append(args, &money[i])
	}
	args = append(args, &p.Approved)
	args = append(args, audit.targets()...)

	if err := rows.Scan(args...); err != nil {
		return nil, fmt.Errorf("failed to scan payroll: %w", err)
	}

	dst := []*decimal.Decimal{
		&p.GrossSalary, &p.NetSalary, &p.InsuredAmount, &p.TaxedAmount,
		&p.LeaveSalary, &p.Deductions,
		&p.SocialInsuranceEmployee, &p.SocialInsuranceEmployer,
		&p.HealthInsuranceEmployee, &p.HealthInsuranceEmployer,
		&p.AdditionalInsurance, &p.IncomeTax,
		&p.SocialInsuranceBase, &p.HealthInsuranceBase, &p.TaxBase,
	}
	for i, str := range money {
		v, err := decimal.NewFromString(str)
		if err != nil {
			return nil, fmt.Errorf("bad monetary value %q: %w", str, err)
		}
		*dst[i] = v
	}

	if bankKey != "" || bankName != "" {
		p.Bank = &payroll.Bank{Key: bankKey, Name: bankName}
	}
	p.Enrollment = &payroll.Enrollment{Key: enrollmentKey}
	p.Audit = audit.toAudit()
	return &p, nil
}

func payrollArgs(p *payroll.Payroll) []any {
	bankKey, bankName := "", ""
	if p.Bank != nil {
		bankKey, bankName = p.Bank.Key, p.Bank.Name
	}
	enrollmentKey := ""
	if p.Enrollment != nil {
		enrollmentKey = p.Enrollment.Key
	}
	args := []any{
		p.Key, p.InstitutionID, p.PeriodKey, enrollmentKey,
		p.EmployeeSSN, p.BankAccount, bankKey, bankName,
		p.PaidWorkDays, p.UnpaidAbsentDays, p.PaidAbsentDays,
		p.InsuredLeaveDays,
		p.GrossSalary.String(), p.NetSalary.String(), p.InsuredAmount.String(),
		p.TaxedAmount.String(), p.LeaveSalary.String(), p.Deductions.String(),
		p.SocialInsuranceEmployee.String(), p.SocialInsuranceEmployer.String(),
		p.HealthInsuranceEmployee.String(), p.HealthInsuranceEmployer.String(),
		p.AdditionalInsurance.String(), p.IncomeTax.String(),
		p.SocialInsuranceBase.String(), p.HealthInsuranceBase.String(),
		p.TaxBase.String(), p.Approved,
	}
	return append(args, auditArgs(p.Audit)...)
}

// =============================================================================
// HOLIDAYS / FIXTURE WRITERS
// =============================================================================

// Holidays returns the institutional holidays inside [from, to].
func (s *Store) Holidays(institutionID string, from, to payroll.Date) ([]payroll.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT day, name FROM holidays
		WHERE institution_id = ? AND day >= ? AND day <= ?
		ORDER BY day
	`, institutionID, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query holidays: %w", err)
	}
	defer rows.Close()

	var out []payroll.Holiday
	for rows.Next() {
		var h payroll.Holiday
		var day string
		if err := rows.Scan(&day, &h.Name); err != nil {
			return nil, fmt.Errorf("failed to scan holiday: %w", err)
		}
		if h.Day, err = payroll.ParseDate(day); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *Store) SaveParameters(p payroll.GeneralParameters) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE parameters SET active = FALSE`); err != nil {
		return fmt.Errorf("failed to deactivate parameters: %w", err)
	}
	if _, err := tx.Exec(`
		INSERT INTO parameters (id, days_per_month, hours_per_day, active)
		VALUES (?, ?, ?, TRUE)
	`, uuid.NewString(), p.DaysPerMonth, p.HoursPerDay); err != nil {
		return fmt.Errorf("failed to insert parameters: %w", err)
	}
	return tx.Commit()
}

// SavePeriod stores a period and, when active, deactivates the
// institution's previous active period.
func (s *Store) SavePeriod(p *payroll.Period, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if active {
		if _, err := tx.Exec(
			`UPDATE periods SET active = FALSE WHERE institution_id = ?`,
			p.InstitutionID,
		); err != nil {
			return fmt.Errorf("failed to deactivate periods: %w", err)
		}
	}
	if p.Key == "" {
		p.Key = uuid.NewString()
	}
	if _, err := tx.Exec(`
		INSERT INTO periods (key, institution_id, year, month, approved, active)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			year = excluded.year, month = excluded.month,
			approved = excluded.approved, active = excluded.active
	`, p.Key, p.InstitutionID, p.Year, int(p.Month), p.Approved, active); err != nil {
		return fmt.Errorf("failed to save period: %w", err)
	}
	return tx.Commit()
}

func (s *Store) SaveBatch(b *payroll.InstitutionBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO institution_batches (institution_id, period_key, approved)
		VALUES (?, ?, ?)
		ON CONFLICT(institution_id, period_key) DO UPDATE SET
			approved = excluded.approved
	`, b.InstitutionID, b.PeriodKey, b.Approved)
	if err != nil {
		return fmt.Errorf("failed to save institution batch: %w", err)
	}
	return nil
}

func (s *Store) SaveElement(el *payroll.Element) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el.Key == "" {
		el.Key = uuid.NewString()
	}
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO elements (`+elementCols+`)
		VALUES (`+placeholders(19)+`)
	`, el.Key, el.Code, el.Name, int(el.Kind), el.Active, el.UserDefined,
		el.Taxable, el.Insured, el.EmployerBorne, el.BasedOnWorkingDays,
		el.BasedOnContractedHours, el.IncludedInLeaveBase, el.ContextOnly,
		el.InPayrollDetail, decArg(el.Value), el.Formula, el.Procedure,
		el.AccountingCode, el.Version)
	if err != nil {
		return fmt.Errorf("failed to save element: %w", err)
	}
	return nil
}

func (s *Store) SaveContext(cx *payroll.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cx.Key == "" {
		cx.Key = uuid.NewString()
	}
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO element_contexts
		(key, element_key, institution_id, org_structure_id, org_group_id,
		 pay_grade_id, active, user_defined, taxable, insured, employer_borne,
		 based_on_contracted_hours, fixed_value, formula, procedure, version)
		VALUES (`+placeholders(16)+`)
	`, cx.Key, cx.Element.Key, cx.InstitutionID, cx.OrgStructureID,
		cx.OrgGroupID, cx.PayGradeID, cx.Active, cx.UserDefined, cx.Taxable,
		cx.Insured, cx.EmployerBorne, cx.BasedOnContractedHours,
		decArg(cx.Value), cx.Formula, cx.Procedure, cx.Version)
	if err != nil {
		return fmt.Errorf("failed to save context: %w", err)
	}
	return nil
}

// AddBracket appends one base-value bracket to an element. A nil upper
// bound leaves the bracket open-ended upward.
func (s *Store) AddBracket(elementKey string, from decimal.Decimal, to *decimal.Decimal, base decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO element_brackets (id, element_key, from_amount, to_amount, base_amount)
		VALUES (?, ?, ?, ?, ?)
	`, uuid.NewString(), elementKey, from.String(), decArg(to), base.String())
	if err != nil {
		return fmt.Errorf("failed to add bracket: %w", err)
	}
	return nil
}

func (s *Store) AddHoliday(institutionID string, h payroll.Holiday) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO holidays (id, institution_id, day, name)
		VALUES (?, ?, ?, ?)
	`, uuid.NewString(), institutionID, h.Day.String(), h.Name)
	if err != nil {
		return fmt.Errorf("failed to add holiday: %w", err)
	}
	return nil
}

// =============================================================================
// SCAN HELPERS
// =============================================================================

const auditCols = `created_by, created_on, created_ip, modified_by, modified_on, modified_ip`

func auditColsPrefixed(alias string) string {
	return alias + ".created_by, " + alias + ".created_on, " + alias + ".created_ip, " +
		alias + ".modified_by, " + alias + ".modified_on, " + alias + ".modified_ip"
}

type auditRow struct {
	createdBy, createdOn, createdIP    sql.NullString
	modifiedBy, modifiedOn, modifiedIP sql.NullString
}

func (a *auditRow) targets() []any {
	return []any{&a.createdBy, &a.createdOn, &a.createdIP,
		&a.modifiedBy, &a.modifiedOn, &a.modifiedIP}
}

func (a *auditRow) toAudit() payroll.Audit {
	return payroll.Audit{
		CreatedBy:  a.createdBy.String,
		CreatedOn:  parseTime(a.createdOn.String),
		CreatedIP:  a.createdIP.String,
		ModifiedBy: a.modifiedBy.String,
		ModifiedOn: parseTime(a.modifiedOn.String),
		ModifiedIP: a.modifiedIP.String,
	}
}

func auditArgs(a payroll.Audit) []any {
	return []any{a.CreatedBy, formatTime(a.CreatedOn), a.CreatedIP,
		a.ModifiedBy, formatTime(a.ModifiedOn), a.ModifiedIP}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func decPtr(v sql.NullString) *decimal.Decimal {
	if !v.Valid || v.String == "" {
		return nil
	}
	d, err := decimal.NewFromString(v.String)
	if err != nil {
		return nil
	}
	return &d
}

func decArg(v *decimal.Decimal) any {
	if v == nil {
		return nil
	}
	return v.String()
}

func placeholders(n int) string {
	out := make([]byte, 0, n*3)
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ", "...)
		}
		out = append(out, '?')
	}
	return string(out)
}
