/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Monetary values travel as decimal strings ("125000"), never as JSON
  floats. Clients parse them with their own decimal library.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - server.go: Router setup
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// BankDTO identifies the employee's bank.
type BankDTO struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// EmployeeDTO carries the identity a calculation needs.
type EmployeeDTO struct {
	Key         string       `json:"key"`
	FirstName   string       `json:"first_name"`
	LastName    string       `json:"last_name"`
	SSN         string       `json:"ssn"`
	DateOfBirth payroll.Date `json:"date_of_birth"`
	BankAccount string       `json:"bank_account"`
	Bank        *BankDTO     `json:"bank,omitempty"`
}

// PositionDTO locates the employee in the organization.
type PositionDTO struct {
	Key            string `json:"key"`
	Name           string `json:"name"`
	PayGradeID     string `json:"pay_grade_id"`
	OrgStructureID string `json:"org_structure_id"`
	OrgGroupID     string `json:"org_group_id"`
}

// EnrollmentDTO is one employee/position pairing.
type EnrollmentDTO struct {
	Key             string        `json:"key"`
	Employee        *EmployeeDTO  `json:"employee,omitempty"`
	Position        *PositionDTO  `json:"position,omitempty"`
	StartFrom       payroll.Date  `json:"start_from"`
	EndTo           *payroll.Date `json:"end_to,omitempty"`
	Contracted      bool          `json:"contracted"`
	ContractedHours int           `json:"contracted_hours"`
}

// CalculateRequest asks for one payroll run.
type CalculateRequest struct {
	InstitutionID string        `json:"institution_id"`
	Enrollment    EnrollmentDTO `json:"enrollment"`

	// PreviousPayrollKey merges an already calculated payroll of the same
	// employee into the statutory stages. Only honored by the detailed
	// endpoint.
	PreviousPayrollKey string `json:"previous_payroll_key,omitempty"`
}

// UpdatePayrollRequest carries the mutable fields of a stored payroll.
type UpdatePayrollRequest struct {
	Approved    *bool   `json:"approved,omitempty"`
	BankAccount *string `json:"bank_account,omitempty"`
	Bank        *BankDTO `json:"bank,omitempty"`
}

// LineItemDTO is one evaluated element on a payroll.
type LineItemDTO struct {
	Key             string `json:"key"`
	ElementCode     string `json:"element_code,omitempty"`
	Description     string `json:"description"`
	AccountingCode  string `json:"accounting_code,omitempty"`
	Value           string `json:"value"`
	ContextResolved bool   `json:"context_resolved"`
	Version         int    `json:"version"`
}

// PayrollDTO is a calculated payroll in API responses.
type PayrollDTO struct {
	Key           string `json:"key"`
	InstitutionID string `json:"institution_id"`
	PeriodKey     string `json:"period_key"`
	EnrollmentKey string `json:"enrollment_key,omitempty"`
	EmployeeSSN   string `json:"employee_ssn"`
	BankAccount   string `json:"bank_account,omitempty"`
	Bank          *BankDTO `json:"bank,omitempty"`

	PaidWorkDays     int `json:"paid_work_days"`
	UnpaidAbsentDays int `json:"unpaid_absent_days"`
	PaidAbsentDays   int `json:"paid_absent_days"`
	InsuredLeaveDays int `json:"insured_leave_days"`

	GrossSalary   string `json:"gross_salary"`
	NetSalary     string `json:"net_salary"`
	InsuredAmount string `json:"insured_amount"`
	TaxedAmount   string `json:"taxed_amount"`
	LeaveSalary   string `json:"leave_salary"`
	Deductions    string `json:"deductions"`

	SocialInsuranceEmployee string `json:"social_insurance_employee"`
	SocialInsuranceEmployer string `json:"social_insurance_employer"`
	HealthInsuranceEmployee string `json:"health_insurance_employee"`
	HealthInsuranceEmployer string `json:"health_insurance_employer"`
	AdditionalInsurance     string `json:"additional_insurance"`
	IncomeTax               string `json:"income_tax"`

	SocialInsuranceBase string `json:"social_insurance_base"`
	HealthInsuranceBase string `json:"health_insurance_base"`
	TaxBase             string `json:"tax_base"`

	Approved bool          `json:"approved"`
	Lines    []LineItemDTO `json:"lines,omitempty"`
}

// CalculationResultDTO is the outcome of a calculation run.
type CalculationResultDTO struct {
	OK      bool        `json:"ok"`
	Message string      `json:"message,omitempty"`
	Log     []string    `json:"log,omitempty"`
	Payroll *PayrollDTO `json:"payroll,omitempty"`
}

// WorkDayDTO is a logged working-day override.
type WorkDayDTO struct {
	Key     string       `json:"key,omitempty"`
	Day     payroll.Date `json:"day"`
	Payable bool         `json:"payable"`
	Hours   string       `json:"hours"`
}

// LeaveTypeDTO classifies a leave day.
type LeaveTypeDTO struct {
	Key             string `json:"key"`
	Name            string `json:"name"`
	Payable         bool   `json:"payable"`
	SociallyInsured bool   `json:"socially_insured"`
	MaxDays         int    `json:"max_days"`
	Percentage      string `json:"percentage"`
	AccountingCode  string `json:"accounting_code,omitempty"`
}

// LeaveDTO is one day of leave.
type LeaveDTO struct {
	Key    string       `json:"key,omitempty"`
	Day    payroll.Date `json:"day"`
	Type   LeaveTypeDTO `json:"type"`
	Active bool         `json:"active"`
}

// OvertimeDTO is one day of overtime hours.
type OvertimeDTO struct {
	Key   string       `json:"key,omitempty"`
	Day   payroll.Date `json:"day"`
	Hours string       `json:"hours"`
}

// PersonalElementDTO attaches an element to one employee with a value.
type PersonalElementDTO struct {
	Key        string `json:"key,omitempty"`
	ElementKey string `json:"element_key"`
	Value      string `json:"value"`
}

// RelatedElementsDTO bundles the per-period enrollment collections.
type RelatedElementsDTO struct {
	WorkDays    []WorkDayDTO         `json:"work_days"`
	Leaves      []LeaveDTO           `json:"leaves"`
	Overtime    []OvertimeDTO        `json:"overtime"`
	Supplements []PersonalElementDTO `json:"supplements"`
	Deductions  []PersonalElementDTO `json:"deductions"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toPayrollDTO(p *payroll.Payroll) *PayrollDTO {
	if p == nil {
		return nil
	}
	dto := &PayrollDTO{
		Key:           p.Key,
		InstitutionID: p.InstitutionID,
		PeriodKey:     p.PeriodKey,
		EmployeeSSN:   p.EmployeeSSN,
		BankAccount:   p.BankAccount,

		PaidWorkDays:     p.PaidWorkDays,
		UnpaidAbsentDays: p.UnpaidAbsentDays,
		PaidAbsentDays:   p.PaidAbsentDays,
		InsuredLeaveDays: p.InsuredLeaveDays,

		GrossSalary:   p.GrossSalary.String(),
		NetSalary:     p.NetSalary.String(),
		InsuredAmount: p.InsuredAmount.String(),
		TaxedAmount:   p.TaxedAmount.String(),
		LeaveSalary:   p.LeaveSalary.String(),
		Deductions:    p.Deductions.String(),

		SocialInsuranceEmployee: p.SocialInsuranceEmployee.String(),
		SocialInsuranceEmployer: p.SocialInsuranceEmployer.String(),
		HealthInsuranceEmployee: p.HealthInsuranceEmployee.String(),
		HealthInsuranceEmployer: p.HealthInsuranceEmployer.String(),
		AdditionalInsurance:     p.AdditionalInsurance.String(),
		IncomeTax:               p.IncomeTax.String(),

		SocialInsuranceBase: p.SocialInsuranceBase.String(),
		HealthInsuranceBase: p.HealthInsuranceBase.String(),
		TaxBase:             p.TaxBase.String(),

		Approved: p.Approved,
	}
	if p.Enrollment != nil {
		dto.EnrollmentKey = p.Enrollment.Key
	}
	if p.Bank != nil {
		dto.Bank = &BankDTO{Key: p.Bank.Key, Name: p.Bank.Name}
	}
	for _, li := range p.Lines {
		line := LineItemDTO{
			Key:             li.Key,
			Description:     li.Description,
			AccountingCode:  li.AccountingCode,
			Value:           li.Value.String(),
			ContextResolved: li.ContextResolved,
			Version:         li.Version,
		}
		if li.Ref.Element != nil {
			line.ElementCode = li.Ref.Element.Code
		}
		dto.Lines = append(dto.Lines, line)
	}
	return dto
}

func toResultDTO(res payroll.Result) CalculationResultDTO {
	return CalculationResultDTO{
		OK:      res.OK,
		Message: res.Message,
		Log:     res.Log,
		Payroll: toPayrollDTO(res.Payroll),
	}
}

func toEnrollment(dto EnrollmentDTO) *payroll.Enrollment {
	e := &payroll.Enrollment{
		Key:             dto.Key,
		StartFrom:       dto.StartFrom,
		EndTo:           dto.EndTo,
		Contracted:      dto.Contracted,
		ContractedHours: dto.ContractedHours,
	}
	if dto.Employee != nil {
		e.Employee = &payroll.Employee{
			Key:         dto.Employee.Key,
			FirstName:   dto.Employee.FirstName,
			LastName:    dto.Employee.LastName,
			SSN:         dto.Employee.SSN,
			DateOfBirth: dto.Employee.DateOfBirth,
			BankAccount: dto.Employee.BankAccount,
		}
		if dto.Employee.Bank != nil {
			e.Employee.Bank = &payroll.Bank{
				Key:  dto.Employee.Bank.Key,
				Name: dto.Employee.Bank.Name,
			}
		}
	}
	if dto.Position != nil {
		e.Position = &payroll.Position{
			Key:            dto.Position.Key,
			Name:           dto.Position.Name,
			PayGradeID:     dto.Position.PayGradeID,
			OrgStructureID: dto.Position.OrgStructureID,
			OrgGroupID:     dto.Position.OrgGroupID,
		}
	}
	return e
}

func toRelatedElementsDTO(e *payroll.Enrollment) RelatedElementsDTO {
	dto := RelatedElementsDTO{
		WorkDays:    []WorkDayDTO{},
		Leaves:      []LeaveDTO{},
		Overtime:    []OvertimeDTO{},
		Supplements: []PersonalElementDTO{},
		Deductions:  []PersonalElementDTO{},
	}
	for _, wd := range e.WorkDays {
		dto.WorkDays = append(dto.WorkDays, WorkDayDTO{
			Key: wd.Key, Day: wd.Day, Payable: wd.Payable, Hours: wd.Hours.String(),
		})
	}
	for _, lv := range e.Leaves {
		dto.Leaves = append(dto.Leaves, LeaveDTO{
			Key: lv.Key, Day: lv.Day, Active: lv.Active,
			Type: LeaveTypeDTO{
				Key:             lv.Type.Key,
				Name:            lv.Type.Name,
				Payable:         lv.Type.Payable,
				SociallyInsured: lv.Type.SociallyInsured,
				MaxDays:         lv.Type.MaxDays,
				Percentage:      lv.Type.Percentage.String(),
				AccountingCode:  lv.Type.AccountingCode,
			},
		})
	}
	for _, ot := range e.Overtime {
		dto.Overtime = append(dto.Overtime, OvertimeDTO{
			Key: ot.Key, Day: ot.Day, Hours: ot.Hours.String(),
		})
	}
	for _, pe := range e.Supplements {
		dto.Supplements = append(dto.Supplements, toPersonalElementDTO(pe))
	}
	for _, pe := range e.Deductions {
		dto.Deductions = append(dto.Deductions, toPersonalElementDTO(pe))
	}
	return dto
}

func toPersonalElementDTO(pe *payroll.PersonalElement) PersonalElementDTO {
	dto := PersonalElementDTO{Key: pe.Key, Value: pe.Value.String()}
	if pe.Element != nil {
		dto.ElementKey = pe.Element.Key
	}
	return dto
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
