package payroll_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// STORED PAYROLL READS
// =============================================================================

func TestGetPayroll(t *testing.T) {
	calc, mem := newTestCalculator(t)
	require.NoError(t, mem.Add(&payroll.Payroll{Key: "p-1", InstitutionID: "inst-1"}))

	p, err := calc.GetPayroll("p-1")
	require.NoError(t, err)
	assert.Equal(t, "p-1", p.Key)

	_, err = calc.GetPayroll("")
	assert.ErrorIs(t, err, payroll.ErrInvalidKey)

	_, err = calc.GetPayroll("nope")
	assert.ErrorIs(t, err, payroll.ErrPayrollMissing)
}

func TestGetPayrollByEnrollment_Validation(t *testing.T) {
	calc, _ := newTestCalculator(t)

	_, err := calc.GetPayrollByEnrollment(nil, "2025-09", false)
	assert.ErrorIs(t, err, payroll.ErrNoEnrollment)

	enr := &payroll.Enrollment{Key: "enr-1"}
	_, err = calc.GetPayrollByEnrollment(enr, "2025-09", false)
	assert.ErrorIs(t, err, payroll.ErrNoEmployee)

	enr.Employee = &payroll.Employee{Key: "emp-1"}
	_, err = calc.GetPayrollByEnrollment(enr, "2025-09", false)
	assert.ErrorIs(t, err, payroll.ErrNoPosition)

	enr.Position = &payroll.Position{Key: "pos-1"}
	_, err = calc.GetPayrollByEnrollment(enr, "", false)
	assert.ErrorIs(t, err, payroll.ErrInvalidKey)

	_, err = calc.GetPayrollByEnrollment(enr, "2025-09", false)
	assert.ErrorIs(t, err, payroll.ErrPayrollMissing)
}

func TestGetAllPayrolls_Validation(t *testing.T) {
	calc, _ := newTestCalculator(t)

	_, err := calc.GetAllPayrolls("", "2025-09")
	assert.ErrorIs(t, err, payroll.ErrNoInstitution)

	_, err = calc.GetAllPayrolls("inst-1", "")
	assert.ErrorIs(t, err, payroll.ErrInvalidKey)

	all, err := calc.GetAllPayrolls("inst-1", "2025-09")
	require.NoError(t, err)
	assert.Empty(t, all)
}

// =============================================================================
// MANUAL PAYROLL UPDATE
// =============================================================================

func TestUpdatePayroll(t *testing.T) {
	// GIVEN: A stored, unapproved payroll
	// WHEN: Overwriting it with operator edits
	// THEN: The update lands with a fresh audit stamp

	calc, mem := newTestCalculator(t)
	require.NoError(t, mem.Add(&payroll.Payroll{Key: "p-1", InstitutionID: "inst-1"}))

	edit := &payroll.Payroll{Key: "p-1", InstitutionID: "inst-1", BankAccount: "300-999"}
	updated, err := calc.UpdatePayroll(edit)
	require.NoError(t, err)

	assert.Equal(t, "300-999", updated.BankAccount)
	assert.Equal(t, "tester", updated.Audit.ModifiedBy)
	assert.Equal(t, testNow, updated.Audit.ModifiedOn)

	stored, err := mem.Get("p-1")
	require.NoError(t, err)
	assert.Equal(t, "300-999", stored.BankAccount)
}

func TestUpdatePayroll_Guards(t *testing.T) {
	calc, mem := newTestCalculator(t)

	_, err := calc.UpdatePayroll(&payroll.Payroll{})
	assert.ErrorIs(t, err, payroll.ErrInvalidKey)

	_, err = calc.UpdatePayroll(&payroll.Payroll{Key: "missing"})
	assert.ErrorIs(t, err, payroll.ErrPayrollMissing)

	require.NoError(t, mem.Add(&payroll.Payroll{Key: "p-approved", Approved: true}))
	stored, err := calc.UpdatePayroll(&payroll.Payroll{Key: "p-approved"})
	assert.ErrorIs(t, err, payroll.ErrPayrollApproved)
	require.NotNil(t, stored)
	assert.True(t, stored.Approved, "the stored payroll is returned untouched")
}

// =============================================================================
// ENROLLMENT COLLECTIONS
// =============================================================================

func TestUpdatePayrollRelatedElements_StampsAndSaves(t *testing.T) {
	// GIVEN: An enrollment with one brand-new leave and one existing
	//        working-day override
	// WHEN: Saving the collections
	// THEN: The new record gets a full audit stamp, the existing one only
	//       a modification stamp, and a reload returns both

	calc, _ := newTestCalculator(t)

	enr := newEnrollment()
	enr.Leaves = []*payroll.Leave{{
		Day:  payroll.NewDate(2025, time.September, 3),
		Type: &payroll.LeaveType{Key: "lt-1", Name: "Vacation", Payable: true},
	}}
	enr.WorkDays = []*payroll.WorkDay{{
		Key: "wd-1",
		Day: payroll.NewDate(2025, time.September, 4),
	}}

	require.NoError(t, calc.UpdatePayrollRelatedElements(enr, "2025-09"))

	assert.Equal(t, "tester", enr.Leaves[0].Audit.CreatedBy)
	assert.Equal(t, testNow, enr.Leaves[0].Audit.CreatedOn)
	assert.Empty(t, enr.WorkDays[0].Audit.CreatedBy, "existing records keep their creator")
	assert.Equal(t, "tester", enr.WorkDays[0].Audit.ModifiedBy)

	reload := newEnrollment()
	require.NoError(t, calc.GetPayrollRelatedElements(reload, "2025-09"))
	assert.Len(t, reload.Leaves, 1)
	assert.Len(t, reload.WorkDays, 1)
}

func TestUpdatePayrollRelatedElements_InvalidEnrollment(t *testing.T) {
	calc, _ := newTestCalculator(t)

	assert.ErrorIs(t, calc.UpdatePayrollRelatedElements(nil, "2025-09"), payroll.ErrInvalidKey)
	assert.ErrorIs(t, calc.UpdatePayrollRelatedElements(&payroll.Enrollment{}, "2025-09"), payroll.ErrInvalidKey)
}

func TestGetEmployeeLeaves(t *testing.T) {
	calc, mem := newTestCalculator(t)

	seeded := newEnrollment()
	seeded.Leaves = []*payroll.Leave{{
		Key:  "lv-1",
		Day:  payroll.NewDate(2025, time.September, 3),
		Type: &payroll.LeaveType{Key: "lt-1", Name: "Vacation", Payable: true},
	}}
	mem.SetRelated("enr-1", "2025-09", seeded)

	enr := newEnrollment()
	require.NoError(t, calc.GetEmployeeLeaves(enr, "2025-09"))
	require.Len(t, enr.Leaves, 1)
	assert.Equal(t, "lv-1", enr.Leaves[0].Key)
	assert.Empty(t, enr.WorkDays, "only the leave collection is loaded")

	assert.ErrorIs(t, calc.GetEmployeeLeaves(nil, "2025-09"), payroll.ErrInvalidKey)
}

func TestGetPayrollsForEmployee(t *testing.T) {
	calc, mem := newTestCalculator(t)

	require.NoError(t, mem.Add(&payroll.Payroll{
		Key: "p-1", InstitutionID: "inst-1", PeriodKey: "2025-09", EmployeeSSN: "1505990123456",
	}))
	require.NoError(t, mem.Add(&payroll.Payroll{
		Key: "p-2", InstitutionID: "inst-2", PeriodKey: "2025-09", EmployeeSSN: "1505990123456",
	}))
	require.NoError(t, mem.Add(&payroll.Payroll{
		Key: "p-3", InstitutionID: "inst-1", PeriodKey: "2025-09", EmployeeSSN: "other",
	}))

	all, err := calc.GetPayrollsForEmployee(newEnrollment(), "2025-09")
	require.NoError(t, err)
	assert.Len(t, all, 2, "both positions of the employee, no one else")
}
