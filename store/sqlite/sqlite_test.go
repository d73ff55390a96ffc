package sqlite_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	v := dec(s)
	return &v
}

// =============================================================================
// PERIODS, PARAMETERS, BATCHES
// =============================================================================

func TestStore_ActiveParameters(t *testing.T) {
	// GIVEN: Two parameter sets saved in sequence
	// WHEN: Reading the active set
	// THEN: Only the last save is active

	store := newTestStore(t)
	require.NoError(t, store.SaveParameters(payroll.GeneralParameters{DaysPerMonth: 21, HoursPerDay: 7}))
	require.NoError(t, store.SaveParameters(payroll.GeneralParameters{DaysPerMonth: 22, HoursPerDay: 8}))

	params, err := store.ActiveParameters()
	require.NoError(t, err)
	assert.Equal(t, 22, params.DaysPerMonth)
	assert.Equal(t, 8, params.HoursPerDay)
}

func TestStore_ActivePeriod(t *testing.T) {
	// GIVEN: An institution with two periods, the later one active
	// WHEN: Resolving the active period
	// THEN: The earlier one was deactivated by the later save

	store := newTestStore(t)
	require.NoError(t, store.SavePeriod(&payroll.Period{
		Key: "2025-08", InstitutionID: "inst-1", Year: 2025, Month: time.August,
	}, true))
	require.NoError(t, store.SavePeriod(&payroll.Period{
		Key: "2025-09", InstitutionID: "inst-1", Year: 2025, Month: time.September,
	}, true))

	p, err := store.ActivePeriod("inst-1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "2025-09", p.Key)
	assert.Equal(t, 2025, p.Year)
	assert.Equal(t, time.September, p.Month)

	none, err := store.ActivePeriod("inst-unknown")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestStore_InstitutionBatch(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SaveBatch(&payroll.InstitutionBatch{
		InstitutionID: "inst-1", PeriodKey: "2025-09",
	}))

	b, err := store.InstitutionBatch("inst-1", "2025-09")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.False(t, b.Approved)

	// Re-saving flips approval in place.
	require.NoError(t, store.SaveBatch(&payroll.InstitutionBatch{
		InstitutionID: "inst-1", PeriodKey: "2025-09", Approved: true,
	}))
	b, err = store.InstitutionBatch("inst-1", "2025-09")
	require.NoError(t, err)
	assert.True(t, b.Approved)

	none, err := store.InstitutionBatch("inst-1", "2025-10")
	require.NoError(t, err)
	assert.Nil(t, none)
}

// =============================================================================
// ELEMENT CATALOG
// =============================================================================

func TestStore_ElementRoundTrip(t *testing.T) {
	store := newTestStore(t)
	el := &payroll.Element{
		Key: "el-base", Code: "E1", Name: "Base salary",
		Kind: payroll.KindBaseSalary, Active: true,
		BasedOnWorkingDays: true, IncludedInLeaveBase: true,
		Value: decPtr("100000"), AccountingCode: "411", Version: 3,
	}
	require.NoError(t, store.SaveElement(el))

	byKind, err := store.ElementsByKind(payroll.KindBaseSalary)
	require.NoError(t, err)
	require.Len(t, byKind, 1)
	got := byKind[0]
	assert.Equal(t, "E1", got.Code)
	assert.True(t, got.BasedOnWorkingDays)
	assert.True(t, got.IncludedInLeaveBase)
	require.NotNil(t, got.Value)
	assert.Equal(t, "100000", got.Value.String())
	assert.Equal(t, 3, got.Version)

	byKey, err := store.ElementByKey("el-base")
	require.NoError(t, err)
	require.NotNil(t, byKey)
	assert.Equal(t, "Base salary", byKey.Name)

	missing, err := store.ElementByKey("el-none")
	require.NoError(t, err)
	assert.Nil(t, missing)

	// A nil fixed value survives the round trip as nil.
	require.NoError(t, store.SaveElement(&payroll.Element{
		Key: "el-soc", Code: "SOC", Name: "Social", Kind: payroll.KindSocialInsurance,
		Active: true, Formula: "C * 0.2",
	}))
	soc, err := store.ElementByKey("el-soc")
	require.NoError(t, err)
	assert.Nil(t, soc.Value)
	assert.Equal(t, "C * 0.2", soc.Formula)
}

func TestStore_ContextLookups(t *testing.T) {
	// GIVEN: A pay-grade context and two scope contexts on one element
	// WHEN: Running the three context lookups
	// THEN: Each returns exactly its matching contexts, with the element
	//       hydrated

	store := newTestStore(t)
	el := &payroll.Element{Key: "el-base", Code: "E1", Name: "Base salary", Kind: payroll.KindBaseSalary, Active: true}
	require.NoError(t, store.SaveElement(el))

	require.NoError(t, store.SaveContext(&payroll.Context{
		Key: "cx-grade", Element: el, PayGradeID: "grade-1",
		Active: true, UserDefined: true, Value: decPtr("100000"),
	}))
	require.NoError(t, store.SaveContext(&payroll.Context{
		Key: "cx-inst", Element: el, InstitutionID: "inst-1", Active: true, Formula: "b * 0.1",
	}))
	require.NoError(t, store.SaveContext(&payroll.Context{
		Key: "cx-full", Element: el,
		InstitutionID: "inst-1", OrgStructureID: "str-1", OrgGroupID: "grp-1", Active: true,
	}))

	byGrade, err := store.ContextsByPayGrade("grade-1")
	require.NoError(t, err)
	require.Len(t, byGrade, 1)
	assert.Equal(t, "cx-grade", byGrade[0].Key)
	require.NotNil(t, byGrade[0].Element)
	assert.Equal(t, "E1", byGrade[0].Element.Code)
	require.NotNil(t, byGrade[0].Value)
	assert.Equal(t, "100000", byGrade[0].Value.String())

	byScope, err := store.ContextsByScope("inst-1", "", "")
	require.NoError(t, err)
	require.Len(t, byScope, 1)
	assert.Equal(t, "cx-inst", byScope[0].Key)
	assert.Equal(t, "b * 0.1", byScope[0].Formula)

	forEl, err := store.ContextsForElement("el-base", "inst-1", "str-1", "grp-1")
	require.NoError(t, err)
	require.Len(t, forEl, 1)
	assert.Equal(t, "cx-full", forEl[0].Key)
}

func TestStore_BracketBase(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SaveElement(&payroll.Element{
		Key: "el-soc", Code: "SOC", Name: "Social", Kind: payroll.KindSocialInsurance, Active: true,
	}))
	require.NoError(t, store.AddBracket("el-soc", dec("0"), decPtr("50000"), dec("30000")))
	require.NoError(t, store.AddBracket("el-soc", dec("50001"), nil, dec("60000")))

	base, err := store.BracketBase("el-soc", dec("40000"))
	require.NoError(t, err)
	assert.Equal(t, "30000", base.String())

	base, err = store.BracketBase("el-soc", dec("80000"))
	require.NoError(t, err)
	assert.Equal(t, "60000", base.String())

	base, err = store.BracketBase("el-none", dec("80000"))
	require.NoError(t, err)
	assert.True(t, base.IsZero())
}

// =============================================================================
// ENROLLMENT COLLECTIONS
// =============================================================================

func TestStore_RelatedElementsRoundTrip(t *testing.T) {
	// GIVEN: An enrollment with one of each per-period record
	// WHEN: Saving and reloading the collections
	// THEN: Everything comes back with keys minted and references resolved

	store := newTestStore(t)
	require.NoError(t, store.SaveElement(&payroll.Element{
		Key: "el-sup", Code: "SUP", Name: "Night work", Kind: payroll.KindSupplement,
		Active: true, UserDefined: true,
	}))
	require.NoError(t, store.SaveElement(&payroll.Element{
		Key: "el-ded", Code: "LOAN", Name: "Loan installment", Kind: payroll.KindDeduction,
		Active: true, UserDefined: true,
	}))

	enr := &payroll.Enrollment{Key: "enr-1"}
	enr.WorkDays = []*payroll.WorkDay{{
		Day: payroll.NewDate(2025, time.September, 3), Payable: false, Hours: dec("8"),
	}}
	enr.Leaves = []*payroll.Leave{{
		Day: payroll.NewDate(2025, time.September, 4),
		Type: &payroll.LeaveType{
			Key: "lt-sick", Name: "Sick leave", Payable: true, SociallyInsured: true,
			MaxDays: 60, Percentage: dec("70"), AccountingCode: "414",
		},
		Active: true,
	}}
	enr.Overtime = []*payroll.OvertimeRecord{{
		Day: payroll.NewDate(2025, time.September, 5), Hours: dec("2.5"),
	}}
	enr.Supplements = []*payroll.PersonalElement{{
		Element: &payroll.Element{Key: "el-sup"}, Value: dec("5000"),
	}}
	enr.Deductions = []*payroll.PersonalElement{{
		Element: &payroll.Element{Key: "el-ded"}, Value: dec("2000"),
	}}

	require.NoError(t, store.SaveRelatedElements(enr, "2025-09"))
	assert.NotEmpty(t, enr.Leaves[0].Key, "keys are minted on save")

	loaded := &payroll.Enrollment{Key: "enr-1"}
	require.NoError(t, store.LoadRelatedElements(loaded, "2025-09"))

	require.Len(t, loaded.WorkDays, 1)
	assert.Equal(t, "2025-09-03", loaded.WorkDays[0].Day.String())
	assert.False(t, loaded.WorkDays[0].Payable)
	assert.Equal(t, "8", loaded.WorkDays[0].Hours.String())

	require.Len(t, loaded.Leaves, 1)
	lv := loaded.Leaves[0]
	assert.True(t, lv.Active)
	require.NotNil(t, lv.Type)
	assert.Equal(t, "Sick leave", lv.Type.Name)
	assert.True(t, lv.Type.SociallyInsured)
	assert.Equal(t, 60, lv.Type.MaxDays)
	assert.Equal(t, "70", lv.Type.Percentage.String())

	require.Len(t, loaded.Overtime, 1)
	assert.Equal(t, "2.5", loaded.Overtime[0].Hours.String())

	require.Len(t, loaded.Supplements, 1)
	require.NotNil(t, loaded.Supplements[0].Element)
	assert.Equal(t, "Night work", loaded.Supplements[0].Element.Name, "element resolved from the catalog")
	assert.Equal(t, "5000", loaded.Supplements[0].Value.String())

	require.Len(t, loaded.Deductions, 1)
	assert.Equal(t, "LOAN", loaded.Deductions[0].Element.Code)
}

func TestStore_SaveRelatedElementsReplaces(t *testing.T) {
	// Saving again replaces the stored collections instead of appending.

	store := newTestStore(t)
	enr := &payroll.Enrollment{Key: "enr-1"}
	enr.WorkDays = []*payroll.WorkDay{
		{Day: payroll.NewDate(2025, time.September, 3), Hours: dec("8")},
		{Day: payroll.NewDate(2025, time.September, 4), Hours: dec("8")},
	}
	require.NoError(t, store.SaveRelatedElements(enr, "2025-09"))

	enr.WorkDays = enr.WorkDays[:1]
	require.NoError(t, store.SaveRelatedElements(enr, "2025-09"))

	loaded := &payroll.Enrollment{Key: "enr-1"}
	require.NoError(t, store.LoadRelatedElements(loaded, "2025-09"))
	assert.Len(t, loaded.WorkDays, 1)
}

func TestStore_LoadLeavesOnly(t *testing.T) {
	store := newTestStore(t)
	enr := &payroll.Enrollment{Key: "enr-1"}
	enr.Leaves = []*payroll.Leave{{
		Day:    payroll.NewDate(2025, time.September, 4),
		Type:   &payroll.LeaveType{Key: "lt-1", Name: "Vacation", Payable: true},
		Active: true,
	}}
	enr.WorkDays = []*payroll.WorkDay{{Day: payroll.NewDate(2025, time.September, 3), Hours: dec("8")}}
	require.NoError(t, store.SaveRelatedElements(enr, "2025-09"))

	loaded := &payroll.Enrollment{Key: "enr-1"}
	require.NoError(t, store.LoadLeaves(loaded, "2025-09"))
	assert.Len(t, loaded.Leaves, 1)
	assert.Empty(t, loaded.WorkDays)
}

// =============================================================================
// PAYROLLS
// =============================================================================

func storedPayroll(enrKey string) *payroll.Payroll {
	return &payroll.Payroll{
		InstitutionID: "inst-1",
		PeriodKey:     "2025-09",
		Enrollment:    &payroll.Enrollment{Key: enrKey},
		EmployeeSSN:   "1505990123456",
		BankAccount:   "200-123",
		Bank:          &payroll.Bank{Key: "bank-1", Name: "First Bank"},
		PaidWorkDays:  22,
		GrossSalary:   dec("100000"),
		NetSalary:     dec("65000"),
		InsuredAmount: dec("100000"),
		TaxedAmount:   dec("100000"),
		IncomeTax:     dec("10000"),
		Lines: []*payroll.LineItem{
			{
				Description:      "Base salary",
				AccountingCode:   "411",
				Value:            dec("100000"),
				Version:          1,
				EvaluationRecord: `{"code":"E1"}`,
			},
			{
				Description: "Sick leave",
				Version:     payroll.SyntheticLeaveVersion,
				Value:       dec("15909"),
			},
		},
	}
}

func TestStore_PayrollRoundTrip(t *testing.T) {
	store := newTestStore(t)
	p := storedPayroll("enr-1")

	require.NoError(t, store.Add(p))
	require.NotEmpty(t, p.Key)
	require.NotEmpty(t, p.Lines[0].Key)

	got, err := store.Get(p.Key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "100000", got.GrossSalary.String())
	assert.Equal(t, "65000", got.NetSalary.String())
	assert.Equal(t, 22, got.PaidWorkDays)
	require.NotNil(t, got.Bank)
	assert.Equal(t, "First Bank", got.Bank.Name)

	require.Len(t, got.Lines, 2)
	assert.Equal(t, "Base salary", got.Lines[0].Description)
	assert.Equal(t, `{"code":"E1"}`, got.Lines[0].EvaluationRecord)
	assert.Equal(t, payroll.SyntheticLeaveVersion, got.Lines[1].Version)

	missing, err := store.Get("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStore_PayrollUpdateReplacesLines(t *testing.T) {
	store := newTestStore(t)
	p := storedPayroll("enr-1")
	require.NoError(t, store.Add(p))

	p.NetSalary = dec("60000")
	p.Lines = []*payroll.LineItem{{Description: "Base salary", Value: dec("95000")}}
	require.NoError(t, store.Update(p))

	got, err := store.Get(p.Key)
	require.NoError(t, err)
	assert.Equal(t, "60000", got.NetSalary.String())
	require.Len(t, got.Lines, 1)
	assert.Equal(t, "95000", got.Lines[0].Value.String())
}

func TestStore_GetByEnrollmentAndGetAll(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Add(storedPayroll("enr-1")))

	p2 := storedPayroll("enr-2")
	p2.EmployeeSSN = "other"
	require.NoError(t, store.Add(p2))

	enr := &payroll.Enrollment{Key: "enr-1", Employee: &payroll.Employee{Key: "emp-1", SSN: "1505990123456"}}
	found, err := store.GetByEnrollment(enr, "2025-09", false)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Same(t, enr, found.Enrollment)

	none, err := store.GetByEnrollment(&payroll.Enrollment{Key: "enr-3"}, "2025-09", false)
	require.NoError(t, err)
	assert.Nil(t, none)

	all, err := store.GetAll("inst-1", "2025-09")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := store.GetForEmployee(enr, "2025-09")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "1505990123456", mine[0].EmployeeSSN)
}

// =============================================================================
// HOLIDAYS
// =============================================================================

func TestStore_Holidays(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.AddHoliday("inst-1", payroll.Holiday{
		Day: payroll.NewDate(2025, time.September, 8), Name: "Founding day",
	}))
	require.NoError(t, store.AddHoliday("inst-1", payroll.Holiday{
		Day: payroll.NewDate(2025, time.October, 1), Name: "Outside the period",
	}))

	hs, err := store.Holidays("inst-1",
		payroll.NewDate(2025, time.September, 1),
		payroll.NewDate(2025, time.September, 30),
	)
	require.NoError(t, err)
	require.Len(t, hs, 1)
	assert.Equal(t, "Founding day", hs[0].Name)
	assert.Equal(t, "2025-09-08", hs[0].Day.String())
}
