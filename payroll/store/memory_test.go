package store_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/payroll/store"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// =============================================================================
// STUB EVALUATOR
// =============================================================================

func TestStubEvaluator_LeftToRight(t *testing.T) {
	ev := store.StubEvaluator{}

	cases := []struct {
		formula string
		want    string
	}{
		{"", "0"},
		{"42", "42"},
		{"10 + 5 * 2", "30"}, // strictly left to right, no precedence
		{"100 - 30 - 20", "50"},
		{"9 / 3", "3"},
	}
	for _, tc := range cases {
		v, err := ev.Evaluate(payroll.EvalRequest{Formula: tc.formula})
		require.NoError(t, err, "formula %q", tc.formula)
		assert.Equal(t, tc.want, v.String(), "formula %q", tc.formula)
	}
}

func TestStubEvaluator_Variables(t *testing.T) {
	// GIVEN: A namespace with produced factors
	// WHEN: Evaluating a formula referencing them
	// THEN: Known names resolve; a factor absent from the namespace is a
	//       formula error, never a silent zero

	ev := store.StubEvaluator{}
	vars := map[string]decimal.Decimal{
		"C": dec("100000"),
		"m": dec("90000"),
	}

	v, err := ev.Evaluate(payroll.EvalRequest{Formula: "C * 0.2", Vars: vars})
	require.NoError(t, err)
	assert.Equal(t, "20000", v.String())

	v, err = ev.Evaluate(payroll.EvalRequest{Formula: "C - m", Vars: vars})
	require.NoError(t, err)
	assert.Equal(t, "10000", v.String())

	_, err = ev.Evaluate(payroll.EvalRequest{Formula: "C - m + missing", Vars: vars})
	var fe *store.FormulaError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "missing", fe.Token)
}

func TestStubEvaluator_Errors(t *testing.T) {
	ev := store.StubEvaluator{}

	_, err := ev.Evaluate(payroll.EvalRequest{Formula: "10 / 0"})
	require.Error(t, err)

	_, err = ev.Evaluate(payroll.EvalRequest{Formula: "10 % 3"})
	require.Error(t, err)
	var fe *store.FormulaError
	assert.ErrorAs(t, err, &fe)
	assert.Equal(t, "%", fe.Token)
}

// =============================================================================
// BRACKET LOOKUP
// =============================================================================

func TestMemory_BracketBase(t *testing.T) {
	mem := store.NewMemory()
	upper := dec("50000")
	mem.AddBracket("el-soc", store.Bracket{From: dec("0"), To: &upper, Base: dec("30000")})
	mem.AddBracket("el-soc", store.Bracket{From: dec("50001"), Base: dec("60000")})

	base, err := mem.BracketBase("el-soc", dec("40000"))
	require.NoError(t, err)
	assert.Equal(t, "30000", base.String())

	base, err = mem.BracketBase("el-soc", dec("50000"))
	require.NoError(t, err)
	assert.Equal(t, "30000", base.String(), "upper bound is inclusive")

	base, err = mem.BracketBase("el-soc", dec("120000"))
	require.NoError(t, err)
	assert.Equal(t, "60000", base.String(), "open-ended bracket")

	base, err = mem.BracketBase("el-unknown", dec("120000"))
	require.NoError(t, err)
	assert.True(t, base.IsZero(), "no bracket means zero")
}

// =============================================================================
// CONTEXT LOOKUPS
// =============================================================================

func TestMemory_ContextLookups(t *testing.T) {
	mem := store.NewMemory()
	el := &payroll.Element{Key: "el-1", Code: "E1", Kind: payroll.KindBaseSalary, Active: true}
	mem.AddElement(el)

	grade := &payroll.Context{Key: "cx-grade", Element: el, PayGradeID: "grade-1", Active: true}
	inst := &payroll.Context{Key: "cx-inst", Element: el, InstitutionID: "inst-1", Active: true}
	full := &payroll.Context{
		Key: "cx-full", Element: el,
		InstitutionID: "inst-1", OrgStructureID: "str-1", OrgGroupID: "grp-1", Active: true,
	}
	mem.AddContext(grade)
	mem.AddContext(inst)
	mem.AddContext(full)

	byGrade, err := mem.ContextsByPayGrade("grade-1")
	require.NoError(t, err)
	require.Len(t, byGrade, 1)
	assert.Equal(t, "cx-grade", byGrade[0].Key)

	// Scope lookups match the exact field combination; pay-grade
	// contexts never show up in them.
	byScope, err := mem.ContextsByScope("inst-1", "", "")
	require.NoError(t, err)
	require.Len(t, byScope, 1)
	assert.Equal(t, "cx-inst", byScope[0].Key)

	byScope, err = mem.ContextsByScope("inst-1", "str-1", "grp-1")
	require.NoError(t, err)
	require.Len(t, byScope, 1)
	assert.Equal(t, "cx-full", byScope[0].Key)

	forEl, err := mem.ContextsForElement("el-1", "inst-1", "", "")
	require.NoError(t, err)
	require.Len(t, forEl, 1)
	assert.Equal(t, "cx-inst", forEl[0].Key)
}

// =============================================================================
// PAYROLL REPOSITORY
// =============================================================================

func TestMemory_PayrollKeysMinted(t *testing.T) {
	mem := store.NewMemory()
	p := &payroll.Payroll{
		InstitutionID: "inst-1",
		PeriodKey:     "2025-09",
		Enrollment:    &payroll.Enrollment{Key: "enr-1", Employee: &payroll.Employee{Key: "emp-1", SSN: "123"}},
		Lines:         []*payroll.LineItem{{Description: "Base salary"}},
	}

	require.NoError(t, mem.Add(p))
	assert.NotEmpty(t, p.Key)
	assert.NotEmpty(t, p.Lines[0].Key)

	found, err := mem.GetByEnrollment(p.Enrollment, "2025-09", false)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, p.Key, found.Key)

	missing, err := mem.GetByEnrollment(&payroll.Enrollment{Key: "enr-2"}, "2025-09", false)
	require.NoError(t, err)
	assert.Nil(t, missing)
}
