package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/api"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/payroll/store"
	"github.com/warp/payroll-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) (*httptest.Server, *sqlite.Store) {
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := logrus.New()
	log.SetOutput(io.Discard)

	calc, err := payroll.NewCalculator(payroll.Config{
		Payrolls:    db,
		Enrollments: db,
		Periods:     db,
		Parameters:  db,
		Batches:     db,
		Elements:    db,
		Evaluator:   store.StubEvaluator{},
		Security:    store.Operator{User: "tester", Addr: "10.0.0.1"},
		Logger:      log,
		Now:         func() time.Time { return time.Date(2025, time.September, 15, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)

	srv := httptest.NewServer(api.NewRouter(api.NewHandler(calc, db)))
	t.Cleanup(srv.Close)
	return srv, db
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	v := dec(s)
	return &v
}

// seedInstitution registers the statutory norms, the active September
// 2025 period and batch, a base salary context for pay grade "grade-1",
// and the statutory withholding elements.
func seedInstitution(t *testing.T, db *sqlite.Store) {
	require.NoError(t, db.SaveParameters(payroll.GeneralParameters{DaysPerMonth: 22, HoursPerDay: 8}))
	require.NoError(t, db.SavePeriod(&payroll.Period{
		Key: "2025-09", InstitutionID: "inst-1", Year: 2025, Month: time.September,
	}, true))
	require.NoError(t, db.SaveBatch(&payroll.InstitutionBatch{
		InstitutionID: "inst-1", PeriodKey: "2025-09",
	}))

	base := &payroll.Element{
		Key: "el-base", Code: "E1", Name: "Base salary", Kind: payroll.KindBaseSalary,
		Active: true, BasedOnWorkingDays: true, IncludedInLeaveBase: true,
	}
	require.NoError(t, db.SaveElement(base))
	require.NoError(t, db.SaveContext(&payroll.Context{
		Key: "cx-base", Element: base, PayGradeID: "grade-1",
		Active: true, UserDefined: true, Value: decPtr("100000"),
	}))

	require.NoError(t, db.SaveElement(&payroll.Element{
		Key: "el-soc", Code: "SOC", Name: "Social insurance",
		Kind: payroll.KindSocialInsurance, Active: true, Formula: "C * 0.2",
	}))
	require.NoError(t, db.SaveElement(&payroll.Element{
		Key: "el-hlt", Code: "HLT", Name: "Health insurance",
		Kind: payroll.KindHealthInsurance, Active: true, Formula: "C * 0.05",
	}))
	require.NoError(t, db.SaveElement(&payroll.Element{
		Key: "el-tax", Code: payroll.CodeIncomeTax, Name: "Income tax",
		Kind: payroll.KindIncomeTax, Active: true, Formula: "T * 0.1",
	}))
}

func calculateBody() map[string]any {
	return map[string]any{
		"institution_id": "inst-1",
		"enrollment": map[string]any{
			"key": "enr-1",
			"employee": map[string]any{
				"key":           "emp-1",
				"first_name":    "Ana",
				"last_name":     "Marin",
				"ssn":           "1505990123456",
				"date_of_birth": "1990-05-15",
				"bank_account":  "200-123",
				"bank":          map[string]any{"key": "bank-1", "name": "First Bank"},
			},
			"position": map[string]any{
				"key":              "pos-1",
				"name":             "Clerk",
				"pay_grade_id":     "grade-1",
				"org_structure_id": "str-1",
				"org_group_id":     "grp-1",
			},
			"start_from": "2020-01-01",
		},
	}
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	return resp
}

func decodeResult(t *testing.T, resp *http.Response) api.CalculationResultDTO {
	defer resp.Body.Close()
	var res api.CalculationResultDTO
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	return res
}

// =============================================================================
// CALCULATION ENDPOINTS
// =============================================================================

func TestCalculateEndpoint(t *testing.T) {
	// GIVEN: A seeded institution and a valid calculation request
	// WHEN: POSTing to /api/payrolls/calculate
	// THEN: 200 with the calculated payroll

	srv, db := newTestServer(t)
	seedInstitution(t, db)

	resp := postJSON(t, srv.URL+"/api/payrolls/calculate", calculateBody())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	res := decodeResult(t, resp)
	assert.True(t, res.OK)
	require.NotNil(t, res.Payroll)
	assert.Equal(t, "100000", res.Payroll.GrossSalary)
	assert.Equal(t, "65000", res.Payroll.NetSalary)
	assert.Equal(t, 22, res.Payroll.PaidWorkDays)
	assert.NotEmpty(t, res.Payroll.Key)
	assert.NotEmpty(t, res.Log)

	// Persisted: the record endpoint serves it back.
	getResp, err := http.Get(srv.URL + "/api/payrolls/" + res.Payroll.Key)
	require.NoError(t, err)
	defer getResp.Body.Close()
	require.Equal(t, http.StatusOK, getResp.StatusCode)

	var got api.PayrollDTO
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&got))
	assert.Equal(t, "100000", got.GrossSalary)
	assert.NotEmpty(t, got.Lines)
}

func TestCalculateEndpoint_BusinessRejection(t *testing.T) {
	// A missing bank account is an operator-facing validation failure:
	// 422 with the verbatim message, no payroll.

	srv, db := newTestServer(t)
	seedInstitution(t, db)

	body := calculateBody()
	body["enrollment"].(map[string]any)["employee"].(map[string]any)["bank_account"] = ""

	resp := postJSON(t, srv.URL+"/api/payrolls/calculate", body)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	res := decodeResult(t, resp)
	assert.False(t, res.OK)
	assert.Equal(t, "employee bank account is not defined", res.Message)
	assert.Nil(t, res.Payroll)
}

func TestCalculateEndpoint_InvalidBody(t *testing.T) {
	srv, db := newTestServer(t)
	seedInstitution(t, db)

	resp, err := http.Post(srv.URL+"/api/payrolls/calculate", "application/json",
		bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCalculateDetailedEndpoint(t *testing.T) {
	// GIVEN: A calculated payroll on the employee's first position
	// WHEN: Calculating a second position with previous_payroll_key set
	// THEN: The statutory stages see the combined income

	srv, db := newTestServer(t)
	seedInstitution(t, db)

	base2 := &payroll.Element{
		Key: "el-base-2", Code: "E2", Name: "Base salary", Kind: payroll.KindBaseSalary,
		Active: true, BasedOnWorkingDays: true, IncludedInLeaveBase: true,
	}
	require.NoError(t, db.SaveElement(base2))
	require.NoError(t, db.SaveContext(&payroll.Context{
		Key: "cx-base-2", Element: base2, PayGradeID: "grade-2",
		Active: true, UserDefined: true, Value: decPtr("50000"),
	}))

	first := decodeResult(t, postJSON(t, srv.URL+"/api/payrolls/calculate", calculateBody()))
	require.True(t, first.OK, "message: %s", first.Message)

	second := calculateBody()
	second["previous_payroll_key"] = first.Payroll.Key
	enr := second["enrollment"].(map[string]any)
	enr["key"] = "enr-2"
	enr["position"].(map[string]any)["key"] = "pos-2"
	enr["position"].(map[string]any)["pay_grade_id"] = "grade-2"

	resp := postJSON(t, srv.URL+"/api/payrolls/calculate-detailed", second)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	res := decodeResult(t, resp)
	require.True(t, res.OK, "message: %s", res.Message)
	assert.Equal(t, "150000", res.Payroll.GrossSalary)
	assert.Equal(t, "150000", res.Payroll.InsuredAmount)
}

// =============================================================================
// PAYROLL RECORD ENDPOINTS
// =============================================================================

func TestGetPayrollEndpoint_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/payrolls/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdatePayrollEndpoint(t *testing.T) {
	// GIVEN: A calculated payroll
	// WHEN: Approving it, then trying to approve it again
	// THEN: The first update lands, the second conflicts

	srv, db := newTestServer(t)
	seedInstitution(t, db)

	res := decodeResult(t, postJSON(t, srv.URL+"/api/payrolls/calculate", calculateBody()))
	require.True(t, res.OK, "message: %s", res.Message)
	key := res.Payroll.Key

	approve := func() *http.Response {
		body, err := json.Marshal(map[string]any{"approved": true})
		require.NoError(t, err)
		req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/payrolls/"+key, bytes.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	resp := approve()
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated api.PayrollDTO
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&updated))
	assert.True(t, updated.Approved)

	conflict := approve()
	defer conflict.Body.Close()
	assert.Equal(t, http.StatusConflict, conflict.StatusCode)
}

func TestListInstitutionPayrollsEndpoint(t *testing.T) {
	srv, db := newTestServer(t)
	seedInstitution(t, db)

	res := decodeResult(t, postJSON(t, srv.URL+"/api/payrolls/calculate", calculateBody()))
	require.True(t, res.OK, "message: %s", res.Message)

	resp, err := http.Get(srv.URL + "/api/institutions/inst-1/payrolls?period=2025-09")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list []*api.PayrollDTO
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, "1505990123456", list[0].EmployeeSSN)

	// Missing period is an operator error.
	bad, err := http.Get(srv.URL + "/api/institutions/inst-1/payrolls")
	require.NoError(t, err)
	defer bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

// =============================================================================
// RELATED ELEMENTS ENDPOINTS
// =============================================================================

func TestRelatedElementsEndpoints(t *testing.T) {
	// GIVEN: A deduction element in the catalog
	// WHEN: PUTting collections for an enrollment, then GETting them back
	// THEN: The round trip preserves every record

	srv, db := newTestServer(t)
	seedInstitution(t, db)
	require.NoError(t, db.SaveElement(&payroll.Element{
		Key: "el-loan", Code: "LOAN", Name: "Loan installment",
		Kind: payroll.KindDeduction, Active: true, UserDefined: true,
	}))

	put := map[string]any{
		"work_days": []map[string]any{
			{"day": "2025-09-03", "payable": false, "hours": "8"},
		},
		"leaves": []map[string]any{
			{
				"day":    "2025-09-04",
				"active": true,
				"type": map[string]any{
					"key": "lt-sick", "name": "Sick leave", "payable": true,
					"socially_insured": true, "max_days": 60, "percentage": "70",
				},
			},
		},
		"overtime": []map[string]any{},
		"supplements": []map[string]any{},
		"deductions": []map[string]any{
			{"element_key": "el-loan", "value": "2000"},
		},
	}

	body, err := json.Marshal(put)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPut,
		srv.URL+"/api/enrollments/enr-1/elements?period=2025-09", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	getResp, err := http.Get(srv.URL + "/api/enrollments/enr-1/elements?period=2025-09")
	require.NoError(t, err)
	defer getResp.Body.Close()
	require.Equal(t, http.StatusOK, getResp.StatusCode)

	var got api.RelatedElementsDTO
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&got))
	require.Len(t, got.WorkDays, 1)
	assert.Equal(t, "8", got.WorkDays[0].Hours)
	require.Len(t, got.Leaves, 1)
	assert.Equal(t, "Sick leave", got.Leaves[0].Type.Name)
	require.Len(t, got.Deductions, 1)
	assert.Equal(t, "el-loan", got.Deductions[0].ElementKey)
	assert.Equal(t, "2000", got.Deductions[0].Value)
}

func TestUpdateRelatedElementsEndpoint_UnknownElement(t *testing.T) {
	srv, db := newTestServer(t)
	seedInstitution(t, db)

	body := fmt.Sprintf(`{"deductions":[{"element_key":%q,"value":"100"}]}`, "el-ghost")
	req, err := http.NewRequest(http.MethodPut,
		srv.URL+"/api/enrollments/enr-1/elements?period=2025-09", bytes.NewReader([]byte(body)))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
