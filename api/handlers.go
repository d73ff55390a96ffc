/*
handlers.go - HTTP API handlers for the payroll engine

PURPOSE:
  Exposes the payroll calculator via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Payrolls:
    POST /api/payrolls/calculate          Calculate one payroll
    POST /api/payrolls/calculate-detailed Calculate merging a previous payroll
    GET  /api/payrolls/{key}              Get a stored payroll
    PUT  /api/payrolls/{key}              Update an unapproved payroll

  Institutions:
    GET  /api/institutions/{id}/payrolls?period=  All payrolls of a batch

  Enrollments:
    GET  /api/enrollments/{key}/elements?period=  Reload per-period collections
    PUT  /api/enrollments/{key}/elements?period=  Persist per-period collections

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (calculator, repositories)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Payroll not found
  - 409: Approved payroll or batch (conflict)
  - 422: Calculation refused by a business rule
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.
  The calculator's SecurityContext identifies a fixed operator.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Calc  *payroll.Calculator
	Store *sqlite.Store
}

// NewHandler creates a new handler around a calculator and its store.
func NewHandler(calc *payroll.Calculator, store *sqlite.Store) *Handler {
	return &Handler{Calc: calc, Store: store}
}

// =============================================================================
// CALCULATION HANDLERS
// =============================================================================

// CalculatePayroll runs one payroll for the institution's active period.
func (h *Handler) CalculatePayroll(w http.ResponseWriter, r *http.Request) {
	_, p, ok := h.decodeCalculateRequest(w, r)
	if !ok {
		return
	}

	res := h.Calc.Calculate(p)
	writeJSON(w, resultStatus(res), toResultDTO(res))
}

// CalculateDetailedPayroll runs one payroll and merges a previously
// calculated payroll of the same employee into the statutory stages.
func (h *Handler) CalculateDetailedPayroll(w http.ResponseWriter, r *http.Request) {
	req, p, ok := h.decodeCalculateRequest(w, r)
	if !ok {
		return
	}

	var previous *payroll.Payroll
	if req.PreviousPayrollKey != "" {
		var err error
		previous, err = h.Calc.GetPayroll(req.PreviousPayrollKey)
		if err != nil {
			writeDomainError(w, "Failed to load previous payroll", err)
			return
		}
	}

	res := h.Calc.CalculateDetailed(p, previous)
	writeJSON(w, resultStatus(res), toResultDTO(res))
}

func (h *Handler) decodeCalculateRequest(w http.ResponseWriter, r *http.Request) (CalculateRequest, *payroll.Payroll, bool) {
	var req CalculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return req, nil, false
	}

	p := &payroll.Payroll{
		InstitutionID: req.InstitutionID,
		Enrollment:    toEnrollment(req.Enrollment),
	}

	// Institutional holidays for the active period ride in on the payroll.
	if period, err := h.Store.ActivePeriod(req.InstitutionID); err == nil && period != nil {
		if hs, err := h.Store.Holidays(req.InstitutionID, period.Start(), period.End()); err == nil {
			p.Holidays = hs
		}
	}
	return req, p, true
}

func resultStatus(res payroll.Result) int {
	if res.OK {
		return http.StatusOK
	}
	return http.StatusUnprocessableEntity
}

// =============================================================================
// PAYROLL RECORD HANDLERS
// =============================================================================

// GetPayroll returns a single stored payroll.
func (h *Handler) GetPayroll(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	p, err := h.Calc.GetPayroll(key)
	if err != nil {
		writeDomainError(w, "Failed to get payroll", err)
		return
	}
	writeJSON(w, http.StatusOK, toPayrollDTO(p))
}

// UpdatePayroll applies the mutable fields to a stored, unapproved
// payroll.
func (h *Handler) UpdatePayroll(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var req UpdatePayrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	p, err := h.Calc.GetPayroll(key)
	if err != nil {
		writeDomainError(w, "Failed to get payroll", err)
		return
	}

	if req.Approved != nil {
		p.Approved = *req.Approved
	}
	if req.BankAccount != nil {
		p.BankAccount = *req.BankAccount
	}
	if req.Bank != nil {
		p.Bank = &payroll.Bank{Key: req.Bank.Key, Name: req.Bank.Name}
	}

	updated, err := h.Calc.UpdatePayroll(p)
	if err != nil {
		writeDomainError(w, "Failed to update payroll", err)
		return
	}
	writeJSON(w, http.StatusOK, toPayrollDTO(updated))
}

// ListInstitutionPayrolls returns every payroll of an institution in one
// period.
func (h *Handler) ListInstitutionPayrolls(w http.ResponseWriter, r *http.Request) {
	institutionID := chi.URLParam(r, "id")
	periodKey := r.URL.Query().Get("period")

	ps, err := h.Calc.GetAllPayrolls(institutionID, periodKey)
	if err != nil {
		writeDomainError(w, "Failed to list payrolls", err)
		return
	}

	dtos := make([]*PayrollDTO, len(ps))
	for i, p := range ps {
		dtos[i] = toPayrollDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// RELATED ELEMENTS HANDLERS
// =============================================================================

// GetRelatedElements reloads and returns the per-period collections of an
// enrollment.
func (h *Handler) GetRelatedElements(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	periodKey := r.URL.Query().Get("period")

	e := &payroll.Enrollment{Key: key}
	if err := h.Calc.GetPayrollRelatedElements(e, periodKey); err != nil {
		writeDomainError(w, "Failed to load related elements", err)
		return
	}
	writeJSON(w, http.StatusOK, toRelatedElementsDTO(e))
}

// UpdateRelatedElements replaces the per-period collections of an
// enrollment.
func (h *Handler) UpdateRelatedElements(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	periodKey := r.URL.Query().Get("period")

	var req RelatedElementsDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	e, err := h.toEnrollmentCollections(key, req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid collection entry", err)
		return
	}

	if err := h.Calc.UpdatePayrollRelatedElements(e, periodKey); err != nil {
		writeDomainError(w, "Failed to save related elements", err)
		return
	}
	writeJSON(w, http.StatusOK, toRelatedElementsDTO(e))
}

func (h *Handler) toEnrollmentCollections(enrollmentKey string, dto RelatedElementsDTO) (*payroll.Enrollment, error) {
	e := &payroll.Enrollment{Key: enrollmentKey}

	for _, wd := range dto.WorkDays {
		hours, err := parseDecimal(wd.Hours)
		if err != nil {
			return nil, err
		}
		e.WorkDays = append(e.WorkDays, &payroll.WorkDay{
			Key: wd.Key, Day: wd.Day, Payable: wd.Payable, Hours: hours,
		})
	}
	for _, lv := range dto.Leaves {
		pct, err := parseDecimal(lv.Type.Percentage)
		if err != nil {
			return nil, err
		}
		e.Leaves = append(e.Leaves, &payroll.Leave{
			Key: lv.Key, Day: lv.Day, Active: lv.Active,
			Type: &payroll.LeaveType{
				Key:             lv.Type.Key,
				Name:            lv.Type.Name,
				Payable:         lv.Type.Payable,
				SociallyInsured: lv.Type.SociallyInsured,
				MaxDays:         lv.Type.MaxDays,
				Percentage:      pct,
				AccountingCode:  lv.Type.AccountingCode,
			},
		})
	}
	for _, ot := range dto.Overtime {
		hours, err := parseDecimal(ot.Hours)
		if err != nil {
			return nil, err
		}
		e.Overtime = append(e.Overtime, &payroll.OvertimeRecord{
			Key: ot.Key, Day: ot.Day, Hours: hours,
		})
	}

	supplements, err := h.toPersonalElements(dto.Supplements)
	if err != nil {
		return nil, err
	}
	deductions, err := h.toPersonalElements(dto.Deductions)
	if err != nil {
		return nil, err
	}
	e.Supplements = supplements
	e.Deductions = deductions
	return e, nil
}

func (h *Handler) toPersonalElements(dtos []PersonalElementDTO) ([]*payroll.PersonalElement, error) {
	var out []*payroll.PersonalElement
	for _, dto := range dtos {
		value, err := parseDecimal(dto.Value)
		if err != nil {
			return nil, err
		}
		el, err := h.Store.ElementByKey(dto.ElementKey)
		if err != nil {
			return nil, err
		}
		if el == nil {
			return nil, errors.New("unknown element key " + dto.ElementKey)
		}
		out = append(out, &payroll.PersonalElement{
			Key: dto.Key, Element: el, Value: value,
		})
	}
	return out, nil
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps business sentinels onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, payroll.ErrPayrollMissing):
		status = http.StatusNotFound
	case errors.Is(err, payroll.ErrPayrollApproved),
		errors.Is(err, payroll.ErrBatchApproved):
		status = http.StatusConflict
	case payroll.IsBusiness(err):
		status = http.StatusBadRequest
	}
	writeError(w, status, message, err)
}
