package payroll

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// evalRecord is the persisted snapshot of how a line item's value was
// derived: the element (and context, when scoped) configuration at the
// moment of calculation.
type evalRecord struct {
	ElementID      string           `json:"eid,omitempty"`
	ContextID      string           `json:"cntx_id,omitempty"`
	Version        int              `json:"version"`
	Code           string           `json:"code,omitempty"`
	Value          *decimal.Decimal `json:"el_val,omitempty"`
	Formula        string           `json:"expression,omitempty"`
	Procedure      string           `json:"procedure,omitempty"`
	AccountingCode string           `json:"acc_code,omitempty"`
	Description    string           `json:"description,omitempty"`
	PayGradeID     string           `json:"pay_grd_id,omitempty"`
	GroupID        string           `json:"grp_id,omitempty"`
	StructureID    string           `json:"struct_id,omitempty"`
	InstitutionID  string           `json:"institution_id,omitempty"`
}

// lineEvaluationRecord renders the JSON audit snapshot for one line item.
// Synthetic leave lines have no element reference and record an empty
// object.
func lineEvaluationRecord(li *LineItem) string {
	rec := evalRecord{}
	if el := li.Ref.Element; el != nil {
		rec.ElementID = el.Key
		rec.Version = el.Version
		rec.Code = el.Code
		rec.Value = el.Value
		rec.Formula = el.Formula
		rec.Procedure = el.Procedure
		rec.AccountingCode = el.AccountingCode
		rec.Description = el.Name
	}
	if cx := li.Ref.Context; cx != nil {
		rec.ContextID = cx.Key
		rec.Version = cx.Version
		rec.Value = cx.Value
		rec.Formula = cx.Formula
		rec.Procedure = cx.Procedure
		rec.PayGradeID = cx.PayGradeID
		rec.GroupID = cx.OrgGroupID
		rec.StructureID = cx.OrgStructureID
		rec.InstitutionID = cx.InstitutionID
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return "{}"
	}
	return string(b)
}
