/*
Per-element value derivation.

PURPOSE:
  Every stage evaluates elements the same way: derive the raw value (fixed
  or via formula), round it, scale it to the contracted hours when the
  element is flagged for that, cache it under the element's code, then
  scale the persisted line value to the paid working days when flagged.
  This file is that shared path.

ORDERING CONSTRAINT:
  The cached value is the hours-scaled one, BEFORE day scaling. Formulas
  of later elements therefore see the full-month value of their inputs
  even when the employee worked a partial month.
*/
package payroll

import "github.com/shopspring/decimal"

// evaluate derives one element's monthly value: a user-defined fixed value,
// else its formula against the current factor namespace, else its plain
// value. The result is rounded, scaled to contracted hours when flagged,
// rounded again, and cached under the element's code.
func (c *calculation) evaluate(stage string, ref ElementRef) (decimal.Decimal, error) {
	var v decimal.Decimal
	switch {
	case ref.UserDefined():
		if fv := ref.FixedValue(); fv != nil {
			v = *fv
		}
	case ref.Formula() != "":
		var err error
		v, err = c.evalFormula(stage, ref)
		if err != nil {
			return decimal.Zero, err
		}
	default:
		if fv := ref.FixedValue(); fv != nil {
			v = *fv
		}
	}
	return c.finishValue(ref, v), nil
}

// evalFormula runs the element's formula against the current namespace.
func (c *calculation) evalFormula(stage string, ref ElementRef) (decimal.Decimal, error) {
	v, err := c.eval.Evaluate(EvalRequest{
		Formula:     ref.Formula(),
		Procedure:   ref.Procedure(),
		Vars:        c.factors.Vars(),
		EmployeeKey: c.enrollment.Employee.Key,
		PositionKey: c.enrollment.Position.Key,
	})
	if err != nil {
		return decimal.Zero, faultf(stage, "evaluating element %q (%s): %v", ref.Name(), ref.Code(), err)
	}
	return v, nil
}

// finishValue rounds a derived value, scales it to the contracted hours
// when flagged, rounds again, and caches it under the element's code.
func (c *calculation) finishValue(ref ElementRef, v decimal.Decimal) decimal.Decimal {
	v = Round(v)
	if ref.BasedOnContractedHours() {
		v = Round(v.Mul(c.contractHours).Div(c.hoursPerDay))
	}
	c.factors.Cache(ref.Code(), v)
	return v
}

// lineValue turns an evaluated monthly value into the persisted line
// value, scaled to the paid working days when the element is flagged.
// Elements included in the leave base accrue it here: the unscaled value
// when the whole month was spent on leave, the scaled value otherwise.
func (c *calculation) lineValue(ref ElementRef, elVal decimal.Decimal) decimal.Decimal {
	lineVal := elVal
	if ref.BasedOnWorkingDays() {
		lineVal = Round(elVal.Mul(c.paidDays).Div(c.daysPerMonth))
	}
	if ref.IncludedInLeaveBase() {
		if c.payroll.PaidWorkDays == 0 && c.hoursOnLeave.IsPositive() {
			c.leaveBase = c.leaveBase.Add(elVal)
		} else {
			c.leaveBase = c.leaveBase.Add(lineVal)
		}
	}
	return lineVal
}

// addLine appends a line item for an evaluated element.
func (c *calculation) addLine(ref ElementRef, value decimal.Decimal) *LineItem {
	li := &LineItem{
		Ref:             ref,
		Version:         ref.Version(),
		Description:     ref.Name(),
		AccountingCode:  ref.AccountingCode(),
		Value:           value,
		ContextResolved: ref.Scoped(),
	}
	c.payroll.Lines = append(c.payroll.Lines, li)
	return li
}

// findLine locates an existing line for an element with the given
// context-resolution flavor, for the statutory stages that overwrite
// instead of appending.
func (c *calculation) findLine(elementKey string, contextResolved bool) *LineItem {
	for _, li := range c.payroll.Lines {
		if li.Synthetic() || li.Ref.Element == nil {
			continue
		}
		if li.Ref.Element.Key == elementKey && li.ContextResolved == contextResolved {
			return li
		}
	}
	return nil
}
