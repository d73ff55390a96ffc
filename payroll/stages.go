/*
Gross salary build stages.

PURPOSE:
  The layered stages that assemble the monthly gross, in their fixed
  order:

    1) base salary from the position's pay grade (overridable by the
       position's organizational scope), plus the pay-grade's extra
       salary contexts
    3) institution-wide salary contexts
    4) org-structure salary contexts
    5) org-group salary contexts
    6) the employee's personal supplements
    7) the employee's personal deductions (negative line items)

  Each stage deposits its taxable/non-taxable and insured/non-insured
  totals into the factor accumulator, so later formulas can read the
  running s/S/i/I values.

ORDERING CONSTRAINT:
  Stages must not be reordered: formulas routinely reference codes and
  factors produced by earlier stages, and a missing factor is a fault.
*/
package payroll

import "github.com/shopspring/decimal"

// Processing-trace fragments appended after each stage label.
const (
	stepFinished = "successfully finished"
	stepStopped  = "operation stopped"
)

func (c *calculation) finishStep(label string) {
	c.steps = append(c.steps, label+stepFinished)
}

func (c *calculation) stopStep(label string) {
	c.steps = append(c.steps, label+stepStopped)
}

// stageBaseSalary resolves and evaluates the base salary element plus the
// extra salary contexts of the pay grade and of the position's scope. The
// pay grade must carry a base salary context; one found on the position's
// organizational scope overrides it.
//
// Returns the day-scaled stage total. The b factor gets the unscaled
// monthly total, the m factor the scaled one.
func (c *calculation) stageBaseSalary() (decimal.Decimal, error) {
	const label = "1) Calculating base salary: "

	baseTotal := decimal.Zero
	monthly := decimal.Zero

	gradeCtxs, err := c.elements.ContextsByPayGrade(c.enrollment.Position.PayGradeID)
	if err != nil {
		c.stopStep(label)
		return decimal.Zero, faultf(label, "loading pay grade salary contexts: %v", err)
	}
	scopeCtxs, err := c.elements.ContextsByScope(
		c.payroll.InstitutionID,
		c.enrollment.Position.OrgStructureID,
		c.enrollment.Position.OrgGroupID,
	)
	if err != nil {
		c.stopStep(label)
		return decimal.Zero, faultf(label, "loading position scope salary contexts: %v", err)
	}
	if len(gradeCtxs) == 0 {
		c.stopStep(label)
		return decimal.Zero, faultf(label, "no salary context configured for pay grade %q", c.enrollment.Position.PayGradeID)
	}

	baseCtx := findBaseSalaryContext(gradeCtxs)
	if baseCtx == nil {
		c.stopStep(label)
		return decimal.Zero, faultf(label, "no base salary context configured for pay grade %q", c.enrollment.Position.PayGradeID)
	}
	if override := findBaseSalaryContext(scopeCtxs); override != nil {
		baseCtx = override
	}

	ref := ScopedRef(baseCtx)
	elVal, err := c.evaluate(label, ref)
	if err != nil {
		c.stopStep(label)
		return decimal.Zero, err
	}
	lineVal := c.lineValue(ref, elVal)
	c.addLine(ref, lineVal)
	baseTotal = baseTotal.Add(Round(elVal))
	monthly = monthly.Add(lineVal)

	// The pay grade and the position scope may carry further salary
	// contexts on top of the base; evaluate them in the same pass.
	for _, ctxs := range [][]*Context{gradeCtxs, scopeCtxs} {
		for _, cx := range ctxs {
			if cx.Element.Kind <= KindBaseSalary || cx.Element.Kind >= KindIncomeTax {
				continue
			}
			if !cx.Active || !cx.Element.Active {
				continue
			}
			extraRef := ScopedRef(cx)
			v, err := c.evaluate(label, extraRef)
			if err != nil {
				c.stopStep(label)
				return decimal.Zero, err
			}
			lv := c.lineValue(extraRef, v)
			c.addLine(extraRef, lv)
			baseTotal = baseTotal.Add(Round(v))
			monthly = monthly.Add(lv)
		}
	}

	c.factors.AddBaseTotal(Round(baseTotal))
	c.factors.AddMonthlyGross(Round(monthly))
	c.finishStep(label)
	return monthly, nil
}

func findBaseSalaryContext(ctxs []*Context) *Context {
	for _, cx := range ctxs {
		if cx.Element.Kind == KindBaseSalary && cx.Element.Active {
			return cx
		}
	}
	return nil
}

// stageInstitution evaluates the institution-wide salary contexts.
func (c *calculation) stageInstitution() (decimal.Decimal, error) {
	const label = "3) Calculating salary elements per institution: "
	ctxs, err := c.elements.ContextsByScope(c.payroll.InstitutionID, "", "")
	if err != nil {
		c.stopStep(label)
		return decimal.Zero, faultf(label, "loading institution salary contexts: %v", err)
	}
	return c.runScopedStage(label, ctxs, false)
}

// stageStructure evaluates the org-structure salary contexts. Its stage
// total sums the monthly values before day scaling; the scaled values
// still flow into the line items and the factor totals.
func (c *calculation) stageStructure() (decimal.Decimal, error) {
	const label = "4) Calculating salary elements per structure: "
	ctxs, err := c.elements.ContextsByScope(c.payroll.InstitutionID, c.enrollment.Position.OrgStructureID, "")
	if err != nil {
		c.stopStep(label)
		return decimal.Zero, faultf(label, "loading structure salary contexts: %v", err)
	}
	return c.runScopedStage(label, ctxs, true)
}

// stageGroup evaluates the org-group salary contexts.
func (c *calculation) stageGroup() (decimal.Decimal, error) {
	const label = "5) Calculating salary elements per group position: "
	ctxs, err := c.elements.ContextsByScope("", "", c.enrollment.Position.OrgGroupID)
	if err != nil {
		c.stopStep(label)
		return decimal.Zero, faultf(label, "loading group salary contexts: %v", err)
	}
	return c.runScopedStage(label, ctxs, false)
}

// runScopedStage evaluates one scope's salary contexts and deposits the
// stage totals into the s/S/i/I factors.
func (c *calculation) runScopedStage(label string, ctxs []*Context, preScaleTotal bool) (decimal.Decimal, error) {
	var taxable, nonTaxable, insured, nonInsured, total decimal.Decimal

	for _, cx := range ctxs {
		if !cx.Active {
			continue
		}
		if cx.Element.Kind > KindInstitutionSalary {
			continue
		}
		ref := ScopedRef(cx)
		elVal, err := c.evaluate(label, ref)
		if err != nil {
			c.stopStep(label)
			return decimal.Zero, err
		}
		lineVal := c.lineValue(ref, elVal)
		c.addLine(ref, lineVal)

		if ref.Taxable() {
			taxable = taxable.Add(lineVal)
		} else {
			nonTaxable = nonTaxable.Add(lineVal)
		}
		if ref.Insured() {
			insured = insured.Add(lineVal)
		} else {
			nonInsured = nonInsured.Add(lineVal)
		}
		if preScaleTotal {
			total = total.Add(Round(elVal))
		} else {
			total = total.Add(lineVal)
		}
	}

	c.factors.AddTaxable(taxable)
	c.factors.AddNonTaxable(nonTaxable)
	c.factors.AddInsured(insured)
	c.factors.AddNonInsured(nonInsured)
	c.finishStep(label)
	return total, nil
}

// stageSupplements evaluates the employee's personal supplements. A
// user-defined supplement uses the value entered for this employee, not a
// catalog value.
func (c *calculation) stageSupplements() (decimal.Decimal, error) {
	const label = "6) Calculating Supplements: "
	var taxable, nonTaxable, insured, nonInsured, total decimal.Decimal

	for _, pe := range c.enrollment.Supplements {
		el := pe.Element
		if !el.Active {
			continue
		}
		ref := PlainRef(el)

		var elVal decimal.Decimal
		if el.UserDefined {
			elVal = pe.Value
		} else {
			raw, err := c.evalFormula(label, ref)
			if err != nil {
				c.stopStep(label)
				return decimal.Zero, err
			}
			elVal = Round(raw)
		}
		elVal = c.finishValue(ref, elVal)

		lineVal := c.lineValue(ref, elVal)
		c.addLine(ref, lineVal)

		if el.Taxable {
			taxable = taxable.Add(lineVal)
		} else {
			nonTaxable = nonTaxable.Add(lineVal)
		}
		if el.Insured {
			insured = insured.Add(lineVal)
		} else {
			nonInsured = nonInsured.Add(lineVal)
		}
		total = total.Add(lineVal)
	}

	c.factors.AddTaxable(taxable)
	c.factors.AddNonTaxable(nonTaxable)
	c.factors.AddInsured(insured)
	c.factors.AddNonInsured(nonInsured)
	c.finishStep(label)
	return total, nil
}

// stageDeductions evaluates the employee's personal deductions. Lines are
// negative. Elements flagged for the detailed payroll only still emit a
// line but stay out of every total. The insured portion reduces the i
// factor; d/D carry the taxable split.
func (c *calculation) stageDeductions() (decimal.Decimal, error) {
	const label = "7) Calculating Deductions: "
	var dTaxable, dNonTaxable, dInsured, total decimal.Decimal

	for _, pe := range c.enrollment.Deductions {
		el := pe.Element
		ref := PlainRef(el)

		var elVal, lineVal decimal.Decimal
		if el.UserDefined {
			elVal = pe.Value
			lineVal = pe.Value.Neg()
		} else {
			raw, err := c.evalFormula(label, ref)
			if err != nil {
				c.stopStep(label)
				return decimal.Zero, err
			}
			elVal = Round(raw)
			c.factors.Cache(el.Code, elVal)
			lineVal = elVal.Neg()
		}

		if !el.InPayrollDetail {
			v := Round(elVal)
			if el.Taxable {
				dTaxable = dTaxable.Add(v)
			} else {
				dNonTaxable = dNonTaxable.Add(v)
			}
			if el.Insured {
				dInsured = dInsured.Add(v)
			}
			total = total.Add(v)
		}
		c.addLine(ref, lineVal)
	}

	c.factors.AddDeducTaxable(dTaxable)
	c.factors.AddDeducNonTaxable(dNonTaxable)
	c.factors.SubInsured(dInsured)
	c.finishStep(label)
	return total, nil
}
