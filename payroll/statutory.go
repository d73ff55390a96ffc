/*
Statutory bases, withholdings, and final totals.

PURPOSE:
  After the gross is built, the statutory section derives:
    - the insured amount C = round(m) + round(i)
    - the gross salary, the private-insurance cap and blind-exemption
      factors consumed by the tax formula
    - the taxed amount T = round(m) + round(s) - round(private insurance)
    - personal deductions, then social insurance, health insurance,
      additional insurance and income tax
    - the net salary as the rounded subtraction chain

KEY CONCEPTS:
  - Employee vs employer split: only employee-borne entries withhold from
    the net; employer-borne entries still emit line items
  - Bracket bases: each employee-borne statutory element records the base
    value of the bracket containing the insured amount
  - At most two social and two health insurance elements may be
    configured; more is a configuration fault

SEE ALSO:
  - merge.go: The second-position merge rerunning these stages
*/
package payroll

import "github.com/shopspring/decimal"

// Private-insurance ceiling constants: annual caps over 12 months and the
// gross-relative shares, below and above age 50.
var (
	piAnnualCapUnder50 = decimal.NewFromInt(200000)
	piAnnualCapOver50  = decimal.NewFromInt(250000)
	piShareUnder50     = decimal.NewFromFloat(0.15)
	piShareOver50      = decimal.NewFromFloat(0.25)
	twelve             = decimal.NewFromInt(12)
)

// fillCalculatedFields runs the statutory section and copies the rounded
// totals onto the payroll.
func (c *calculation) fillCalculatedFields() error {
	if err := c.computeInsuredAmount(); err != nil {
		return err
	}

	c.gross = c.totalMonth
	c.payroll.GrossSalary = Round(c.gross)

	pi, err := c.privateInsuranceCap()
	if err != nil {
		return err
	}
	c.factors.SetPrivateInsurance(pi)

	if c.blindExemptionValue().Equal(decimal.NewFromInt(1)) {
		c.factors.SetBlindExemption(decimal.NewFromInt(1))
	} else {
		c.factors.SetBlindExemption(decimal.Zero)
	}

	if err := c.computeTaxedAmount(); err != nil {
		return err
	}

	c.payroll.TaxedAmount = Round(c.taxedAmount)
	c.payroll.InsuredAmount = Round(c.insuredAmount)

	deductions, err := c.stageDeductions()
	if err != nil {
		return err
	}
	c.payroll.Deductions = Round(deductions)

	if err := c.stageSocialInsurance(); err != nil {
		return err
	}
	if err := c.stageHealthInsurance(); err != nil {
		return err
	}
	if err := c.stageAdditionalInsurance(); err != nil {
		return err
	}
	if err := c.stageTax(); err != nil {
		return err
	}

	p := c.payroll
	p.SocialInsuranceEmployee = Round(c.socialEmployee)
	p.SocialInsuranceEmployer = Round(c.socialEmployer)
	p.HealthInsuranceEmployee = Round(c.healthEmployee)
	p.HealthInsuranceEmployer = Round(c.healthEmployer)
	p.AdditionalInsurance = Round(c.addInsurance)
	p.IncomeTax = Round(c.taxTotal)
	p.SocialInsuranceBase = c.socialBase
	p.HealthInsuranceBase = c.healthBase
	p.TaxBase = c.taxBase

	net := p.GrossSalary.
		Sub(p.Deductions).
		Sub(p.SocialInsuranceEmployee).
		Sub(p.HealthInsuranceEmployee).
		Sub(p.AdditionalInsurance).
		Sub(p.IncomeTax)
	p.NetSalary = Round(net)

	return nil
}

// computeInsuredAmount derives C from the gross factors produced by the
// build stages.
func (c *calculation) computeInsuredAmount() error {
	const label = "8) Calculating Insured Amount: "
	m, okM := c.factors.MonthlyGross()
	i, okI := c.factors.Insured()
	if !okM || !okI {
		return faultf(label, "components of the insured amount are missing")
	}
	c.insuredAmount = Round(m).Add(Round(i))
	c.factors.SetInsuredAmount(c.insuredAmount)
	c.steps = append(c.steps, label+"successfully calculated")
	return nil
}

// computeTaxedAmount derives T. The taxable deduction total is not part
// of the base; only the private-insurance cap reduces it.
func (c *calculation) computeTaxedAmount() error {
	const label = "8) Calculating Taxed Amount: "
	m, okM := c.factors.MonthlyGross()
	s, okS := c.factors.Taxable()
	pi, okPI := c.factors.PrivateInsurance()
	if !okM || !okS || !okPI {
		return faultf(label, "components of the taxed amount are missing")
	}
	c.taxedAmount = Round(m).Add(Round(s)).Sub(Round(pi))
	c.factors.SetTaxedAmount(c.taxedAmount)
	c.steps = append(c.steps, label+"successfully calculated")
	return nil
}

// privateInsuranceCap reads the employee's voluntary-insurance deduction
// and truncates it to the age-dependent ceiling. A contribution exceeding
// the gross salary is a fault.
func (c *calculation) privateInsuranceCap() (decimal.Decimal, error) {
	var value decimal.Decimal
	for _, pe := range c.enrollment.Deductions {
		if pe.Element != nil && pe.Element.Code == CodeVoluntaryInsurance {
			value = pe.Value
		}
	}
	if value.IsZero() {
		return decimal.Zero, nil
	}
	if value.GreaterThan(c.payroll.GrossSalary) {
		return decimal.Zero, faultf("private insurance", "contribution exceeds the gross salary")
	}

	today := DateOf(c.calc.now())
	dob := c.enrollment.Employee.DateOfBirth
	age := today.Year() - dob.Year()
	if dob.After(today.AddYears(-age)) {
		age--
	}

	var ceiling decimal.Decimal
	if age > 50 {
		ceiling = decimal.Min(piAnnualCapOver50.Div(twelve), piShareOver50.Mul(c.payroll.GrossSalary))
	} else {
		ceiling = decimal.Min(piAnnualCapUnder50.Div(twelve), piShareUnder50.Mul(c.payroll.GrossSalary))
	}
	if value.GreaterThan(ceiling) {
		value = ceiling
	}
	return value, nil
}

// blindExemptionValue reads the blind-exemption deduction, zero when the
// employee does not carry one.
func (c *calculation) blindExemptionValue() decimal.Decimal {
	for _, pe := range c.enrollment.Deductions {
		if pe.Element != nil && pe.Element.Code == CodeBlindExemption {
			return pe.Value
		}
	}
	return decimal.Zero
}

// upsertStatutoryLine overwrites the existing line of a statutory element
// or appends a new one. Statutory stages rerun during a merge, so the
// lines must not duplicate.
func (c *calculation) upsertStatutoryLine(el *Element, value decimal.Decimal) {
	li := c.findLine(el.Key, el.ContextOnly)
	if li == nil {
		li = &LineItem{}
		c.payroll.Lines = append(c.payroll.Lines, li)
	}
	li.Ref = PlainRef(el)
	li.Version = el.Version
	li.Description = el.Name
	li.AccountingCode = el.AccountingCode
	li.Value = value
	li.ContextResolved = false
}

// stageSocialInsurance withholds the configured social insurance.
func (c *calculation) stageSocialInsurance() error {
	const label = "9) Calculating Social Insurance: "
	els, err := c.elements.ElementsByKind(KindSocialInsurance)
	if err != nil {
		c.stopStep(label)
		return faultf(label, "loading social insurance elements: %v", err)
	}
	if len(els) > 2 {
		c.stopStep(label)
		return faultf(label, "too many social insurance elements configured")
	}

	total := decimal.Zero
	c.socialEmployer = decimal.Zero
	for _, el := range els {
		if !el.Active {
			continue
		}
		if el.UserDefined {
			total = total.Add(RoundPtr(el.Value))
			c.addLine(PlainRef(el), fixedNeg(el.Value))
			continue
		}

		raw, err := c.evalFormula(label, PlainRef(el))
		if err != nil {
			c.stopStep(label)
			return err
		}
		elVal := Round(raw)
		c.factors.Cache(el.Code, elVal)
		c.upsertStatutoryLine(el, elVal.Neg())

		if el.EmployerBorne {
			c.socialEmployer = c.socialEmployer.Add(elVal)
			continue
		}
		total = total.Add(elVal)
		base, err := c.elements.BracketBase(el.Key, c.insuredAmount)
		if err != nil {
			c.stopStep(label)
			return faultf(label, "can not get the base value for calculating social insurance: %v", err)
		}
		c.socialBase = base
	}

	c.socialEmployee = total
	c.finishStep(label)
	return nil
}

// stageHealthInsurance withholds the configured health insurance.
func (c *calculation) stageHealthInsurance() error {
	const label = "10) Calculating Health Insurance: "
	els, err := c.elements.ElementsByKind(KindHealthInsurance)
	if err != nil {
		c.stopStep(label)
		return faultf(label, "loading health insurance elements: %v", err)
	}
	if len(els) > 2 {
		c.stopStep(label)
		return faultf(label, "too many health insurance elements configured")
	}

	total := decimal.Zero
	c.healthEmployer = decimal.Zero
	for _, el := range els {
		if !el.Active {
			continue
		}
		if el.UserDefined {
			total = total.Add(RoundPtr(el.Value))
			c.addLine(PlainRef(el), fixedNeg(el.Value))
			continue
		}

		raw, err := c.evalFormula(label, PlainRef(el))
		if err != nil {
			c.stopStep(label)
			return err
		}
		elVal := Round(raw)
		c.factors.Cache(el.Code, elVal)
		c.upsertStatutoryLine(el, elVal.Neg())

		if el.EmployerBorne {
			c.healthEmployer = c.healthEmployer.Add(elVal)
			continue
		}
		total = total.Add(elVal)
		base, err := c.elements.BracketBase(el.Key, c.insuredAmount)
		if err != nil {
			c.stopStep(label)
			return faultf(label, "can not get the base value for calculating health insurance: %v", err)
		}
		c.healthBase = base
	}

	c.healthEmployee = total
	c.finishStep(label)
	return nil
}

// stageAdditionalInsurance withholds the additional insurance elements.
// An element already evaluated by an earlier stage contributes its cached
// value; a context-only element is resolved through its scoped contexts.
func (c *calculation) stageAdditionalInsurance() error {
	const label = "10) Calculating Additional Insurance: "
	els, err := c.elements.ElementsByKind(KindAdditionalInsurance)
	if err != nil {
		c.stopStep(label)
		return faultf(label, "loading additional insurance elements: %v", err)
	}

	total := decimal.Zero
	for _, el := range els {
		if v, ok := c.factors.Cached(el.Code); ok {
			total = total.Add(Round(v))
			continue
		}
		if el.ContextOnly {
			v, err := c.additionalOnContexts(label, el)
			if err != nil {
				c.stopStep(label)
				return err
			}
			total = total.Add(Round(v))
			continue
		}
		if el.UserDefined {
			total = total.Add(RoundPtr(el.Value))
			c.addLine(PlainRef(el), fixedNeg(el.Value))
			continue
		}

		raw, err := c.evalFormula(label, PlainRef(el))
		if err != nil {
			c.stopStep(label)
			return err
		}
		elVal := Round(raw)
		c.factors.Cache(el.Code, elVal)
		c.upsertStatutoryLine(el, elVal.Neg())

		if !el.EmployerBorne {
			total = total.Add(elVal)
		}
	}

	c.addInsurance = total
	c.finishStep(label)
	return nil
}

// additionalOnContexts gathers every scoped context of one element that
// could address the position, reduces them by specificity unless the
// element is user-defined, and withholds each survivor.
func (c *calculation) additionalOnContexts(label string, el *Element) (decimal.Decimal, error) {
	pos := c.enrollment.Position
	scopes := [][3]string{
		{c.payroll.InstitutionID, pos.OrgStructureID, pos.OrgGroupID},
		{c.payroll.InstitutionID, pos.OrgStructureID, ""},
		{c.payroll.InstitutionID, "", ""},
		{"", "", pos.OrgGroupID},
		{c.payroll.InstitutionID, "", pos.OrgGroupID},
	}

	var candidates []*Context
	for _, sc := range scopes {
		ctxs, err := c.elements.ContextsForElement(el.Key, sc[0], sc[1], sc[2])
		if err != nil {
			return decimal.Zero, faultf(label, "loading contexts for element %q: %v", el.Code, err)
		}
		candidates = append(candidates, ctxs...)
	}
	if !el.UserDefined {
		candidates = resolveContexts(candidates)
	}

	total := decimal.Zero
	for _, cx := range candidates {
		if !cx.Active {
			continue
		}
		if cx.UserDefined {
			total = total.Add(RoundPtr(cx.Value))
			c.addLine(ScopedRef(cx), fixedNeg(cx.Value))
			continue
		}

		ref := ScopedRef(cx)
		raw, err := c.evalFormula(label, ref)
		if err != nil {
			return decimal.Zero, err
		}
		elVal := Round(raw)
		c.factors.Cache(cx.Element.Code, elVal)
		c.addLine(ref, elVal.Neg())

		if !cx.EmployerBorne {
			total = total.Add(elVal)
		}
	}
	return total, nil
}

// stageTax withholds income tax. The reserved tax element reads the
// private-insurance and blind-exemption factors; a blind exemption of 1
// zeroes the tax instead of evaluating the formula.
func (c *calculation) stageTax() error {
	const label = "11) Calculating Taxes: "
	els, err := c.elements.ElementsByKind(KindIncomeTax)
	if err != nil {
		c.stopStep(label)
		return faultf(label, "loading tax elements: %v", err)
	}

	total := decimal.Zero
	blind := decimal.Zero
	for _, el := range els {
		if el.Code == CodeIncomeTax {
			blind, _ = c.factors.BlindExemption()
		}
		if !el.Active {
			continue
		}
		if el.UserDefined {
			total = total.Add(RoundPtr(el.Value))
			c.addLine(PlainRef(el), fixedNeg(el.Value))
			continue
		}

		var elVal decimal.Decimal
		if blind.Equal(decimal.NewFromInt(1)) {
			elVal = decimal.Zero
		} else {
			raw, err := c.evalFormula(label, PlainRef(el))
			if err != nil {
				c.stopStep(label)
				return err
			}
			elVal = raw
		}
		elVal = Round(elVal)
		c.factors.Cache(el.Code, elVal)
		c.upsertStatutoryLine(el, elVal.Neg())

		if !el.EmployerBorne {
			total = total.Add(elVal)
			base, err := c.elements.BracketBase(el.Key, c.insuredAmount)
			if err != nil {
				c.stopStep(label)
				return faultf(label, "can not get the base value for calculating taxes: %v", err)
			}
			c.taxBase = base
		}
	}

	c.taxTotal = total
	c.finishStep(label)
	return nil
}

// fixedNeg negates a nil-safe fixed value for a withholding line.
func fixedNeg(v *decimal.Decimal) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return v.Neg()
}
