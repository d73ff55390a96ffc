/*
Second-position merge.

PURPOSE:
  When an employee holds two concurrent positions, the detailed
  calculation folds the previously calculated payroll's bases into this
  one and reruns the statutory withholdings against the combined amounts,
  so the progressive brackets see the employee's full income.
*/
package payroll

// mergePrevious folds a previous payroll of the same employee into the
// current one and reruns social insurance, health insurance, and tax
// against the combined bases. The per-field insurance totals keep their
// single-position values; only the net reflects the rerun.
func (c *calculation) mergePrevious(prev *Payroll) error {
	c.insuredAmount = c.insuredAmount.Add(Round(prev.InsuredAmount))
	c.taxedAmount = c.taxedAmount.Add(Round(prev.TaxedAmount))
	c.gross = c.gross.Add(Round(prev.GrossSalary))

	c.factors.SetInsuredAmount(c.insuredAmount)
	c.factors.SetTaxedAmount(c.taxedAmount)

	p := c.payroll
	p.GrossSalary = Round(c.gross)
	p.TaxedAmount = Round(c.taxedAmount)
	p.InsuredAmount = Round(c.insuredAmount)

	if err := c.stageSocialInsurance(); err != nil {
		return err
	}
	if err := c.stageHealthInsurance(); err != nil {
		return err
	}
	if err := c.stageTax(); err != nil {
		return err
	}

	p.Deductions = p.Deductions.
		Add(Round(prev.Deductions)).
		Add(Round(prev.AdditionalInsurance))

	net := Round(c.gross).
		Sub(Round(c.socialEmployee)).
		Sub(Round(c.healthEmployee)).
		Sub(Round(c.addInsurance)).
		Sub(Round(c.taxTotal)).
		Sub(Round(p.Deductions))
	p.NetSalary = Round(net)

	return nil
}
