/*
Leave compensation adjustment.

PURPOSE:
  Days on socially insured leave are paid at the leave type's percentage
  of the leave base, capped at the type's maximum days. The adjustment is
  emitted as a synthetic line item carrying the leave type's name and
  accounting code instead of an element reference, and folded into the
  monthly gross factor.
*/
package payroll

import "github.com/shopspring/decimal"

var oneHundred = decimal.NewFromInt(100)

// stageLeaveAdjustment computes the insured-leave compensation and adds it
// to the m factor. The base stage must have produced m already; a missing
// m means the gross components never materialized, which is a fault.
func (c *calculation) stageLeaveAdjustment() (decimal.Decimal, error) {
	const stage = "leave adjustment"
	total := decimal.Zero

	var first *Leave
	for _, l := range c.enrollment.Leaves {
		if l.Type != nil && l.Type.SociallyInsured {
			first = l
			break
		}
	}

	if first != nil {
		maxDays := decimal.NewFromInt(int64(first.Type.MaxDays))
		absentDays := decimal.NewFromInt(int64(c.payroll.PaidAbsentDays))
		nrDays := decimal.Min(maxDays, absentDays)

		pct := first.Type.Percentage.Div(oneHundred)
		var amount decimal.Decimal
		if c.payroll.PaidWorkDays == 0 {
			amount = nrDays.Div(c.daysPerMonth).Mul(pct).Mul(c.leaveBase)
		} else {
			amount = nrDays.Div(c.paidDays).Mul(pct).Mul(c.leaveBase)
		}
		value := Round(amount)

		c.payroll.Lines = append(c.payroll.Lines, &LineItem{
			Version:        SyntheticLeaveVersion,
			Description:    first.Type.Name,
			AccountingCode: first.Type.AccountingCode,
			Value:          value,
		})
		total = total.Add(value)
	}

	total = Round(total)
	c.payroll.LeaveSalary = total

	if _, ok := c.factors.MonthlyGross(); !ok {
		return decimal.Zero, faultf(stage, "monthly gross components are missing")
	}
	c.factors.AddMonthlyGross(total)
	return total, nil
}
