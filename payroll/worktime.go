/*
Work-time calculation: day accounting for one enrollment in one period.

PURPOSE:
  Derives the paid working days, unpaid absent days, and insured leave days
  a payroll is scaled by. The inputs are the statutory norms (days per
  month, hours per day), the employment span, the period's calendar, the
  institutional holidays, and the enrollment's working-day overrides and
  leave records.

KEY CONCEPTS:
  - Contract hours: The employee's daily hours, from the contract when one
    exists, else the statutory norm. Unpaid time is counted in hours and
    converted to days by dividing by the contract hours
  - Available days: Workdays in the period's calendar month
  - Workable days: Days the employee could have worked given the
    employment span, normalized against the statutory month
  - Insured leave days: Active workday leaves of socially insured types;
    they stay paid but are carried by the insurance, not the employer

EDGE CASES:
  The statutory month (usually 22 days) rarely equals the calendar month's
  workdays, so the final day split runs through a tie-break ladder keyed on
  whether the period is short or long and whether employment starts or ends
  inside it. Long periods donate one absence day back to the employee,
  preferring unpaid absences over insured leave.
*/
package payroll

import "github.com/shopspring/decimal"

// computeWorkTime fills the payroll's day accounting and the w factor, and
// returns the total payable hours for the period.
func (c *calculation) computeWorkTime() decimal.Decimal {
	enr := c.enrollment
	p := c.payroll

	// Daily hours per the contract, falling back to the statutory norm.
	hours := decimal.NewFromInt(int64(c.params.HoursPerDay))
	if enr.Contracted && enr.ContractedHours > 0 {
		hours = decimal.NewFromInt(int64(enr.ContractedHours))
	}
	c.contractHours = hours

	// Unpaid hours from non-payable working-day overrides, capped at the
	// contract hours per day.
	unpaidHours := decimal.Zero
	for _, day := range enr.WorkDays {
		if day.Day.IsWorkday() && day.Day.AfterOrEqual(enr.StartFrom) && !day.Payable {
			unpaidHours = unpaidHours.Add(decimal.Min(c.contractHours, day.Hours))
		}
	}

	// Unpaid hours from non-payable leave, and the total hours on leave
	// regardless of payability.
	for _, leave := range enr.Leaves {
		if leave.Day.Before(enr.StartFrom) {
			continue
		}
		if leave.Active && leave.Day.IsWorkday() && !leave.Type.Payable {
			unpaidHours = unpaidHours.Add(c.contractHours)
		}
		c.hoursOnLeave = c.hoursOnLeave.Add(c.contractHours)
	}

	periodStart := c.period.Start()
	periodEnd := c.period.NextStart()

	availableDays := WorkdaysBetween(periodStart, periodEnd)
	workableDays, startsOrEnds := c.workableDays(periodStart, periodEnd, availableDays)
	holidayDays := c.holidayDays(periodStart, periodEnd)

	// Insured leave days: active workday leaves of socially insured types.
	insuredDays := 0
	for _, leave := range enr.Leaves {
		if leave.Active && leave.Day.IsWorkday() && leave.Type.SociallyInsured {
			insuredDays++
		}
	}

	// Half-to-even: 4 unpaid hours on an 8-hour day stay below a full day.
	unpaidDays := int(unpaidHours.Div(c.contractHours).RoundBank(0).IntPart())
	totalAbsentDays := unpaidDays + insuredDays

	p.UnpaidAbsentDays = unpaidDays
	p.PaidAbsentDays = insuredDays
	p.InsuredLeaveDays = insuredDays

	daysPerMonth := c.params.DaysPerMonth
	switch {
	case availableDays <= totalAbsentDays || workableDays <= totalAbsentDays:
		p.PaidWorkDays = 0

	case availableDays <= daysPerMonth:
		// Short period: the calendar has at most the statutory workdays.
		if startsOrEnds {
			p.PaidWorkDays = workableDays - totalAbsentDays
		} else if availableDays-totalAbsentDays <= holidayDays {
			p.PaidWorkDays = availableDays - totalAbsentDays
		} else {
			p.PaidWorkDays = daysPerMonth - totalAbsentDays
		}

	default:
		// Long period: more calendar workdays than the statutory month, so
		// one absence day is handed back when absences exist. Unpaid
		// absences are relieved first.
		if totalAbsentDays > 0 {
			if c.posCount > 1 || workableDays == availableDays {
				if unpaidDays > 0 {
					p.UnpaidAbsentDays = unpaidDays - 1
				} else {
					p.PaidAbsentDays = insuredDays - 1
				}
				if c.posCount > 1 {
					p.PaidWorkDays = workableDays - p.UnpaidAbsentDays - p.PaidAbsentDays
				} else {
					p.PaidWorkDays = daysPerMonth - p.UnpaidAbsentDays - p.PaidAbsentDays
				}
			} else {
				p.PaidWorkDays = workableDays - unpaidDays - insuredDays
			}
		} else if startsOrEnds {
			p.PaidWorkDays = workableDays
		} else {
			p.PaidWorkDays = daysPerMonth
		}
	}

	c.paidDays = decimal.NewFromInt(int64(p.PaidWorkDays))
	c.factors.SetPaidDays(p.PaidWorkDays)
	return c.paidDays.Mul(c.contractHours)
}

// workableDays derives how many days this enrollment could have worked in
// the period, normalized against the statutory month, and whether the
// employment starts or ends inside the period.
func (c *calculation) workableDays(periodStart, periodEnd Date, availableDays int) (int, bool) {
	enr := c.enrollment
	daysPerMonth := c.params.DaysPerMonth

	if enr.StartFrom.BeforeOrEqual(periodStart) {
		if enr.EndTo != nil {
			if enr.EndTo.AfterOrEqual(periodEnd.AddDays(-1)) {
				return daysPerMonth, false
			}
			// Ends inside the period: workdays from the period start
			// through the employment end, capped at the statutory month.
			span := periodStart.DaysUntil(enr.EndTo.AddDays(1))
			days := WorkdaysFrom(periodStart, span)
			if days >= daysPerMonth {
				days = daysPerMonth
			}
			return days, true
		}
		if availableDays <= daysPerMonth {
			return daysPerMonth, false
		}
		return availableDays, false
	}

	// Starts inside the period.
	var span int
	if enr.EndTo != nil && enr.EndTo.Before(periodEnd) {
		span = enr.StartFrom.DaysUntil(*enr.EndTo) + 1
	} else {
		span = enr.StartFrom.DaysUntil(periodEnd)
	}
	days := WorkdaysFrom(enr.StartFrom, span)

	// Normalize against the statutory month for second positions or a
	// full-period engagement.
	if c.posCount > 1 || (c.posCount == 1 && availableDays == days) {
		if availableDays < daysPerMonth {
			days += daysPerMonth - availableDays
		} else if availableDays > daysPerMonth {
			days -= availableDays - daysPerMonth
		}
	}
	return days, true
}

// holidayDays counts institutional holidays inside the overlap of the
// period and the employment span, both bounds inclusive.
func (c *calculation) holidayDays(periodStart, periodEnd Date) int {
	from := MaxDate(periodStart, c.enrollment.StartFrom)
	to := periodEnd
	if c.enrollment.EndTo != nil {
		to = MinDate(periodEnd, *c.enrollment.EndTo)
	}
	n := 0
	for _, h := range c.payroll.Holidays {
		if from.BeforeOrEqual(h.Day) && h.Day.BeforeOrEqual(to) {
			n++
		}
	}
	return n
}
