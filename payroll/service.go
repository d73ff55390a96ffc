/*
The read/update surface around stored payrolls.

PURPOSE:
  Everything callers do with payrolls outside of calculating them:
  fetching stored payrolls by key, enrollment, employee, or institution,
  manually updating an unapproved payroll, and maintaining the
  per-period collections (working days, leaves, overtime, supplements,
  deductions) hanging off an enrollment.

CONVENTIONS:
  - Business validation failures return the Err* sentinels so transports
    can map them to status codes
  - Records with an empty key are treated as newly created and get a
    full audit stamp; existing records get a modification stamp
*/
package payroll

import "time"

// UpdatePayroll overwrites a stored, unapproved payroll with the supplied
// one.
func (cl *Calculator) UpdatePayroll(p *Payroll) (*Payroll, error) {
	if p.Key == "" {
		return nil, ErrInvalidKey
	}
	stored, err := cl.payrolls.Get(p.Key)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, ErrPayrollMissing
	}
	if stored.Approved {
		return stored, ErrPayrollApproved
	}

	p.Audit.StampNew(cl.sec.UserID(), cl.sec.Address(), cl.now())
	if err := cl.payrolls.Update(p); err != nil {
		return nil, err
	}
	return p, nil
}

// GetPayroll fetches one payroll, fully loaded, by its key.
func (cl *Calculator) GetPayroll(key string) (*Payroll, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	p, err := cl.payrolls.Get(key)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPayrollMissing
	}
	return p, nil
}

// GetPayrollByEnrollment fetches the payroll of one enrollment in one
// period, with the line items and collections when full is set.
func (cl *Calculator) GetPayrollByEnrollment(enr *Enrollment, periodKey string, full bool) (*Payroll, error) {
	if err := validateEnrollmentLookup(enr, periodKey); err != nil {
		return nil, err
	}
	p, err := cl.payrolls.GetByEnrollment(enr, periodKey, full)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPayrollMissing
	}
	return p, nil
}

// GetPayrollsForEmployee fetches every payroll of the enrolled employee
// in one period, across all of the employee's enrollments.
func (cl *Calculator) GetPayrollsForEmployee(enr *Enrollment, periodKey string) ([]*Payroll, error) {
	if err := validateEnrollmentLookup(enr, periodKey); err != nil {
		return nil, err
	}
	return cl.payrolls.GetForEmployee(enr, periodKey)
}

// GetAllPayrolls fetches every payroll of an institution in one period.
func (cl *Calculator) GetAllPayrolls(institutionID, periodKey string) ([]*Payroll, error) {
	if institutionID == "" {
		return nil, ErrNoInstitution
	}
	if periodKey == "" {
		return nil, ErrInvalidKey
	}
	return cl.payrolls.GetAll(institutionID, periodKey)
}

// GetEmployeeLeaves reloads only the leave collection of an enrollment
// for one period.
func (cl *Calculator) GetEmployeeLeaves(enr *Enrollment, periodKey string) error {
	if enr == nil || enr.Key == "" {
		return ErrInvalidKey
	}
	return cl.enrollments.LoadLeaves(enr, periodKey)
}

// GetPayrollRelatedElements clears and reloads all per-period collections
// of an enrollment, so callers never see a partially stale mix.
func (cl *Calculator) GetPayrollRelatedElements(enr *Enrollment, periodKey string) error {
	if enr == nil || enr.Key == "" {
		return ErrInvalidKey
	}
	enr.ClearCollections()
	return cl.enrollments.LoadRelatedElements(enr, periodKey)
}

// UpdatePayrollRelatedElements audit-stamps and persists all per-period
// collections of an enrollment. A record with an empty key is treated as
// newly created.
func (cl *Calculator) UpdatePayrollRelatedElements(enr *Enrollment, periodKey string) error {
	if enr == nil || enr.Key == "" {
		return ErrInvalidKey
	}
	now := cl.now()
	user, addr := cl.sec.UserID(), cl.sec.Address()

	for _, d := range enr.WorkDays {
		stamp(&d.Audit, d.Key == "", user, addr, now)
	}
	for _, l := range enr.Leaves {
		stamp(&l.Audit, l.Key == "", user, addr, now)
	}
	for _, o := range enr.Overtime {
		stamp(&o.Audit, o.Key == "", user, addr, now)
	}
	for _, s := range enr.Supplements {
		stamp(&s.Audit, s.Key == "", user, addr, now)
	}
	for _, d := range enr.Deductions {
		stamp(&d.Audit, d.Key == "", user, addr, now)
	}

	return cl.enrollments.SaveRelatedElements(enr, periodKey)
}

func stamp(a *Audit, isNew bool, user, addr string, now time.Time) {
	if isNew {
		a.StampNew(user, addr, now)
	} else {
		a.StampModified(user, addr, now)
	}
}

func validateEnrollmentLookup(enr *Enrollment, periodKey string) error {
	switch {
	case enr == nil:
		return ErrNoEnrollment
	case enr.Employee == nil:
		return ErrNoEmployee
	case enr.Position == nil:
		return ErrNoPosition
	case enr.Employee.Key == "":
		return ErrNoEmployee
	case enr.Position.Key == "":
		return ErrNoPosition
	case periodKey == "":
		return ErrInvalidKey
	}
	return nil
}
