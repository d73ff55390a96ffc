/*
Error handling for the calculation pipeline.

PURPOSE:
  Two failure tiers with different audiences:

  1. Business validation errors (the Err* sentinels): expected outcomes the
     caller shows to an operator verbatim. The orchestrator turns them into
     a failed Result without logging a fault.
  2. Stage faults (StageFault): defects or infrastructure failures inside a
     calculation stage. The orchestrator logs them with full detail and
     surfaces only a generic failure message; nothing is persisted.

SEE ALSO:
  - result.go: The Result type business errors collapse into
  - calculator.go: The single place faults are caught
*/
package payroll

import (
	"errors"
	"fmt"
)

// Business validation sentinels. Their text is the operator-facing message.
var (
	ErrNoEnrollment    = errors.New("payroll has no employment enrollment")
	ErrNoEmployee      = errors.New("enrolled employee is not specified")
	ErrNoPosition      = errors.New("work position is not specified")
	ErrNoInstitution   = errors.New("institution is not specified")
	ErrNoBankAccount   = errors.New("employee bank account is not defined")
	ErrNoBank          = errors.New("employee bank is not defined")
	ErrNoActivePeriod  = errors.New("no active payroll period for the institution")
	ErrOutsidePeriod   = errors.New("employment does not overlap the payroll period")
	ErrBatchApproved   = errors.New("payroll period is approved and closed for calculation")
	ErrPayrollApproved = errors.New("payroll is approved and can not be changed")
	ErrPayrollMissing  = errors.New("payroll does not exist")
	ErrInvalidKey      = errors.New("invalid payroll key")
)

// ErrCalculationFailed is the only message shown to operators when a stage
// faults. The specifics go to the log.
var ErrCalculationFailed = errors.New("error in calculating payroll")

// IsBusiness reports whether err is one of the operator-facing validation
// sentinels.
func IsBusiness(err error) bool {
	for _, s := range []error{
		ErrNoEnrollment, ErrNoEmployee, ErrNoPosition, ErrNoInstitution,
		ErrNoBankAccount, ErrNoBank, ErrNoActivePeriod, ErrOutsidePeriod,
		ErrBatchApproved, ErrPayrollApproved, ErrPayrollMissing, ErrInvalidKey,
	} {
		if errors.Is(err, s) {
			return true
		}
	}
	return false
}

// StageFault wraps an internal failure with the pipeline stage it occurred
// in. Faults propagate unchanged to the orchestrator.
type StageFault struct {
	Stage string
	Err   error
}

func (f *StageFault) Error() string {
	return fmt.Sprintf("stage %q: %v", f.Stage, f.Err)
}

func (f *StageFault) Unwrap() error { return f.Err }

// faultf builds a StageFault in place.
func faultf(stage, format string, args ...interface{}) *StageFault {
	return &StageFault{Stage: stage, Err: fmt.Errorf(format, args...)}
}

// fault wraps an existing error, keeping an already-tagged fault intact so
// the innermost stage wins.
func fault(stage string, err error) *StageFault {
	var sf *StageFault
	if errors.As(err, &sf) {
		return sf
	}
	return &StageFault{Stage: stage, Err: err}
}
