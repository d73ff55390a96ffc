package payroll

// Result is the operator-facing outcome of a calculation request. A failed
// validation yields OK=false with the validation message; an internal fault
// yields OK=false with a generic message (details stay in the log).
type Result struct {
	OK      bool     `json:"ok"`
	Message string   `json:"message,omitempty"`
	Payroll *Payroll `json:"payroll,omitempty"`

	// Log is the numbered stage-by-stage processing trace recorded while
	// the calculation ran.
	Log []string `json:"log,omitempty"`
}

func success(p *Payroll, log []string) Result {
	return Result{OK: true, Payroll: p, Log: log}
}

func failure(msg string, log []string) Result {
	return Result{OK: false, Message: msg, Log: log}
}
