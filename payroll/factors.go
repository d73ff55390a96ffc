/*
The per-run factor accumulator.

PURPOSE:
  Every calculation threads a Factors value through its stages. Each stage
  deposits its totals under typed fields and each evaluated element caches
  its own value under the element's code; formulas of later stages read
  both through the single-letter variable namespace produced by Vars().

THE VARIABLE NAMESPACE:
  s/S  taxable / non-taxable stage totals
  i/I  insured / non-insured stage totals
  d/D  taxable / non-taxable deduction totals
  m    monthly gross accumulated by the salary build stages
  b    base-salary stage total
  w    paid working days
  C/T  insured amount / taxed amount (statutory bases)
  G    gross-to-date across the employee's other payrolls

  Plus the named factors PrivateInsurance and ExceptionForBlind consumed by
  the income-tax formula, and one entry per evaluated element code.

A factor that was never produced is absent from the namespace, so a
formula referencing it fails loudly instead of silently reading zero.
*/
package payroll

import "github.com/shopspring/decimal"

// Factor namespace keys.
const (
	varTaxable          = "s"
	varNonTaxable       = "S"
	varInsured          = "i"
	varNonInsured       = "I"
	varDeducTaxable     = "d"
	varDeducNonTaxable  = "D"
	varMonthlyGross     = "m"
	varBaseTotal        = "b"
	varPaidDays         = "w"
	varInsuredAmount    = "C"
	varTaxedAmount      = "T"
	varGrossToDate      = "G"
	varPrivateInsurance = "PrivateInsurance"
	varBlindExemption   = "ExceptionForBlind"
)

// Factors accumulates the running totals of one calculation. The zero
// value is ready to use.
type Factors struct {
	taxable         decimal.Decimal
	nonTaxable      decimal.Decimal
	insured         decimal.Decimal
	nonInsured      decimal.Decimal
	deducTaxable    decimal.Decimal
	deducNonTaxable decimal.Decimal
	monthlyGross    decimal.Decimal
	baseTotal       decimal.Decimal
	paidDays        decimal.Decimal
	insuredAmount   decimal.Decimal
	taxedAmount     decimal.Decimal
	grossToDate     decimal.Decimal
	privateIns      decimal.Decimal
	blindExemption  decimal.Decimal

	present map[string]bool
	codes   map[string]decimal.Decimal
}

func NewFactors() *Factors {
	return &Factors{
		present: make(map[string]bool),
		codes:   make(map[string]decimal.Decimal),
	}
}

func (f *Factors) mark(key string) { f.present[key] = true }

// Has reports whether a namespace key was produced by an earlier stage.
func (f *Factors) Has(key string) bool { return f.present[key] }

// ===== stage total accumulators ==============================================

func (f *Factors) AddTaxable(v decimal.Decimal) {
	f.taxable = f.taxable.Add(v)
	f.mark(varTaxable)
}

func (f *Factors) AddNonTaxable(v decimal.Decimal) {
	f.nonTaxable = f.nonTaxable.Add(v)
	f.mark(varNonTaxable)
}

func (f *Factors) AddInsured(v decimal.Decimal) {
	f.insured = f.insured.Add(v)
	f.mark(varInsured)
}

func (f *Factors) SubInsured(v decimal.Decimal) {
	f.insured = f.insured.Sub(v)
	f.mark(varInsured)
}

func (f *Factors) AddNonInsured(v decimal.Decimal) {
	f.nonInsured = f.nonInsured.Add(v)
	f.mark(varNonInsured)
}

func (f *Factors) AddDeducTaxable(v decimal.Decimal) {
	f.deducTaxable = f.deducTaxable.Add(v)
	f.mark(varDeducTaxable)
}

func (f *Factors) AddDeducNonTaxable(v decimal.Decimal) {
	f.deducNonTaxable = f.deducNonTaxable.Add(v)
	f.mark(varDeducNonTaxable)
}

func (f *Factors) AddMonthlyGross(v decimal.Decimal) {
	f.monthlyGross = f.monthlyGross.Add(v)
	f.mark(varMonthlyGross)
}

func (f *Factors) AddBaseTotal(v decimal.Decimal) {
	f.baseTotal = f.baseTotal.Add(v)
	f.mark(varBaseTotal)
}

func (f *Factors) AddGrossToDate(v decimal.Decimal) {
	f.grossToDate = f.grossToDate.Add(v)
	f.mark(varGrossToDate)
}

// ===== direct setters ========================================================

func (f *Factors) SetPaidDays(days int) {
	f.paidDays = decimal.NewFromInt(int64(days))
	f.mark(varPaidDays)
}

func (f *Factors) SetInsuredAmount(v decimal.Decimal) {
	f.insuredAmount = v
	f.mark(varInsuredAmount)
}

func (f *Factors) SetTaxedAmount(v decimal.Decimal) {
	f.taxedAmount = v
	f.mark(varTaxedAmount)
}

func (f *Factors) SetPrivateInsurance(v decimal.Decimal) {
	f.privateIns = v
	f.mark(varPrivateInsurance)
}

func (f *Factors) SetBlindExemption(v decimal.Decimal) {
	f.blindExemption = v
	f.mark(varBlindExemption)
}

// ===== readers ===============================================================

// Taxable and friends return the running total and whether any stage
// produced it yet.

func (f *Factors) Taxable() (decimal.Decimal, bool)      { return f.taxable, f.Has(varTaxable) }
func (f *Factors) Insured() (decimal.Decimal, bool)      { return f.insured, f.Has(varInsured) }
func (f *Factors) DeducTaxable() (decimal.Decimal, bool) { return f.deducTaxable, f.Has(varDeducTaxable) }
func (f *Factors) MonthlyGross() (decimal.Decimal, bool) { return f.monthlyGross, f.Has(varMonthlyGross) }
func (f *Factors) InsuredAmount() (decimal.Decimal, bool) {
	return f.insuredAmount, f.Has(varInsuredAmount)
}
func (f *Factors) TaxedAmount() (decimal.Decimal, bool) { return f.taxedAmount, f.Has(varTaxedAmount) }
func (f *Factors) PrivateInsurance() (decimal.Decimal, bool) {
	return f.privateIns, f.Has(varPrivateInsurance)
}
func (f *Factors) BlindExemption() (decimal.Decimal, bool) {
	return f.blindExemption, f.Has(varBlindExemption)
}

// ===== element code cache ====================================================

// Cache stores (overwriting) an evaluated element's value under its code
// so later formulas can reference it.
func (f *Factors) Cache(code string, v decimal.Decimal) {
	if code == "" {
		return
	}
	f.codes[code] = v
}

// Cached looks up an element code deposited by an earlier evaluation.
func (f *Factors) Cached(code string) (decimal.Decimal, bool) {
	v, ok := f.codes[code]
	return v, ok
}

// Vars renders the namespace formulas evaluate against: every element code
// plus every produced letter factor. Letters shadow a colliding code.
func (f *Factors) Vars() map[string]decimal.Decimal {
	vars := make(map[string]decimal.Decimal, len(f.codes)+len(f.present))
	for code, v := range f.codes {
		vars[code] = v
	}
	letters := map[string]decimal.Decimal{
		varTaxable:          f.taxable,
		varNonTaxable:       f.nonTaxable,
		varInsured:          f.insured,
		varNonInsured:       f.nonInsured,
		varDeducTaxable:     f.deducTaxable,
		varDeducNonTaxable:  f.deducNonTaxable,
		varMonthlyGross:     f.monthlyGross,
		varBaseTotal:        f.baseTotal,
		varPaidDays:         f.paidDays,
		varInsuredAmount:    f.insuredAmount,
		varTaxedAmount:      f.taxedAmount,
		varGrossToDate:      f.grossToDate,
		varPrivateInsurance: f.privateIns,
		varBlindExemption:   f.blindExemption,
	}
	for key, v := range letters {
		if f.present[key] {
			vars[key] = v
		}
	}
	return vars
}
