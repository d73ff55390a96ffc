package payroll

import "github.com/shopspring/decimal"

// The currency's minor unit. All persisted and compared monetary values are
// rounded to whole units.
const minorUnitPlaces = 0

// Round rounds a monetary value to the minor unit, half away from zero.
// Every intermediate monetary value in the pipeline passes through this
// before being accumulated, cached, or persisted.
func Round(v decimal.Decimal) decimal.Decimal {
	return v.Round(minorUnitPlaces)
}

// RoundPtr rounds through a nil-safe pointer, treating nil as zero.
func RoundPtr(v *decimal.Decimal) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return Round(*v)
}
