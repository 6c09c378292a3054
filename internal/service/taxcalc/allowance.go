package taxcalc

import (
	"github.com/shopspring/decimal"

	"github.com/avoscheidt/fiskal/internal/tax"
)

// Allocation is the outcome of consuming a personal allowance across income
// categories. Used + Remaining always equals the elected allowance; unused
// allowance is reported, never silently dropped.
type Allocation struct {
	UsedByCategory map[tax.IncomeCategory]decimal.Decimal
	Used           decimal.Decimal
	Remaining      decimal.Decimal
	// After holds the per-category taxable amounts net of the allowance.
	After map[tax.IncomeCategory]decimal.Decimal
}

// AllocateAllowance consumes the elected allowance against taxable income in
// the priority order given by the rule table. The order is policy data;
// categories absent from it receive no allowance. Consumption is capped at
// the lesser of the allowance and total taxable income.
func AllocateAllowance(taxable map[tax.IncomeCategory]decimal.Decimal, elected decimal.Decimal, order []tax.IncomeCategory) Allocation {
	al := Allocation{
		UsedByCategory: make(map[tax.IncomeCategory]decimal.Decimal, len(order)),
		After:          make(map[tax.IncomeCategory]decimal.Decimal, len(taxable)),
		Remaining:      elected,
	}
	for c, v := range taxable {
		al.After[c] = v
	}
	if elected.Sign() <= 0 {
		al.Remaining = decimal.Zero
		return al
	}
	left := elected
	for _, c := range order {
		v, ok := al.After[c]
		if !ok || v.Sign() <= 0 {
			continue
		}
		use := decimal.Min(left, v)
		al.After[c] = v.Sub(use)
		al.UsedByCategory[c] = use
		al.Used = al.Used.Add(use)
		left = left.Sub(use)
		if left.IsZero() {
			break
		}
	}
	al.Remaining = elected.Sub(al.Used)
	return al
}
