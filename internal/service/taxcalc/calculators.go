package taxcalc

import (
	"github.com/shopspring/decimal"

	"github.com/avoscheidt/fiskal/internal/ruleset"
	"github.com/avoscheidt/fiskal/internal/tax"
)

// The calculators are pure functions from (classified income, rule table,
// profile) to a jurisdiction result. All arithmetic stays at full decimal
// precision; each calculator rounds exactly once, at its final tax line, so
// per-transaction rounding drift cannot accumulate.

// CalculateDE computes German capital-income tax: flat withholding rate on
// interest, dividends and realized gains after partial exemptions, loss
// netting and the personal allowance, plus the solidarity surcharge when the
// table enables it.
func CalculateDE(items []tax.IncomeItem, table ruleset.RuleTable, profile tax.TaxProfile) tax.JurisdictionResult {
	return calculateCapital(items, table, profile)
}

// CalculateAT computes Austrian tax: the flat KESt rate on investment income
// after the personal allowance, plus a marginal progressive tax on other
// income. Each bracket taxes only the slice of income falling within it.
func CalculateAT(items []tax.IncomeItem, table ruleset.RuleTable, profile tax.TaxProfile) tax.JurisdictionResult {
	return calculateCapital(items, table, profile)
}

// CalculateGeneric is the cross-border fallback for primary jurisdictions the
// engine has no dedicated calculator for; the table fully parameterizes it.
func CalculateGeneric(items []tax.IncomeItem, table ruleset.RuleTable, profile tax.TaxProfile) tax.JurisdictionResult {
	return calculateCapital(items, table, profile)
}

// calculatorFor dispatches on jurisdiction.
func calculatorFor(j tax.Jurisdiction) func([]tax.IncomeItem, ruleset.RuleTable, tax.TaxProfile) tax.JurisdictionResult {
	switch j {
	case tax.JurisdictionDE:
		return CalculateDE
	case tax.JurisdictionAT:
		return CalculateAT
	default:
		return CalculateGeneric
	}
}

func calculateCapital(items []tax.IncomeItem, table ruleset.RuleTable, profile tax.TaxProfile) tax.JurisdictionResult {
	a := aggregate(items, table)

	// Realized losses plus the prior-year carryforward net against gains
	// first. Spilling into dividends/interest is a table flag, not a branch
	// the law owns in code.
	losses := a.taxableLosses.Add(profile.LossCarryforward)
	netGains := a.taxableGains.Sub(losses)
	dividends := a.taxableDividends
	interest := a.taxableInterest
	if netGains.Sign() < 0 {
		if table.LossesOffsetAllIncome {
			spill := netGains.Neg()
			use := decimal.Min(spill, dividends)
			dividends = dividends.Sub(use)
			spill = spill.Sub(use)
			interest = decimal.Max(decimal.Zero, interest.Sub(spill))
		}
		netGains = decimal.Zero
	}

	// Allowance before withholding netting, in the table's category order.
	elected := decimal.Min(profile.AllowanceElected, table.PersonalAllowance)
	al := AllocateAllowance(map[tax.IncomeCategory]decimal.Decimal{
		tax.IncomeCategoryInterest:  interest,
		tax.IncomeCategoryDividends: dividends,
		tax.IncomeCategoryGains:     netGains,
	}, elected, table.AllowanceOrder)

	taxable := al.After[tax.IncomeCategoryInterest].
		Add(al.After[tax.IncomeCategoryDividends]).
		Add(al.After[tax.IncomeCategoryGains])

	flatTax := taxable.Mul(table.FlatRate)
	flatTax = flatTax.Add(flatTax.Mul(table.SurchargeRate))

	progressive := bracketTax(a.taxableOther, table.Brackets)

	// The one rounding point of this jurisdiction.
	taxComputed := flatTax.Add(progressive).Round(2)
	withheld := a.domesticWithheld.Round(2)

	return tax.JurisdictionResult{
		Jurisdiction:       table.Jurisdiction,
		GrossInterest:      a.grossInterest,
		GrossDividends:     a.grossDividends,
		GrossCapitalGains:  a.grossGains,
		GrossCapitalLosses: a.grossLosses,
		GrossOtherIncome:   a.grossOther,
		AllowanceUsed:      al.Used,
		AllowanceRemaining: al.Remaining,
		TaxableAmount:      taxable.Add(a.taxableOther),
		TaxComputed:        taxComputed,
		TaxWithheld:        withheld,
		NetTaxDue:          taxComputed.Sub(withheld),
	}
}

// bracketTax accumulates marginal tax bracket by bracket: each bracket taxes
// only the slice of income inside it, never the top rate on the whole amount.
func bracketTax(income decimal.Decimal, brackets []ruleset.Bracket) decimal.Decimal {
	if income.Sign() <= 0 || len(brackets) == 0 {
		return decimal.Zero
	}
	total := decimal.Zero
	lower := decimal.Zero
	for _, b := range brackets {
		upper := b.UpTo
		if b.Unbounded || upper.GreaterThan(income) {
			upper = income
		}
		if upper.GreaterThan(lower) {
			total = total.Add(upper.Sub(lower).Mul(b.Rate))
		}
		lower = b.UpTo
		if b.Unbounded || !income.GreaterThan(lower) {
			break
		}
	}
	return total
}
