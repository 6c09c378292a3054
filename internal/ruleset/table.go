package ruleset

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/avoscheidt/fiskal/internal/tax"
)

// Bracket is one step of a progressive schedule. Income inside
// (previous UpTo, UpTo] is taxed at Rate; an unbounded top bracket has
// Unbounded set and UpTo ignored.
type Bracket struct {
	UpTo      decimal.Decimal
	Rate      decimal.Decimal
	Unbounded bool
}

// RuleTable holds the published tax-year parameters for one jurisdiction.
// Tables are pure data; only the calculators interpret them. A published
// table is immutable: a new tax year means a new table, never a mutation.
type RuleTable struct {
	Jurisdiction tax.Jurisdiction
	TaxYear      int
	// FlatRate is the flat withholding-style rate on investment income.
	FlatRate decimal.Decimal
	// SurchargeRate is applied to the computed flat tax (e.g. the German
	// solidarity surcharge). Zero disables it.
	SurchargeRate decimal.Decimal
	// PersonalAllowance is the per-owner annual allowance on investment income.
	PersonalAllowance decimal.Decimal
	// AllowanceOrder is the category priority in which the allowance is
	// consumed. Policy data, not code.
	AllowanceOrder []tax.IncomeCategory
	// Exemptions maps fund categories to the fraction of gains/dividends
	// excluded from tax. Missing categories default to zero.
	Exemptions map[tax.FundCategory]decimal.Decimal
	// LossesOffsetAllIncome allows realized losses to offset dividends and
	// interest too. When false, losses only net against realized gains.
	LossesOffsetAllIncome bool
	// Brackets is the progressive schedule for non-investment income.
	// Empty means the jurisdiction taxes no other income here.
	Brackets []Bracket
}

// ExemptionFor returns the exemption fraction for a fund category, zero when
// the table has no row for it.
func (t RuleTable) ExemptionFor(c tax.FundCategory) decimal.Decimal {
	if r, ok := t.Exemptions[c]; ok {
		return r
	}
	return decimal.Zero
}

// Validate checks internal consistency of a table before publication.
func (t RuleTable) Validate() error {
	if t.Jurisdiction == "" {
		return errors.New("ruleset: jurisdiction is required")
	}
	if t.TaxYear < 2000 || t.TaxYear > 2100 {
		return errors.New("ruleset: tax year out of range")
	}
	if t.FlatRate.IsNegative() || t.FlatRate.GreaterThan(decimal.NewFromInt(1)) {
		return errors.New("ruleset: flat rate must be within [0,1]")
	}
	if t.PersonalAllowance.IsNegative() {
		return errors.New("ruleset: personal allowance must not be negative")
	}
	for c, r := range t.Exemptions {
		if r.IsNegative() || r.GreaterThan(decimal.NewFromInt(1)) {
			return errors.New("ruleset: exemption for " + string(c) + " must be within [0,1]")
		}
	}
	prev := decimal.Zero
	for i, b := range t.Brackets {
		if b.Rate.IsNegative() || b.Rate.GreaterThan(decimal.NewFromInt(1)) {
			return errors.New("ruleset: bracket rate must be within [0,1]")
		}
		if b.Unbounded {
			if i != len(t.Brackets)-1 {
				return errors.New("ruleset: only the top bracket may be unbounded")
			}
			continue
		}
		if !b.UpTo.GreaterThan(prev) {
			return errors.New("ruleset: bracket thresholds must be strictly increasing")
		}
		prev = b.UpTo
	}
	return nil
}

// TreatyRule governs how income from a source jurisdiction is split between
// source and residence taxation, keyed by (source, residence, category).
type TreatyRule struct {
	Source    tax.Jurisdiction
	Residence tax.Jurisdiction
	Category  tax.IncomeCategory
	// SourceRate is the maximum rate the source jurisdiction retains under
	// the treaty; it caps the creditable foreign tax.
	SourceRate decimal.Decimal
	// ResidenceTaxable marks the income as part of the residence
	// jurisdiction's worldwide taxable base.
	ResidenceTaxable bool
}
