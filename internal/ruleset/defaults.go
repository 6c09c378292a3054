package ruleset

import (
	"github.com/shopspring/decimal"

	"github.com/avoscheidt/fiskal/internal/tax"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// capitalOrder is the allowance consumption priority used by DE and AT:
// interest first, then dividends, then gains.
var capitalOrder = []tax.IncomeCategory{
	tax.IncomeCategoryInterest,
	tax.IncomeCategoryDividends,
	tax.IncomeCategoryGains,
}

// deExemptions are the partial-exemption fractions by fund class
// (Teilfreistellung, InvStG §20).
var deExemptions = map[tax.FundCategory]decimal.Decimal{
	tax.FundCategoryEquity:     dec("0.30"),
	tax.FundCategoryMixed:      dec("0.15"),
	tax.FundCategoryRealEstate: dec("0.60"),
}

func deTable(year int, allowance string) RuleTable {
	return RuleTable{
		Jurisdiction:      tax.JurisdictionDE,
		TaxYear:           year,
		FlatRate:          dec("0.25"),
		SurchargeRate:     dec("0.055"),
		PersonalAllowance: dec(allowance),
		AllowanceOrder:    capitalOrder,
		Exemptions:        deExemptions,
	}
}

func atTable(year int, brackets []Bracket) RuleTable {
	return RuleTable{
		Jurisdiction:      tax.JurisdictionAT,
		TaxYear:           year,
		FlatRate:          dec("0.275"),
		PersonalAllowance: decimal.Zero,
		AllowanceOrder:    capitalOrder,
		Brackets:          brackets,
	}
}

func atBrackets(steps ...string) []Bracket {
	// steps alternate threshold, rate; a final lone rate is the unbounded top.
	out := make([]Bracket, 0, len(steps)/2+1)
	for i := 0; i+1 < len(steps); i += 2 {
		out = append(out, Bracket{UpTo: dec(steps[i]), Rate: dec(steps[i+1])})
	}
	if len(steps)%2 == 1 {
		out = append(out, Bracket{Rate: dec(steps[len(steps)-1]), Unbounded: true})
	}
	return out
}

// DefaultRegistry returns a registry preloaded with the DE and AT tables for
// 2022-2025 and the treaty rows the engine ships with.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	for _, t := range []RuleTable{
		deTable(2022, "801"),
		deTable(2023, "1000"),
		deTable(2024, "1000"),
		deTable(2025, "1000"),
		atTable(2022, atBrackets(
			"11000", "0", "18000", "0.20", "31000", "0.325",
			"60000", "0.42", "90000", "0.48", "1000000", "0.50", "0.55")),
		atTable(2023, atBrackets(
			"11693", "0", "19134", "0.20", "32075", "0.30",
			"62080", "0.41", "93120", "0.48", "1000000", "0.50", "0.55")),
		atTable(2024, atBrackets(
			"12816", "0", "20818", "0.20", "34513", "0.30",
			"66612", "0.40", "99266", "0.48", "1000000", "0.50", "0.55")),
		atTable(2025, atBrackets(
			"13308", "0", "21617", "0.20", "35836", "0.30",
			"69166", "0.40", "103072", "0.48", "1000000", "0.50", "0.55")),
	} {
		if err := r.Publish(t); err != nil {
			panic(err)
		}
	}

	residences := []tax.Jurisdiction{tax.JurisdictionDE, tax.JurisdictionAT}
	sources := []tax.Jurisdiction{tax.JurisdictionDE, tax.JurisdictionAT, tax.JurisdictionUS, tax.JurisdictionCH}
	for _, res := range residences {
		for _, src := range sources {
			if src == res {
				continue
			}
			rows := []TreatyRule{
				// Dividends: source keeps up to 15%, residence taxes worldwide.
				{Source: src, Residence: res, Category: tax.IncomeCategoryDividends, SourceRate: dec("0.15"), ResidenceTaxable: true},
				// Interest and gains: residence-only taxation.
				{Source: src, Residence: res, Category: tax.IncomeCategoryInterest, SourceRate: decimal.Zero, ResidenceTaxable: true},
				{Source: src, Residence: res, Category: tax.IncomeCategoryGains, SourceRate: decimal.Zero, ResidenceTaxable: true},
			}
			for _, row := range rows {
				if err := r.PublishTreaty(row); err != nil {
					panic(err)
				}
			}
		}
	}
	return r
}
