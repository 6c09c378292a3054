package taxcalc

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/avoscheidt/fiskal/internal/ruleset"
	"github.com/avoscheidt/fiskal/internal/tax"
)

// crossBorderSplit is the outcome of applying the treaty table to classified
// income: which items enter the primary jurisdiction's worldwide base, the
// per-source-jurisdiction blocks, and the inputs for the credit computation.
type crossBorderSplit struct {
	residenceItems []tax.IncomeItem
	foreignBlocks  []tax.JurisdictionResult
	creditItems    []creditItem
	// usedTreaties records the treaty rows consulted; they are part of the
	// calculation's input surface and feed the input hash.
	usedTreaties []ruleset.TreatyRule
}

// creditItem is one foreign income slice eligible for a foreign tax credit.
type creditItem struct {
	item tax.IncomeItem
	// creditable is the foreign tax countable under the treaty: the lesser of
	// what was actually withheld and the treaty's source-rate cap.
	creditable decimal.Decimal
}

// splitCrossBorder distributes income across jurisdictions under treaty
// rules. Domestic items pass straight into the residence base. A missing
// treaty row is an error surfaced for manual verification, never guessed.
func splitCrossBorder(items []tax.IncomeItem, primary tax.Jurisdiction, rules ruleset.Source) (crossBorderSplit, error) {
	var out crossBorderSplit
	foreign := make(map[tax.Jurisdiction]*tax.JurisdictionResult)
	foreignTax := make(map[tax.Jurisdiction]decimal.Decimal)

	for _, it := range items {
		if it.Source == primary || it.Source == "" {
			out.residenceItems = append(out.residenceItems, it)
			continue
		}
		treaty, err := rules.LookupTreaty(it.Source, primary, it.Category)
		if err != nil {
			return crossBorderSplit{}, err
		}
		out.usedTreaties = appendTreatyOnce(out.usedTreaties, treaty)

		blk, ok := foreign[it.Source]
		if !ok {
			blk = &tax.JurisdictionResult{Jurisdiction: it.Source}
			foreign[it.Source] = blk
			foreignTax[it.Source] = decimal.Zero
		}
		switch it.Category {
		case tax.IncomeCategoryInterest:
			blk.GrossInterest = blk.GrossInterest.Add(it.Amount)
		case tax.IncomeCategoryDividends:
			blk.GrossDividends = blk.GrossDividends.Add(it.Amount)
		case tax.IncomeCategoryGains:
			if it.Amount.Sign() >= 0 {
				blk.GrossCapitalGains = blk.GrossCapitalGains.Add(it.Amount)
			} else {
				blk.GrossCapitalLosses = blk.GrossCapitalLosses.Add(it.Amount.Neg())
			}
		case tax.IncomeCategoryOther:
			blk.GrossOtherIncome = blk.GrossOtherIncome.Add(it.Amount)
		}
		blk.TaxWithheld = blk.TaxWithheld.Add(it.Withheld)

		// The treaty caps what the source jurisdiction retains.
		if treaty.SourceRate.Sign() > 0 && it.Amount.Sign() > 0 {
			blk.TaxableAmount = blk.TaxableAmount.Add(it.Amount)
			foreignTax[it.Source] = foreignTax[it.Source].Add(it.Amount.Mul(treaty.SourceRate))
		}

		if treaty.ResidenceTaxable {
			out.residenceItems = append(out.residenceItems, it)
			cap := it.Amount.Mul(treaty.SourceRate)
			out.creditItems = append(out.creditItems, creditItem{
				item:       it,
				creditable: decimal.Min(it.Withheld, decimal.Max(decimal.Zero, cap)),
			})
		}
	}

	codes := make([]string, 0, len(foreign))
	for j := range foreign {
		codes = append(codes, string(j))
	}
	sort.Strings(codes)
	for _, c := range codes {
		blk := foreign[tax.Jurisdiction(c)]
		blk.TaxComputed = foreignTax[tax.Jurisdiction(c)].Round(2)
		// Source-side tax is settled via withholding; nothing falls due here.
		blk.NetTaxDue = decimal.Zero
		out.foreignBlocks = append(out.foreignBlocks, *blk)
	}
	return out, nil
}

func appendTreatyOnce(rows []ruleset.TreatyRule, row ruleset.TreatyRule) []ruleset.TreatyRule {
	for _, r := range rows {
		if r.Source == row.Source && r.Residence == row.Residence && r.Category == row.Category {
			return rows
		}
	}
	return append(rows, row)
}

// foreignTaxCredit computes the credit against the primary jurisdiction's
// liability. Hard invariant: per income slice the credit never exceeds the
// lesser of the foreign tax withheld (treaty-capped) and the primary tax
// attributable to that slice, so a credit can never offset tax the primary
// jurisdiction did not levy.
func foreignTaxCredit(primary tax.JurisdictionResult, table ruleset.RuleTable, credits []creditItem) decimal.Decimal {
	if len(credits) == 0 || primary.TaxComputed.Sign() <= 0 || primary.TaxableAmount.Sign() <= 0 {
		return decimal.Zero
	}
	one := decimal.NewFromInt(1)
	// Effective rate distributes allowance and exemption effects evenly over
	// the taxable base when attributing primary tax to a foreign slice.
	effectiveRate := primary.TaxComputed.Div(primary.TaxableAmount)
	total := decimal.Zero
	for _, c := range credits {
		if c.creditable.Sign() <= 0 || c.item.Amount.Sign() <= 0 {
			continue
		}
		taxablePortion := c.item.Amount
		switch c.item.Category {
		case tax.IncomeCategoryDividends, tax.IncomeCategoryGains:
			taxablePortion = taxablePortion.Mul(one.Sub(table.ExemptionFor(c.item.FundCategory)))
		}
		attributable := taxablePortion.Mul(effectiveRate)
		total = total.Add(decimal.Min(c.creditable, decimal.Max(decimal.Zero, attributable)))
	}
	// Never credit more than the whole primary liability.
	return decimal.Min(total, primary.TaxComputed).Round(2)
}
