package taxcalc

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/avoscheidt/fiskal/internal/ruleset"
	"github.com/avoscheidt/fiskal/internal/tax"
)

// Classify folds realized events and income transactions into typed income
// items. Items come out in input order, so a deterministic transaction order
// yields a deterministic item sequence.
func Classify(positions []tax.Position, events []tax.RealizedEvent, txs []tax.Transaction) []tax.IncomeItem {
	posByID := make(map[uuid.UUID]tax.Position, len(positions))
	for _, p := range positions {
		posByID[p.ID] = p
	}

	// Collapse per-lot events into one gains item per disposal transaction;
	// every event of a disposal shares the position's fund category and the
	// transaction's source jurisdiction.
	gainByTx := make(map[uuid.UUID]*tax.IncomeItem)
	var order []uuid.UUID
	for _, e := range events {
		item, ok := gainByTx[e.TransactionID]
		if !ok {
			item = &tax.IncomeItem{
				Category:     tax.IncomeCategoryGains,
				Source:       e.Source,
				FundCategory: e.FundCategory,
			}
			gainByTx[e.TransactionID] = item
			order = append(order, e.TransactionID)
		}
		item.Amount = item.Amount.Add(e.GainLoss)
	}

	var items []tax.IncomeItem
	for _, t := range txs {
		switch t.Type {
		case tax.TransactionTypeSell:
			if item, ok := gainByTx[t.ID]; ok {
				item.Withheld = item.Withheld.Add(t.Withheld)
			}
		case tax.TransactionTypeDividend:
			fc := tax.FundCategoryNone
			if p, ok := posByID[t.PositionID]; ok {
				fc = p.FundCategory
			}
			items = append(items, tax.IncomeItem{
				Category:     tax.IncomeCategoryDividends,
				Source:       t.Source,
				FundCategory: fc,
				Amount:       t.Amount,
				Withheld:     t.Withheld,
			})
		case tax.TransactionTypeInterest:
			items = append(items, tax.IncomeItem{
				Category: tax.IncomeCategoryInterest,
				Source:   t.Source,
				Amount:   t.Amount,
				Withheld: t.Withheld,
			})
		case tax.TransactionTypeOtherIncome:
			items = append(items, tax.IncomeItem{
				Category: tax.IncomeCategoryOther,
				Source:   t.Source,
				Amount:   t.Amount,
				Withheld: t.Withheld,
			})
		}
	}
	for _, id := range order {
		items = append(items, *gainByTx[id])
	}
	return items
}

// aggregates holds the folded income of one taxing jurisdiction at full
// precision. Taxable fields are post-exemption, pre-netting.
type aggregates struct {
	grossInterest  decimal.Decimal
	grossDividends decimal.Decimal
	grossGains     decimal.Decimal
	grossLosses    decimal.Decimal // positive magnitude
	grossOther     decimal.Decimal

	taxableInterest  decimal.Decimal
	taxableDividends decimal.Decimal
	taxableGains     decimal.Decimal
	taxableLosses    decimal.Decimal // positive magnitude, post-exemption
	taxableOther     decimal.Decimal

	domesticWithheld decimal.Decimal
}

// aggregate folds items under a jurisdiction's rule table. The fund-category
// exemption reduces the taxable portion of dividends, gains and losses, never
// the gross. Withheld tax is summed only for income sourced in the taxing
// jurisdiction itself; foreign withholding flows through the credit path.
func aggregate(items []tax.IncomeItem, table ruleset.RuleTable) aggregates {
	one := decimal.NewFromInt(1)
	var a aggregates
	for _, it := range items {
		if it.Source == table.Jurisdiction {
			a.domesticWithheld = a.domesticWithheld.Add(it.Withheld)
		}
		switch it.Category {
		case tax.IncomeCategoryInterest:
			a.grossInterest = a.grossInterest.Add(it.Amount)
			a.taxableInterest = a.taxableInterest.Add(it.Amount)
		case tax.IncomeCategoryDividends:
			a.grossDividends = a.grossDividends.Add(it.Amount)
			keep := one.Sub(table.ExemptionFor(it.FundCategory))
			a.taxableDividends = a.taxableDividends.Add(it.Amount.Mul(keep))
		case tax.IncomeCategoryGains:
			keep := one.Sub(table.ExemptionFor(it.FundCategory))
			if it.Amount.Sign() >= 0 {
				a.grossGains = a.grossGains.Add(it.Amount)
				a.taxableGains = a.taxableGains.Add(it.Amount.Mul(keep))
			} else {
				a.grossLosses = a.grossLosses.Add(it.Amount.Neg())
				a.taxableLosses = a.taxableLosses.Add(it.Amount.Neg().Mul(keep))
			}
		case tax.IncomeCategoryOther:
			a.grossOther = a.grossOther.Add(it.Amount)
			a.taxableOther = a.taxableOther.Add(it.Amount)
		}
	}
	return a
}
