package dictionary

import (
	"testing"

	"github.com/avoscheidt/fiskal/internal/slug"
)

func TestCatalogCodesAreSlugs(t *testing.T) {
	cat := Codes()
	for _, defs := range map[string][]CodeDef{
		"asset_classes":     cat.AssetClasses,
		"fund_categories":   cat.FundCategories,
		"cost_methods":      cat.CostMethods,
		"income_categories": cat.IncomeCategories,
		"transaction_types": cat.TransactionTypes,
	} {
		for _, d := range defs {
			if !slug.IsSlug(d.Code) {
				t.Fatalf("code %q is not a valid slug", d.Code)
			}
			if d.Label == "" {
				t.Fatalf("code %q has no label", d.Code)
			}
		}
	}
}

func TestValidators(t *testing.T) {
	if !ValidFundCategory("equity_fund") {
		t.Fatal("equity_fund should be valid")
	}
	if ValidFundCategory("Equity Fund") || ValidFundCategory("bogus") {
		t.Fatal("non-curated codes must be rejected")
	}
	if !ValidCostMethod("fifo") || ValidCostMethod("lifo") {
		t.Fatal("cost method validation broken")
	}
}
