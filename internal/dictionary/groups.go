package dictionary

import (
	"github.com/avoscheidt/fiskal/internal/slug"
	"github.com/avoscheidt/fiskal/internal/tax"
)

// CodeDef is one curated enumeration value exposed to API clients.
type CodeDef struct {
	Code     string `json:"code"`
	Label    string `json:"label"`
	Reserved bool   `json:"reserved"`
}

var assetClasses = []CodeDef{
	{Code: string(tax.AssetClassEquity), Label: "Equity"},
	{Code: string(tax.AssetClassBond), Label: "Bond"},
	{Code: string(tax.AssetClassFund), Label: "Fund"},
	{Code: string(tax.AssetClassCash), Label: "Cash"},
	{Code: string(tax.AssetClassOther), Label: "Other"},
}

var fundCategories = []CodeDef{
	{Code: string(tax.FundCategoryNone), Label: "No Fund", Reserved: true},
	{Code: string(tax.FundCategoryEquity), Label: "Equity Fund"},
	{Code: string(tax.FundCategoryMixed), Label: "Mixed Fund"},
	{Code: string(tax.FundCategoryRealEstate), Label: "Real Estate Fund"},
}

var costMethods = []CodeDef{
	{Code: string(tax.CostMethodFIFO), Label: "First In First Out", Reserved: true},
	{Code: string(tax.CostMethodAverage), Label: "Average Cost"},
	{Code: string(tax.CostMethodSpecific), Label: "Specific Identification"},
}

var incomeCategories = []CodeDef{
	{Code: string(tax.IncomeCategoryInterest), Label: "Interest"},
	{Code: string(tax.IncomeCategoryDividends), Label: "Dividends"},
	{Code: string(tax.IncomeCategoryGains), Label: "Capital Gains"},
	{Code: string(tax.IncomeCategoryOther), Label: "Other Income"},
}

var transactionTypes = []CodeDef{
	{Code: string(tax.TransactionTypeBuy), Label: "Buy"},
	{Code: string(tax.TransactionTypeSell), Label: "Sell"},
	{Code: string(tax.TransactionTypeDividend), Label: "Dividend"},
	{Code: string(tax.TransactionTypeInterest), Label: "Interest"},
	{Code: string(tax.TransactionTypeOtherIncome), Label: "Other Income"},
}

// Catalog is the full curated dictionary served by the API.
type Catalog struct {
	AssetClasses     []CodeDef `json:"asset_classes"`
	FundCategories   []CodeDef `json:"fund_categories"`
	CostMethods      []CodeDef `json:"cost_methods"`
	IncomeCategories []CodeDef `json:"income_categories"`
	TransactionTypes []CodeDef `json:"transaction_types"`
}

// Codes returns the full catalog. The returned slices are shared; callers
// must not mutate them.
func Codes() Catalog {
	return Catalog{
		AssetClasses:     assetClasses,
		FundCategories:   fundCategories,
		CostMethods:      costMethods,
		IncomeCategories: incomeCategories,
		TransactionTypes: transactionTypes,
	}
}

// ValidFundCategory reports whether code names a curated fund category.
func ValidFundCategory(code string) bool { return contains(fundCategories, code) }

// ValidCostMethod reports whether code names a curated cost method.
func ValidCostMethod(code string) bool { return contains(costMethods, code) }

func contains(defs []CodeDef, code string) bool {
	if !slug.IsSlug(code) {
		return false
	}
	for _, d := range defs {
		if d.Code == code {
			return true
		}
	}
	return false
}
