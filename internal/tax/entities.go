package tax

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/avoscheidt/fiskal/internal/meta"
)

// Jurisdiction is an ISO 3166-1 alpha-2 country code of a taxing authority.
type Jurisdiction string

const (
	JurisdictionDE Jurisdiction = "DE"
	JurisdictionAT Jurisdiction = "AT"
	JurisdictionCH Jurisdiction = "CH"
	JurisdictionUS Jurisdiction = "US"
)

// AssetClass enumerates the broad classification of a held asset.
type AssetClass string

const (
	AssetClassEquity AssetClass = "equity"
	AssetClassBond   AssetClass = "bond"
	AssetClassFund   AssetClass = "fund"
	AssetClassCash   AssetClass = "cash"
	AssetClassOther  AssetClass = "other"
)

// FundCategory is the partial-exemption class of a position. The exemption
// percentage attached to each class lives in the rule table, not here.
type FundCategory string

const (
	FundCategoryNone       FundCategory = "none"
	FundCategoryEquity     FundCategory = "equity_fund"
	FundCategoryMixed      FundCategory = "mixed_fund"
	FundCategoryRealEstate FundCategory = "real_estate_fund"
)

// CostMethod selects how disposals consume acquisition lots.
type CostMethod string

const (
	// CostMethodFIFO consumes the oldest open lots first. Default.
	CostMethodFIFO CostMethod = "fifo"
	// CostMethodAverage prices disposals at the running weighted average of open lots.
	CostMethodAverage CostMethod = "average_cost"
	// CostMethodSpecific consumes the lot named by the disposal transaction.
	CostMethodSpecific CostMethod = "specific_id"
)

// IncomeCategory buckets classified income for allowance and tax purposes.
type IncomeCategory string

const (
	IncomeCategoryInterest  IncomeCategory = "interest"
	IncomeCategoryDividends IncomeCategory = "dividends"
	IncomeCategoryGains     IncomeCategory = "capital_gains"
	IncomeCategoryOther     IncomeCategory = "other_income"
)

// TransactionType enumerates the economic events the engine understands.
type TransactionType string

const (
	TransactionTypeBuy      TransactionType = "buy"
	TransactionTypeSell     TransactionType = "sell"
	TransactionTypeDividend TransactionType = "dividend"
	TransactionTypeInterest TransactionType = "interest"
	// TransactionTypeOtherIncome carries non-investment income (e.g. salary)
	// relevant to progressive jurisdictions.
	TransactionTypeOtherIncome TransactionType = "other_income"
)

// Owner captures the taxpayer that positions and records belong to.
type Owner struct {
	ID    uuid.UUID
	Email *string
}

// Lot is a single acquisition event of a position, tracked individually for
// cost-basis purposes. Lots are immutable; the matcher works on copies.
type Lot struct {
	ID              uuid.UUID
	PositionID      uuid.UUID
	AcquisitionDate time.Time
	Quantity        decimal.Decimal
	UnitCost        decimal.Decimal
	Currency        string
}

// Cost returns the total acquisition cost of the lot.
func (l Lot) Cost() decimal.Decimal { return l.Quantity.Mul(l.UnitCost) }

// Position represents an owned holding of an asset together with its open
// acquisition lots as of the snapshot date. Sum of open lot quantities must
// equal Quantity.
type Position struct {
	ID           uuid.UUID
	OwnerID      uuid.UUID
	Name         string
	AssetClass   AssetClass
	FundCategory FundCategory
	CostMethod   CostMethod
	Currency     string
	Quantity     decimal.Decimal
	Lots         []Lot
	// Metadata holds additional key-value attributes (e.g. ISIN, broker).
	Metadata meta.Metadata `json:"metadata,omitempty"`
}

// OpenQuantity sums the quantities of the position's open lots.
func (p Position) OpenQuantity() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range p.Lots {
		sum = sum.Add(l.Quantity)
	}
	return sum
}

// Transaction is an immutable economic event on a position. Corrections are
// recorded as new transactions, never as in-place edits.
type Transaction struct {
	ID         uuid.UUID
	OwnerID    uuid.UUID
	PositionID uuid.UUID
	Type       TransactionType
	Date       time.Time
	// Quantity is the unit count for buys and sells, zero otherwise.
	Quantity decimal.Decimal
	// Amount is the gross amount in the settlement currency: proceeds for
	// sells, cost for buys, gross payout for dividend/interest/other income.
	Amount   decimal.Decimal
	Withheld decimal.Decimal
	Currency string
	Source   Jurisdiction
	// LotID names the consumed lot for specific-identification disposals.
	LotID uuid.UUID
}

// RealizedEvent is the matcher's output for one (disposal, lot) pairing. It is
// derived evidence, recomputed per run, never stored as authoritative input.
type RealizedEvent struct {
	TransactionID   uuid.UUID
	PositionID      uuid.UUID
	LotID           uuid.UUID
	Quantity        decimal.Decimal
	Proceeds        decimal.Decimal
	CostBasis       decimal.Decimal
	GainLoss        decimal.Decimal
	AcquisitionDate time.Time
	DisposalDate    time.Time
	FundCategory    FundCategory
	Source          Jurisdiction
}

// TaxProfile is the per-owner jurisdiction context for one calculation.
type TaxProfile struct {
	OwnerID       uuid.UUID
	Primary       Jurisdiction
	Jurisdictions []Jurisdiction
	// AllowanceElected is the personal allowance the owner elected to use,
	// capped by the rule table's allowance for the year.
	AllowanceElected decimal.Decimal
	// LossCarryforward is the prior-year realized loss carried into this year.
	LossCarryforward decimal.Decimal
}

// IncomeItem is one classified slice of income feeding the calculators.
// Gains are positive, losses negative.
type IncomeItem struct {
	Category     IncomeCategory
	Source       Jurisdiction
	FundCategory FundCategory
	Amount       decimal.Decimal
	Withheld     decimal.Decimal
}
