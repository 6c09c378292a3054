package httpapi

import (
	"time"

	"github.com/google/uuid"

	"github.com/avoscheidt/fiskal/internal/ruleset"
	"github.com/avoscheidt/fiskal/internal/tax"
)

type postCalculationRequest struct {
	OwnerID uuid.UUID `json:"owner_id"`
	TaxYear int       `json:"tax_year"`
}

type finalizeRequest struct {
	OwnerID  uuid.UUID `json:"owner_id"`
	RecordID uuid.UUID `json:"record_id"`
}

// recordResponse renders a calculation record. Monetary values are decimal
// strings with two fraction digits; clients must not parse them as floats.
type recordResponse struct {
	ID           uuid.UUID        `json:"id"`
	OwnerID      uuid.UUID        `json:"owner_id"`
	TaxYear      int              `json:"tax_year"`
	Status       tax.RecordStatus `json:"status"`
	InputHash    string           `json:"input_hash"`
	Violations   []string         `json:"violations,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	SupersededBy *uuid.UUID       `json:"superseded_by,omitempty"`
	Results      []resultResponse `json:"results"`
}

type resultResponse struct {
	Jurisdiction       tax.Jurisdiction `json:"jurisdiction"`
	GrossInterest      string           `json:"gross_interest"`
	GrossDividends     string           `json:"gross_dividends"`
	GrossCapitalGains  string           `json:"gross_capital_gains"`
	GrossCapitalLosses string           `json:"gross_capital_losses"`
	GrossOtherIncome   string           `json:"gross_other_income"`
	AllowanceUsed      string           `json:"allowance_used"`
	AllowanceRemaining string           `json:"allowance_remaining"`
	TaxableAmount      string           `json:"taxable_amount"`
	TaxComputed        string           `json:"tax_computed"`
	TaxWithheld        string           `json:"tax_withheld"`
	ForeignTaxCredit   string           `json:"foreign_tax_credit"`
	NetTaxDue          string           `json:"net_tax_due"`
}

func toRecordResponse(rec tax.CalculationRecord) recordResponse {
	resp := recordResponse{
		ID:           rec.ID,
		OwnerID:      rec.OwnerID,
		TaxYear:      rec.TaxYear,
		Status:       rec.Status,
		InputHash:    rec.InputHash,
		Violations:   rec.Violations,
		CreatedAt:    rec.CreatedAt,
		SupersededBy: rec.SupersededBy,
	}
	resp.Results = make([]resultResponse, 0, len(rec.Results))
	for _, r := range rec.Results {
		resp.Results = append(resp.Results, resultResponse{
			Jurisdiction:       r.Jurisdiction,
			GrossInterest:      r.GrossInterest.StringFixed(2),
			GrossDividends:     r.GrossDividends.StringFixed(2),
			GrossCapitalGains:  r.GrossCapitalGains.StringFixed(2),
			GrossCapitalLosses: r.GrossCapitalLosses.StringFixed(2),
			GrossOtherIncome:   r.GrossOtherIncome.StringFixed(2),
			AllowanceUsed:      r.AllowanceUsed.StringFixed(2),
			AllowanceRemaining: r.AllowanceRemaining.StringFixed(2),
			TaxableAmount:      r.TaxableAmount.StringFixed(2),
			TaxComputed:        r.TaxComputed.StringFixed(2),
			TaxWithheld:        r.TaxWithheld.StringFixed(2),
			ForeignTaxCredit:   r.ForeignTaxCredit.StringFixed(2),
			NetTaxDue:          r.NetTaxDue.StringFixed(2),
		})
	}
	return resp
}

// ruleTableResponse renders a published rule table; rates keep full precision.
type ruleTableResponse struct {
	Jurisdiction          tax.Jurisdiction  `json:"jurisdiction"`
	TaxYear               int               `json:"tax_year"`
	FlatRate              string            `json:"flat_rate"`
	SurchargeRate         string            `json:"surcharge_rate"`
	PersonalAllowance     string            `json:"personal_allowance"`
	AllowanceOrder        []string          `json:"allowance_order"`
	Exemptions            map[string]string `json:"exemptions"`
	LossesOffsetAllIncome bool              `json:"losses_offset_all_income"`
	Brackets              []bracketResponse `json:"brackets,omitempty"`
}

type bracketResponse struct {
	UpTo      string `json:"up_to,omitempty"`
	Rate      string `json:"rate"`
	Unbounded bool   `json:"unbounded,omitempty"`
}

func toRuleTableResponse(t ruleset.RuleTable) ruleTableResponse {
	resp := ruleTableResponse{
		Jurisdiction:          t.Jurisdiction,
		TaxYear:               t.TaxYear,
		FlatRate:              t.FlatRate.String(),
		SurchargeRate:         t.SurchargeRate.String(),
		PersonalAllowance:     t.PersonalAllowance.StringFixed(2),
		LossesOffsetAllIncome: t.LossesOffsetAllIncome,
		Exemptions:            make(map[string]string, len(t.Exemptions)),
	}
	for _, c := range t.AllowanceOrder {
		resp.AllowanceOrder = append(resp.AllowanceOrder, string(c))
	}
	for c, r := range t.Exemptions {
		resp.Exemptions[string(c)] = r.String()
	}
	for _, b := range t.Brackets {
		br := bracketResponse{Rate: b.Rate.String(), Unbounded: b.Unbounded}
		if !b.Unbounded {
			br.UpTo = b.UpTo.StringFixed(2)
		}
		resp.Brackets = append(resp.Brackets, br)
	}
	return resp
}
