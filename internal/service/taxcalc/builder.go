package taxcalc

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/avoscheidt/fiskal/internal/ruleset"
	"github.com/avoscheidt/fiskal/internal/tax"
)

// ComputeInputHash renders every calculation input into a canonical byte
// stream and hashes it. Two runs over identical inputs produce the same hash,
// which is the idempotence anchor of the record: equal hash implies equal
// output fields.
func ComputeInputHash(ownerID uuid.UUID, taxYear int, profile tax.TaxProfile, positions []tax.Position, txs []tax.Transaction, tables []ruleset.RuleTable, treaties []ruleset.TreatyRule) string {
	h := sha256.New()
	fmt.Fprintf(h, "owner=%s\nyear=%d\n", ownerID, taxYear)

	jurs := make([]string, 0, len(profile.Jurisdictions))
	for _, j := range profile.Jurisdictions {
		jurs = append(jurs, string(j))
	}
	sort.Strings(jurs)
	fmt.Fprintf(h, "profile|%s|%v|%s|%s\n", profile.Primary, jurs,
		profile.AllowanceElected.StringFixed(2), profile.LossCarryforward.StringFixed(2))

	ps := make([]tax.Position, len(positions))
	copy(ps, positions)
	sort.Slice(ps, func(i, j int) bool { return ps[i].ID.String() < ps[j].ID.String() })
	for _, p := range ps {
		md, _ := p.Metadata.MarshalStableJSON()
		fmt.Fprintf(h, "pos|%s|%s|%s|%s|%s|%s|%s\n", p.ID, p.AssetClass, p.FundCategory,
			p.CostMethod, p.Currency, p.Quantity.StringFixed(6), md)
		lots := make([]tax.Lot, len(p.Lots))
		copy(lots, p.Lots)
		sort.Slice(lots, func(i, j int) bool { return lots[i].ID.String() < lots[j].ID.String() })
		for _, l := range lots {
			fmt.Fprintf(h, "lot|%s|%s|%s|%s|%s\n", l.ID, l.AcquisitionDate.UTC().Format(time.RFC3339),
				l.Quantity.StringFixed(6), l.UnitCost.StringFixed(6), l.Currency)
		}
	}

	ts := make([]tax.Transaction, len(txs))
	copy(ts, txs)
	sort.Slice(ts, func(i, j int) bool {
		if !ts[i].Date.Equal(ts[j].Date) {
			return ts[i].Date.Before(ts[j].Date)
		}
		return ts[i].ID.String() < ts[j].ID.String()
	})
	for _, t := range ts {
		fmt.Fprintf(h, "tx|%s|%s|%s|%s|%s|%s|%s|%s|%s|%s\n", t.ID, t.PositionID, t.Type,
			t.Date.UTC().Format(time.RFC3339), t.Quantity.StringFixed(6), t.Amount.StringFixed(6),
			t.Withheld.StringFixed(6), t.Currency, t.Source, t.LotID)
	}

	tbls := make([]ruleset.RuleTable, len(tables))
	copy(tbls, tables)
	sort.Slice(tbls, func(i, j int) bool {
		if tbls[i].Jurisdiction != tbls[j].Jurisdiction {
			return tbls[i].Jurisdiction < tbls[j].Jurisdiction
		}
		return tbls[i].TaxYear < tbls[j].TaxYear
	})
	for _, tb := range tbls {
		writeTable(h, tb)
	}

	trs := make([]ruleset.TreatyRule, len(treaties))
	copy(trs, treaties)
	sort.Slice(trs, func(i, j int) bool {
		a, b := trs[i], trs[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.Residence != b.Residence {
			return a.Residence < b.Residence
		}
		return a.Category < b.Category
	})
	for _, tr := range trs {
		fmt.Fprintf(h, "treaty|%s|%s|%s|%s|%t\n", tr.Source, tr.Residence, tr.Category,
			tr.SourceRate.StringFixed(6), tr.ResidenceTaxable)
	}

	return hex.EncodeToString(h.Sum(nil))
}

func writeTable(w io.Writer, t ruleset.RuleTable) {
	fmt.Fprintf(w, "table|%s|%d|%s|%s|%s|%t|%v\n", t.Jurisdiction, t.TaxYear,
		t.FlatRate.StringFixed(6), t.SurchargeRate.StringFixed(6),
		t.PersonalAllowance.StringFixed(2), t.LossesOffsetAllIncome, t.AllowanceOrder)
	cats := make([]string, 0, len(t.Exemptions))
	for c := range t.Exemptions {
		cats = append(cats, string(c))
	}
	sort.Strings(cats)
	for _, c := range cats {
		fmt.Fprintf(w, "exempt|%s|%s\n", c, t.Exemptions[tax.FundCategory(c)].StringFixed(6))
	}
	for _, b := range t.Brackets {
		fmt.Fprintf(w, "bracket|%s|%s|%t\n", b.UpTo.StringFixed(2), b.Rate.StringFixed(6), b.Unbounded)
	}
}

// BuildRecord assembles the draft record from the per-jurisdiction results,
// rounding every monetary field to 2 decimal places. Results are ordered by
// jurisdiction code so the record serializes deterministically.
func BuildRecord(ownerID uuid.UUID, taxYear int, results []tax.JurisdictionResult, inputHash string, now time.Time) tax.CalculationRecord {
	rs := make([]tax.JurisdictionResult, len(results))
	copy(rs, results)
	sort.Slice(rs, func(i, j int) bool { return rs[i].Jurisdiction < rs[j].Jurisdiction })
	for i := range rs {
		rs[i] = roundResult(rs[i])
	}
	return tax.CalculationRecord{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		TaxYear:   taxYear,
		Results:   rs,
		InputHash: inputHash,
		Status:    tax.RecordStatusDraft,
		CreatedAt: now.UTC(),
	}
}

func roundResult(r tax.JurisdictionResult) tax.JurisdictionResult {
	round := func(d decimal.Decimal) decimal.Decimal { return d.Round(2) }
	r.GrossInterest = round(r.GrossInterest)
	r.GrossDividends = round(r.GrossDividends)
	r.GrossCapitalGains = round(r.GrossCapitalGains)
	r.GrossCapitalLosses = round(r.GrossCapitalLosses)
	r.GrossOtherIncome = round(r.GrossOtherIncome)
	r.AllowanceUsed = round(r.AllowanceUsed)
	r.AllowanceRemaining = round(r.AllowanceRemaining)
	r.TaxableAmount = round(r.TaxableAmount)
	r.TaxComputed = round(r.TaxComputed)
	r.TaxWithheld = round(r.TaxWithheld)
	r.ForeignTaxCredit = round(r.ForeignTaxCredit)
	r.NetTaxDue = round(r.NetTaxDue)
	return r
}
