// Package export renders finalized calculation records into the fixed
// regulatory XML schema and parses them back for verification.
package export

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/avoscheidt/fiskal/internal/errs"
	"github.com/avoscheidt/fiskal/internal/tax"
)

// SchemaVersion identifies the declaration layout. Bump only with a schema
// change, never for content changes.
const SchemaVersion = "1.0"

// declaration is the wire form. All monetary values are rendered as plain
// decimal strings with exactly two fraction digits and a '.' separator,
// independent of any locale. Field order is fixed by this struct and must not
// change within a schema version: exports are compared byte for byte.
type declaration struct {
	XMLName       xml.Name          `xml:"CapitalIncomeDeclaration"`
	SchemaVersion string            `xml:"schemaVersion,attr"`
	RecordID      string            `xml:"RecordID"`
	OwnerID       string            `xml:"OwnerID"`
	TaxYear       int               `xml:"TaxYear"`
	InputHash     string            `xml:"InputHash"`
	CreatedAt     string            `xml:"CreatedAt"`
	Jurisdictions []jurisdictionXML `xml:"Jurisdictions>Jurisdiction"`
}

type jurisdictionXML struct {
	Code               string `xml:"code,attr"`
	GrossInterest      string `xml:"GrossInterest"`
	GrossDividends     string `xml:"GrossDividends"`
	GrossCapitalGains  string `xml:"GrossCapitalGains"`
	GrossCapitalLosses string `xml:"GrossCapitalLosses"`
	GrossOtherIncome   string `xml:"GrossOtherIncome"`
	AllowanceUsed      string `xml:"AllowanceUsed"`
	AllowanceRemaining string `xml:"AllowanceRemaining"`
	TaxableAmount      string `xml:"TaxableAmount"`
	TaxComputed        string `xml:"TaxComputed"`
	TaxWithheld        string `xml:"TaxWithheld"`
	ForeignTaxCredit   string `xml:"ForeignTaxCredit"`
	NetTaxDue          string `xml:"NetTaxDue"`
}

// Render serializes a finalized record. Only FINALIZED records may leave the
// system; anything else fails with errs.ErrNotFinalized. Identical records
// render to identical bytes.
func Render(rec tax.CalculationRecord) ([]byte, error) {
	if !rec.Exportable() {
		return nil, fmt.Errorf("record %s has status %s: %w", rec.ID, rec.Status, errs.ErrNotFinalized)
	}
	d := declaration{
		SchemaVersion: SchemaVersion,
		RecordID:      rec.ID.String(),
		OwnerID:       rec.OwnerID.String(),
		TaxYear:       rec.TaxYear,
		InputHash:     rec.InputHash,
		CreatedAt:     rec.CreatedAt.UTC().Format(time.RFC3339),
	}
	for _, r := range rec.Results {
		d.Jurisdictions = append(d.Jurisdictions, jurisdictionXML{
			Code:               string(r.Jurisdiction),
			GrossInterest:      money(r.GrossInterest),
			GrossDividends:     money(r.GrossDividends),
			GrossCapitalGains:  money(r.GrossCapitalGains),
			GrossCapitalLosses: money(r.GrossCapitalLosses),
			GrossOtherIncome:   money(r.GrossOtherIncome),
			AllowanceUsed:      money(r.AllowanceUsed),
			AllowanceRemaining: money(r.AllowanceRemaining),
			TaxableAmount:      money(r.TaxableAmount),
			TaxComputed:        money(r.TaxComputed),
			TaxWithheld:        money(r.TaxWithheld),
			ForeignTaxCredit:   money(r.ForeignTaxCredit),
			NetTaxDue:          money(r.NetTaxDue),
		})
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(d); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }

// Parse reads a declaration back into a record. The result always carries
// FINALIZED status: only finalized records can have produced the input. Used
// for round-trip verification of rendered exports.
func Parse(data []byte) (tax.CalculationRecord, error) {
	var d declaration
	if err := xml.Unmarshal(data, &d); err != nil {
		return tax.CalculationRecord{}, fmt.Errorf("export: malformed declaration: %w", err)
	}
	if d.SchemaVersion != SchemaVersion {
		return tax.CalculationRecord{}, fmt.Errorf("export: unsupported schema version %q: %w", d.SchemaVersion, errs.ErrInvalid)
	}
	recID, err := uuid.Parse(d.RecordID)
	if err != nil {
		return tax.CalculationRecord{}, fmt.Errorf("export: bad record id: %w", errs.ErrInvalid)
	}
	ownerID, err := uuid.Parse(d.OwnerID)
	if err != nil {
		return tax.CalculationRecord{}, fmt.Errorf("export: bad owner id: %w", errs.ErrInvalid)
	}
	createdAt, err := time.Parse(time.RFC3339, d.CreatedAt)
	if err != nil {
		return tax.CalculationRecord{}, fmt.Errorf("export: bad created_at: %w", errs.ErrInvalid)
	}

	rec := tax.CalculationRecord{
		ID:        recID,
		OwnerID:   ownerID,
		TaxYear:   d.TaxYear,
		InputHash: d.InputHash,
		Status:    tax.RecordStatusFinalized,
		CreatedAt: createdAt.UTC(),
	}
	for _, j := range d.Jurisdictions {
		r := tax.JurisdictionResult{Jurisdiction: tax.Jurisdiction(j.Code)}
		fields := []struct {
			raw string
			dst *decimal.Decimal
		}{
			{j.GrossInterest, &r.GrossInterest},
			{j.GrossDividends, &r.GrossDividends},
			{j.GrossCapitalGains, &r.GrossCapitalGains},
			{j.GrossCapitalLosses, &r.GrossCapitalLosses},
			{j.GrossOtherIncome, &r.GrossOtherIncome},
			{j.AllowanceUsed, &r.AllowanceUsed},
			{j.AllowanceRemaining, &r.AllowanceRemaining},
			{j.TaxableAmount, &r.TaxableAmount},
			{j.TaxComputed, &r.TaxComputed},
			{j.TaxWithheld, &r.TaxWithheld},
			{j.ForeignTaxCredit, &r.ForeignTaxCredit},
			{j.NetTaxDue, &r.NetTaxDue},
		}
		for _, f := range fields {
			v, err := decimal.NewFromString(f.raw)
			if err != nil {
				return tax.CalculationRecord{}, fmt.Errorf("export: bad amount %q in %s: %w", f.raw, j.Code, errs.ErrInvalid)
			}
			*f.dst = v
		}
		rec.Results = append(rec.Results, r)
	}
	return rec, nil
}
