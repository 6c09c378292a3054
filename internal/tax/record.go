package tax

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RecordStatus tracks the lifecycle of a CalculationRecord.
type RecordStatus string

const (
	// RecordStatusDraft is the initial state; violations may be attached.
	RecordStatusDraft RecordStatus = "DRAFT"
	// RecordStatusValidated means every invariant held at validation time.
	RecordStatusValidated RecordStatus = "VALIDATED"
	// RecordStatusFinalized records are immutable and the only ones exportable.
	RecordStatusFinalized RecordStatus = "FINALIZED"
)

// JurisdictionResult is the per-jurisdiction block of a CalculationRecord.
// All monetary fields are rounded to 2 decimal places.
type JurisdictionResult struct {
	Jurisdiction      Jurisdiction
	GrossInterest     decimal.Decimal
	GrossDividends    decimal.Decimal
	GrossCapitalGains decimal.Decimal
	// GrossCapitalLosses is reported as a positive magnitude.
	GrossCapitalLosses decimal.Decimal
	GrossOtherIncome   decimal.Decimal
	AllowanceUsed      decimal.Decimal
	AllowanceRemaining decimal.Decimal
	TaxableAmount      decimal.Decimal
	TaxComputed        decimal.Decimal
	TaxWithheld        decimal.Decimal
	ForeignTaxCredit   decimal.Decimal
	// NetTaxDue is negative for a refund.
	NetTaxDue decimal.Decimal
}

// CalculationRecord is the authoritative output of one computation run for one
// owner and tax year. Finalized records are immutable; a re-run with changed
// inputs supersedes, never overwrites.
type CalculationRecord struct {
	ID      uuid.UUID
	OwnerID uuid.UUID
	TaxYear int
	// Results is sorted by jurisdiction code for deterministic output.
	Results   []JurisdictionResult
	InputHash string
	Status    RecordStatus
	// Violations lists why a draft failed validation. Empty once validated.
	Violations []string
	CreatedAt  time.Time
	// SupersededBy points at the record that replaced this one, if any.
	SupersededBy *uuid.UUID
}

// Result returns the block for a jurisdiction, if present.
func (r CalculationRecord) Result(j Jurisdiction) (JurisdictionResult, bool) {
	for _, jr := range r.Results {
		if jr.Jurisdiction == j {
			return jr, true
		}
	}
	return JurisdictionResult{}, false
}

// Exportable reports whether the record may be rendered to the regulatory export.
func (r CalculationRecord) Exportable() bool { return r.Status == RecordStatusFinalized }
