package taxcalc

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/avoscheidt/fiskal/internal/tax"
)

// ValidateRecord checks the invariants that gate the DRAFT -> VALIDATED
// transition. A non-empty return keeps the record in DRAFT with the
// violations attached.
func ValidateRecord(rec tax.CalculationRecord, profile tax.TaxProfile) []string {
	var violations []string

	if rec.InputHash == "" {
		violations = append(violations, "input_hash missing")
	}
	if _, ok := rec.Result(profile.Primary); !ok {
		violations = append(violations, fmt.Sprintf("missing result block for primary jurisdiction %s", profile.Primary))
	}
	for _, j := range profile.Jurisdictions {
		if _, ok := rec.Result(j); !ok {
			violations = append(violations, fmt.Sprintf("missing result block for jurisdiction %s", j))
		}
	}

	for _, r := range rec.Results {
		prefix := string(r.Jurisdiction)
		if r.AllowanceUsed.Sign() < 0 || r.AllowanceRemaining.Sign() < 0 {
			violations = append(violations, prefix+": allowance fields must not be negative")
		}
		if r.Jurisdiction == profile.Primary {
			elected := r.AllowanceUsed.Add(r.AllowanceRemaining)
			if r.AllowanceUsed.GreaterThan(elected) {
				violations = append(violations, prefix+": allowance_used exceeds the elected allowance")
			}
			if elected.GreaterThan(profile.AllowanceElected.Round(2)) {
				violations = append(violations, prefix+": allowance exceeds the profile's election")
			}
		}
		if r.TaxableAmount.Sign() < 0 {
			violations = append(violations, prefix+": taxable_amount must not be negative")
		}
		if r.TaxComputed.Sign() < 0 {
			violations = append(violations, prefix+": tax_computed must not be negative")
		}
		if r.TaxWithheld.Sign() < 0 {
			violations = append(violations, prefix+": tax_withheld must not be negative")
		}
		if r.ForeignTaxCredit.Sign() < 0 {
			violations = append(violations, prefix+": foreign_tax_credit must not be negative")
		}
		if r.ForeignTaxCredit.GreaterThan(r.TaxComputed) {
			violations = append(violations, prefix+": foreign_tax_credit exceeds tax_computed")
		}
	}

	// The credit claimed at home may never exceed the foreign tax actually
	// withheld across the foreign blocks.
	if primary, ok := rec.Result(profile.Primary); ok {
		foreignWithheld := decimal.Zero
		for _, r := range rec.Results {
			if r.Jurisdiction != profile.Primary {
				foreignWithheld = foreignWithheld.Add(r.TaxWithheld)
			}
		}
		if primary.ForeignTaxCredit.GreaterThan(foreignWithheld) {
			violations = append(violations, fmt.Sprintf("%s: foreign_tax_credit %s exceeds foreign withholding %s",
				profile.Primary, primary.ForeignTaxCredit, foreignWithheld))
		}
	}

	return violations
}
