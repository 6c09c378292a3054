package taxcalc

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/avoscheidt/fiskal/internal/errs"
	"github.com/avoscheidt/fiskal/internal/ruleset"
	"github.com/avoscheidt/fiskal/internal/service/lotmatch"
	"github.com/avoscheidt/fiskal/internal/tax"
)

var (
	calculationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fiskal",
			Name:      "calculations_total",
			Help:      "Total number of calculation runs by resulting status",
		},
		[]string{"status"},
	)
	calculationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fiskal",
			Name:      "calculation_duration_seconds",
			Help:      "Duration of calculation runs in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// Repo defines read operations needed by the service. Every method returns
// immutable snapshots; the core never mutates its inputs.
type Repo interface {
	Positions(ctx context.Context, ownerID uuid.UUID, asOf time.Time) ([]tax.Position, error)
	Transactions(ctx context.Context, ownerID uuid.UUID, taxYear int) ([]tax.Transaction, error)
	Profile(ctx context.Context, ownerID uuid.UUID) (tax.TaxProfile, error)
	Record(ctx context.Context, ownerID, recordID uuid.UUID) (tax.CalculationRecord, error)
	RecordsByOwner(ctx context.Context, ownerID uuid.UUID) ([]tax.CalculationRecord, error)
}

// Writer defines write operations needed by the service.
type Writer interface {
	SaveRecord(ctx context.Context, rec tax.CalculationRecord) (tax.CalculationRecord, error)
	// FinalizeRecord promotes a validated record. The store compares the
	// input hash against any finalized record for the same (owner, tax year)
	// and fails with errs.ErrConcurrentRecalculation on conflict.
	FinalizeRecord(ctx context.Context, ownerID, recordID uuid.UUID, inputHash string) (tax.CalculationRecord, error)
}

// Service runs tax calculations and manages the record lifecycle.
type Service interface {
	Calculate(ctx context.Context, ownerID uuid.UUID, taxYear int) (tax.CalculationRecord, error)
	Finalize(ctx context.Context, ownerID, recordID uuid.UUID) (tax.CalculationRecord, error)
	Record(ctx context.Context, ownerID, recordID uuid.UUID) (tax.CalculationRecord, error)
	Records(ctx context.Context, ownerID uuid.UUID) ([]tax.CalculationRecord, error)
}

type service struct {
	repo   Repo
	writer Writer
	rules  ruleset.Source
}

func New(repo Repo, writer Writer, rules ruleset.Source) Service {
	return &service{repo: repo, writer: writer, rules: rules}
}

// Calculate runs one full computation for (owner, tax year) and persists the
// resulting record as DRAFT or VALIDATED. The stages are strictly sequential;
// concurrency lives between requests, not inside one.
func (s *service) Calculate(ctx context.Context, ownerID uuid.UUID, taxYear int) (tax.CalculationRecord, error) {
	if ownerID == uuid.Nil {
		return tax.CalculationRecord{}, errs.ErrInvalid
	}
	start := time.Now()

	profile, err := s.repo.Profile(ctx, ownerID)
	if err != nil {
		return tax.CalculationRecord{}, err
	}
	asOf := time.Date(taxYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	positions, err := s.repo.Positions(ctx, ownerID, asOf)
	if err != nil {
		return tax.CalculationRecord{}, err
	}
	txs, err := s.repo.Transactions(ctx, ownerID, taxYear)
	if err != nil {
		return tax.CalculationRecord{}, err
	}

	events, err := matchAll(positions, txs)
	if err != nil {
		calculationsTotal.WithLabelValues("error").Inc()
		return tax.CalculationRecord{}, err
	}
	items := Classify(positions, events, txs)

	split, err := splitCrossBorder(items, profile.Primary, s.rules)
	if err != nil {
		calculationsTotal.WithLabelValues("error").Inc()
		return tax.CalculationRecord{}, err
	}

	table, err := s.rules.Lookup(profile.Primary, taxYear)
	if err != nil {
		calculationsTotal.WithLabelValues("error").Inc()
		return tax.CalculationRecord{}, err
	}

	primary := calculatorFor(profile.Primary)(split.residenceItems, table, profile)
	credit := foreignTaxCredit(primary, table, split.creditItems)
	primary.ForeignTaxCredit = credit
	primary.NetTaxDue = primary.NetTaxDue.Sub(credit)

	results := append([]tax.JurisdictionResult{primary}, split.foreignBlocks...)
	results = fillMissingJurisdictions(results, profile)

	hash := ComputeInputHash(ownerID, taxYear, profile, positions, txs,
		[]ruleset.RuleTable{table}, split.usedTreaties)
	rec := BuildRecord(ownerID, taxYear, results, hash, time.Now())

	if violations := ValidateRecord(rec, profile); len(violations) > 0 {
		rec.Violations = violations
	} else {
		rec.Status = tax.RecordStatusValidated
	}

	saved, err := s.writer.SaveRecord(ctx, rec)
	if err != nil {
		calculationsTotal.WithLabelValues("error").Inc()
		return tax.CalculationRecord{}, err
	}
	calculationsTotal.WithLabelValues(string(saved.Status)).Inc()
	calculationDuration.Observe(time.Since(start).Seconds())
	return saved, nil
}

// matchAll replays each position's buys and sells through the lot matcher.
func matchAll(positions []tax.Position, txs []tax.Transaction) ([]tax.RealizedEvent, error) {
	known := make(map[uuid.UUID]bool, len(positions))
	for _, p := range positions {
		known[p.ID] = true
	}
	for _, t := range txs {
		if (t.Type == tax.TransactionTypeBuy || t.Type == tax.TransactionTypeSell) && !known[t.PositionID] {
			return nil, fmt.Errorf("transaction %s references unknown position %s: %w",
				t.ID, t.PositionID, errs.ErrDataIntegrity)
		}
	}
	var events []tax.RealizedEvent
	for _, p := range positions {
		var ptxs []tax.Transaction
		for _, t := range txs {
			if t.PositionID == p.ID {
				ptxs = append(ptxs, t)
			}
		}
		res, err := lotmatch.Match(p, ptxs)
		if err != nil {
			return nil, err
		}
		events = append(events, res.Events...)
	}
	return events, nil
}

// fillMissingJurisdictions adds zero blocks for profile jurisdictions with no
// income this year, so every relevant jurisdiction is present in the record.
func fillMissingJurisdictions(results []tax.JurisdictionResult, profile tax.TaxProfile) []tax.JurisdictionResult {
	have := make(map[tax.Jurisdiction]bool, len(results))
	for _, r := range results {
		have[r.Jurisdiction] = true
	}
	for _, j := range profile.Jurisdictions {
		if !have[j] {
			results = append(results, tax.JurisdictionResult{Jurisdiction: j})
			have[j] = true
		}
	}
	return results
}

// Finalize promotes a VALIDATED record to FINALIZED. Finalizing an already
// finalized record is idempotent; a draft cannot be finalized.
func (s *service) Finalize(ctx context.Context, ownerID, recordID uuid.UUID) (tax.CalculationRecord, error) {
	if ownerID == uuid.Nil || recordID == uuid.Nil {
		return tax.CalculationRecord{}, errs.ErrInvalid
	}
	rec, err := s.repo.Record(ctx, ownerID, recordID)
	if err != nil {
		return tax.CalculationRecord{}, err
	}
	switch rec.Status {
	case tax.RecordStatusFinalized:
		return rec, nil
	case tax.RecordStatusDraft:
		return tax.CalculationRecord{}, fmt.Errorf("record %s has %d open violations: %w",
			recordID, len(rec.Violations), errs.ErrValidation)
	}
	return s.writer.FinalizeRecord(ctx, ownerID, recordID, rec.InputHash)
}

func (s *service) Record(ctx context.Context, ownerID, recordID uuid.UUID) (tax.CalculationRecord, error) {
	if ownerID == uuid.Nil || recordID == uuid.Nil {
		return tax.CalculationRecord{}, errs.ErrInvalid
	}
	return s.repo.Record(ctx, ownerID, recordID)
}

func (s *service) Records(ctx context.Context, ownerID uuid.UUID) ([]tax.CalculationRecord, error) {
	if ownerID == uuid.Nil {
		return nil, errs.ErrInvalid
	}
	return s.repo.RecordsByOwner(ctx, ownerID)
}
