package postgres

// Package postgres provides a pgx-backed storage implementation that satisfies
// the repository and writer interfaces used by the calculation service.
//
// It is intentionally small and explicit. Migrations that create the expected
// schema live under db/migrations. This package focuses on mapping between the
// domain entities and SQL rows and running the necessary statements/transactions.

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/avoscheidt/fiskal/internal/errs"
	"github.com/avoscheidt/fiskal/internal/meta"
	"github.com/avoscheidt/fiskal/internal/tax"
)

// Store holds a pgx connection pool and implements the read/write interfaces
// used across the service layer. All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// Open establishes a pgx pool using the provided connection string.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ready pings the pool to verify connectivity.
func (s *Store) Ready(ctx context.Context) error { return s.pool.Ping(ctx) }

// SeedDev inserts one owner with a German profile, one equity fund position
// with an open lot and a couple of transactions for quick local testing.
func (s *Store) SeedDev(ctx context.Context) (tax.Owner, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return tax.Owner{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	owner := tax.Owner{ID: uuid.New()}
	if _, err := tx.Exec(ctx, `insert into owners (id, email) values ($1, null)`, owner.ID); err != nil {
		return tax.Owner{}, err
	}
	if _, err := tx.Exec(ctx, `
        insert into tax_profiles (owner_id, primary_jurisdiction, jurisdictions, allowance_elected, loss_carryforward)
        values ($1,$2,$3,$4,$5)
    `, owner.ID, tax.JurisdictionDE, []string{string(tax.JurisdictionDE)}, decimal.NewFromInt(1000), decimal.Zero); err != nil {
		return tax.Owner{}, err
	}

	posID := uuid.New()
	if _, err := tx.Exec(ctx, `
        insert into positions (id, owner_id, name, asset_class, fund_category, cost_method, currency, quantity, metadata)
        values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
    `, posID, owner.ID, "World Equity Fund", tax.AssetClassFund, tax.FundCategoryEquity,
		tax.CostMethodFIFO, "EUR", decimal.NewFromInt(100), []byte("{}")); err != nil {
		return tax.Owner{}, err
	}
	if _, err := tx.Exec(ctx, `
        insert into lots (id, position_id, acquisition_date, quantity, unit_cost, currency)
        values ($1,$2,$3,$4,$5,$6)
    `, uuid.New(), posID, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		decimal.NewFromInt(100), decimal.NewFromInt(10), "EUR"); err != nil {
		return tax.Owner{}, err
	}
	if _, err := tx.Exec(ctx, `
        insert into transactions (id, owner_id, position_id, type, date, quantity, amount, withheld, currency, source, lot_id)
        values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,null)
    `, uuid.New(), owner.ID, posID, tax.TransactionTypeSell,
		time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
		decimal.NewFromInt(60), decimal.NewFromInt(900), decimal.Zero, "EUR", tax.JurisdictionDE); err != nil {
		return tax.Owner{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return tax.Owner{}, err
	}
	return owner, nil
}

// --- Profile and portfolio reads ---

// Profile returns the tax profile for an owner.
func (s *Store) Profile(ctx context.Context, ownerID uuid.UUID) (tax.TaxProfile, error) {
	var p tax.TaxProfile
	var jurs []string
	err := s.pool.QueryRow(ctx, `
        select owner_id, primary_jurisdiction, jurisdictions, allowance_elected, loss_carryforward
        from tax_profiles
        where owner_id = $1
    `, ownerID).Scan(&p.OwnerID, &p.Primary, &jurs, &p.AllowanceElected, &p.LossCarryforward)
	if errors.Is(err, pgx.ErrNoRows) {
		return tax.TaxProfile{}, errs.ErrNotFound
	}
	if err != nil {
		return tax.TaxProfile{}, err
	}
	for _, j := range jurs {
		p.Jurisdictions = append(p.Jurisdictions, tax.Jurisdiction(j))
	}
	return p, nil
}

// Positions returns the owner's positions with their open lots. Lots acquired
// on or after asOf belong to the year's transaction stream, not the snapshot.
func (s *Store) Positions(ctx context.Context, ownerID uuid.UUID, asOf time.Time) ([]tax.Position, error) {
	rows, err := s.pool.Query(ctx, `
        select id, owner_id, name, asset_class, fund_category, cost_method, currency, quantity, metadata
        from positions
        where owner_id = $1
        order by id asc
    `, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]tax.Position, 0)
	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var p tax.Position
		var mdBytes []byte
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Name, &p.AssetClass, &p.FundCategory, &p.CostMethod, &p.Currency, &p.Quantity, &mdBytes); err != nil {
			return nil, err
		}
		if len(mdBytes) > 0 {
			var m meta.Metadata
			if err := m.UnmarshalJSON(mdBytes); err == nil {
				p.Metadata = m
			}
		}
		out = append(out, p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	lotRows, err := s.pool.Query(ctx, `
        select id, position_id, acquisition_date, quantity, unit_cost, currency
        from lots
        where position_id = any($1) and acquisition_date < $2
        order by acquisition_date asc, id asc
    `, ids, asOf)
	if err != nil {
		return nil, err
	}
	defer lotRows.Close()
	idx := make(map[uuid.UUID]*tax.Position, len(out))
	for i := range out {
		idx[out[i].ID] = &out[i]
	}
	for lotRows.Next() {
		var l tax.Lot
		if err := lotRows.Scan(&l.ID, &l.PositionID, &l.AcquisitionDate, &l.Quantity, &l.UnitCost, &l.Currency); err != nil {
			return nil, err
		}
		if p := idx[l.PositionID]; p != nil {
			p.Lots = append(p.Lots, l)
		}
	}
	return out, lotRows.Err()
}

// Transactions returns the owner's transactions dated within the tax year,
// in ascending (date, id) order.
func (s *Store) Transactions(ctx context.Context, ownerID uuid.UUID, taxYear int) ([]tax.Transaction, error) {
	from := time.Date(taxYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(taxYear+1, time.January, 1, 0, 0, 0, 0, time.UTC)
	rows, err := s.pool.Query(ctx, `
        select id, owner_id, coalesce(position_id, '00000000-0000-0000-0000-000000000000'::uuid),
               type, date, quantity, amount, withheld, currency, source,
               coalesce(lot_id, '00000000-0000-0000-0000-000000000000'::uuid)
        from transactions
        where owner_id = $1 and date >= $2 and date < $3
        order by date asc, id asc
    `, ownerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]tax.Transaction, 0)
	for rows.Next() {
		var t tax.Transaction
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.PositionID, &t.Type, &t.Date, &t.Quantity, &t.Amount, &t.Withheld, &t.Currency, &t.Source, &t.LotID); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// --- Record reads ---

// Record returns a record by id for an owner with result blocks populated.
func (s *Store) Record(ctx context.Context, ownerID, recordID uuid.UUID) (tax.CalculationRecord, error) {
	rec, err := s.scanRecord(ctx, s.pool, ownerID, recordID)
	if err != nil {
		return tax.CalculationRecord{}, err
	}
	return rec, nil
}

// RecordsByOwner returns all records for an owner, oldest first.
func (s *Store) RecordsByOwner(ctx context.Context, ownerID uuid.UUID) ([]tax.CalculationRecord, error) {
	rows, err := s.pool.Query(ctx, `
        select id from calculation_records
        where owner_id = $1
        order by created_at asc, id asc
    `, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]tax.CalculationRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.scanRecord(ctx, s.pool, ownerID, id)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (s *Store) scanRecord(ctx context.Context, q querier, ownerID, recordID uuid.UUID) (tax.CalculationRecord, error) {
	var rec tax.CalculationRecord
	var violations []string
	err := q.QueryRow(ctx, `
        select id, owner_id, tax_year, input_hash, status, violations, created_at, superseded_by
        from calculation_records
        where id = $1 and owner_id = $2
    `, recordID, ownerID).Scan(&rec.ID, &rec.OwnerID, &rec.TaxYear, &rec.InputHash, &rec.Status, &violations, &rec.CreatedAt, &rec.SupersededBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return tax.CalculationRecord{}, errs.ErrNotFound
	}
	if err != nil {
		return tax.CalculationRecord{}, err
	}
	rec.Violations = violations

	rows, err := q.Query(ctx, `
        select jurisdiction, gross_interest, gross_dividends, gross_capital_gains, gross_capital_losses,
               gross_other_income, allowance_used, allowance_remaining, taxable_amount,
               tax_computed, tax_withheld, foreign_tax_credit, net_tax_due
        from record_results
        where record_id = $1
        order by jurisdiction asc
    `, recordID)
	if err != nil {
		return tax.CalculationRecord{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var r tax.JurisdictionResult
		if err := rows.Scan(&r.Jurisdiction, &r.GrossInterest, &r.GrossDividends, &r.GrossCapitalGains,
			&r.GrossCapitalLosses, &r.GrossOtherIncome, &r.AllowanceUsed, &r.AllowanceRemaining,
			&r.TaxableAmount, &r.TaxComputed, &r.TaxWithheld, &r.ForeignTaxCredit, &r.NetTaxDue); err != nil {
			return tax.CalculationRecord{}, err
		}
		rec.Results = append(rec.Results, r)
	}
	return rec, rows.Err()
}

// --- Record writes ---

// SaveRecord inserts a record and its result blocks in a transaction, marking
// any earlier non-finalized record for the same (owner, tax year) as
// superseded by the new one.
func (s *Store) SaveRecord(ctx context.Context, rec tax.CalculationRecord) (tax.CalculationRecord, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return tax.CalculationRecord{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
        update calculation_records
        set superseded_by = $1
        where owner_id = $2 and tax_year = $3 and status <> $4 and superseded_by is null
    `, rec.ID, rec.OwnerID, rec.TaxYear, tax.RecordStatusFinalized); err != nil {
		return tax.CalculationRecord{}, err
	}

	violations := rec.Violations
	if violations == nil {
		violations = []string{}
	}
	if _, err := tx.Exec(ctx, `
        insert into calculation_records (id, owner_id, tax_year, input_hash, status, violations, created_at, superseded_by)
        values ($1,$2,$3,$4,$5,$6,$7,$8)
    `, rec.ID, rec.OwnerID, rec.TaxYear, rec.InputHash, rec.Status, violations, rec.CreatedAt, rec.SupersededBy); err != nil {
		return tax.CalculationRecord{}, err
	}
	for _, r := range rec.Results {
		if _, err := tx.Exec(ctx, `
            insert into record_results (record_id, jurisdiction, gross_interest, gross_dividends,
                gross_capital_gains, gross_capital_losses, gross_other_income, allowance_used,
                allowance_remaining, taxable_amount, tax_computed, tax_withheld, foreign_tax_credit, net_tax_due)
            values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
        `, rec.ID, r.Jurisdiction, r.GrossInterest, r.GrossDividends, r.GrossCapitalGains,
			r.GrossCapitalLosses, r.GrossOtherIncome, r.AllowanceUsed, r.AllowanceRemaining,
			r.TaxableAmount, r.TaxComputed, r.TaxWithheld, r.ForeignTaxCredit, r.NetTaxDue); err != nil {
			return tax.CalculationRecord{}, fmt.Errorf("insert result block: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return tax.CalculationRecord{}, err
	}
	return rec, nil
}

// FinalizeRecord promotes a record to FINALIZED. The input hash is the
// optimistic concurrency token: a record already finalized from different
// inputs for the same (owner, tax year) wins, and the promotion fails with
// errs.ErrConcurrentRecalculation. An identical hash resolves to the already
// finalized record.
func (s *Store) FinalizeRecord(ctx context.Context, ownerID, recordID uuid.UUID, inputHash string) (tax.CalculationRecord, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return tax.CalculationRecord{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var taxYear int
	var storedHash string
	err = tx.QueryRow(ctx, `
        select tax_year, input_hash from calculation_records
        where id = $1 and owner_id = $2
        for update
    `, recordID, ownerID).Scan(&taxYear, &storedHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return tax.CalculationRecord{}, errs.ErrNotFound
	}
	if err != nil {
		return tax.CalculationRecord{}, err
	}
	if storedHash != inputHash {
		return tax.CalculationRecord{}, fmt.Errorf(
			"record %s inputs changed since validation: %w", recordID, errs.ErrConcurrentRecalculation)
	}

	var existingID uuid.UUID
	var existingHash string
	err = tx.QueryRow(ctx, `
        select id, input_hash from calculation_records
        where owner_id = $1 and tax_year = $2 and status = $3 and id <> $4
        for update
    `, ownerID, taxYear, tax.RecordStatusFinalized, recordID).Scan(&existingID, &existingHash)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// no finalized record yet, proceed
	case err != nil:
		return tax.CalculationRecord{}, err
	case existingHash == inputHash:
		_ = tx.Rollback(ctx)
		return s.scanRecord(ctx, s.pool, ownerID, existingID)
	default:
		return tax.CalculationRecord{}, fmt.Errorf(
			"record %s for tax year %d already finalized from different inputs: %w",
			existingID, taxYear, errs.ErrConcurrentRecalculation)
	}

	if _, err := tx.Exec(ctx, `
        update calculation_records set status = $1 where id = $2
    `, tax.RecordStatusFinalized, recordID); err != nil {
		return tax.CalculationRecord{}, err
	}
	rec, err := s.scanRecord(ctx, tx, ownerID, recordID)
	if err != nil {
		return tax.CalculationRecord{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return tax.CalculationRecord{}, err
	}
	return rec, nil
}
