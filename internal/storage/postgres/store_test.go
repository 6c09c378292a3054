package postgres

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/avoscheidt/fiskal/internal/errs"
	"github.com/avoscheidt/fiskal/internal/tax"
)

func getTestDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping Postgres store tests")
	}
	return dsn
}

func mustOpen(t *testing.T, dsn string) *Store {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return s
}

func applyInitSQL(t *testing.T, dsn string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open for init: %v", err)
	}
	defer s.Close()
	// Resolve init SQL path relative to this test file so CWD doesn't matter
	_, thisFile, _, _ := runtime.Caller(0)
	repoRoot := filepath.Clean(filepath.Join(filepath.Dir(thisFile), "../../../"))
	path := filepath.Join(repoRoot, "db", "migrations", "0001_init.sql")
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read init sql: %v", err)
	}
	if _, err := s.pool.Exec(ctx, string(b)); err != nil {
		t.Fatalf("apply init sql: %v", err)
	}
}

func TestSeedAndPortfolioReads(t *testing.T) {
	dsn := getTestDSN(t)
	applyInitSQL(t, dsn)
	s := mustOpen(t, dsn)
	defer s.Close()
	ctx := context.Background()

	owner, err := s.SeedDev(ctx)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	profile, err := s.Profile(ctx, owner.ID)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if profile.Primary != tax.JurisdictionDE {
		t.Fatalf("primary: got %s", profile.Primary)
	}

	positions, err := s.Positions(ctx, owner.ID, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("positions: %v", err)
	}
	if len(positions) != 1 || len(positions[0].Lots) != 1 {
		t.Fatalf("want 1 position with 1 open lot, got %+v", positions)
	}
	if !positions[0].Lots[0].UnitCost.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("unit cost: got %s", positions[0].Lots[0].UnitCost)
	}

	txs, err := s.Transactions(ctx, owner.ID, 2023)
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	if len(txs) != 1 || txs[0].Type != tax.TransactionTypeSell {
		t.Fatalf("want the seeded sell, got %+v", txs)
	}
}

func TestRecordLifecycle(t *testing.T) {
	dsn := getTestDSN(t)
	applyInitSQL(t, dsn)
	s := mustOpen(t, dsn)
	defer s.Close()
	ctx := context.Background()

	owner, err := s.SeedDev(ctx)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec := tax.CalculationRecord{
		ID: uuid.New(), OwnerID: owner.ID, TaxYear: 2023,
		Results: []tax.JurisdictionResult{{
			Jurisdiction:      tax.JurisdictionDE,
			GrossCapitalGains: decimal.RequireFromString("300.00"),
			TaxableAmount:     decimal.RequireFromString("0.00"),
		}},
		InputHash: "hash-a", Status: tax.RecordStatusValidated,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	if _, err := s.SaveRecord(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.Record(ctx, owner.ID, rec.ID)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(got.Results) != 1 || !got.Results[0].GrossCapitalGains.Equal(rec.Results[0].GrossCapitalGains) {
		t.Fatalf("results round trip: %+v", got.Results)
	}

	fin, err := s.FinalizeRecord(ctx, owner.ID, rec.ID, "hash-a")
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if fin.Status != tax.RecordStatusFinalized {
		t.Fatalf("status: got %s", fin.Status)
	}

	// a rival record from different inputs cannot finalize over it
	rival := rec
	rival.ID = uuid.New()
	rival.InputHash = "hash-b"
	if _, err := s.SaveRecord(ctx, rival); err != nil {
		t.Fatalf("save rival: %v", err)
	}
	if _, err := s.FinalizeRecord(ctx, owner.ID, rival.ID, "hash-b"); !errors.Is(err, errs.ErrConcurrentRecalculation) {
		t.Fatalf("want ErrConcurrentRecalculation, got %v", err)
	}

	old, err := s.Record(ctx, owner.ID, rec.ID)
	if err != nil {
		t.Fatalf("reread: %v", err)
	}
	if old.SupersededBy != nil {
		t.Fatal("finalized record must never be marked superseded")
	}
}
