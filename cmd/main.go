package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/avoscheidt/fiskal/internal/config"
	"github.com/avoscheidt/fiskal/internal/httpapi"
	"github.com/avoscheidt/fiskal/internal/ruleset"
	"github.com/avoscheidt/fiskal/internal/service/taxcalc"
	"github.com/avoscheidt/fiskal/internal/storage/memory"
	pgstore "github.com/avoscheidt/fiskal/internal/storage/postgres"
	"github.com/avoscheidt/fiskal/internal/tax"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger := buildLogger(cfg)
	slog.SetDefault(logger)

	// Published rule tables behind a TTL cache; lookups are hot on every calculation.
	rules := ruleset.NewCachedSource(ruleset.DefaultRegistry(), cfg.RuleCacheTTL)

	var repo taxcalc.Repo
	var writer taxcalc.Writer
	var closeFn func()

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to postgres", "err", err)
			os.Exit(1)
		}
		closeFn = pg.Close
		if cfg.DevSeed {
			owner, err := pg.SeedDev(ctx)
			if err != nil {
				logger.Error("dev seed failed", "err", err)
			} else {
				logDevSeed(logger, "postgres", owner.ID)
				printDevSeedBanner(owner.ID)
			}
		}
		repo, writer = pg, pg
		logger.Info("storage backend: postgres")
	} else {
		store := memory.New()
		ownerID := seedMemory(store)
		logDevSeed(logger, "memory", ownerID)
		printDevSeedBanner(ownerID)
		repo, writer = store, store
		logger.Info("storage backend: memory")
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.New(repo, writer, rules, logger).Handler(),
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("tax service listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctxShutdown); err != nil {
			logger.Error("server shutdown error", "err", err)
		}
	case err := <-errCh:
		logger.Error("server error", "err", err)
	}
	if closeFn != nil {
		closeFn()
	}
}

// seedMemory loads a demo German owner: an equity fund bought in 2020 and
// partially sold in 2023, plus a US dividend with treaty withholding.
func seedMemory(store *memory.Store) uuid.UUID {
	owner := tax.Owner{ID: uuid.New()}
	store.SeedOwner(owner)
	store.SeedProfile(tax.TaxProfile{
		OwnerID:          owner.ID,
		Primary:          tax.JurisdictionDE,
		Jurisdictions:    []tax.Jurisdiction{tax.JurisdictionDE, tax.JurisdictionUS},
		AllowanceElected: decimal.NewFromInt(1000),
	})
	posID := uuid.New()
	store.SeedPosition(tax.Position{
		ID: posID, OwnerID: owner.ID, Name: "World Equity Fund",
		AssetClass: tax.AssetClassFund, FundCategory: tax.FundCategoryEquity,
		CostMethod: tax.CostMethodFIFO, Currency: "EUR",
		Quantity: decimal.NewFromInt(100),
		Lots: []tax.Lot{{
			ID: uuid.New(), PositionID: posID,
			AcquisitionDate: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
			Quantity:        decimal.NewFromInt(100),
			UnitCost:        decimal.NewFromInt(10),
			Currency:        "EUR",
		}},
	})
	store.SeedTransaction(tax.Transaction{
		ID: uuid.New(), OwnerID: owner.ID, PositionID: posID,
		Type: tax.TransactionTypeSell,
		Date: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
		Quantity: decimal.NewFromInt(60), Amount: decimal.NewFromInt(900),
		Currency: "EUR", Source: tax.JurisdictionDE,
	})
	store.SeedTransaction(tax.Transaction{
		ID: uuid.New(), OwnerID: owner.ID, PositionID: posID,
		Type: tax.TransactionTypeDividend,
		Date: time.Date(2023, 5, 10, 0, 0, 0, 0, time.UTC),
		Amount: decimal.NewFromInt(200), Withheld: decimal.NewFromInt(30),
		Currency: "EUR", Source: tax.JurisdictionUS,
	})
	return owner.ID
}

// logDevSeed emits structured logs with useful IDs
func logDevSeed(l *slog.Logger, backend string, ownerID uuid.UUID) {
	l.Info("DEV seed ("+backend+")", "owner_id", ownerID.String())
}

// printDevSeedBanner prints a simple banner to stdout for easy copy/paste of IDs
func printDevSeedBanner(ownerID uuid.UUID) {
	fmt.Println("==================== DEV SEED ====================")
	fmt.Printf("owner_id: %s\n", ownerID.String())
	fmt.Println("==================================================")
}

// parseLogLevel maps env values to slog.Leveler
func parseLogLevel(s string) slog.Leveler {
	switch s {
	case "DEBUG", "debug":
		return slog.LevelDebug
	case "WARN", "WARNING", "warn", "warning":
		return slog.LevelWarn
	case "ERROR", "ERR", "error", "err":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func buildLogger(cfg config.AppConfig) *slog.Logger {
	level := parseLogLevel(cfg.LogLevel)
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	}
	// default to JSON
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
