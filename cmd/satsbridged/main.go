package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/glebarez/sqlite"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"satsbridge/config"
	"satsbridge/ledger"
	"satsbridge/observability"
	"satsbridge/observability/logging"
	"satsbridge/payout"
	"satsbridge/reward"
	"satsbridge/server"
	"satsbridge/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := logging.Setup("satsbridge", cfg.Environment)

	db, err := openDatabase(cfg)
	if err != nil {
		log.Fatalf("database connection error: %v", err)
	}
	if err := storage.AutoMigrate(db); err != nil {
		log.Fatalf("auto migrate error: %v", err)
	}

	ledgerClient := ledger.NewClient(cfg.LedgerRPCURL, cfg.RequestTimeout)
	payoutClient := payout.NewHTTPClient(cfg.PayoutBaseURL, cfg.PayoutAPIKey, cfg.BTCRate, cfg.RequestTimeout)

	rewards := reward.NewService(reward.Config{
		Store:          storage.NewStore(db),
		Verifier:       ledger.NewVerifier(ledgerClient),
		Payout:         payoutClient,
		ConversionRate: cfg.ConversionRate,
		RewardFraction: cfg.RewardFraction,
		Metrics:        observability.Reward(),
	})

	srv := server.New(server.Config{
		Rewards:        rewards,
		Payout:         payoutClient,
		Balances:       ledgerClient,
		USDCMint:       cfg.USDCMint,
		RequestTimeout: cfg.RequestTimeout,
		Log:            logger,
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           otelhttp.NewHandler(srv.Handler(), "satsbridge"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting satsbridge", slog.String("addr", cfg.ListenAddress))
	if err := httpServer.ListenAndServe(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	if cfg.PostgresDatabase() {
		return gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	}
	return gorm.Open(sqlite.Open(cfg.DatabaseURL), &gorm.Config{})
}
