// Package main is the entry point for the investrack server, a personal
// investment tracker. It records buy/sell transactions and dividends for
// holdings, derives portfolio valuation and gain/loss figures, and pulls
// prices and dividend history from the market data provider.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cfholanda/investrack/internal/clientdata"
	"github.com/cfholanda/investrack/internal/clients/exchangerate"
	"github.com/cfholanda/investrack/internal/clients/yahoo"
	"github.com/cfholanda/investrack/internal/config"
	"github.com/cfholanda/investrack/internal/database"
	"github.com/cfholanda/investrack/internal/marketdata"
	"github.com/cfholanda/investrack/internal/modules/dashboard"
	dashboardhandlers "github.com/cfholanda/investrack/internal/modules/dashboard/handlers"
	"github.com/cfholanda/investrack/internal/modules/dividends"
	"github.com/cfholanda/investrack/internal/modules/equity"
	"github.com/cfholanda/investrack/internal/modules/investments"
	investmenthandlers "github.com/cfholanda/investrack/internal/modules/investments/handlers"
	"github.com/cfholanda/investrack/internal/scheduler"
	"github.com/cfholanda/investrack/internal/server"
	"github.com/cfholanda/investrack/internal/services"
	"github.com/cfholanda/investrack/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Str("data_dir", cfg.DataDir).
		Int("port", cfg.Port).
		Msg("Starting investrack")

	// The ledger database holds user records; the client_data database is a
	// rebuildable cache of provider responses.
	appDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "app.db"),
		Profile: database.ProfileLedger,
		Name:    "app",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open app database")
	}
	defer appDB.Close()

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "client_data.db"),
		Profile: database.ProfileCache,
		Name:    "client_data",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open client_data database")
	}
	defer cacheDB.Close()

	for _, db := range []*database.DB{appDB, cacheDB} {
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Str("database", db.Name()).Msg("Migration failed")
		}
	}

	// Provider clients and the gateway layering cache/dedup/retry over them
	cacheRepo := clientdata.NewRepository(cacheDB.Conn())
	yahooClient := yahoo.NewClient(cfg.YahooBaseURL, log)
	gateway := marketdata.New(yahooClient, cacheRepo, marketdata.Config{
		QuoteTTL:   cfg.QuoteCacheTTL,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
	}, log)

	ratesClient := exchangerate.NewClient(cfg.ExchangeRateBaseURL, log)
	currency := services.NewCurrencyService(ratesClient, cacheRepo, log)

	// Repositories and services
	invRepo := investments.NewRepository(appDB.Conn(), log)
	txRepo := investments.NewTransactionRepository(appDB.Conn(), log)
	sellRepo := investments.NewSellGainLossRepository(appDB.Conn(), log)
	divRepo := dividends.NewRepository(appDB.Conn(), log)

	syncer := dividends.NewSynchronizer(divRepo, txRepo, gateway, cfg.WithholdingTaxRate, log)
	seriesBuilder := equity.NewBuilder(gateway, log)

	invService := investments.NewService(appDB.Conn(), invRepo, txRepo, sellRepo, divRepo,
		gateway, syncer, seriesBuilder, log)
	dashService := dashboard.NewService(invRepo, txRepo, sellRepo, divRepo,
		gateway, seriesBuilder, currency, cacheRepo, log)

	// Background jobs
	sched := scheduler.New(log)
	cleanupJob := clientdata.NewCleanupJob(cacheRepo, log)
	cleanupSchedule := fmt.Sprintf("@every %s", cfg.QuoteCacheTTL)
	if err := sched.AddJob(cleanupSchedule, cleanupJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register cleanup job")
	}
	if err := sched.AddJob("0 0 * * * *", scheduler.NewPriceRefreshJob(invRepo, gateway, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register price refresh job")
	}
	if err := sched.AddJob("0 30 3 * * *", scheduler.NewDividendSyncJob(invRepo, syncer, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register dividend sync job")
	}
	sched.Start()
	defer sched.Stop()

	srv := server.New(server.Config{
		Log:                log,
		AppDB:              appDB,
		CacheDB:            cacheDB,
		Cfg:                cfg,
		InvestmentsHandler: investmenthandlers.NewHandler(invService, log),
		DashboardHandler:   dashboardhandlers.NewHandler(dashService, log),
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatal().Err(err).Msg("Server failed")
		}
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Graceful shutdown failed")
		}
	}
}
