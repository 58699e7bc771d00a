package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"arena-trade-agent-go/internal/agent"
	"arena-trade-agent-go/internal/api"
	"arena-trade-agent-go/internal/config"
	"arena-trade-agent-go/internal/database"
	"arena-trade-agent-go/internal/events"
	"arena-trade-agent-go/internal/feed"
	"arena-trade-agent-go/internal/logger"
	"arena-trade-agent-go/internal/marketdata"
	"arena-trade-agent-go/internal/metrics"
	"arena-trade-agent-go/internal/models"
	"arena-trade-agent-go/internal/skill"
	"arena-trade-agent-go/internal/vault"
	"arena-trade-agent-go/internal/wallet"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		fmt.Fprintf(os.Stderr, "could not load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	// Metrics
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var rec *metrics.Recorder
	if cfg.Metrics.Enabled {
		rec = metrics.New(promReg)
	}

	// Feeds share one market data client per upstream
	priceClient := marketdata.NewRestClient(cfg.Feeds.Price.BaseURL, "", &cfg.MarketData, log)
	socialClient := marketdata.NewRestClient(cfg.Feeds.Social.BaseURL, cfg.Feeds.Social.ApiKey, &cfg.MarketData, log)
	priceFeed := feed.NewPriceFeed(priceClient, cfg.Feeds.Price, log)
	socialFeed := feed.NewSocialFeed(socialClient, cfg.Feeds.Social, log)
	feeds := map[string]feed.Feed{
		feed.NamePrice:  priceFeed,
		feed.NameSocial: socialFeed,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for name, f := range feeds {
		if err := f.Start(ctx); err != nil {
			log.Fatal("Failed to start feed", zap.String("feed", name), zap.Error(err))
		}
	}

	var executor wallet.Executor
	switch cfg.Wallet.Mode {
	case "remote":
		executor = wallet.NewRemoteExecutor(cfg.Wallet, log)
		log.Info("Using remote signer", zap.String("base_url", cfg.Wallet.BaseURL))
	default:
		executor = wallet.NewPaperExecutor(priceFeed, log)
		log.Warn("Paper trading enabled. No real trades will be executed.")
	}

	var publisher events.Publisher
	if cfg.Kafka.Enabled {
		kp, err := events.NewKafkaPublisher(cfg.Kafka, log, rec)
		if err != nil {
			log.Fatal("Failed to create trade event publisher", zap.Error(err))
		}
		defer kp.Close()
		publisher = kp
		log.Info("Publishing trade events", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	split := models.ProfitSplit{
		Investor: cfg.Vault.InvestorSplit,
		Creator:  cfg.Vault.CreatorSplit,
		Platform: cfg.Vault.PlatformSplit,
	}
	if err := vault.ValidateSplit(split); err != nil {
		log.Fatal("Invalid vault configuration", zap.Error(err))
	}

	skills := skill.NewRegistry()
	ledger := vault.NewLedger(db, log, rec)
	registry := agent.NewRegistry(agent.Options{
		DB:     db,
		Ledger: ledger,
		Skills: skills,
		Factory: agent.NewEngineFactory(agent.EngineDeps{
			Config:     cfg.Engine,
			Sizing:     cfg.Skills,
			QuoteToken: cfg.Wallet.QuoteToken,
			Feeds:      feeds,
			Skills:     skills,
			Executor:   executor,
			Ledger:     ledger,
			Metrics:    rec,
			Logger:     log,
		}),
		Split:     split,
		Publisher: publisher,
		Metrics:   rec,
		Logger:    log,
	})
	if err := registry.Resume(ctx); err != nil {
		log.Error("Failed to resume agents", zap.Error(err))
	}

	server := api.New(api.Config{
		Server:      cfg.Server,
		Registry:    registry,
		Skills:      skills,
		Metrics:     promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}),
		MetricsPath: cfg.Metrics.Path,
		Logger:      log,
	})
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	// Wait for a shutdown signal or a server failure
	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigchan:
		log.Info("Shutdown signal received, gracefully shutting down...")
	case err := <-serverErr:
		if err != nil {
			log.Error("API server failed", zap.Error(err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to stop API server", zap.Error(err))
	}
	if err := registry.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to stop agents", zap.Error(err))
	}
	cancel()
	for _, f := range feeds {
		f.Stop()
	}

	log.Info("Arena has been shut down.")
}
