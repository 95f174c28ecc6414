package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"listing_syndicator/internal/config"
	"listing_syndicator/internal/credentials"
	"listing_syndicator/internal/export"
	"listing_syndicator/internal/history"
	"listing_syndicator/internal/partner"
	"listing_syndicator/internal/publisher"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	listings := flag.String("listings", "", "comma-separated property ids to export")
	flag.Parse()

	// Setup logger
	logger := setupLogger("info")

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	listingIDs, err := parseListingIDs(*listings)
	if err != nil {
		logger.Error("invalid -listings value", "error", err)
		os.Exit(1)
	}

	// Credentials come from the console's login flow; here they are seeded
	// from the environment.
	credStore := credentials.NewStore()
	if token := os.Getenv("PARTNER_ACCESS_TOKEN"); token != "" {
		credStore.Set(credentials.Credentials{
			AccessToken: token,
			AccountID:   os.Getenv("PARTNER_ACCOUNT_ID"),
		})
	}

	partnerClient := partner.New(partner.Config{
		BaseURL:            cfg.Partner.BaseURL,
		Timeout:            cfg.Partner.Timeout,
		MaxAttempts:        cfg.Partner.Retry.MaxAttempts,
		InitialBackoff:     cfg.Partner.Retry.InitialBackoff,
		MaxBackoff:         cfg.Partner.Retry.MaxBackoff,
		BreakerMaxRequests: cfg.Partner.Breaker.MaxRequests,
		BreakerInterval:    cfg.Partner.Breaker.Interval,
		BreakerTimeout:     cfg.Partner.Breaker.Timeout,
	}, credStore, logger)

	guard := credentials.NewGuard(credStore, partnerClient, cfg.Export.CredentialCacheTTL, logger)
	historyStore := history.NewStore(cfg.Export.HistorySize)

	// Run-report publishing is optional.
	var reportPublisher export.ReportPublisher
	if cfg.RabbitMQ.URL != "" {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to rabbitmq", "error", err)
			os.Exit(1)
		}
		defer rabbitMQ.Close()
		reportPublisher = rabbitMQ
	}

	service := export.NewService(
		guard,
		partnerClient,
		historyStore,
		reportPublisher,
		logger,
		cfg.Export,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handle, err := service.StartExport(ctx, listingIDs)
	if err != nil {
		logger.Error("export not started", "error", err)
		os.Exit(1)
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		handle.Cancel()
	}()

	export.Subscribe(handle,
		func(p export.Progress) {
			logger.Info("progress",
				"stage", p.Stage,
				"percent", p.Percent,
				"processed", p.Processed,
				"total", p.Total,
				"eta_seconds", p.EstimatedSecondsRemaining,
			)
		},
		nil,
	)

	<-handle.Done()
	report, runErr := handle.Report()
	if runErr != nil {
		logger.Error("run failed", "error", runErr, "error_code", report.ErrorCode)
		os.Exit(1)
	}

	logger.Info("export run finished",
		"run_id", report.RunID,
		"status", report.Status,
		"export_successful", report.ExportStats.Successful,
		"export_failed", report.ExportStats.Failed,
		"activation_failed", report.ActivationFailed,
	)
}

func parseListingIDs(s string) ([]int, error) {
	var ids []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
