package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"dealscout/api"
	"dealscout/classifier"
	"dealscout/config"
	"dealscout/ebay"
	"dealscout/notify"
	"dealscout/scraper/listing"
	"dealscout/services"
	"dealscout/storage"
	"dealscout/utils"
)

func main() {
	once := flag.Bool("once", false, "run a single enrichment tick, print the report and exit")
	flag.Parse()

	cfg := config.Load()
	logger, err := utils.NewLoggerWithOptions(utils.LogOptions{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		File:       cfg.LogFile,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	if err != nil {
		logger.Warn("Logger: %v, using defaults", err)
	}

	logger.Info("=== Deal Scout starting ===")
	logger.Info("Config: batch %d | concurrency %d | threshold $%.2f | enrich every %s",
		cfg.BatchSize, cfg.MaxConcurrency, cfg.ProfitThreshold, cfg.EnrichInterval)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gazetteer, err := config.LoadGazetteer(cfg.GazetteerFile)
	if err != nil {
		logger.Error("Failed to load gazetteer: %v", err)
		os.Exit(1)
	}

	var store storage.DealStore
	if cfg.HasPostgres() {
		pg, err := storage.NewPostgresStore(cfg.DSN())
		if err != nil {
			logger.Error("Failed to connect to PostgreSQL: %v", err)
			logger.Error("Make sure Docker is running: docker compose up -d")
			os.Exit(1)
		}
		store = pg
	} else {
		logger.Warn("POSTGRES_HOST not set, deals are kept in memory only")
		store = storage.NewMemoryStore()
	}
	defer store.Close()

	ebayClient := ebay.New(ebay.Options{
		AppID:             cfg.EbayAppID,
		CertID:            cfg.EbayCertID,
		BaseURL:           cfg.EbayAPIBase,
		HomeZip:           cfg.HomeZip,
		PickupRadiusMiles: cfg.PickupRadiusMiles,
		Timeout:           cfg.HTTPTimeout,
	}, logger)

	priceOpts := services.DefaultPriceEngineOptions()
	priceOpts.CacheTTL = cfg.PriceCacheTTL
	priceOpts.AttemptTimeout = cfg.HTTPTimeout
	priceOpts.MaxAttempts = cfg.MaxRetries
	prices := services.NewPriceEngine(ebayClient, ebayClient, logger, priceOpts)

	feePercent := cfg.FeePercent
	if cfg.EbayStoreTier != "" {
		feePercent = ebay.FeeForTier(cfg.EbayStoreTier)
	}
	logger.Info("Selling fee %.2f%% | shipping $%.2f", feePercent, cfg.ShippingEstimate)

	var details listing.DetailFiller
	if cfg.ScrapeDetails {
		details = listing.NewDetailScraper(cfg.ChromeBin, cfg.MaxConcurrency, cfg.RateLimitMs, cfg.MaxRetries, cfg.HTTPTimeout, logger)
	}
	source := listing.NewSource(
		listing.NewFeed(cfg.AlertFeedURL, cfg.HTTPTimeout, cfg.MaxRetries, logger),
		services.NewCleaner(logger),
		details,
		logger,
	)

	deps := services.EnricherDeps{
		Source: source,
		Classifier: classifier.New(classifier.Options{
			APIKey:  cfg.OpenRouterAPIKey,
			Model:   cfg.OpenRouterModel,
			URL:     cfg.OpenRouterURL,
			Timeout: cfg.HTTPTimeout,
		}, logger),
		Prices: prices,
		Notifier: notify.NewFCM(notify.Options{
			ProjectID:   cfg.FCMProjectID,
			AccessToken: cfg.FCMAccessToken,
			Endpoint:    cfg.FCMEndpoint,
			Timeout:     cfg.HTTPTimeout,
		}, logger),
		Store:    store,
		Distance: services.NewDistanceResolver(gazetteer),
		Profit:   services.NewProfitCalculator(feePercent, cfg.ShippingEstimate, cfg.ProfitThreshold),
		Pickup:   ebayClient,
	}

	if cfg.CSVOutputPath != "" {
		csvWriter, err := storage.NewCSVWriter(cfg.CSVOutputPath)
		if err != nil {
			logger.Error("Failed to create CSV writer: %v", err)
			os.Exit(1)
		}
		defer csvWriter.Close()
		deps.RawSink = csvWriter
	}
	if cfg.S3Bucket != "" {
		archive, err := storage.NewS3Archive(ctx, storage.S3Options{
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
		if err != nil {
			logger.Error("Failed to configure S3 archive: %v", err)
			os.Exit(1)
		}
		deps.Archive = archive
	}

	enricher := services.NewEnricher(deps, services.EnricherOptions{
		BatchSize:         cfg.BatchSize,
		PickupRadiusMiles: cfg.PickupRadiusMiles,
		MaxConcurrency:    cfg.MaxConcurrency,
		RateLimitMs:       cfg.RateLimitMs,
		CallTimeout:       cfg.HTTPTimeout,
	}, logger)

	if *once {
		report, err := enricher.RunEnrichmentTick(ctx)
		if err != nil {
			logger.Error("Enrichment tick failed: %v", err)
			os.Exit(1)
		}
		services.NewInsightService(logger).Print(report)
		return
	}

	scheduler := services.NewScheduler(logger)
	jobErr := errors.Join(
		scheduler.Add(services.JobEnrich, cfg.EnrichInterval, func(ctx context.Context) error {
			_, err := enricher.RunEnrichmentTick(ctx)
			return err
		}),
		scheduler.Add(services.JobNeedsReview, cfg.NeedsReviewInterval, func(ctx context.Context) error {
			_, err := enricher.RunNeedsReviewSweep(ctx)
			return err
		}),
	)
	if jobErr != nil {
		logger.Error("Invalid schedule: %v", jobErr)
		os.Exit(1)
	}
	scheduler.Start(ctx)

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: api.NewRouter(&api.Handler{
			Jobs:   scheduler,
			Deals:  enricher,
			Store:  store,
			Logger: logger.WithComponent("api"),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Admin API listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("API server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received, waiting for running jobs...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("API shutdown: %v", err)
	}
	scheduler.Wait()
	logger.Info("=== Deal Scout stopped ===")
}
