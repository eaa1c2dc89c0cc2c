package main

import (
	"casescraper/internal/api"
	"casescraper/internal/captcha"
	"casescraper/internal/config"
	"casescraper/internal/fetch"
	"casescraper/internal/monitoring"
	"casescraper/internal/scrape"
	"casescraper/internal/storage"
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	// Initialize structured logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("could not load config", zap.Error(err))
	}

	// Initialize Storage Layer
	pgStore, err := storage.NewPostgresStore(cfg.PostgresURL)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pgStore.Close()
	redisStore := storage.NewRedisStore(cfg.RedisAddr)

	// Initialize Monitoring
	metrics := monitoring.NewMetrics()

	// Challenge detection and solving
	detector := captcha.NewDetector(cfg.RecaptchaSiteKey, cfg.RecaptchaAction)
	solver := captcha.NewSolver(
		cfg.SolverBaseURL,
		cfg.SolverAPIKey,
		cfg.RecaptchaMinScore,
		time.Duration(cfg.SolverPollSeconds)*time.Second,
		cfg.SolverMaxPolls,
		logger,
	)

	// One limiter shared by all fetch workers
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	fetchTimeout := time.Duration(cfg.FetchTimeout) * time.Second

	httpFetcher := fetch.NewHTTPFetcher(fetchTimeout, cfg.FetchRetries, limiter, detector, logger)
	var fetcher scrape.Fetcher = httpFetcher
	if cfg.UseBrowser {
		// The browser renders GET navigation; form POSTs still go over HTTP.
		browser := fetch.NewBrowserFetcher(fetchTimeout, cfg.FetchRetries, limiter, detector, logger)
		fetcher = fetch.NewRoutedFetcher(browser, httpFetcher)
	}

	// Core scrape pipeline
	scraper := scrape.NewService(fetcher, solver, pgStore, redisStore, metrics, scrape.Options{
		PageURL:      cfg.PageURL,
		SearchURL:    cfg.SearchURL,
		CaseInfoPath: cfg.CaseInfoPath,
		County:       cfg.County,
		Workers:      cfg.ScrapeWorkers,
		DedupTTL:     time.Duration(cfg.DeduplicationDays) * 24 * time.Hour,
	}, logger)

	// Initialize API Server
	server := api.NewServer(cfg, scraper, pgStore, redisStore, logger)

	// Graceful Shutdown
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("could not start server", zap.Error(err))
		}
	}()

	logger.Info("server started", zap.String("port", cfg.ServerPort))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exiting")
}
