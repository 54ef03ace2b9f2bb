package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sjsage522/adwatcher/config"
	"sjsage522/adwatcher/helpers"
	"sjsage522/adwatcher/internal"
	"sjsage522/adwatcher/internal/crawler"
	"sjsage522/adwatcher/logger"
	"sjsage522/adwatcher/services/cache"
	"sjsage522/adwatcher/services/metrics"
	"sjsage522/adwatcher/services/publisher"
	"sjsage522/adwatcher/services/store"
	"sjsage522/adwatcher/services/worker"

	"github.com/joho/godotenv"
)

func main() {
	once := flag.Bool("once", false, "crawl every listing url once and exit")
	flag.Parse()

	// Load environment variables
	godotenv.Load()

	// Initialize logger first
	logger.Init()
	log := logger.Default

	// Load and validate configuration
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("environment", cfg.Environment).
		Strs("listing_urls", cfg.ListingURLs).
		Int("max_pages", cfg.MaxPages).
		Str("fetch_mode", cfg.FetchMode).
		Str("db_driver", cfg.DBDriver).
		Msg("Starting application")

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Initialize services
	services, err := initializeServices(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer services.Cleanup()

	listingCrawler, closeFetcher, err := crawler.NewFromConfig(cfg, internal.Dependencies{
		Cache:     services.Cache,
		Publisher: services.Publisher,
		Store:     services.Store,
		Metrics:   services.Metrics,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create listing crawler")
	}
	defer closeFetcher()

	w := worker.NewWorker(
		ctx,
		listingCrawler,
		cfg.ListingURLs,
		services.Publisher,
		helpers.NewLogger(cfg.ErrorLogFile),
		cfg.CrawlCron,
		cfg.CrawlInterval,
	)

	if *once {
		log.Info().Msg("Running a single crawl round")
		go func() {
			<-sigChan
			cancel()
		}()
		w.RunOnce()
		return
	}

	// Start worker in a goroutine
	workerDone := make(chan error, 1)
	go func() {
		log.Info().Msg("Starting listing worker")
		workerDone <- w.Start()
	}()

	// Wait for shutdown signal or worker error
	select {
	case sig := <-sigChan:
		log.Info().
			Str("signal", sig.String()).
			Msg("Received shutdown signal")
		cancel()
		// let running crawls persist their partial summaries
		<-workerDone
	case err := <-workerDone:
		if err != nil {
			log.Error().Err(err).Msg("Worker exited with error")
		} else {
			log.Info().Msg("Worker exited normally")
		}
	}

	// Graceful shutdown
	log.Info().Msg("Shutting down gracefully...")
}

// Services holds all the initialized services
type Services struct {
	Cache         cache.CacheService
	Publisher     publisher.Publisher
	Store         store.Store
	Metrics       *metrics.Metrics
	metricsServer *http.Server
}

// Cleanup cleans up all services
func (s *Services) Cleanup() {
	if s.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.metricsServer.Shutdown(shutdownCtx)
	}
	if s.Publisher != nil {
		s.Publisher.Close()
	}
	if s.Store != nil {
		if err := s.Store.Close(); err != nil {
			logger.LogError("store", err, "close failed")
		}
	}
}

// initializeServices initializes all required services
func initializeServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	services := &Services{}

	// Initialize store
	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	services.Store = st
	logger.Info("Opened %s store", cfg.DBDriver)

	// Initialize cache service
	cacheService := cache.NewMemcacheService(cfg.MemcacheAddr)
	if err := cacheService.Ping(); err != nil {
		logger.Warn("Memcache at %s is not reachable: %v", cfg.MemcacheAddr, err)
	} else {
		logger.Info("Connected to Memcache at %s", cfg.MemcacheAddr)
	}
	services.Cache = cacheService

	// Initialize publisher
	redisPublisher := publisher.NewRedisPublisher(
		ctx,
		cfg.RedisAddr,
		cfg.RedisDB,
		cfg.RedisStream,
		cfg.RedisStreamCount,
		cfg.RedisStreamMaxLength,
	)
	if err := redisPublisher.Ping(); err != nil {
		redisPublisher.Close()
		st.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	services.Publisher = redisPublisher

	logger.Info("Connected to Redis at %s (DB: %d, Stream: %s)",
		cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream)

	// Initialize metrics
	services.Metrics = metrics.New()
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", services.Metrics.Handler())
		services.metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := services.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.LogError("metrics", err, "metrics server stopped")
			}
		}()
		logger.Info("Serving metrics on %s/metrics", cfg.MetricsAddr)
	}

	return services, nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		return store.NewPostgresStore(ctx, cfg.DatabaseURL)
	default:
		return store.NewSQLiteStore(cfg.DBPath)
	}
}
