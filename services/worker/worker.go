package worker

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"sjsage522/adwatcher/helpers"
	"sjsage522/adwatcher/internal/crawler"
	"sjsage522/adwatcher/logger"
	"sjsage522/adwatcher/services/publisher"

	"github.com/robfig/cron/v3"
)

// Worker runs the listing crawler over every configured listing URL on a
// schedule. Each listing runs in its own goroutine with its own crawl state.
type Worker struct {
	ctx           context.Context
	crawler       crawler.Crawler
	listingURLs   []string
	publisher     publisher.Publisher
	logger        helpers.LoggerInterface
	log           *logger.Logger
	crawlCron     string
	crawlInterval time.Duration

	mu      sync.Mutex
	running map[string]bool
}

// NewWorker creates a new worker. A non-empty crawlCron wins over crawlInterval.
// pub may be nil.
func NewWorker(
	ctx context.Context,
	c crawler.Crawler,
	listingURLs []string,
	pub publisher.Publisher,
	errLogger helpers.LoggerInterface,
	crawlCron string,
	crawlInterval time.Duration,
) *Worker {
	return &Worker{
		ctx:           ctx,
		crawler:       c,
		listingURLs:   listingURLs,
		publisher:     pub,
		logger:        errLogger,
		log:           logger.ForWorker(),
		crawlCron:     crawlCron,
		crawlInterval: crawlInterval,
		running:       make(map[string]bool),
	}
}

// Start runs a first round immediately, then one round per schedule tick
// until the worker context is cancelled
func (w *Worker) Start() error {
	if w.crawlCron != "" {
		return w.startCron()
	}
	if w.crawlInterval <= 0 {
		return fmt.Errorf("worker needs a cron expression or a positive interval")
	}

	ticker := time.NewTicker(w.crawlInterval)
	defer ticker.Stop()

	w.RunOnce()
	for {
		select {
		case <-ticker.C:
			w.RunOnce()
		case <-w.ctx.Done():
			return nil
		}
	}
}

func (w *Worker) startCron() error {
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(w.crawlCron, w.RunOnce); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	w.log.Info().Str("cron", w.crawlCron).Msg("Starting scheduler")
	go w.RunOnce()
	scheduler.Start()

	<-w.ctx.Done()
	// wait for running jobs to return
	<-scheduler.Stop().Done()
	return nil
}

// RunOnce crawls every listing URL in parallel and then trims the streams.
// A listing whose previous run has not finished is skipped.
func (w *Worker) RunOnce() {
	start := time.Now()

	var wg sync.WaitGroup
	for _, listingURL := range w.listingURLs {
		if !w.acquire(listingURL) {
			w.log.Warn().Str("url", listingURL).Msg("Previous run still in progress, skipping")
			continue
		}
		wg.Add(1)
		go func(listingURL string) {
			defer wg.Done()
			defer w.release(listingURL)
			w.crawlListing(listingURL)
		}(listingURL)
	}
	wg.Wait()

	// Trim all streams after crawling
	if w.publisher != nil {
		if err := w.publisher.TrimStreams(); err != nil {
			w.logger.LogError("StreamTrimming", err)
		}
	}

	if os.Getenv("ADWATCHER_ENVIRONMENT") != "production" {
		w.logger.LogInfo("Crawl round took %s", time.Since(start))
	}
}

// crawlListing runs one crawl of listingURL and records its failure, if any
func (w *Worker) crawlListing(listingURL string) {
	state, err := w.crawler.Crawl(w.ctx, listingURL)
	if err != nil {
		w.logger.LogError(listingURL, err)
		w.log.Error().
			Err(err).
			Str("crawler", w.crawler.GetName()).
			Str("url", listingURL).
			Int("valid_ads", state.ValidAds).
			Msg("Crawl run failed")
		return
	}

	w.log.Debug().
		Str("url", listingURL).
		Int("pages", state.Page).
		Int("ads_found", state.AdsFound).
		Int("valid_ads", state.ValidAds).
		Msg("Crawl run finished")
}

func (w *Worker) acquire(listingURL string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running[listingURL] {
		return false
	}
	w.running[listingURL] = true
	return true
}

func (w *Worker) release(listingURL string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.running, listingURL)
}
