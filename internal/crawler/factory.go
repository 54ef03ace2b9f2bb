package crawler

import (
	"fmt"

	"sjsage522/adwatcher/config"
	"sjsage522/adwatcher/internal"
	"sjsage522/adwatcher/internal/ad"
	"sjsage522/adwatcher/logger"
)

// notificationKey is the publisher key new ads are written under
const notificationKey = "ad"

// NewFromConfig builds the listing crawler described by cfg. The returned
// close function releases the fetcher.
func NewFromConfig(cfg *config.Config, deps internal.Dependencies) (*ListingCrawler, func() error, error) {
	if deps.Store == nil {
		return nil, nil, fmt.Errorf("listing crawler needs a store")
	}

	sites, err := LoadSites(cfg.SitesFile)
	if err != nil {
		return nil, nil, err
	}

	var (
		fetcher Fetcher
		closeFn = func() error { return nil }
	)
	switch cfg.FetchMode {
	case config.FetchModeChrome:
		chrome, err := NewChromeFetcher(cfg.PageTimeout)
		if err != nil {
			return nil, nil, err
		}
		fetcher = NewPacedFetcher(chrome.Fetch, deps.Cache, cfg.RateLimitBlock, cfg.PageDelay)
		closeFn = chrome.Close
		logger.Info("Using headless chrome fetcher (page timeout %v, page delay %v)", cfg.PageTimeout, cfg.PageDelay)
	case config.FetchModeHTTP, "":
		fetcher = NewHTTPFetcher(deps.Cache, cfg.RateLimitBlock, cfg.PageDelay)
		logger.Info("Using standard fetch (page delay %v)", cfg.PageDelay)
	default:
		return nil, nil, fmt.Errorf("unknown fetch mode %q", cfg.FetchMode)
	}

	var notifier ad.Notifier
	if deps.Publisher != nil {
		notifier = ad.NewPublisherNotifier(deps.Publisher, notificationKey)
	}
	processor := ad.NewProcessor(deps.Store, notifier, logger.ForCrawler("ads"))

	c := NewListingCrawler(sites, fetcher, deps.Store, processor, deps.Metrics, Options{
		MaxPages:          cfg.MaxPages,
		MaxBlindPages:     cfg.MaxBlindPages,
		DetailConcurrency: cfg.DetailConcurrency,
		RunTimeout:        cfg.RunTimeout,
	})
	return c, closeFn, nil
}
