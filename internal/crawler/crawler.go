package crawler

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"sjsage522/adwatcher/helpers"
	"sjsage522/adwatcher/internal/ad"
	"sjsage522/adwatcher/logger"
	"sjsage522/adwatcher/pkg/errors"
	"sjsage522/adwatcher/services/metrics"
	"sjsage522/adwatcher/services/store"

	"github.com/google/uuid"
)

// Run outcomes reported to metrics
const (
	OutcomeOK      = "ok"
	OutcomeEmpty   = "empty"
	OutcomePartial = "partial"
	OutcomeFailed  = "failed"
)

// searchTermParam is the listing query parameter carrying the search text
const searchTermParam = "q"

// Options tune a ListingCrawler
type Options struct {
	// MaxPages is the hard page ceiling of a run
	MaxPages int
	// MaxBlindPages is how many consecutive pages may be requested without a pagination signal
	MaxBlindPages int
	// DetailConcurrency bounds concurrent detail page fetches
	DetailConcurrency int
	// RunTimeout bounds a whole run, zero disables it
	RunTimeout time.Duration

	PersistAttempts int
	PersistBackoff  time.Duration
}

// ListingCrawler crawls paginated listing pages, folds their ads into run
// statistics and persists one summary per run
type ListingCrawler struct {
	sites     *Sites
	fetcher   Fetcher
	logs      store.LogStore
	processor *ad.Processor
	metrics   *metrics.Metrics
	opts      Options

	now      func() time.Time
	newRunID func() string
}

// NewListingCrawler creates a listing crawler. processor and m may be nil.
func NewListingCrawler(sites *Sites, fetcher Fetcher, logs store.LogStore, processor *ad.Processor, m *metrics.Metrics, opts Options) *ListingCrawler {
	if opts.PersistAttempts < 1 {
		opts.PersistAttempts = 3
	}
	if opts.PersistBackoff <= 0 {
		opts.PersistBackoff = 500 * time.Millisecond
	}
	if opts.DetailConcurrency < 1 {
		opts.DetailConcurrency = 1
	}
	return &ListingCrawler{
		sites:     sites,
		fetcher:   fetcher,
		logs:      logs,
		processor: processor,
		metrics:   m,
		opts:      opts,
		now:       time.Now,
		newRunID:  uuid.NewString,
	}
}

// GetName implements Crawler
func (c *ListingCrawler) GetName() string {
	return "ListingCrawler"
}

// run carries the per-run collaborators
type run struct {
	id         string
	listingURL string
	searchTerm string
	notify     bool
	site       *Site
	log        *logger.Logger
	state      CrawlState
}

// Crawl implements Crawler. Pages are fetched one at a time until the listing
// runs out of ads, pagination says stop, or the page cap is reached.
//
// A fetch or parse failure ends the run. When it happens after at least one
// valid ad was counted, a summary flagged partial is still persisted.
func (c *ListingCrawler) Crawl(ctx context.Context, listingURL string) (CrawlState, error) {
	started := c.now()
	site := c.sites.Lookup(listingURL)
	r := &run{
		id:         c.newRunID(),
		listingURL: listingURL,
		searchTerm: helpers.QueryParam(listingURL, searchTermParam),
		site:       site,
		state:      NewCrawlState(),
	}
	r.log = logger.ForRun(site.Host, r.id, listingURL)

	if c.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.RunTimeout)
		defer cancel()
	}

	r.notify = NewDedupGate(c.logs, r.log).ShouldNotify(ctx, listingURL)
	r.log.Info().
		Bool("notify", r.notify).
		Str("search_term", r.searchTerm).
		Msg("Crawl run started")

	runErr := c.loop(ctx, r)
	return r.state, c.finish(ctx, r, runErr, started)
}

func (c *ListingCrawler) loop(ctx context.Context, r *run) error {
	chain := NewChain(r.site.Host, c.metrics, r.log,
		NewCardExtractor(r.site),
		NewBlobExtractor(r.site),
		NewLinkExtractor(r.site, c.fetcher, c.opts.DetailConcurrency, c.metrics, r.log),
	)
	paginator := NewPaginator(r.site, c.opts.MaxPages, c.opts.MaxBlindPages)

	for {
		page, err := c.fetchPage(ctx, r)
		if err != nil {
			return err
		}

		records, strategy := chain.Extract(ctx, page)
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(records) == 0 {
			r.state.Continue = false
			r.log.Info().Int("page", r.state.Page).Msg("No ads on page, stopping")
			return nil
		}

		r.state.AdsFound += len(records)
		valid := 0
		for _, rec := range records {
			if c.handleRecord(ctx, r, rec) {
				valid++
			}
		}

		decision := paginator.Next(page, &r.state)
		r.log.Debug().
			Int("page", r.state.Page).
			Str("strategy", strategy).
			Int("records", len(records)).
			Int("valid", valid).
			Bool("continue", decision.Continue).
			Str("reason", string(decision.Reason)).
			Msg("Page processed")

		if !decision.Continue {
			return nil
		}
		r.state.Page++
	}
}

func (c *ListingCrawler) fetchPage(ctx context.Context, r *run) (*Page, error) {
	pageURL := r.listingURL
	if r.state.Page > 1 {
		var err error
		pageURL, err = helpers.SetQueryParam(r.listingURL, r.site.PageParam, r.state.Page)
		if err != nil {
			return nil, errors.NewValidation(r.site.Host, fmt.Sprintf("invalid listing url %q: %v", r.listingURL, err))
		}
	}

	body, err := c.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		if errors.TypeOf(err) == "" && ctx.Err() == nil {
			err = errors.NewNetwork(r.site.Host, "fetch listing page", err)
		}
		c.metrics.FetchFailed(r.site.Host, errorLabel(err))
		return nil, err
	}
	c.metrics.PageFetched(r.site.Host)

	page, err := NewPage(pageURL, r.state.Page, body)
	if err != nil {
		perr := errors.NewParsing(r.site.Host, "parse listing page", err)
		c.metrics.FetchFailed(r.site.Host, errorLabel(perr))
		return nil, perr
	}
	return page, nil
}

// handleRecord normalizes one record, folds it into the run and hands it to
// the ad processor. It reports whether the ad was valid.
func (c *ListingCrawler) handleRecord(ctx context.Context, r *run, rec RawAdRecord) bool {
	a := ad.New(ad.Fields{
		ID:         rec.ExternalID,
		URL:        rec.URL,
		Title:      rec.Title,
		SearchTerm: r.searchTerm,
		Price:      NormalizePrice(rec.Price),
		Notify:     r.notify,
	})
	if !r.state.Fold(a) {
		r.log.Debug().Str("ad_url", rec.URL).Msg("Invalid ad skipped")
		return false
	}
	c.metrics.ValidAd(r.site.Host)

	if c.processor == nil {
		return true
	}
	notified, err := c.processor.Process(ctx, a)
	if err != nil {
		r.log.Warn().Err(err).Str("ad_url", a.URL).Msg("Ad processing failed")
		return true
	}
	if notified {
		c.metrics.Notified(r.site.Host)
	}
	return true
}

// finish persists the run summary and reports the outcome
func (c *ListingCrawler) finish(ctx context.Context, r *run, runErr error, started time.Time) error {
	partial := runErr != nil
	outcome := OutcomeOK
	defer func() {
		c.metrics.RunFinished(r.site.Host, outcome, c.now().Sub(started))
	}()

	if runErr != nil {
		r.log.Error().Err(runErr).Int("page", r.state.Page).Msg("Crawl run interrupted")
	}

	summary, ok := r.state.Summary(r.listingURL, r.id, partial, c.now())
	if !ok {
		outcome = OutcomeEmpty
		if runErr != nil {
			outcome = OutcomeFailed
		}
		r.log.Info().
			Int("ads_found", r.state.AdsFound).
			Int("pages", r.state.Page).
			Msg("No valid ads, summary not written")
		return runErr
	}

	// the summary is written even when the run was cancelled
	persistCtx := context.WithoutCancel(ctx)
	retry := retryPolicy{attempts: c.opts.PersistAttempts, baseDelay: c.opts.PersistBackoff, log: r.log}
	err := retry.do(persistCtx, "save summary", func(ctx context.Context) error {
		return c.logs.SaveLog(ctx, summary)
	})
	if err != nil {
		outcome = OutcomeFailed
		c.metrics.PersistFailed(r.site.Host)
		return stderrors.Join(runErr, errors.NewStore(r.site.Host, "persist run summary", err))
	}

	c.metrics.SummaryPersisted(r.listingURL, summary.AveragePrice)
	if partial {
		outcome = OutcomePartial
	}
	r.log.Info().
		Int("ads_found", r.state.AdsFound).
		Int("valid_ads", r.state.ValidAds).
		Int64("average_price", summary.AveragePrice).
		Int64("min_price", summary.MinPrice).
		Int64("max_price", summary.MaxPrice).
		Int("pages", summary.Pages).
		Bool("partial", partial).
		Msg("Crawl run summary saved")
	return runErr
}

// errorLabel names err for metrics
func errorLabel(err error) string {
	if t := errors.TypeOf(err); t != "" {
		return string(t)
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if stderrors.Is(err, context.Canceled) {
		return "canceled"
	}
	return "unknown"
}
