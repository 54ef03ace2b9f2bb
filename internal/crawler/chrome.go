package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sjsage522/adwatcher/helpers"
	"sjsage522/adwatcher/logger"
	"sjsage522/adwatcher/pkg/errors"

	"github.com/chromedp/chromedp"
)

// ChromeFetcher renders pages in a headless Chrome before reading their markup.
// One browser is shared, every fetch opens its own tab.
type ChromeFetcher struct {
	browserCtx    context.Context
	cancelAlloc   context.CancelFunc
	cancelBrowser context.CancelFunc
	timeout       time.Duration
	readySelector string
}

// NewChromeFetcher starts a headless browser. pageTimeout bounds every page load.
// Wrap Fetch in a PacedFetcher to get host pacing and rate-limit blocks.
func NewChromeFetcher(pageTimeout time.Duration) (*ChromeFetcher, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.WindowSize(1920, 1080),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...interface{}) {
			logger.Debug("[chromedp] "+format, args...)
		}),
	)

	// the first Run starts the browser
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, errors.NewConfiguration("failed to start headless chrome", err)
	}

	if pageTimeout <= 0 {
		pageTimeout = 30 * time.Second
	}
	return &ChromeFetcher{
		browserCtx:    browserCtx,
		cancelAlloc:   cancelAlloc,
		cancelBrowser: cancelBrowser,
		timeout:       pageTimeout,
		readySelector: "body",
	}, nil
}

// Fetch implements Fetcher
func (f *ChromeFetcher) Fetch(ctx context.Context, url string) (io.Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tabCtx, cancelTab := chromedp.NewContext(f.browserCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, f.timeout)
	defer cancelTimeout()

	// cancelling the run closes the tab
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	resp, err := chromedp.RunResponse(tabCtx, chromedp.Navigate(url))
	if err == nil && resp != nil && isRateLimitStatus(resp.Status) {
		return nil, fmt.Errorf("%s; status %d", helpers.RateLimitedPrefix, resp.Status)
	}

	var html string
	if err == nil {
		err = chromedp.Run(tabCtx,
			chromedp.WaitReady(f.readySelector, chromedp.ByQuery),
			chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.NewNetwork(helpers.Host(url), "render "+url, err)
	}
	return strings.NewReader(html), nil
}

// isRateLimitStatus matches the statuses the HTTP fetch treats as rate limiting
func isRateLimitStatus(status int64) bool {
	return status == http.StatusTooManyRequests || status == 430
}

// Close shuts the browser down
func (f *ChromeFetcher) Close() error {
	f.cancelBrowser()
	f.cancelAlloc()
	return nil
}
