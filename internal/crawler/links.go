package crawler

import (
	"context"
	"strings"

	"sjsage522/adwatcher/logger"
	"sjsage522/adwatcher/services/metrics"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"
)

// LinkExtractor collects ad links from the listing page and reads each ad
// from its detail page. Detail pages are fetched concurrently, a failed
// detail fetch drops that ad only.
type LinkExtractor struct {
	site        *Site
	fetcher     Fetcher
	concurrency int
	metrics     *metrics.Metrics
	log         *logger.Logger
}

// NewLinkExtractor creates a link extractor fetching at most concurrency detail pages at once
func NewLinkExtractor(site *Site, fetcher Fetcher, concurrency int, m *metrics.Metrics, log *logger.Logger) *LinkExtractor {
	if concurrency < 1 {
		concurrency = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	return &LinkExtractor{site: site, fetcher: fetcher, concurrency: concurrency, metrics: m, log: log}
}

// Name implements Extractor
func (e *LinkExtractor) Name() string { return "links" }

// Extract implements Extractor
func (e *LinkExtractor) Extract(ctx context.Context, page *Page) ([]RawAdRecord, error) {
	links := e.collectLinks(page.Doc)
	if len(links) == 0 {
		return nil, nil
	}

	results := make([]*RawAdRecord, len(links))
	var g errgroup.Group
	g.SetLimit(e.concurrency)

	for i, link := range links {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			rec, err := e.fetchDetail(ctx, link)
			if err != nil {
				e.metrics.DetailFetchFailed(e.site.Host)
				e.log.Warn().Err(err).Str("ad_url", link).Msg("Detail page skipped")
				return nil
			}
			results[i] = rec
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records := make([]RawAdRecord, 0, len(links))
	for _, rec := range results {
		if rec != nil {
			records = append(records, *rec)
		}
	}
	return records, nil
}

// collectLinks returns the unique ad links of doc in document order
func (e *LinkExtractor) collectLinks(doc *goquery.Document) []string {
	var links []string
	seen := make(map[string]struct{})

	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href := e.site.Resolve(a.AttrOr("href", ""))
		href = strings.SplitN(href, "#", 2)[0]
		if !e.site.IsAdURL(href) {
			return true
		}
		if _, dup := seen[href]; dup {
			return true
		}
		seen[href] = struct{}{}
		links = append(links, href)
		return e.site.MaxDetailLinks <= 0 || len(links) < e.site.MaxDetailLinks
	})
	return links
}

func (e *LinkExtractor) fetchDetail(ctx context.Context, adURL string) (*RawAdRecord, error) {
	body, err := e.fetcher.Fetch(ctx, adURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, err
	}

	rec := &RawAdRecord{
		URL:   adURL,
		Title: firstText(doc.Selection, e.site.DetailTitleSelectors),
	}
	if price := firstText(doc.Selection, e.site.DetailPriceSelectors); price != "" {
		rec.Price = price
	}

	rec.ExternalID = adIDFromURL(adURL)
	if rec.ExternalID == "" {
		if text := firstText(doc.Selection, e.site.DetailIDSelectors); text != "" {
			rec.ExternalID = numericIDPattern.FindString(text)
		}
	}
	return rec, nil
}
