package crawler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// RawAdRecord is one ad as read from a page, before normalization.
// Price holds whatever the page carried: a string, a json.Number, a float64 or nil.
type RawAdRecord struct {
	ExternalID string
	URL        string
	Title      string
	Price      interface{}
}

// Crawler interface defines the contract for the listing crawler
type Crawler interface {
	// Crawl runs one full crawl of listingURL and returns the final run state
	Crawl(ctx context.Context, listingURL string) (CrawlState, error)

	// GetName returns the crawler's name for logging and identification
	GetName() string
}

// Fetcher retrieves a page body
type Fetcher interface {
	Fetch(ctx context.Context, url string) (io.Reader, error)
}

// FetcherFunc adapts a function to Fetcher
type FetcherFunc func(ctx context.Context, url string) (io.Reader, error)

// Fetch calls f(ctx, url)
func (f FetcherFunc) Fetch(ctx context.Context, url string) (io.Reader, error) {
	return f(ctx, url)
}

// Extractor produces raw ad records from one listing page
type Extractor interface {
	// Name identifies the strategy in logs and metrics
	Name() string

	// Extract returns the records found on page. An error means the strategy
	// could not read the page; it never aborts the crawl.
	Extract(ctx context.Context, page *Page) ([]RawAdRecord, error)
}

// Page is a fetched and parsed listing page
type Page struct {
	URL    string
	Number int
	Doc    *goquery.Document

	blobParsed bool
	blob       interface{}
	blobErr    error
}

// NewPage parses body into a Page
func NewPage(url string, number int, body io.Reader) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, err
	}
	return &Page{URL: url, Number: number, Doc: doc}, nil
}

// EmbeddedData decodes the JSON payload of the script matched by selector.
// It returns nil without error when the page has no such script. The result
// is cached, the first selector wins.
func (p *Page) EmbeddedData(selector string) (interface{}, error) {
	if p.blobParsed {
		return p.blob, p.blobErr
	}
	p.blobParsed = true

	if selector == "" {
		return nil, nil
	}
	script := strings.TrimSpace(p.Doc.Find(selector).First().Text())
	if script == "" {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(script)))
	dec.UseNumber()
	var data interface{}
	if err := dec.Decode(&data); err != nil {
		p.blobErr = err
		return nil, err
	}
	p.blob = data
	return data, nil
}
