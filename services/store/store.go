package store

import (
	"context"
	"time"
)

// Summary is the persisted outcome of one crawl run of a listing URL.
// AdsFound counts valid ads only.
type Summary struct {
	ID           int64     `json:"id"`
	RunID        string    `json:"run_id"`
	URL          string    `json:"url"`
	AdsFound     int       `json:"ads_found"`
	AveragePrice int64     `json:"average_price"`
	MinPrice     int64     `json:"min_price"`
	MaxPrice     int64     `json:"max_price"`
	Pages        int       `json:"pages"`
	Partial      bool      `json:"partial"`
	CreatedAt    time.Time `json:"created_at"`
}

// SeenAd is an ad recorded by an earlier or the current run
type SeenAd struct {
	ID         string
	URL        string
	Title      string
	SearchTerm string
	Price      int64
}

// LogStore persists run summaries and looks them up by listing URL
type LogStore interface {
	// SaveLog appends a summary
	SaveLog(ctx context.Context, summary Summary) error

	// GetLogsByURL returns up to limit summaries for url, newest first
	GetLogsByURL(ctx context.Context, url string, limit int) ([]Summary, error)
}

// AdStore remembers which ads have already been seen
type AdStore interface {
	// MarkSeen records the ad and reports whether it was unknown before
	MarkSeen(ctx context.Context, ad SeenAd) (bool, error)
}

// Store is the union implemented by every backend
type Store interface {
	LogStore
	AdStore
	Close() error
}

// seenKey identifies an ad: its external id when known, its url otherwise
func seenKey(ad SeenAd) string {
	if ad.ID != "" {
		return "id:" + ad.ID
	}
	return "url:" + ad.URL
}
