package crawler

import (
	"time"

	"sjsage522/adwatcher/internal/ad"
	"sjsage522/adwatcher/services/store"
)

// CrawlState is the running state of one crawl run. It is owned by the run
// and never shared.
type CrawlState struct {
	Page      int
	AdsFound  int
	ValidAds  int
	SumPrices int64
	MinPrice  int64
	MaxPrice  int64
	Continue  bool

	// BlindPages counts consecutive pages requested without any pagination signal
	BlindPages int
}

// NewCrawlState returns the state of a run about to fetch page 1
func NewCrawlState() CrawlState {
	return CrawlState{Page: 1, Continue: true}
}

// Fold adds a valid ad to the run statistics and reports whether it was counted
func (s *CrawlState) Fold(a *ad.Ad) bool {
	if a == nil || !a.Valid {
		return false
	}
	if s.ValidAds == 0 || a.Price < s.MinPrice {
		s.MinPrice = a.Price
	}
	if s.ValidAds == 0 || a.Price > s.MaxPrice {
		s.MaxPrice = a.Price
	}
	s.ValidAds++
	s.SumPrices += a.Price
	return true
}

// AveragePrice returns sumPrices / validAds truncated toward zero.
// ok is false when no valid ad was counted.
func (s CrawlState) AveragePrice() (avg int64, ok bool) {
	if s.ValidAds == 0 {
		return 0, false
	}
	return s.SumPrices / int64(s.ValidAds), true
}

// Summary builds the summary to persist for the run. ok is false when the run
// counted no valid ad and nothing must be written.
func (s CrawlState) Summary(listingURL, runID string, partial bool, now time.Time) (store.Summary, bool) {
	avg, ok := s.AveragePrice()
	if !ok {
		return store.Summary{}, false
	}
	return store.Summary{
		RunID:        runID,
		URL:          listingURL,
		AdsFound:     s.ValidAds,
		AveragePrice: avg,
		MinPrice:     s.MinPrice,
		MaxPrice:     s.MaxPrice,
		Pages:        s.Page,
		Partial:      partial,
		CreatedAt:    now,
	}, true
}
