package crawler

import (
	"testing"
	"time"

	"sjsage522/adwatcher/internal/ad"

	"github.com/stretchr/testify/assert"
)

func validAd(price int64) *ad.Ad {
	return ad.New(ad.Fields{URL: "https://www.olx.ua/d/obyavlenie/x.html", Title: "x", Price: price})
}

func TestCrawlStateFold(t *testing.T) {
	state := NewCrawlState()
	for _, price := range []int64{20, 10, 30} {
		assert.True(t, state.Fold(validAd(price)))
	}
	assert.False(t, state.Fold(ad.New(ad.Fields{URL: "https://www.olx.ua/d/obyavlenie/y.html", Price: 5})))
	assert.False(t, state.Fold(nil))

	assert.Equal(t, 3, state.ValidAds)
	assert.Equal(t, int64(60), state.SumPrices)
	assert.Equal(t, int64(10), state.MinPrice)
	assert.Equal(t, int64(30), state.MaxPrice)

	avg, ok := state.AveragePrice()
	assert.True(t, ok)
	assert.Equal(t, int64(20), avg)
}

func TestCrawlStateAverageTruncates(t *testing.T) {
	state := NewCrawlState()
	state.Fold(validAd(10))
	state.Fold(validAd(11))

	avg, ok := state.AveragePrice()
	assert.True(t, ok)
	assert.Equal(t, int64(10), avg)
}

func TestCrawlStateZeroPricedAdCountsAsMin(t *testing.T) {
	state := NewCrawlState()
	state.Fold(validAd(500))
	state.Fold(validAd(0))
	assert.Equal(t, int64(0), state.MinPrice)
	assert.Equal(t, int64(500), state.MaxPrice)
}

func TestCrawlStateSummary(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	empty := NewCrawlState()
	_, ok := empty.Summary("https://www.olx.ua/uk/list/", "run-1", false, now)
	assert.False(t, ok)

	state := NewCrawlState()
	state.Page = 2
	state.Fold(validAd(100))
	state.Fold(validAd(200))

	summary, ok := state.Summary("https://www.olx.ua/uk/list/", "run-1", true, now)
	assert.True(t, ok)
	assert.Equal(t, "https://www.olx.ua/uk/list/", summary.URL)
	assert.Equal(t, "run-1", summary.RunID)
	assert.Equal(t, 2, summary.AdsFound)
	assert.Equal(t, int64(150), summary.AveragePrice)
	assert.Equal(t, int64(100), summary.MinPrice)
	assert.Equal(t, int64(200), summary.MaxPrice)
	assert.Equal(t, 2, summary.Pages)
	assert.True(t, summary.Partial)
	assert.Equal(t, now, summary.CreatedAt)
}
