package crawler

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"sjsage522/adwatcher/services/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func detailHTML(title, price string) string {
	return fmt.Sprintf(`<html><body>
		<div data-cy="ad_title"><h4>%s</h4></div>
		<div data-testid="ad-price-container"><h3>%s</h3></div>
		<div data-cy="ad-footer-bar-section"><span>ID: 870011223</span></div>
	</body></html>`, title, price)
}

func TestLinkExtractor(t *testing.T) {
	base := "https://www.olx.ua"
	fetcher := &pagesFetcher{
		pages: map[string]string{
			base + "/d/uk/obyavlenie/bike-IDaa11.html": detailHTML("Bike", "5 000 грн."),
			base + "/d/uk/obyavlenie/lamp-123.html":    detailHTML("Lamp", "300 грн."),
		},
	}
	listing := `<html><body>
		<a href="/d/uk/obyavlenie/bike-IDaa11.html">Bike</a>
		<a href="/d/uk/obyavlenie/bike-IDaa11.html#photos">Bike photos</a>
		<a href="/d/uk/obyavlenie/lamp-123.html">Lamp</a>
		<a href="/d/uk/obyavlenie/broken-IDzz99.html">Broken</a>
		<a href="/uk/help/">Help</a>
		<a href="javascript:void(0)">noop</a>
	</body></html>`

	m := metrics.New()
	records, err := NewLinkExtractor(DefaultSite(), fetcher, 2, m, nil).Extract(context.Background(), newTestPage(t, 1, listing))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, RawAdRecord{
		ExternalID: "aa11",
		URL:        base + "/d/uk/obyavlenie/bike-IDaa11.html",
		Title:      "Bike",
		Price:      "5 000 грн.",
	}, records[0])
	// no id in the url, read from the detail footer
	assert.Equal(t, "870011223", records[1].ExternalID)
	assert.Equal(t, "Lamp", records[1].Title)

	assert.Len(t, fetcher.calls, 3)
	expected := `
# HELP adwatcher_detail_fetch_failures_total Total number of dropped ad detail page fetches
# TYPE adwatcher_detail_fetch_failures_total counter
adwatcher_detail_fetch_failures_total{site="www.olx.ua"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "adwatcher_detail_fetch_failures_total"))
}

func TestLinkExtractorBoundedConcurrency(t *testing.T) {
	var inFlight, maxInFlight int32
	fetcher := FetcherFunc(func(ctx context.Context, url string) (io.Reader, error) {
		n := atomic.AddInt32(&inFlight, 1)
		defer atomic.AddInt32(&inFlight, -1)
		for {
			cur := atomic.LoadInt32(&maxInFlight)
			if n <= cur || atomic.CompareAndSwapInt32(&maxInFlight, cur, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return strings.NewReader(detailHTML("Item", "10")), nil
	})

	var sb strings.Builder
	sb.WriteString("<html><body>")
	for i := 0; i < 12; i++ {
		fmt.Fprintf(&sb, `<a href="/d/uk/obyavlenie/item-%d-IDi%d.html">item</a>`, i, i)
	}
	sb.WriteString("</body></html>")

	records, err := NewLinkExtractor(DefaultSite(), fetcher, 3, nil, nil).Extract(context.Background(), newTestPage(t, 1, sb.String()))
	require.NoError(t, err)
	assert.Len(t, records, 12)
	assert.LessOrEqual(t, atomic.LoadInt32(&maxInFlight), int32(3))
	// document order is preserved
	assert.Equal(t, "i0", records[0].ExternalID)
	assert.Equal(t, "i11", records[11].ExternalID)
}

func TestLinkExtractorLinkCap(t *testing.T) {
	site := DefaultSite()
	site.MaxDetailLinks = 2
	fetcher := FetcherFunc(func(ctx context.Context, url string) (io.Reader, error) {
		return strings.NewReader(detailHTML("Item", "10")), nil
	})
	listing := `<a href="/obyavlenie/a-IDa1.html"></a><a href="/obyavlenie/b-IDb1.html"></a><a href="/obyavlenie/c-IDc1.html"></a>`

	records, err := NewLinkExtractor(site, fetcher, 4, nil, nil).Extract(context.Background(), newTestPage(t, 1, listing))
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestLinkExtractorNoLinks(t *testing.T) {
	fetcher := FetcherFunc(func(ctx context.Context, url string) (io.Reader, error) {
		t.Fatalf("unexpected fetch of %s", url)
		return nil, nil
	})
	records, err := NewLinkExtractor(DefaultSite(), fetcher, 4, nil, nil).Extract(context.Background(), newTestPage(t, 1, `<a href="/uk/">home</a>`))
	assert.NoError(t, err)
	assert.Empty(t, records)
}
