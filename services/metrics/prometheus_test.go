package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsCounters(t *testing.T) {
	m := New()

	m.PageFetched("www.olx.ua")
	m.PageFetched("www.olx.ua")
	m.AdsExtracted("www.olx.ua", "cards", 3)
	m.ValidAd("www.olx.ua")
	m.RunFinished("www.olx.ua", "ok", 2*time.Second)
	m.SummaryPersisted("https://www.olx.ua/list/", 150)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.pagesFetchedTotal.WithLabelValues("www.olx.ua")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.adsExtractedTotal.WithLabelValues("www.olx.ua", "cards")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runsTotal.WithLabelValues("www.olx.ua", "ok")))
	assert.Equal(t, 150.0, testutil.ToFloat64(m.lastAveragePrice.WithLabelValues("https://www.olx.ua/list/")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.PageFetched("x")
		m.FetchFailed("x", "network")
		m.PersistFailed("x")
		m.RunFinished("x", "failed", time.Second)
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.Notified("www.olx.ua")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), `adwatcher_notifications_total{site="www.olx.ua"} 1`)
}
