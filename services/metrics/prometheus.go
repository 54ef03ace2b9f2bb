package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus collectors for crawl runs.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal           *prometheus.CounterVec
	runDuration         *prometheus.HistogramVec
	pagesFetchedTotal   *prometheus.CounterVec
	fetchFailuresTotal  *prometheus.CounterVec
	adsExtractedTotal   *prometheus.CounterVec
	validAdsTotal       *prometheus.CounterVec
	detailFailuresTotal *prometheus.CounterVec
	notificationsTotal  *prometheus.CounterVec
	persistFailures     *prometheus.CounterVec
	lastAveragePrice    *prometheus.GaugeVec
}

// New creates a Metrics instance on its own registry
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adwatcher_runs_total",
				Help: "Total number of crawl runs by outcome",
			},
			[]string{"site", "outcome"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "adwatcher_run_duration_seconds",
				Help:    "Duration of crawl runs in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"site"},
		),
		pagesFetchedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adwatcher_pages_fetched_total",
				Help: "Total number of listing pages fetched",
			},
			[]string{"site"},
		),
		fetchFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adwatcher_fetch_failures_total",
				Help: "Total number of listing page fetch or parse failures",
			},
			[]string{"site", "error_type"},
		),
		adsExtractedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adwatcher_ads_extracted_total",
				Help: "Total number of raw ad records by winning extraction strategy",
			},
			[]string{"site", "strategy"},
		),
		validAdsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adwatcher_valid_ads_total",
				Help: "Total number of valid ads folded into run statistics",
			},
			[]string{"site"},
		),
		detailFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adwatcher_detail_fetch_failures_total",
				Help: "Total number of dropped ad detail page fetches",
			},
			[]string{"site"},
		),
		notificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adwatcher_notifications_total",
				Help: "Total number of new-ad notifications published",
			},
			[]string{"site"},
		),
		persistFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adwatcher_summary_persist_failures_total",
				Help: "Total number of run summaries that could not be persisted",
			},
			[]string{"site"},
		),
		lastAveragePrice: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "adwatcher_last_average_price",
				Help: "Average price of the last persisted run per listing url",
			},
			[]string{"url"},
		),
	}
}

// Handler exposes the registry for scraping
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RunFinished records the outcome and duration of a run
func (m *Metrics) RunFinished(site, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(site, outcome).Inc()
	m.runDuration.WithLabelValues(site).Observe(duration.Seconds())
}

// PageFetched counts a fetched listing page
func (m *Metrics) PageFetched(site string) {
	if m == nil {
		return
	}
	m.pagesFetchedTotal.WithLabelValues(site).Inc()
}

// FetchFailed counts a listing page that could not be fetched or parsed
func (m *Metrics) FetchFailed(site, errorType string) {
	if m == nil {
		return
	}
	m.fetchFailuresTotal.WithLabelValues(site, errorType).Inc()
}

// AdsExtracted counts raw records produced by strategy
func (m *Metrics) AdsExtracted(site, strategy string, count int) {
	if m == nil {
		return
	}
	m.adsExtractedTotal.WithLabelValues(site, strategy).Add(float64(count))
}

// ValidAd counts an ad folded into run statistics
func (m *Metrics) ValidAd(site string) {
	if m == nil {
		return
	}
	m.validAdsTotal.WithLabelValues(site).Inc()
}

// DetailFetchFailed counts a dropped detail page
func (m *Metrics) DetailFetchFailed(site string) {
	if m == nil {
		return
	}
	m.detailFailuresTotal.WithLabelValues(site).Inc()
}

// Notified counts a published new-ad notification
func (m *Metrics) Notified(site string) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(site).Inc()
}

// PersistFailed counts a summary that could not be written
func (m *Metrics) PersistFailed(site string) {
	if m == nil {
		return
	}
	m.persistFailures.WithLabelValues(site).Inc()
}

// SummaryPersisted records the average price of a written summary
func (m *Metrics) SummaryPersisted(url string, averagePrice int64) {
	if m == nil {
		return
	}
	m.lastAveragePrice.WithLabelValues(url).Set(float64(averagePrice))
}
