// Package metrics exposes Prometheus collectors for the ingestion pipeline.
package metrics

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	sourcesProcessedTotal    *prometheus.CounterVec
	articlesIngestedTotal    *prometheus.CounterVec
	feedFetchDurationSeconds *prometheus.HistogramVec
	summarizeFallbackTotal   *prometheus.CounterVec
	cacheOpsTotal            *prometheus.CounterVec
	batchSpeedupRatio        prometheus.Gauge
	memoryTierGauge          prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		sourcesProcessedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_sources_processed_total",
				Help: "Total number of sources processed, labeled by outcome status.",
			},
			[]string{"status"},
		)

		articlesIngestedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_articles_total",
				Help: "Total number of articles handled at the persistence boundary, labeled by site and disposition.",
			},
			[]string{"site", "disposition"},
		)

		feedFetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingest_feed_fetch_duration_seconds",
				Help:    "Histogram of feed fetch latencies, labeled by site.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
			},
			[]string{"site"},
		)

		summarizeFallbackTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_summarize_fallback_total",
				Help: "Total summarization fallbacks, labeled by reason.",
			},
			[]string{"reason"},
		)

		cacheOpsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_cache_ops_total",
				Help: "Total fetch cache lookups, labeled by result.",
			},
			[]string{"result"},
		)

		batchSpeedupRatio = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ingest_batch_speedup_ratio",
				Help: "Estimated parallel speedup of the most recent batch vs. a sequential baseline.",
			},
		)

		memoryTierGauge = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ingest_memory_tier",
				Help: "Current memory guard tier (0=ok 1=warning 2=danger 3=critical).",
			},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveSource increments the per-source outcome counter.
func ObserveSource(status string) {
	if sourcesProcessedTotal == nil {
		return
	}
	sourcesProcessedTotal.WithLabelValues(status).Inc()
}

// ObserveArticle records an article hitting the persistence boundary.
// Disposition is "inserted" or "existing".
func ObserveArticle(site, disposition string) {
	if articlesIngestedTotal == nil {
		return
	}
	articlesIngestedTotal.WithLabelValues(SanitizeSite(site), disposition).Inc()
}

// ObserveFeedFetch records the duration of one feed fetch.
func ObserveFeedFetch(site string, duration time.Duration) {
	if feedFetchDurationSeconds == nil {
		return
	}
	feedFetchDurationSeconds.WithLabelValues(SanitizeSite(site)).Observe(duration.Seconds())
}

// ObserveSummarizeFallback counts a fallback summary by reason
// ("timeout", "error", "empty", "disabled").
func ObserveSummarizeFallback(reason string) {
	if summarizeFallbackTotal == nil {
		return
	}
	summarizeFallbackTotal.WithLabelValues(reason).Inc()
}

// ObserveCacheOp counts a cache lookup result ("hit", "miss", "expired").
func ObserveCacheOp(result string) {
	if cacheOpsTotal == nil {
		return
	}
	cacheOpsTotal.WithLabelValues(result).Inc()
}

// SetBatchSpeedup records the estimated parallel speedup of the last batch.
func SetBatchSpeedup(ratio float64) {
	if batchSpeedupRatio == nil {
		return
	}
	batchSpeedupRatio.Set(ratio)
}

// SetMemoryTier records the current memory guard tier.
func SetMemoryTier(tier int) {
	if memoryTierGauge == nil {
		return
	}
	memoryTierGauge.Set(float64(tier))
}
