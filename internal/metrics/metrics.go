// Package metrics exposes Prometheus collectors for the news crawler.
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
	fetchAttemptsTotal         *prometheus.CounterVec
	listingPagesTotal          *prometheus.CounterVec
	articlesTotal              *prometheus.CounterVec
	siteRunsTotal              *prometheus.CounterVec
	siteRecords                *prometheus.GaugeVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	resolverAttemptsTotal      *prometheus.CounterVec
	fetchAttemptDurationSecond *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newscrawler_fetch_attempts_total",
				Help: "Total number of HTTP fetch attempts, labeled by host and outcome.",
			},
			[]string{"host", "outcome"},
		)

		fetchAttemptDurationSecond = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "newscrawler_fetch_attempt_duration_seconds",
				Help:    "Histogram of single fetch attempt latencies, labeled by host.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 90},
			},
			[]string{"host"},
		)

		listingPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newscrawler_listing_pages_total",
				Help: "Total number of listing pages walked, labeled by site and result.",
			},
			[]string{"site", "result"},
		)

		articlesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newscrawler_articles_total",
				Help: "Total number of article pages processed, labeled by site and result.",
			},
			[]string{"site", "result"},
		)

		siteRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newscrawler_site_runs_total",
				Help: "Total number of site runs, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		siteRecords = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "newscrawler_site_records",
				Help: "Number of records collected for a site in the latest run.",
			},
			[]string{"site"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "newscrawler_rate_limit_delay_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		resolverAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newscrawler_resolver_attempts_total",
				Help: "Browser sessions started to resolve a starting id, labeled by result.",
			},
			[]string{"result"},
		)
	})
}

// SanitizeHost extracts a lowercase hostname from a URL.
// It returns "unknown" if the URL is invalid.
func SanitizeHost(rawURL string) string {
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

// ObserveFetchAttempt records one HTTP attempt and its latency.
func ObserveFetchAttempt(rawURL, outcome string, duration time.Duration) {
	Init()
	host := SanitizeHost(rawURL)
	fetchAttemptsTotal.WithLabelValues(host, outcome).Inc()
	fetchAttemptDurationSecond.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveListing counts a listing page by result (ok, skipped, stop, repeated).
func ObserveListing(site, result string) {
	Init()
	listingPagesTotal.WithLabelValues(site, result).Inc()
}

// ObserveArticle counts an article page by result (ok, fetch_failed, extract_failed, trimmed).
func ObserveArticle(site, result string) {
	Init()
	articlesTotal.WithLabelValues(site, result).Inc()
}

// ObserveSiteRun records the outcome of one site's crawl.
func ObserveSiteRun(site, status string, records int) {
	Init()
	siteRunsTotal.WithLabelValues(site, status).Inc()
	siteRecords.WithLabelValues(site).Set(float64(records))
}

// ObserveResolverAttempt counts a browser session of the listing resolver.
func ObserveResolverAttempt(result string) {
	Init()
	resolverAttemptsTotal.WithLabelValues(result).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
