package observability

import (
	"errors"
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var enabled atomic.Bool

func init() {
	enabled.Store(true)
}

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms to ~80s
		},
		[]string{"method", "route", "status"},
	)

	upstreamLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of upstream calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"upstream"},
	)

	cacheOpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cache_operation_duration_seconds",
			Help:    "Duration of cache backend operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"op", "result"},
	)

	cacheResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_results_total",
			Help: "Grid cache lookups by tier and outcome.",
		},
		[]string{"tier", "outcome"},
	)

	cellFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pvgis_cell_fetches_total",
			Help: "Per-cell irradiance fetches by outcome.",
		},
		[]string{"outcome"},
	)

	fetchesInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pvgis_fetches_in_flight",
			Help: "Irradiance requests currently outstanding.",
		},
	)

	acquisitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grid_acquisitions_total",
			Help: "Grid acquisitions by source and outcome.",
		},
		[]string{"source", "outcome"},
	)

	acquisitionDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grid_acquisition_duration_seconds",
			Help:    "End-to-end grid acquisition time in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2.5, 14),
		},
		[]string{"source"},
	)

	artifactBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "grid_artifact_bytes",
			Help:    "Encoded size of persisted grid artifacts.",
			Buckets: prometheus.ExponentialBuckets(4096, 4, 10),
		},
	)

	gridEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grid_events_total",
			Help: "grid_ready events by outcome.",
		},
		[]string{"outcome"},
	)

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pvgrid_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal, httpRequestDurationSeconds, upstreamLatencySeconds,
		cacheOpDurationSeconds, cacheResults, cellFetches, fetchesInFlight,
		acquisitionsTotal, acquisitionDurationSeconds, artifactBytes, gridEvents, buildInfo,
	}
}

// Init registers the service collectors on reg (the default registerer when
// nil) and turns recording on or off. Calling it again with the same
// registry is a no-op for the registration part.
func Init(reg prometheus.Registerer, on bool) {
	enabled.Store(on)
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
		}
	}
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	if !enabled.Load() {
		return
	}
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveUpstreamLatency(upstream string, durationSeconds float64) {
	if !enabled.Load() {
		return
	}
	upstreamLatencySeconds.WithLabelValues(upstream).Observe(durationSeconds)
}

// ObserveCacheOp records one backend operation; a nil err counts as ok.
func ObserveCacheOp(op string, err error, durationSeconds float64) {
	if !enabled.Load() {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	cacheOpDurationSeconds.WithLabelValues(op, result).Observe(durationSeconds)
}

// ObserveCacheLookup records a hit or miss against one cache tier
// (memory, store, blob).
func ObserveCacheLookup(tier string, hit bool) {
	if !enabled.Load() {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	cacheResults.WithLabelValues(tier, outcome).Inc()
}

// IncCellFetch counts a cell fetch outcome: ok, malformed, retry, transport.
func IncCellFetch(outcome string) {
	if !enabled.Load() {
		return
	}
	cellFetches.WithLabelValues(outcome).Inc()
}

// FetchStarted bumps the in-flight gauge; call the returned func when done.
func FetchStarted() func() {
	if !enabled.Load() {
		return func() {}
	}
	fetchesInFlight.Inc()
	return fetchesInFlight.Dec
}

func ObserveAcquisition(source, outcome string, durationSeconds float64) {
	if !enabled.Load() {
		return
	}
	acquisitionsTotal.WithLabelValues(source, outcome).Inc()
	if outcome == "ok" {
		acquisitionDurationSeconds.WithLabelValues(source).Observe(durationSeconds)
	}
}

func ObserveArtifactBytes(n int) {
	if !enabled.Load() {
		return
	}
	artifactBytes.Observe(float64(n))
}

// IncGridEvent counts grid_ready outcomes on both the publish and consume side.
func IncGridEvent(outcome string) {
	if !enabled.Load() {
		return
	}
	gridEvents.WithLabelValues(outcome).Inc()
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
