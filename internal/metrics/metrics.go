// Package metrics exposes Prometheus instrumentation for the poll cycle,
// ingestion, occupancy and the HTTP/WebSocket surface.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"parkwatch/internal/domain"
)

var (
	PollDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "parkwatch_poll_duration_seconds",
			Help:    "Duration of a fetch, batch and classify cycle",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	PollFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parkwatch_poll_failures_total",
			Help: "Poll cycles whose fetch failed and kept the previous result",
		},
	)

	Snapshots = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "parkwatch_snapshots",
			Help: "Number of snapshots produced by the last successful cycle",
		},
	)

	PositionsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parkwatch_positions_ingested_total",
			Help: "Positions received, by source and outcome",
		},
		[]string{"source", "outcome"}, // outcome: "accepted", "skipped"
	)

	ZoneCount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "parkwatch_zone_devices",
			Help: "Devices inside each zone in the newest snapshot",
		},
		[]string{"zone"},
	)

	ZoneFull = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "parkwatch_zone_full",
			Help: "1 when the zone is at or above its threshold",
		},
		[]string{"zone"},
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parkwatch_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "parkwatch_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"method", "route"},
	)

	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parkwatch_rate_limit_hits_total",
			Help: "Requests rejected by the per-IP rate limiter",
		},
	)

	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "parkwatch_websocket_connections",
			Help: "Open WebSocket connections",
		},
	)

	WSMessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parkwatch_websocket_messages_dropped_total",
			Help: "Frames dropped because a client send buffer was full",
		},
	)

	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parkwatch_report_cache_requests_total",
			Help: "Hourly report cache lookups",
		},
		[]string{"result"}, // "hit", "miss", "error"
	)
)

// RecordPoll records the outcome of one poll cycle.
func RecordPoll(duration time.Duration, snapshots int, err error) {
	PollDuration.Observe(duration.Seconds())
	if err != nil {
		PollFailures.Inc()
		return
	}
	Snapshots.Set(float64(snapshots))
}

// RecordOccupancy publishes per-zone gauges.
func RecordOccupancy(occ []domain.Occupancy) {
	for _, o := range occ {
		ZoneCount.WithLabelValues(o.Zone).Set(float64(o.Count))
		full := 0.0
		if o.Status == domain.StatusFull {
			full = 1
		}
		ZoneFull.WithLabelValues(o.Zone).Set(full)
	}
}

func RecordIngest(source string, accepted, skipped int) {
	PositionsIngested.WithLabelValues(source, "accepted").Add(float64(accepted))
	PositionsIngested.WithLabelValues(source, "skipped").Add(float64(skipped))
}

func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
