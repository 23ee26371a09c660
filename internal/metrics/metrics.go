package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RedemptionsTotal counts redemption outcomes: ok, already, full, or the
	// failure kind (forbidden, event_not_found, ticket_not_found, unavailable).
	RedemptionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkin_redemptions_total",
			Help: "Total number of ticket redemption attempts by outcome",
		},
		[]string{"outcome"},
	)

	// RedemptionDuration tracks the latency of the atomic redeem call.
	RedemptionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "checkin_redemption_duration_seconds",
			Help:    "Duration of ticket redemptions in seconds",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"outcome"},
	)

	ResetsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkin_resets_total",
			Help: "Total number of attendance resets by outcome",
		},
		[]string{"outcome"},
	)

	TicketsIssuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "checkin_tickets_issued_total",
			Help: "Total number of guest tickets created",
		},
	)

	// PublishFailuresTotal counts attendance events that could not be fanned out.
	PublishFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkin_publish_failures_total",
			Help: "Total number of attendance events that failed to publish",
		},
		[]string{"type"},
	)

	StatsCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkin_stats_cache_total",
			Help: "Stats cache lookups by result",
		},
		[]string{"result"},
	)

	LiveSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "checkin_live_subscribers",
			Help: "Number of connected live attendance streams",
		},
	)
)

// Recorder is the engine-facing view of the metrics above.
type Recorder struct{}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (Recorder) ObserveRedemption(outcome string, d time.Duration) {
	RedemptionsTotal.WithLabelValues(outcome).Inc()
	RedemptionDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (Recorder) ObserveReset(outcome string) {
	ResetsTotal.WithLabelValues(outcome).Inc()
}

func (Recorder) ObserveTicketIssued() {
	TicketsIssuedTotal.Inc()
}

func (Recorder) ObservePublishFailure(eventType string) {
	PublishFailuresTotal.WithLabelValues(eventType).Inc()
}

func (Recorder) ObserveStatsCache(hit bool) {
	if hit {
		StatsCacheTotal.WithLabelValues("hit").Inc()
		return
	}
	StatsCacheTotal.WithLabelValues("miss").Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
