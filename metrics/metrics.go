package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	dealsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealscout_deals_processed_total",
			Help: "Listings handled by the enrichment tick, by outcome.",
		},
		[]string{"outcome"},
	)
	priceLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealscout_price_lookups_total",
			Help: "Price discovery calls, by result.",
		},
		[]string{"result"},
	)
	marketSearches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dealscout_market_searches_total",
			Help: "Individual marketplace search requests issued.",
		},
	)
	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealscout_notifications_total",
			Help: "Push notification deliveries, by kind and result.",
		},
		[]string{"kind", "result"},
	)
	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dealscout_job_duration_seconds",
			Help:    "Duration of scheduled jobs.",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"job", "status"},
	)
)

func init() {
	prometheus.MustRegister(dealsProcessed)
	prometheus.MustRegister(priceLookups)
	prometheus.MustRegister(marketSearches)
	prometheus.MustRegister(notifications)
	prometheus.MustRegister(jobDuration)
}

// RecordDeal counts one listing outcome (persisted, skipped, needs_review, failed, ...).
func RecordDeal(outcome string) {
	dealsProcessed.WithLabelValues(outcome).Inc()
}

// RecordPriceLookup counts one price discovery result (cache_hit, found, mixed, broad, not_found, auth_error).
func RecordPriceLookup(result string) {
	priceLookups.WithLabelValues(result).Inc()
}

// RecordSearch counts one marketplace request.
func RecordSearch() {
	marketSearches.Inc()
}

// RecordNotification counts one push delivery attempt.
func RecordNotification(kind string, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	notifications.WithLabelValues(kind, result).Inc()
}

// RecordJob observes the duration of one scheduled job run.
func RecordJob(job string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	jobDuration.WithLabelValues(job, status).Observe(duration.Seconds())
}

// Handler exposes the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
