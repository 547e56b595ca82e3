package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the planner
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// Candidates counts evaluated candidate facilities by outcome
	// (feasible, infeasible, failed).
	Candidates = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "planner_candidates_total", Help: "Candidate facilities evaluated, by outcome."},
		[]string{"outcome"},
	)
	// SolveDuration records single flow-problem solve times by solver
	SolveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "planner_solve_duration_seconds", Help: "Flow problem solve duration in seconds.", Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1}},
		[]string{"solver"},
	)
	// SearchDuration records whole searches by result (improved, baseline, none, error)
	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "planner_search_duration_seconds", Help: "Facility search duration in seconds.", Buckets: prometheus.ExponentialBuckets(0.001, 4, 10)},
		[]string{"result"},
	)
	// PlansInFlight is the number of searches currently running
	PlansInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "planner_plans_in_flight", Help: "Plans currently being searched."},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors to the planner registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests, HTTPDuration)
		Registry.MustRegister(Candidates, SolveDuration, SearchDuration, PlansInFlight)
		Registry.MustRegister(WebhookDeliveries, WebhookLatency)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
