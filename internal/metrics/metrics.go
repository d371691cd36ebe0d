package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stressless_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stressless_http_request_duration_seconds",
			Help:    "Histogram of response durations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	// SchedulerCycles counts poll cycles by result.
	SchedulerCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stressless_scheduler_cycles_total",
			Help: "Number of scheduler poll cycles",
		},
		[]string{"result"},
	)

	// Dispatches counts individual schedule record dispatches by result.
	Dispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stressless_dispatches_total",
			Help: "Number of schedule record dispatch attempts",
		},
		[]string{"result"},
	)

	// Escalations counts leader escalations actually created.
	Escalations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stressless_escalations_total",
			Help: "Number of leader escalations created",
		},
	)
)

func Init() {
	prometheus.MustRegister(RequestCount, RequestDuration, SchedulerCycles, Dispatches, Escalations)
}
