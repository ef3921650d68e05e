package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	// gateway HTTP metrics
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wsgate_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"route", "method", "code"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wsgate_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	ActiveRequests = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wsgate_active_requests",
		Help: "Current in-flight requests",
	})

	// proxy metrics
	ProxyRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wsgate_proxy_requests_total",
		Help: "Requests proxied to workspace machines",
	}, []string{"outcome"})

	ProxyBytesStreamed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wsgate_proxy_bytes_streamed_total",
		Help: "Response bytes streamed back to clients",
	})

	ProxyStreamDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "wsgate_proxy_stream_duration_seconds",
		Help:    "Upstream response stream duration",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 30, 60, 300, 1800},
	})

	// lifecycle metrics
	MachineCreatesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wsgate_machine_creates_total",
		Help: "Machine create attempts",
	}, []string{"status"})

	MachineStartsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wsgate_machine_starts_total",
		Help: "Machine start attempts",
	}, []string{"status"})

	MachineSuspendsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wsgate_machine_suspends_total",
		Help: "Machine suspends by trigger",
	}, []string{"trigger"})

	MachineRecoveriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wsgate_machine_recoveries_total",
		Help: "Start-and-retry recoveries after a transport failure",
	})

	MachineAdoptionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wsgate_machine_adoptions_total",
		Help: "Orphaned machines adopted from the provider list",
	})

	EnsureDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "wsgate_ensure_duration_seconds",
		Help:    "EnsureMachine latency including provider calls",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 20},
	})

	ActorCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wsgate_actors",
		Help: "Live workspace actors",
	})

	StoreErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wsgate_store_errors_total",
		Help: "State store failures by operation",
	}, []string{"op"})
)

func RegisterAll(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, ActiveRequests,
		ProxyRequestsTotal, ProxyBytesStreamed, ProxyStreamDuration,
		MachineCreatesTotal, MachineStartsTotal, MachineSuspendsTotal,
		MachineRecoveriesTotal, MachineAdoptionsTotal, EnsureDuration,
		ActorCount, StoreErrorsTotal,
	)
}
