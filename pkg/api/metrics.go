package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's prometheus collectors.
type Metrics struct {
	gatherer prometheus.Gatherer

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
	rejected prometheus.Counter

	// pathCells observes the number of cells in returned routes.
	pathCells prometheus.Histogram
	// snapRings observes how many k-rings were searched to bridge a query.
	snapRings prometheus.Histogram
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "h3router_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"route", "code"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "h3router_http_request_duration_seconds",
			Help:    "HTTP request duration by route",
			Buckets: []float64{0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"route"}),
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "h3router_http_in_flight_requests",
			Help: "Requests currently being served",
		}),
		rejected: f.NewCounter(prometheus.CounterOpts{
			Name: "h3router_http_rejected_total",
			Help: "Requests rejected by the concurrency limiter",
		}),
		pathCells: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "h3router_route_path_cells",
			Help:    "Cells per returned route",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		snapRings: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "h3router_snap_rings",
			Help:    "k-ring radius needed to bridge a query to the graph",
			Buckets: []float64{0, 1, 2, 3, 5, 8},
		}),
	}
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) observe(route string, code int, elapsed time.Duration) {
	m.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.duration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
