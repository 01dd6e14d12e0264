package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hydro_monitor"

// Metrics holds the Prometheus counters, histograms, and gauges for the service.
type Metrics struct {
	// HTTP API metrics.
	HTTPRequests        *prometheus.CounterVec   // labels: route, status
	HTTPRequestDuration *prometheus.HistogramVec // labels: route

	// Upstream hydrology API.
	AuthRefreshes *prometheus.CounterVec // labels: outcome={success,error}
	HistoryFetch  *prometheus.CounterVec // labels: outcome={success,error}

	// Station history fan-out.
	FanoutStations *prometheus.CounterVec // labels: result={queried,with_items,same_day,errored}
	FanoutDuration prometheus.Histogram

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec   // labels: outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec   // labels: result={hit,miss}
	GeocodeAPIDuration prometheus.Histogram
	GeocodeEnabled     prometheus.Gauge

	// FIRMS hotspot requests.
	FIRMSRequests *prometheus.CounterVec // labels: outcome={success,error,cached}

	// Background refresher.
	RefreshCycles   *prometheus.CounterVec // labels: outcome={success,error}
	RefresherActive prometheus.Gauge
	ReportsProduced prometheus.Counter
}

func newMetrics(help bool) *Metrics {
	h := func(s string) string {
		if help {
			return s
		}
		return ""
	}
	return &Metrics{
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      h("HTTP requests by route and status code."),
		}, []string{"route", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      h("HTTP request duration by route."),
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"route"}),
		AuthRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_refresh_total",
			Help:      h("Hydrology API token refreshes by outcome."),
		}, []string{"outcome"}),
		HistoryFetch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_fetch_total",
			Help:      h("Station history fetches by outcome."),
		}, []string{"outcome"}),
		FanoutStations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "station_fanout_stations_total",
			Help:      h("Stations processed by history fan-outs, by result."),
		}, []string{"result"}),
		FanoutDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "station_fanout_duration_seconds",
			Help:      h("Duration of a complete station history fan-out."),
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      h("Reverse geocoding API requests by outcome."),
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      h("Geocoding cache lookups by result."),
		}, []string{"result"}),
		GeocodeAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      h("Mapbox API request duration in seconds."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		GeocodeEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "geocode_enabled",
			Help:      h("1 when hotspot geocoding is enabled, 0 otherwise."),
		}),
		FIRMSRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "firms_requests_total",
			Help:      h("FIRMS hotspot lookups by outcome."),
		}, []string{"outcome"}),
		RefreshCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_cycles_total",
			Help:      h("Background report refresh cycles by outcome."),
		}, []string{"outcome"}),
		RefresherActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "refresher_running",
			Help:      h("1 when the background refresher is active, 0 when shut down."),
		}),
		ReportsProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_produced_total",
			Help:      h("Daily means reports published to Kafka."),
		}),
	}
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)

	prometheus.MustRegister(
		m.HTTPRequests,
		m.HTTPRequestDuration,
		m.AuthRefreshes,
		m.HistoryFetch,
		m.FanoutStations,
		m.FanoutDuration,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.GeocodeEnabled,
		m.FIRMSRequests,
		m.RefreshCycles,
		m.RefresherActive,
		m.ReportsProduced,
	)

	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}
