package metrics

import (
	"errors"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics tracks short-lived requests such as the canvas page.
// Websocket sessions are accounted for by WebSocketMetrics instead.
type HTTPMetrics struct {
	RequestDuration *prometheus.HistogramVec
	RequestsTotal   *prometheus.CounterVec
	InFlightGauge   prometheus.Gauge

	sessionRoutes map[string]struct{}
}

// NewHTTPMetrics registers the HTTP metrics. sessionRoutes lists the routes
// whose handlers hold the connection for a whole websocket session; the
// middleware leaves them alone.
func NewHTTPMetrics(reg prometheus.Registerer, sessionRoutes ...string) *HTTPMetrics {
	m := &HTTPMetrics{
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of non-websocket HTTP requests in seconds.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"method", "route", "status_code"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of non-websocket HTTP requests.",
		}, []string{"method", "route", "status_code"}),
		InFlightGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of non-websocket HTTP requests currently being served.",
		}),
		sessionRoutes: make(map[string]struct{}, len(sessionRoutes)),
	}
	for _, r := range sessionRoutes {
		m.sessionRoutes[r] = struct{}{}
	}

	reg.MustRegister(m.RequestDuration, m.RequestsTotal, m.InFlightGauge)
	return m
}

func (m *HTTPMetrics) skip(route string) bool {
	if route == "/metrics" || strings.HasPrefix(route, "/health/") {
		return true
	}
	_, ok := m.sessionRoutes[route]
	return ok
}

// Middleware records duration, count and in-flight requests per route.
// Metrics scrapes, health probes and session routes pass through untouched.
func (m *HTTPMetrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := c.Path()
			if m.skip(route) {
				return next(c)
			}

			m.InFlightGauge.Inc()
			defer m.InFlightGauge.Dec()

			var err error
			timer := prometheus.NewTimer(prometheus.ObserverFunc(func(v float64) {
				status := strconv.Itoa(statusOf(c, err))
				m.RequestDuration.WithLabelValues(c.Request().Method, route, status).Observe(v)
				m.RequestsTotal.WithLabelValues(c.Request().Method, route, status).Inc()
			}))
			defer timer.ObserveDuration()

			err = next(c)
			return err
		}
	}
}

// statusOf reports the status the client will see. An echo.HTTPError returned
// up the chain has not been written yet.
func statusOf(c echo.Context, err error) int {
	var httpErr *echo.HTTPError
	if err != nil && !c.Response().Committed && errors.As(err, &httpErr) {
		return httpErr.Code
	}
	return c.Response().Status
}
