package telemetry

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registry = prometheus.NewRegistry()

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cyberlab",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status class.",
		},
		[]string{"route", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cyberlab",
			Name:      "http_request_duration_seconds",
			Help:      "Latency of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 13),
		},
		[]string{"route"},
	)

	// ---- simulation ----
	ActiveLobbies = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cyberlab",
		Name:      "active_lobbies",
		Help:      "Lobbies currently held by the hub.",
	})

	ActiveSockets = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cyberlab",
		Name:      "active_sockets",
		Help:      "Open simulation WebSocket connections.",
	})

	MessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cyberlab",
			Name:      "messages_total",
			Help:      "Simulation messages by direction (in = from client) and type.",
		},
		[]string{"direction", "type"},
	)

	RejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cyberlab",
			Name:      "rejected_messages_total",
			Help:      "Client messages dropped before reaching a lobby.",
		},
		[]string{"reason"},
	)

	DroppedClients = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cyberlab",
		Name:      "slow_clients_dropped_total",
		Help:      "Clients disconnected because their outbox was full.",
	})

	startTime = time.Now()
	uptime    = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "cyberlab",
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)
)

func init() {
	Registry.MustRegister(RequestsTotal, RequestDuration, ActiveLobbies, ActiveSockets,
		MessagesTotal, RejectedTotal, DroppedClients, uptime)
}

func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack passes through so WebSocket upgrades work behind Instrument.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("telemetry: response writer cannot hijack")
	}
	return hj.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Instrument records request count and latency under route.
func Instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: 200}
		start := time.Now()

		next.ServeHTTP(sw, r)

		class := strconv.Itoa(sw.status/100) + "xx"
		RequestsTotal.WithLabelValues(route, class).Inc()
		RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
