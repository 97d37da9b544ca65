// Package metrics exposes run counters on a Prometheus endpoint.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"chatprobe/internal/capture"
	"chatprobe/internal/chat"
)

const namespace = "chatprobe"

// Metrics holds the run's collectors on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	exchanges   *prometheus.CounterVec
	duration    prometheus.Histogram
	frames      *prometheus.CounterVec
	connections prometheus.Counter

	log    *zap.Logger
	server *http.Server
	done   chan struct{}
}

// New registers the collectors.
func New(log *zap.Logger) *Metrics {
	if log == nil {
		log = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		exchanges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchanges_total",
			Help:      "Finished question/answer exchanges by outcome.",
		}, []string{"outcome"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "exchange_duration_seconds",
			Help:      "Time from sending a question to accepting its answer.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4m
		}),
		frames: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "frames_total",
			Help:      "WebSocket frames captured.",
		}, []string{"direction", "encoding"}),
		connections: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "connections_total",
			Help:      "WebSocket connections opened.",
		}),
		log: log,
	}
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// ExchangeFinished counts an exchange. Durations are only observed for
// answered exchanges.
func (m *Metrics) ExchangeFinished(_ string, ex *chat.Exchange, err error) {
	m.exchanges.WithLabelValues(chat.Outcome(err)).Inc()
	if err == nil && ex != nil {
		m.duration.Observe(ex.Duration().Seconds())
	}
}

// ConnectionOpened counts a WebSocket connection.
func (m *Metrics) ConnectionOpened() { m.connections.Inc() }

// FrameRecorded counts a captured frame.
func (m *Metrics) FrameRecorded(dir capture.Direction, enc capture.Encoding) {
	m.frames.WithLabelValues(string(dir), string(enc)).Inc()
}

// Start serves /metrics on addr and returns the bound address.
func (m *Metrics) Start(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("metrics listen: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{}))
	m.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		if err := m.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.log.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	m.log.Info("serving metrics", zap.String("addr", ln.Addr().String()))
	return ln.Addr().String(), nil
}

// Shutdown stops the endpoint if it was started.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	err := m.server.Shutdown(ctx)
	<-m.done
	return err
}
