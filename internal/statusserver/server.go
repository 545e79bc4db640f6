// Package statusserver runs the bridge's read-only status/metrics HTTP
// surface: a liveness check, a run-status snapshot, and Prometheus metrics.
package statusserver

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics are the counters/gauges the Catalog Sync driver updates as it runs.
type Metrics struct {
	AssetsConverted *prometheus.CounterVec
	AssetsFailed    *prometheus.CounterVec
	AssetsDeleted   prometheus.Counter
	RunDuration     prometheus.Histogram
	LastRunAt       prometheus.Gauge
}

// NewMetrics registers and returns a fresh Metrics set against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AssetsConverted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aiod_bridge_assets_converted_total",
			Help: "Assets successfully converted and uploaded, by phase.",
		}, []string{"phase"}),
		AssetsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aiod_bridge_assets_failed_total",
			Help: "Assets that failed conversion or upload, by phase.",
		}, []string{"phase"}),
		AssetsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aiod_bridge_assets_deleted_total",
			Help: "Assets removed from the destination after disappearing from the source.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "aiod_bridge_run_duration_seconds",
			Help:    "Wall-clock duration of a complete Catalog Sync pass.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		LastRunAt: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aiod_bridge_last_run_timestamp_seconds",
			Help: "Unix timestamp of the last completed Catalog Sync pass.",
		}),
	}
	reg.MustRegister(m.AssetsConverted, m.AssetsFailed, m.AssetsDeleted, m.RunDuration, m.LastRunAt)
	return m
}

// Status is the snapshot served at /status.
type Status struct {
	mu        sync.RWMutex
	Running   bool      `json:"running"`
	LastRunAt time.Time `json:"last_run_at"`
	LastError string    `json:"last_error,omitempty"`
}

// SetRunning records the start/end of a pass.
func (s *Status) SetRunning(running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Running = running
}

// RecordResult records the outcome of a completed pass.
func (s *Status) RecordResult(err error, finishedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Running = false
	s.LastRunAt = finishedAt
	if err != nil {
		s.LastError = err.Error()
	} else {
		s.LastError = ""
	}
}

func (s *Status) snapshot() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{Running: s.Running, LastRunAt: s.LastRunAt, LastError: s.LastError}
}

// Server is the echo-based status/metrics HTTP surface.
type Server struct {
	echo   *echo.Echo
	status *Status
	addr   string
}

// New builds a Server bound to addr, exposing /healthz, /status and
// /metrics. status is shared with the caller so the run command can update
// it as runs start and finish.
func New(addr string, status *Status, registry *prometheus.Registry) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/status", func(c echo.Context) error {
		return c.JSON(http.StatusOK, status.snapshot())
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	return &Server{echo: e, status: status, addr: addr}
}

// Start runs the server until the process is asked to stop; it never
// returns until Shutdown is called or the listener fails.
func (s *Server) Start() error {
	if err := s.echo.Start(s.addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server, waiting up to ctx's deadline for
// in-flight requests to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
