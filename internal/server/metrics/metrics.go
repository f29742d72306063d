// Package metrics exposes gatekeeper decisions and state to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pgElephant/ramd/internal/logging"
	"github.com/pgElephant/ramd/internal/server/models"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// StatusSource is polled at scrape time for the gauges.
type StatusSource interface {
	GetStatus() models.Status
}

// StatusFunc adapts a function to StatusSource.
type StatusFunc func() models.Status

func (f StatusFunc) GetStatus() models.Status { return f() }

// Metrics owns a private registry so tests and multiple daemons in one
// process never collide on the global one.
type Metrics struct {
	registry     *prometheus.Registry
	handler      http.Handler
	decisions    *prometheus.CounterVec
	auditDropped prometheus.Counter
	archives     *prometheus.CounterVec
}

func New(src StatusSource) *Metrics {
	registry := prometheus.NewRegistry()

	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ramd_gatekeeper_decisions_total",
		Help: "Gatekeeper decisions by action, result and reason.",
	}, []string{"action", "result", "reason"})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ramd_audit_dropped_total",
		Help: "Audit entries dropped before reaching a durable sink.",
	})
	archives := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ramd_audit_archive_uploads_total",
		Help: "Audit snapshot uploads by result.",
	}, []string{"result"})

	gauge := func(name, help string, value func(models.Status) int) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, func() float64 {
			return float64(value(src.GetStatus()))
		})
	}

	registry.MustRegister(
		decisions,
		dropped,
		archives,
		gauge("ramd_gatekeeper_users", "Registered users.", func(s models.Status) int { return s.UserCount }),
		gauge("ramd_gatekeeper_blocked_ips", "Client IPs currently blocked by the rate limiter.", func(s models.Status) int { return s.BlockedIPCount }),
		gauge("ramd_gatekeeper_tracked_ips", "Client IPs tracked by the rate limiter.", func(s models.Status) int { return s.TrackedIPCount }),
		gauge("ramd_gatekeeper_active_connections", "Open control-plane connections.", func(s models.Status) int { return s.ActiveConnections }),
		gauge("ramd_audit_trail_entries", "Entries retained in the in-memory audit trail.", func(s models.Status) int { return s.AuditEntries }),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		registry:     registry,
		handler:      promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		decisions:    decisions,
		auditDropped: dropped,
		archives:     archives,
	}
}

// ObserveDecision implements security.DecisionObserver.
func (m *Metrics) ObserveDecision(action string, allowed bool, reason string) {
	result := "deny"
	if allowed {
		result = "allow"
	}
	m.decisions.WithLabelValues(action, result, reason).Inc()
}

// AuditDropped counts one entry lost on a full forwarder queue.
func (m *Metrics) AuditDropped() {
	m.auditDropped.Inc()
}

// ObserveArchive counts one archive upload attempt.
func (m *Metrics) ObserveArchive(err error) {
	m.archives.WithLabelValues(strconv.FormatBool(err == nil)).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return m.handler
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger logging.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.handler)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "metrics server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}
