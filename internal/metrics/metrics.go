// Package metrics — Prometheus metrics for the Stasis daemon.
//
// Endpoint: GET /metrics on 127.0.0.1:9289 (configurable).
// Format: Prometheus text exposition format (OpenMetrics compatible).
// Bind: loopback only — no external exposure.
//
// Metric naming convention: stasis_<subsystem>_<name>_<unit>
//
// All metrics are registered on a dedicated prometheus.Registry (not the
// default global registry) to avoid collisions with other instrumented
// libraries in the same process.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metric descriptors for Stasis. It satisfies
// supervisor.Metrics.
type Metrics struct {
	registry *prometheus.Registry

	// ─── Engine ──────────────────────────────────────────────────────────

	// TicksProcessedTotal counts ticks handled by the engine.
	TicksProcessedTotal prometheus.Counter

	// ActionsFiredTotal counts actions executed, by kind.
	// Labels: kind (run_command, run_resume_command, notify, lock_session,
	// run_lock_screen, suspend)
	ActionsFiredTotal *prometheus.CounterVec

	// IdleCyclesResetTotal counts activity-driven idle cycle resets.
	IdleCyclesResetTotal prometheus.Counter

	// PlanReloadsTotal counts successful config reloads.
	PlanReloadsTotal prometheus.Counter

	// Paused is 1 when the engine is currently paused for any reason
	// (manual, app inhibitor, media inhibitor, lid/sleep), 0 otherwise.
	Paused prometheus.Gauge

	// ─── Notifications ───────────────────────────────────────────────────

	// NotificationsDroppedTotal counts notifications dropped by the
	// throttle bucket.
	NotificationsDroppedTotal prometheus.Counter

	// ─── Agent ───────────────────────────────────────────────────────────

	// UptimeSeconds is the number of seconds since the daemon started.
	UptimeSeconds prometheus.Gauge

	startTime time.Time
}

// New creates and registers all Stasis Prometheus metrics on a dedicated
// registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		TicksProcessedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stasis",
			Subsystem: "engine",
			Name:      "ticks_processed_total",
			Help:      "Total ticks handled by the idle-plan state machine.",
		}),

		ActionsFiredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stasis",
			Subsystem: "engine",
			Name:      "actions_fired_total",
			Help:      "Total actions executed, by kind.",
		}, []string{"kind"}),

		IdleCyclesResetTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stasis",
			Subsystem: "engine",
			Name:      "idle_cycles_reset_total",
			Help:      "Total idle-cycle resets triggered by user activity.",
		}),

		PlanReloadsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stasis",
			Subsystem: "engine",
			Name:      "plan_reloads_total",
			Help:      "Total successful config reloads.",
		}),

		Paused: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "stasis",
			Subsystem: "engine",
			Name:      "paused",
			Help:      "1 if the engine is currently paused, 0 otherwise.",
		}),

		NotificationsDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stasis",
			Subsystem: "notify",
			Name:      "dropped_total",
			Help:      "Total notifications dropped by the rate limiter.",
		}),

		UptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "stasis",
			Subsystem: "agent",
			Name:      "uptime_seconds",
			Help:      "Number of seconds since the daemon started.",
		}),
	}

	reg.MustRegister(
		m.TicksProcessedTotal,
		m.ActionsFiredTotal,
		m.IdleCyclesResetTotal,
		m.PlanReloadsTotal,
		m.Paused,
		m.NotificationsDroppedTotal,
		m.UptimeSeconds,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

// TickProcessed implements supervisor.Metrics.
func (m *Metrics) TickProcessed() { m.TicksProcessedTotal.Inc() }

// ActionFired implements supervisor.Metrics.
func (m *Metrics) ActionFired(kind string) { m.ActionsFiredTotal.WithLabelValues(kind).Inc() }

// SetPaused implements supervisor.Metrics.
func (m *Metrics) SetPaused(paused bool) {
	if paused {
		m.Paused.Set(1)
		return
	}
	m.Paused.Set(0)
}

// IdleCycleReset implements supervisor.Metrics.
func (m *Metrics) IdleCycleReset() { m.IdleCyclesResetTotal.Inc() }

// PlanReloaded implements supervisor.Metrics.
func (m *Metrics) PlanReloaded() { m.PlanReloadsTotal.Inc() }

// NotificationDropped records a notification dropped by the throttle
// bucket. It is not part of supervisor.Metrics, and internal/exec does not
// call it, so the daemon never increments this counter.
func (m *Metrics) NotificationDropped() { m.NotificationsDroppedTotal.Inc() }

// ServeMetrics starts the Prometheus HTTP server on addr. Blocks until ctx
// is cancelled or the server fails to start.
func (m *Metrics) ServeMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go m.updateUptime(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server on %s: %w", addr, err)
	}
	return nil
}

func (m *Metrics) updateUptime(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.UptimeSeconds.Set(time.Since(m.startTime).Seconds())
		case <-ctx.Done():
			return
		}
	}
}
