// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Auth results.
const (
	AuthSuccess       = "success"
	AuthUnknownUser   = "unknown_user"
	AuthWrongPassword = "wrong_password"
	AuthLocked        = "locked"
)

// Dispatch outcomes.
const (
	DispatchSuccess        = "success"
	DispatchUnknown        = "unknown_operation"
	DispatchUnauthorized   = "unauthorized"
	DispatchHandlerFailure = "handler_failure"
	DispatchRateLimited    = "rate_limited"
)

// Metrics holds the syscallgate collectors registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	authAttempts      *prometheus.CounterVec
	lockouts          prometheus.Counter
	signups           *prometheus.CounterVec
	dispatches        *prometheus.CounterVec
	dispatchDuration  *prometheus.HistogramVec
	auditAppendErrors prometheus.Counter
}

// NewMetrics creates the collectors on a fresh registry that also carries
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		authAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "syscallgate_auth_attempts_total",
				Help: "Authentication attempts by result",
			},
			[]string{"result"},
		),
		lockouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "syscallgate_lockouts_total",
			Help: "Accounts locked after repeated authentication failures",
		}),
		signups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "syscallgate_signups_total",
				Help: "Signup attempts by status",
			},
			[]string{"status"},
		),
		dispatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "syscallgate_dispatch_total",
				Help: "Dispatched operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		dispatchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "syscallgate_dispatch_duration_seconds",
				Help:    "Handler execution time in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8), // 100us to ~1.6s
			},
			[]string{"operation"},
		),
		auditAppendErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "syscallgate_audit_append_errors_total",
			Help: "Audit entries that could not be persisted",
		}),
	}
}

// ObserveAuth records one authentication attempt.
func (m *Metrics) ObserveAuth(result string) {
	if m == nil {
		return
	}
	m.authAttempts.WithLabelValues(result).Inc()
}

// ObserveLockout records an account transitioning to locked.
func (m *Metrics) ObserveLockout() {
	if m == nil {
		return
	}
	m.lockouts.Inc()
}

// ObserveSignup records one signup attempt.
func (m *Metrics) ObserveSignup(ok bool) {
	if m == nil {
		return
	}
	status := "success"
	if !ok {
		status = "failed"
	}
	m.signups.WithLabelValues(status).Inc()
}

// ObserveDispatch records one dispatch outcome. Unknown operation names
// share one label value to bound cardinality.
func (m *Metrics) ObserveDispatch(operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if outcome == DispatchUnknown {
		operation = "unknown"
	}
	m.dispatches.WithLabelValues(operation, outcome).Inc()
	if outcome == DispatchSuccess || outcome == DispatchHandlerFailure {
		m.dispatchDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
	}
}

// ObserveAuditError records an audit append failure.
func (m *Metrics) ObserveAuditError() {
	if m == nil {
		return
	}
	m.auditAppendErrors.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
