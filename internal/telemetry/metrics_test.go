// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()

	m.ObserveAuth(AuthSuccess)
	m.ObserveAuth(AuthWrongPassword)
	m.ObserveAuth(AuthWrongPassword)
	m.ObserveLockout()
	m.ObserveSignup(true)
	m.ObserveSignup(false)
	m.ObserveDispatch("read", DispatchSuccess, time.Millisecond)
	m.ObserveDispatch("no-such-op", DispatchUnknown, 0)
	m.ObserveAuditError()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.authAttempts.WithLabelValues(AuthSuccess)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.authAttempts.WithLabelValues(AuthWrongPassword)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lockouts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.signups.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dispatches.WithLabelValues("read", DispatchSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dispatches.WithLabelValues("unknown", DispatchUnknown)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.auditAppendErrors))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveAuth(AuthSuccess)
	m.ObserveLockout()
	m.ObserveSignup(true)
	m.ObserveDispatch("read", DispatchSuccess, 0)
	m.ObserveAuditError()
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.ObserveLockout()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "syscallgate_lockouts_total 1")
}
