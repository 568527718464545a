// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package access

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jeranaias/syscallgate/internal/commands"
	"github.com/jeranaias/syscallgate/internal/security"
	"github.com/jeranaias/syscallgate/internal/security/audit"
	"github.com/jeranaias/syscallgate/internal/telemetry"
)

// InvalidAction replaces unknown operation names in metric labels, and
// blank names in audit entries.
const InvalidAction = "_invalid"

// Dispatcher authorizes and invokes catalog operations.
type Dispatcher struct {
	registry *commands.Registry
	log      audit.Appender
	logger   *zap.Logger
	metrics  *telemetry.Metrics
	now      func() time.Time
	timeout  time.Duration

	// Per-principal token buckets; nil when rate limiting is off.
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the operational logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMetrics enables Prometheus counters.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithClock overrides time.Now for audit timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// WithHandlerTimeout bounds each handler invocation. Zero disables it.
// The deadline is delivered through the handler's context, so it only
// interrupts handlers that watch ctx; the simulated builtins do no I/O and
// check it once on entry.
func WithHandlerTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		d.timeout = timeout
	}
}

// WithRateLimit allows each principal perSecond calls with the given burst.
// perSecond <= 0 disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(d *Dispatcher) {
		if perSecond <= 0 {
			d.limiters = nil
			return
		}
		d.limit = rate.Limit(perSecond)
		d.burst = max(burst, 1)
		d.limiters = make(map[string]*rate.Limiter)
	}
}

// NewDispatcher creates a dispatcher over registry recording to log.
func NewDispatcher(registry *commands.Registry, log audit.Appender, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		log:      log,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the catalog the dispatcher serves.
func (d *Dispatcher) Registry() *commands.Registry {
	return d.registry
}

// =============================================================================
// EXECUTE
// =============================================================================

// Execute runs operation name with args on behalf of principal. Rejections
// and handler failures are returned as *DispatchError after being audited;
// any other error means the audit entry could not be written, in which
// case no result is returned.
//
// Exactly one audit entry is appended per call. The handler is invoked only
// after the operation resolved and role was authorized for it.
func (d *Dispatcher) Execute(ctx context.Context, principal string, role security.Role, name string, args ...string) (string, error) {
	start := time.Now()

	desc, err := d.registry.Lookup(name)
	if err != nil {
		return d.reject(ctx, principal, name, &DispatchError{
			Kind:      KindUnknownOperation,
			Operation: name,
			Message:   MsgInvalidCall,
		}, start)
	}

	if !role.CanInvoke(desc.AdminOnly) {
		return d.reject(ctx, principal, name, &DispatchError{
			Kind:      KindUnauthorized,
			Operation: name,
			Message:   MsgUnauthorized,
		}, start)
	}

	if !d.allow(principal) {
		return d.reject(ctx, principal, name, &DispatchError{
			Kind:      KindRateLimited,
			Operation: name,
			Message:   MsgRateLimited,
		}, start)
	}

	result, err := d.invoke(ctx, desc, args)
	if err != nil {
		return d.reject(ctx, principal, name, &DispatchError{
			Kind:      KindHandlerFailure,
			Operation: name,
			Message:   err.Error(),
			Err:       err,
		}, start)
	}

	d.metrics.ObserveDispatch(name, telemetry.DispatchSuccess, time.Since(start))
	d.logger.Debug("operation executed",
		zap.String("principal", principal),
		zap.String("operation", name),
		zap.Bool("privileged", desc.AdminOnly))
	if err := d.record(ctx, principal, name, audit.StatusSuccess, FormatArgs(args)); err != nil {
		return "", err
	}
	return result, nil
}

// invoke calls the handler, converting a panic into an error.
func (d *Dispatcher) invoke(ctx context.Context, desc commands.Descriptor, args []string) (result string, err error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler panicked",
				zap.String("operation", desc.Name),
				zap.Any("panic", r),
				zap.Stack("stack"))
			result, err = "", fmt.Errorf("internal error: %v", r)
		}
	}()
	return desc.Handler.Invoke(ctx, append([]string(nil), args...))
}

func (d *Dispatcher) reject(ctx context.Context, principal, name string, de *DispatchError, start time.Time) (string, error) {
	label, outcome := name, telemetry.DispatchHandlerFailure
	switch de.Kind {
	case KindUnknownOperation:
		label, outcome = InvalidAction, telemetry.DispatchUnknown
	case KindUnauthorized:
		outcome = telemetry.DispatchUnauthorized
	case KindRateLimited:
		outcome = telemetry.DispatchRateLimited
	}
	d.metrics.ObserveDispatch(label, outcome, time.Since(start))

	level := d.logger.Info
	if de.Kind == KindUnauthorized {
		level = d.logger.Warn
	}
	level("operation rejected",
		zap.String("principal", principal),
		zap.String("operation", name),
		zap.Stringer("reason", de.Kind),
		zap.String("message", de.Message))

	action, details := name, de.Message
	if AuditAction(name) != name {
		action, details = InvalidAction, de.Message+" "+strconv.Quote(name)
	}
	if err := d.record(ctx, principal, action, audit.StatusFailed, details); err != nil {
		return "", errors.Join(de, err)
	}
	return "", de
}

// AuditAction returns the action recorded for an operation name. Blank names
// cannot be logged as an action and are recorded as InvalidAction.
func AuditAction(name string) string {
	if strings.TrimSpace(name) == "" {
		return InvalidAction
	}
	return name
}

func (d *Dispatcher) record(ctx context.Context, principal, action string, status audit.Status, details string) error {
	_, err := d.log.Append(ctx, audit.Entry{
		Timestamp: d.now(),
		Actor:     principal,
		Action:    action,
		Status:    status,
		Details:   details,
	})
	if err != nil {
		d.metrics.ObserveAuditError()
		d.logger.Error("audit append failed",
			zap.String("operation", action),
			zap.String("principal", principal),
			zap.Error(err))
	}
	return err
}

// =============================================================================
// RATE LIMITING
// =============================================================================

// maxIdleLimiters is the limiter count above which idle ones are dropped.
const maxIdleLimiters = 1024

func (d *Dispatcher) allow(principal string) bool {
	if d.limiters == nil {
		return true
	}
	now := d.now()
	d.mu.Lock()
	lim, ok := d.limiters[principal]
	if !ok {
		if len(d.limiters) >= maxIdleLimiters {
			d.pruneLocked(now)
		}
		lim = rate.NewLimiter(d.limit, d.burst)
		d.limiters[principal] = lim
	}
	d.mu.Unlock()
	return lim.AllowN(now, 1)
}

// pruneLocked drops limiters whose bucket has refilled. A full bucket is
// indistinguishable from a new limiter, so no principal gains budget.
func (d *Dispatcher) pruneLocked(now time.Time) {
	for principal, lim := range d.limiters {
		if lim.TokensAt(now) >= float64(d.burst) {
			delete(d.limiters, principal)
		}
	}
}

// FormatArgs renders positional arguments as the tuple recorded in audit
// details, e.g. ("notes.txt", "hello").
func FormatArgs(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = strconv.Quote(a)
	}
	return "(" + strings.Join(quoted, ", ") + ")"
}
