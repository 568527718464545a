// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package simulator

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/syscallgate/internal/commands"
	"github.com/jeranaias/syscallgate/internal/config"
	"github.com/jeranaias/syscallgate/internal/security"
	"github.com/jeranaias/syscallgate/internal/security/access"
	"github.com/jeranaias/syscallgate/internal/security/audit"
	"github.com/jeranaias/syscallgate/internal/security/auth"
	"github.com/jeranaias/syscallgate/internal/storage"
	"github.com/jeranaias/syscallgate/internal/telemetry"
)

// ErrNotAuthenticated is returned by Execute without a session.
var ErrNotAuthenticated = errors.New("not authenticated")

// Options wires a Simulator from already-built parts. Store, Log and
// Registry are required; everything else has a default.
type Options struct {
	Store    *storage.Store
	Log      audit.Log
	Registry *commands.Registry

	// AuditKey is the HMAC key the log seals with, used by Verify.
	AuditKey []byte

	MaxAttempts     int
	LockoutDuration time.Duration

	RateLimitPerSec float64
	RateBurst       int
	HandlerTimeout  time.Duration

	Clock   func() time.Time
	Logger  *zap.Logger
	Metrics *telemetry.Metrics
}

// Simulator is the collaborator-facing API.
type Simulator struct {
	store      *storage.Store
	log        audit.Log
	registry   *commands.Registry
	gate       *auth.Gate
	dispatcher *access.Dispatcher
	sealer     *audit.Sealer
	now        func() time.Time
	logger     *zap.Logger
	metrics    *telemetry.Metrics
}

// New builds a Simulator from opts.
func New(opts Options) (*Simulator, error) {
	if opts.Store == nil || opts.Log == nil || opts.Registry == nil {
		return nil, errors.New("simulator: store, log and registry are required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	gate := auth.NewGate(opts.Store, opts.Log,
		auth.WithHasher(opts.Store.Hasher()),
		auth.WithMaxAttempts(opts.MaxAttempts),
		auth.WithLockoutDuration(opts.LockoutDuration),
		auth.WithClock(opts.Clock),
		auth.WithLogger(opts.Logger.Named("auth")),
		auth.WithMetrics(opts.Metrics),
	)
	dispatcher := access.NewDispatcher(opts.Registry, opts.Log,
		access.WithRateLimit(opts.RateLimitPerSec, opts.RateBurst),
		access.WithHandlerTimeout(opts.HandlerTimeout),
		access.WithClock(opts.Clock),
		access.WithLogger(opts.Logger.Named("dispatch")),
		access.WithMetrics(opts.Metrics),
	)

	return &Simulator{
		store:      opts.Store,
		log:        opts.Log,
		registry:   opts.Registry,
		gate:       gate,
		dispatcher: dispatcher,
		sealer:     audit.NewSealer(opts.AuditKey),
		now:        opts.Clock,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
	}, nil
}

// Open builds the store and audit log described by cfg and returns a
// Simulator over the builtin catalog. Metrics are collected when
// cfg.Metrics.Listen is set; serving them is the caller's job.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Simulator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.Clone()
	cfg.ExpandPaths()

	role, err := security.ParseRole(cfg.Bootstrap.Role)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	hasher := storage.DefaultHasher()

	backend, err := openBackend(cfg.Store)
	if err != nil {
		return nil, err
	}
	store := storage.NewStore(backend,
		storage.WithHasher(hasher),
		storage.WithBootstrap(storage.Bootstrap{
			Username:     cfg.Bootstrap.Username,
			Role:         role,
			PasswordHash: cfg.Bootstrap.PasswordHash,
		}))

	key, source, err := audit.LoadKey(cfg.Audit.HMACKeyFile)
	if err != nil {
		store.Close()
		return nil, err
	}
	if key == nil {
		logger.Warn("audit chain is unkeyed; set " + audit.HMACKeyEnvVar + " or run 'syscallgate audit keygen'")
	}
	auditOpts := []audit.Option{audit.WithKey(key)}
	if cfg.Audit.Redact {
		auditOpts = append(auditOpts, audit.WithRedactor(audit.DefaultRedactor()))
	}
	log, err := openAudit(cfg.Audit, auditOpts)
	if err != nil {
		store.Close()
		return nil, err
	}

	var metrics *telemetry.Metrics
	if cfg.Metrics.Listen != "" {
		metrics = telemetry.NewMetrics()
	}

	logger.Info("simulator opened",
		zap.String("store_backend", cfg.Store.Backend),
		zap.String("store_path", cfg.Store.Path),
		zap.String("audit_backend", cfg.Audit.Backend),
		zap.String("audit_path", cfg.Audit.Path),
		zap.String("audit_key_source", string(source)),
		zap.Int("lockout_max_attempts", cfg.Lockout.MaxAttempts),
		zap.Duration("lockout_duration", cfg.Lockout.Duration()))

	return New(Options{
		Store:           store,
		Log:             log,
		Registry:        commands.Default(),
		AuditKey:        key,
		MaxAttempts:     cfg.Lockout.MaxAttempts,
		LockoutDuration: cfg.Lockout.Duration(),
		RateLimitPerSec: cfg.Dispatch.RateLimitPerSec,
		RateBurst:       cfg.Dispatch.Burst,
		HandlerTimeout:  cfg.Dispatch.HandlerTimeout(),
		Logger:          logger,
		Metrics:         metrics,
	})
}

func openBackend(cfg config.StoreConfig) (storage.Backend, error) {
	switch cfg.Backend {
	case config.BackendBolt:
		return storage.OpenBolt(cfg.Path)
	case config.BackendFile:
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0700); err != nil {
			return nil, fmt.Errorf("%w: create directory: %w", storage.ErrStorage, err)
		}
		return storage.NewFileBackend(cfg.Path), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func openAudit(cfg config.AuditConfig, opts []audit.Option) (audit.Log, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		return audit.OpenSQLite(cfg.Path, opts...)
	case config.BackendFile:
		return audit.OpenFile(cfg.Path, opts...)
	default:
		return nil, fmt.Errorf("unknown audit backend %q", cfg.Backend)
	}
}

// =============================================================================
// AUTHENTICATION
// =============================================================================

// Authenticate checks credentials and returns a session. See auth.Gate.
func (s *Simulator) Authenticate(ctx context.Context, username, password string) (*auth.Session, error) {
	return s.gate.Authenticate(ctx, username, password)
}

// Signup creates a principal with role.
func (s *Simulator) Signup(ctx context.Context, username, password string, role security.Role) error {
	return s.gate.Signup(ctx, username, password, role)
}

// CreateUser provisions a principal on behalf of actor.
func (s *Simulator) CreateUser(ctx context.Context, actor, username, password string, role security.Role) error {
	return s.gate.CreateUser(ctx, actor, username, password, role)
}

// Logout ends session.
func (s *Simulator) Logout(ctx context.Context, session *auth.Session) error {
	return s.gate.Logout(ctx, session)
}

// Unlock resets the lockout state of username on behalf of actor.
func (s *Simulator) Unlock(ctx context.Context, actor, username string) error {
	return s.gate.Unlock(ctx, actor, username)
}

// LockStatus reports the lockout state of one principal.
func (s *Simulator) LockStatus(ctx context.Context, username string) (auth.LockStatus, error) {
	return s.gate.Status(ctx, username)
}

// Users reports every principal with its lockout state.
func (s *Simulator) Users(ctx context.Context) ([]auth.LockStatus, error) {
	return s.gate.StatusAll(ctx)
}

// Lockout returns the threshold and lock duration in effect.
func (s *Simulator) Lockout() (int, time.Duration) {
	return s.gate.MaxAttempts(), s.gate.LockoutDuration()
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Describe returns the full catalog in declaration order.
func (s *Simulator) Describe() []commands.Info {
	return s.registry.Describe()
}

// ListAllowed yields the operations role may invoke.
func (s *Simulator) ListAllowed(role security.Role) iter.Seq[string] {
	return s.registry.AllowedFor(role)
}

// Lookup returns the descriptor for name, for prompting.
func (s *Simulator) Lookup(name string) (commands.Descriptor, error) {
	return s.registry.Lookup(name)
}

// Execute dispatches name for the session's principal. A nil session is
// rejected and audited with no actor.
func (s *Simulator) Execute(ctx context.Context, session *auth.Session, name string, args ...string) (string, error) {
	if session == nil {
		action, details := access.AuditAction(name), "Not authenticated"
		if action != name {
			details += " " + strconv.Quote(name)
		}
		_, err := s.log.Append(ctx, audit.Entry{
			Timestamp: s.now(),
			Action:    action,
			Status:    audit.StatusFailed,
			Details:   details,
		})
		if err != nil {
			s.metrics.ObserveAuditError()
			return "", errors.Join(ErrNotAuthenticated, err)
		}
		return "", ErrNotAuthenticated
	}
	return s.dispatcher.Execute(ctx, session.Username, session.Role, name, args...)
}

// =============================================================================
// AUDIT
// =============================================================================

// History yields every audit entry in append order.
func (s *Simulator) History(ctx context.Context) iter.Seq2[audit.Entry, error] {
	return s.log.Entries(ctx)
}

// Verify re-derives the audit chain.
func (s *Simulator) Verify(ctx context.Context) (audit.Report, error) {
	return audit.Verify(ctx, s.log.Entries(ctx), s.sealer)
}

// Metrics returns the collectors, or nil when metrics are off.
func (s *Simulator) Metrics() *telemetry.Metrics {
	return s.metrics
}

// Close releases the store and the audit log.
func (s *Simulator) Close() error {
	return errors.Join(s.store.Close(), s.log.Close())
}
