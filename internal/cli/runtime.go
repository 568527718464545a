// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// runtime.go - Config, logger, simulator and metrics setup shared by the
// commands that touch the credential store or the audit log.
package cli

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/jeranaias/syscallgate/internal/config"
	"github.com/jeranaias/syscallgate/internal/logging"
	"github.com/jeranaias/syscallgate/internal/simulator"
)

// Runtime holds what a command needs to drive the simulator.
type Runtime struct {
	Config *config.Config
	Logger *zap.Logger
	Sim    *simulator.Simulator

	stopMetrics context.CancelFunc
	metricsDone sync.WaitGroup
}

// loadConfig honours --config, then SYSCALLGATE_CONFIG and the default
// locations. --metrics overrides the configured listen address.
func loadConfig(args Args) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if args.ConfigPath != "" {
		cfg, err = config.LoadFromPath(args.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if args.MetricsAddr != "" {
		cfg.Metrics.Listen = args.MetricsAddr
	}
	config.SetGlobal(cfg)
	return cfg, nil
}

// newLogger builds the operational logger from cfg.Log. --verbose mirrors
// it to stderr.
func newLogger(cfg *config.Config, args Args) (*zap.Logger, error) {
	return logging.New(logging.Config{
		Path:       cfg.Log.Path,
		Level:      cfg.Log.Level,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
		Console:    args.Verbose,
	})
}

// OpenRuntime loads configuration, opens the simulator and, when a listen
// address is configured, serves metrics until Close.
func OpenRuntime(ctx context.Context, args Args) (*Runtime, error) {
	cfg, err := loadConfig(args)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg, args)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}

	sim, err := simulator.Open(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	rt := &Runtime{Config: cfg, Logger: logger, Sim: sim}
	if m := sim.Metrics(); m != nil {
		metricsCtx, cancel := context.WithCancel(context.Background())
		rt.stopMetrics = cancel
		rt.metricsDone.Add(1)
		go func() {
			defer rt.metricsDone.Done()
			if err := m.Serve(metricsCtx, cfg.Metrics.Listen); err != nil {
				logger.Error("metrics endpoint failed", zap.String("listen", cfg.Metrics.Listen), zap.Error(err))
				fmt.Fprintf(os.Stderr, "%s metrics endpoint: %v\n", WarningStyle.Render("[WARN]"), err)
			}
		}()
		logger.Info("metrics endpoint started", zap.String("listen", cfg.Metrics.Listen))
	}
	return rt, nil
}

// Close stops metrics and releases the store and audit log.
func (r *Runtime) Close() error {
	if r.stopMetrics != nil {
		r.stopMetrics()
		r.metricsDone.Wait()
	}
	err := r.Sim.Close()
	_ = r.Logger.Sync()
	return err
}
