// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for
// syscallgate.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - StoreConfig: Credential store backend and location
//   - AuditConfig: Audit log backend, location and HMAC key file
//   - LockoutConfig: AC-7 failure threshold and lock duration
//   - BootstrapConfig: First-run administrator
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (SYSCALLGATE_*)
//   - The file named by SYSCALLGATE_CONFIG
//   - ~/.syscallgate/config.toml
//   - ~/.syscallgate/config.json
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	lock := cfg.Lockout.Duration()
package config
