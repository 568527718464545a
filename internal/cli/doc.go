// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the syscallgate command line: argument parsing,
// the interactive menu and the administrative subcommands.
//
// # Commands
//
//   - menu (default): interactive login/signup and operation menu
//   - exec: authenticate and dispatch a single operation
//   - users: create, list, hash-password
//   - lockout: status, unlock (AC-7)
//   - ops: show the operation catalog
//   - audit: show, verify, tail, keygen (AU-6, AU-9)
//   - config: show, init, path, get, set
//   - version, help
//
// Every command accepts --json for machine-readable output in the
// JSONResponse envelope, --config to select a configuration file and
// --metrics to expose Prometheus metrics while the command runs.
package cli
