// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package access enforces role-based access to catalog operations.
//
// This package implements NIST 800-53 controls:
//   - AC-3: Access Enforcement
//   - AC-6(9): Log Use of Privileged Functions
//   - AU-12: Audit Record Generation
//
// The Dispatcher resolves an operation by name, checks the caller's role
// against the operation's admin-only flag, invokes the handler and records
// the outcome. Every Execute call appends exactly one audit entry and a
// handler is never invoked for a caller that is not allowed to run it.
package access
