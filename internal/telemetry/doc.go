// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry exposes Prometheus counters for authentication,
// dispatch and audit outcomes.
//
// A nil *Metrics is valid and records nothing, so components can take one
// unconditionally.
package telemetry
