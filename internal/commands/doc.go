// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package commands defines the catalog of simulated system calls.
//
// A Registry is built once at startup and never mutated. Each Descriptor
// pairs a name with a typed Handler and an admin-only flag. Authorization
// and auditing are not performed here; see the access package.
package commands
