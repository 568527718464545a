// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides file and string helpers shared by the credential
// store, the audit log and the CLI.
//
// # Key Functions
//
// File Operations:
//   - AtomicWriteFile: Crash-safe whole-file replacement with fsync
//   - LockFile: Advisory cross-process lock on a sidecar file
//   - ExpandHome: Resolve a leading "~/" against the user's home directory
//
// String Utilities:
//   - TruncateWidth: Display-width aware truncation with ellipsis
//   - PadWidth: Display-width aware right padding for tables
package util
