// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package security holds the role model shared by the credential store,
// the authentication gate and the dispatcher.
//
// Subpackages implement the individual controls:
//   - auth: identification and authentication with account lockout (AC-7)
//   - access: least-privilege dispatch of simulated system calls (AC-6)
//   - audit: tamper-evident audit records (AU-2, AU-9)
package security
