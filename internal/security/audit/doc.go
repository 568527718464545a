// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package audit records every authentication and dispatch attempt in an
// append-only, tamper-evident log.
//
// This package implements NIST 800-53 AU controls:
//   - AU-2/AU-3: Event Logging and Content of Audit Records
//   - AU-5: Response to Audit Logging Process Failures
//   - AU-9: Protection of Audit Information
//
// # Hash Chain (AU-9)
//
// Each appended Entry is sealed: it receives the next sequence number, the
// hash of its predecessor, and its own HMAC-SHA256 over the canonical JSON
// of everything except the hash itself. Editing, removing or reordering a
// sealed entry breaks Verify.
//
//	log, err := audit.OpenFile(path, audit.WithKey(key))
//	if err != nil {
//	    return err
//	}
//	defer log.Close()
//
//	_, err = log.Append(ctx, audit.Entry{
//	    Actor:   "alice",
//	    Action:  "read",
//	    Status:  audit.StatusSuccess,
//	    Details: `("notes.txt")`,
//	})
//
//	report, err := audit.Verify(ctx, log.Entries(ctx), audit.NewSealer(key))
//
// # Backends
//
//   - FileLog: JSON Lines, one fsynced write per entry
//   - SQLiteLog: one row per entry, appended inside a transaction
//   - MemoryLog: for tests
package audit
