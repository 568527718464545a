// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package simulator assembles the credential store, authentication gate,
// operation catalog, dispatcher and audit log into the API that front ends
// consume.
//
//	sim, err := simulator.Open(ctx, cfg, logger)
//	if err != nil {
//	    return err
//	}
//	defer sim.Close()
//
//	session, err := sim.Authenticate(ctx, "alice", password)
//	out, err := sim.Execute(ctx, session, "read", "notes.txt")
package simulator
