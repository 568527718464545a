// syscallgate - capability-gated system call simulator.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jeranaias/syscallgate/internal/cli"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	os.Exit(run())
}

func run() int {
	cmd, args := cli.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd {
	case cli.CmdMenu:
		err = cli.HandleMenu(ctx, args)
	case cli.CmdExec:
		err = cli.HandleExec(ctx, args)
	case cli.CmdUsers:
		err = cli.HandleUsers(ctx, args)
	case cli.CmdLockout:
		err = cli.HandleLockout(ctx, args)
	case cli.CmdOps:
		err = cli.HandleOps(args)
	case cli.CmdAudit:
		err = cli.HandleAudit(ctx, args)
	case cli.CmdConfig:
		err = cli.HandleConfig(args)
	case cli.CmdVersion:
		err = cli.HandleVersion(args)
	default:
		err = cli.HandleHelp(args)
	}

	if err != nil {
		cli.DisplayError(err, args.JSON)
		return cli.ExitCodeFor(err)
	}
	return cli.ExitSuccess
}
