// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing for syscallgate.
package cli

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdMenu    Command = iota
	CmdExec            // Single authenticated dispatch
	CmdUsers           // IA-2: principal management
	CmdLockout         // AC-7: Unsuccessful Logon Attempts
	CmdOps             // Operation catalog
	CmdAudit           // AU-6, AU-9: audit review and integrity
	CmdConfig
	CmdVersion
	CmdHelp
)

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	JSON        bool   // Output in JSON format
	Quiet       bool   // Suppress informational output
	Verbose     bool   // Mirror info logs to stderr
	ConfigPath  string // --config
	MetricsAddr string // --metrics host:port

	// Subcommand is the first argument after the command, if any.
	Subcommand string

	// Raw args (remaining after the command word)
	Raw []string
}

const usageText = `syscallgate - capability-gated system call simulator

Principals authenticate with a password, then invoke simulated system
calls. Admin-only calls are refused to ordinary users, repeated login
failures lock the account, and every attempt lands in a tamper-evident
audit log.

Usage:
  syscallgate                          Interactive menu (default)
  syscallgate menu                     Interactive menu
  syscallgate exec <op> [args...] --user <name>
                                       Authenticate and run one operation
  syscallgate users [create|list|hash-password]
                                       Principal management (IA-2)
  syscallgate lockout [status|unlock]  Account lockout (AC-7)
  syscallgate ops [--role R]           Show the operation catalog
  syscallgate audit [show|verify|tail|keygen]
                                       Audit log review (AU-6, AU-9)
  syscallgate config [show|init|path|get|set]
                                       Configuration
  syscallgate version                  Version information
  syscallgate help                     This text

Global flags:
  --json             Machine-readable output
  --config <path>    Configuration file (default ~/.syscallgate/config.toml)
  --metrics <addr>   Serve Prometheus metrics on addr while running
  -q, --quiet        Suppress informational output
  -v, --verbose      Mirror operational logs to stderr

Environment:
  SYSCALLGATE_PASSWORD                 Password for exec (avoids the prompt)
  SYSCALLGATE_BOOTSTRAP_PASSWORD_HASH  First-run administrator digest
  SYSCALLGATE_AUDIT_HMAC_KEY           Hex audit chain key

Version: %s
`

// PrintUsage prints the usage/help text.
func PrintUsage() {
	fmt.Printf(usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion() {
	fmt.Printf("syscallgate version %s\n", Version)
	fmt.Printf("  Git commit: %s\n", GitCommit)
	fmt.Printf("  Build date: %s\n", BuildDate)
	fmt.Printf("  Go:         %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Parse parses os.Args.
func Parse() (Command, Args) {
	return ParseArgs(os.Args[1:])
}

// ParseArgs parses argv (without the program name) and returns the command
// and its arguments. Unknown commands map to CmdHelp with the word kept
// in Raw so the caller can report it.
func ParseArgs(argv []string) (Command, Args) {
	remaining, parsedArgs := parseGlobalFlags(argv)

	if len(remaining) == 0 {
		return CmdMenu, parsedArgs
	}

	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]
	parsedArgs.Raw = remaining
	if len(remaining) > 0 && !strings.HasPrefix(remaining[0], "-") {
		parsedArgs.Subcommand = remaining[0]
	}

	switch cmd {
	case "menu", "interactive":
		return CmdMenu, parsedArgs
	case "exec", "run":
		return CmdExec, parsedArgs
	case "users", "user":
		return CmdUsers, parsedArgs
	case "lockout", "lock":
		return CmdLockout, parsedArgs
	case "ops", "operations", "calls":
		return CmdOps, parsedArgs
	case "audit", "history":
		return CmdAudit, parsedArgs
	case "config", "cfg":
		return CmdConfig, parsedArgs
	case "version", "--version":
		return CmdVersion, parsedArgs
	case "help", "-h", "--help":
		parsedArgs.Raw = nil
		return CmdHelp, parsedArgs
	default:
		parsedArgs.Raw = append([]string{cmd}, remaining...)
		parsedArgs.Subcommand = ""
		return CmdHelp, parsedArgs
	}
}

// parseGlobalFlags extracts global flags from args and returns remaining args.
// Global flags may appear anywhere on the command line.
func parseGlobalFlags(args []string) ([]string, Args) {
	var remaining []string
	var parsedArgs Args

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "--json":
			parsedArgs.JSON = true
		case "-q", "--quiet":
			parsedArgs.Quiet = true
		case "-v", "--verbose":
			parsedArgs.Verbose = true
		case "--config", "-c":
			if i+1 < len(args) {
				i++
				parsedArgs.ConfigPath = args[i]
			}
		case "--metrics":
			if i+1 < len(args) {
				i++
				parsedArgs.MetricsAddr = args[i]
			}
		default:
			switch {
			case strings.HasPrefix(arg, "--config="):
				parsedArgs.ConfigPath = strings.TrimPrefix(arg, "--config=")
			case strings.HasPrefix(arg, "--metrics="):
				parsedArgs.MetricsAddr = strings.TrimPrefix(arg, "--metrics=")
			default:
				remaining = append(remaining, arg)
			}
		}
	}

	return remaining, parsedArgs
}

// HandleVersion prints version information, as JSON when requested.
func HandleVersion(args Args) error {
	if args.JSON {
		return NewJSONResponse("version", map[string]string{
			"version":    Version,
			"git_commit": GitCommit,
			"build_date": BuildDate,
			"go_version": runtime.Version(),
			"platform":   runtime.GOOS + "/" + runtime.GOARCH,
		}).Print()
	}
	PrintVersion()
	return nil
}

// HandleHelp prints usage. An unknown command in args.Raw is reported
// first and yields a usage error.
func HandleHelp(args Args) error {
	PrintUsage()
	if len(args.Raw) > 0 {
		return NewValidationErrorWithExample("command", args.Raw[0], "unknown command", "syscallgate help")
	}
	return nil
}
