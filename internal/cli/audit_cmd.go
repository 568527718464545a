// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// audit_cmd.go - Audit review (AU-6) and integrity (AU-9) commands.
//
// Command: audit [subcommand]
// Aliases: history
//
// Subcommands:
//
//	show (default)     Show recent entries
//	verify             Re-derive the hash chain
//	tail [--follow]    Print the last entries, then stream new ones
//	keygen             Create the HMAC key file
//
// Flags:
//
//	--lines N, -n N    Entries to show (default 20 for show, 10 for tail)
//	--user U           Only entries by principal U
//	--action A         Only entries for action or operation A
//	--failed           Only failed entries
//
// Examples:
//
//	syscallgate audit show --lines 50 --user alice
//	syscallgate audit verify --json
//	syscallgate audit tail -f
package cli

import (
	"context"
	"fmt"
	"iter"
	"os"

	"github.com/jeranaias/syscallgate/internal/config"
	"github.com/jeranaias/syscallgate/internal/security/audit"
	"github.com/jeranaias/syscallgate/internal/storage"
)

// auditFilter selects entries for show and tail.
type auditFilter struct {
	user       string
	action     string
	failedOnly bool
}

func (f auditFilter) match(e audit.Entry) bool {
	if f.user != "" && e.Actor != storage.NormalizeUsername(f.user) {
		return false
	}
	if f.action != "" && e.Action != f.action {
		return false
	}
	return !f.failedOnly || !e.Succeeded()
}

// HandleAudit handles "audit".
func HandleAudit(ctx context.Context, args Args) error {
	p := NewArgParser(args.Raw, "failed", "follow", "f")
	filter := auditFilter{user: p.Flag("user", "u"), action: p.Flag("action", "a"), failedOnly: p.BoolFlag("failed")}

	switch p.Subcommand() {
	case "", "show", "list":
		lines, err := flagLines(p, 20)
		if err != nil {
			return err
		}
		return handleAuditShow(ctx, args, filter, lines)
	case "verify":
		return handleAuditVerify(ctx, args)
	case "tail":
		lines, err := flagLines(p, 10)
		if err != nil {
			return err
		}
		return handleAuditTail(ctx, args, filter, lines, p.BoolFlag("follow", "f"))
	case "keygen":
		return handleAuditKeygen(args)
	default:
		return NewValidationErrorWithExample("audit subcommand", p.Subcommand(), "unknown subcommand",
			"syscallgate audit [show|verify|tail|keygen]")
	}
}

func flagLines(p *ArgParser, def int) (int, error) {
	if v := p.Flag("n"); v != "" {
		return ParseIntWithValidation(v, "-n")
	}
	return p.FlagIntOrDefault("lines", def)
}

// lastN keeps the newest n matching entries of seq, oldest first.
func lastN(seq iter.Seq2[audit.Entry, error], filter auditFilter, n int) ([]audit.Entry, int, error) {
	ring := make([]audit.Entry, 0, min(n, 1024))
	total := 0
	for e, err := range seq {
		if err != nil {
			return ring, total, err
		}
		if !filter.match(e) {
			continue
		}
		total++
		if len(ring) == n {
			copy(ring, ring[1:])
			ring = ring[:n-1]
		}
		ring = append(ring, e)
	}
	return ring, total, nil
}

func printEntries(entries []audit.Entry) {
	t := newTable(os.Stdout, 19, 14, 10, 8, 40)
	t.header("TIMESTAMP", "USER", "ACTION", "STATUS", "DETAILS")
	for _, e := range entries {
		printEntry(t, e)
	}
}

func printEntry(t *table, e audit.Entry) {
	actor := e.Actor
	if actor == "" {
		actor = "-"
	}
	t.row(e.Timestamp.Local().Format("2006-01-02 15:04:05"), actor, e.Action, string(e.Status), e.Details)
}

// =============================================================================
// AUDIT SHOW
// =============================================================================

func handleAuditShow(ctx context.Context, args Args, filter auditFilter, lines int) error {
	rt, err := OpenRuntime(ctx, args)
	if err != nil {
		return err
	}
	defer rt.Close()

	return OutputJSON(args.JSON, "audit show", func() (interface{}, error) {
		entries, total, err := lastN(rt.Sim.History(ctx), filter, lines)
		if err != nil {
			return nil, err
		}
		if !args.JSON {
			fmt.Println()
			fmt.Println(TitleStyle.Render(fmt.Sprintf("Audit Log (%d of %d entries)", len(entries), total)))
			fmt.Println(RenderSeparator(GetTerminalWidth() - 4))
			if len(entries) == 0 {
				fmt.Println(DimStyle.Render("  No entries."))
			} else {
				printEntries(entries)
			}
			fmt.Println()
		}
		return map[string]interface{}{"entries": entries, "shown": len(entries), "matched": total}, nil
	})
}

// =============================================================================
// AUDIT VERIFY
// =============================================================================

func handleAuditVerify(ctx context.Context, args Args) error {
	rt, err := OpenRuntime(ctx, args)
	if err != nil {
		return err
	}
	defer rt.Close()

	return OutputJSON(args.JSON, "audit verify", func() (interface{}, error) {
		report, err := rt.Sim.Verify(ctx)
		if err != nil {
			return nil, err
		}
		if !args.JSON {
			printReport(report)
		}
		if !report.Verified {
			return report, fmt.Errorf("%w: chain verification failed at entry %d", audit.ErrAudit, report.FirstBroken)
		}
		return report, nil
	})
}

func printReport(r audit.Report) {
	fmt.Println()
	fmt.Println(TitleStyle.Render("AU-9 Audit Chain Verification"))
	fmt.Println(RenderSeparator(50))
	status := "verified"
	if !r.Verified {
		status = "broken"
	}
	fmt.Printf("  %s%s\n", RenderLabel("Result:"), RenderStatus(status))
	keyed := "HMAC-SHA256"
	if !r.Keyed {
		keyed = "SHA-256 (unkeyed)"
	}
	fmt.Printf("  %s%s\n", RenderLabel("Chain:"), keyed)
	fmt.Printf("  %s%d\n", RenderLabel("Entries:"), r.Entries)
	if r.Unsealed > 0 {
		fmt.Printf("  %s%d\n", RenderLabel("Legacy (unsealed):"), r.Unsealed)
	}
	fmt.Printf("  %s%d\n", RenderLabel("Head Seq:"), r.HeadSeq)
	if r.HeadHash != "" {
		fmt.Printf("  %s%s\n", RenderLabel("Head Hash:"), r.HeadHash)
	}
	for _, issue := range r.Issues {
		fmt.Printf("    %s %s\n", RenderStatus("fail"), issue)
	}
	fmt.Println()
}

// =============================================================================
// AUDIT TAIL
// =============================================================================

// handleAuditTail reads the JSONL file directly so it never contends with
// a running menu for the store. The SQLite backend supports the snapshot
// only.
func handleAuditTail(ctx context.Context, args Args, filter auditFilter, lines int, follow bool) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	cfg = cfg.Clone()
	cfg.ExpandPaths()
	if cfg.Audit.Backend != config.BackendFile {
		if follow {
			return NewValidationErrorWithExample("--follow", "", "live tail needs the file audit backend", "audit.backend = \"file\"")
		}
		return handleAuditShow(ctx, args, filter, lines)
	}

	entries, _, err := lastN(audit.ReadFile(ctx, cfg.Audit.Path), filter, lines)
	if err != nil {
		return err
	}

	if args.JSON {
		if err := NewJSONResponse("audit tail", entries).Print(); err != nil || !follow {
			return err
		}
	} else {
		printEntries(entries)
	}
	if !follow {
		return nil
	}

	t := newTable(os.Stdout, 19, 14, 10, 8, 40)
	return audit.Follow(ctx, cfg.Audit.Path, false, func(e audit.Entry) error {
		if !filter.match(e) {
			return nil
		}
		if args.JSON {
			return NewJSONResponse("audit tail", e).Print()
		}
		printEntry(t, e)
		return nil
	})
}

// =============================================================================
// AUDIT KEYGEN
// =============================================================================

func handleAuditKeygen(args Args) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	cfg = cfg.Clone()
	cfg.ExpandPaths()
	path := cfg.Audit.HMACKeyFile
	if path == "" {
		return NewValidationErrorWithExample("audit.hmac_key_file", "", "no key file configured",
			"syscallgate config set audit.hmac_key_file ~/.syscallgate/audit.key")
	}

	return OutputJSON(args.JSON, "audit keygen", func() (interface{}, error) {
		if err := audit.GenerateKeyFile(path); err != nil {
			return nil, NewCommandError("audit", "keygen", "could not create key file", err)
		}
		if !args.JSON && !args.Quiet {
			fmt.Printf("%s wrote %s\n", RenderStatus("ok"), path)
			fmt.Println(DimStyle.Render("Entries already in the log stay sealed with the previous key; start a new log after rotating."))
		}
		return map[string]string{"key_file": path}, nil
	})
}
