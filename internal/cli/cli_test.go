// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/jeranaias/syscallgate/internal/config"
	"github.com/jeranaias/syscallgate/internal/security/access"
	"github.com/jeranaias/syscallgate/internal/security/audit"
	"github.com/jeranaias/syscallgate/internal/security/auth"
	"github.com/jeranaias/syscallgate/internal/simulator"
	"github.com/jeranaias/syscallgate/internal/storage"
)

// =============================================================================
// COMMAND PARSING TESTS (cli.go)
// =============================================================================

func TestParseArgs_Commands(t *testing.T) {
	tests := []struct {
		argv    []string
		want    Command
		wantSub string
	}{
		{nil, CmdMenu, ""},
		{[]string{"menu"}, CmdMenu, ""},
		{[]string{"exec", "read", "notes.txt"}, CmdExec, "read"},
		{[]string{"run", "list"}, CmdExec, "list"},
		{[]string{"users", "create", "alice"}, CmdUsers, "create"},
		{[]string{"user"}, CmdUsers, ""},
		{[]string{"lockout", "unlock", "bob"}, CmdLockout, "unlock"},
		{[]string{"lock"}, CmdLockout, ""},
		{[]string{"ops"}, CmdOps, ""},
		{[]string{"calls"}, CmdOps, ""},
		{[]string{"audit", "verify"}, CmdAudit, "verify"},
		{[]string{"history"}, CmdAudit, ""},
		{[]string{"config", "show"}, CmdConfig, "show"},
		{[]string{"version"}, CmdVersion, ""},
		{[]string{"--version"}, CmdVersion, ""},
		{[]string{"help"}, CmdHelp, ""},
		{[]string{"EXEC", "read"}, CmdExec, "read"},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.argv, " "), func(t *testing.T) {
			cmd, args := ParseArgs(tt.argv)
			if cmd != tt.want {
				t.Errorf("ParseArgs(%v) command = %v, want %v", tt.argv, cmd, tt.want)
			}
			if args.Subcommand != tt.wantSub {
				t.Errorf("ParseArgs(%v) subcommand = %q, want %q", tt.argv, args.Subcommand, tt.wantSub)
			}
		})
	}
}

func TestParseArgs_GlobalFlagsAnywhere(t *testing.T) {
	cmd, args := ParseArgs([]string{"--json", "audit", "show", "-q", "--config=/tmp/c.toml", "--metrics", ":9090", "-v"})
	if cmd != CmdAudit {
		t.Fatalf("command = %v, want CmdAudit", cmd)
	}
	if !args.JSON || !args.Quiet || !args.Verbose {
		t.Errorf("flags = %+v, want json, quiet and verbose", args)
	}
	if args.ConfigPath != "/tmp/c.toml" {
		t.Errorf("ConfigPath = %q", args.ConfigPath)
	}
	if args.MetricsAddr != ":9090" {
		t.Errorf("MetricsAddr = %q", args.MetricsAddr)
	}
	if !slices.Equal(args.Raw, []string{"show"}) {
		t.Errorf("Raw = %v, want [show]", args.Raw)
	}
}

func TestParseArgs_UnknownCommand(t *testing.T) {
	cmd, args := ParseArgs([]string{"reboot", "now"})
	if cmd != CmdHelp {
		t.Fatalf("command = %v, want CmdHelp", cmd)
	}
	if len(args.Raw) == 0 || args.Raw[0] != "reboot" {
		t.Errorf("Raw = %v, want the unknown word first", args.Raw)
	}
	if args.Subcommand != "" {
		t.Errorf("Subcommand = %q, want empty", args.Subcommand)
	}
}

func TestParseArgs_HelpWithTopicIsNotAnError(t *testing.T) {
	_, args := ParseArgs([]string{"help", "exec"})
	if len(args.Raw) != 0 {
		t.Errorf("Raw = %v, want empty so HandleHelp does not report an unknown command", args.Raw)
	}
}

// =============================================================================
// ARG PARSER TESTS (args.go)
// =============================================================================

func TestArgParser(t *testing.T) {
	tests := []struct {
		name      string
		raw       []string
		boolNames []string
		check     func(*testing.T, *ArgParser)
	}{
		{
			name: "flag with value",
			raw:  []string{"show", "--lines", "50"},
			check: func(t *testing.T, p *ArgParser) {
				if p.Subcommand() != "show" || p.Flag("lines") != "50" {
					t.Errorf("got sub=%q lines=%q", p.Subcommand(), p.Flag("lines"))
				}
			},
		},
		{
			name: "flag with equals",
			raw:  []string{"create", "alice", "--role=admin"},
			check: func(t *testing.T, p *ArgParser) {
				if p.Flag("role") != "admin" || p.Positional(1) != "alice" {
					t.Errorf("got role=%q user=%q", p.Flag("role"), p.Positional(1))
				}
			},
		},
		{
			name: "aliases are tried in order",
			raw:  []string{"read", "-u", "bob"},
			check: func(t *testing.T, p *ArgParser) {
				if p.Flag("user", "u") != "bob" {
					t.Errorf("Flag(user, u) = %q", p.Flag("user", "u"))
				}
			},
		},
		{
			name:      "declared boolean does not swallow the next word",
			raw:       []string{"tail", "--follow", "extra"},
			boolNames: []string{"follow"},
			check: func(t *testing.T, p *ArgParser) {
				if !p.BoolFlag("follow") {
					t.Error("BoolFlag(follow) = false")
				}
				if p.Positional(1) != "extra" {
					t.Errorf("Positional(1) = %q, want extra", p.Positional(1))
				}
			},
		},
		{
			name: "trailing flag is boolean",
			raw:  []string{"show", "--failed"},
			check: func(t *testing.T, p *ArgParser) {
				if !p.BoolFlag("failed") || !p.HasFlag("--failed") {
					t.Error("trailing flag not recorded as boolean")
				}
			},
		},
		{
			name: "double dash ends flag parsing",
			raw:  []string{"write", "--user", "alice", "--", "f.txt", "--not-a-flag"},
			check: func(t *testing.T, p *ArgParser) {
				got := p.PositionalFrom(1)
				if !slices.Equal(got, []string{"f.txt", "--not-a-flag"}) {
					t.Errorf("PositionalFrom(1) = %v", got)
				}
				if p.Flag("user") != "alice" {
					t.Errorf("Flag(user) = %q", p.Flag("user"))
				}
			},
		},
		{
			name: "explicit boolean value",
			raw:  []string{"init", "--force=false"},
			check: func(t *testing.T, p *ArgParser) {
				if p.BoolFlag("force") || !p.HasFlag("force") {
					t.Error("--force=false should be present and false")
				}
			},
		},
		{
			name: "out of range positional",
			raw:  []string{"list"},
			check: func(t *testing.T, p *ArgParser) {
				if p.Positional(3) != "" || len(p.PositionalFrom(5)) != 0 || p.Positional(-1) != "" {
					t.Error("out of range access should be empty")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, NewArgParser(tt.raw, tt.boolNames...))
		})
	}
}

func TestArgParser_FlagIntOrDefault(t *testing.T) {
	p := NewArgParser([]string{"show", "--lines", "abc"})
	if _, err := p.FlagIntOrDefault("lines", 20); err == nil {
		t.Error("expected an error for a non-numeric value")
	}

	p = NewArgParser([]string{"show"})
	n, err := p.FlagIntOrDefault("lines", 20)
	if err != nil || n != 20 {
		t.Errorf("FlagIntOrDefault = %d, %v; want 20, nil", n, err)
	}

	if _, err := ParseIntWithValidation("0", "--lines"); err == nil {
		t.Error("zero should be rejected")
	}
}

// =============================================================================
// JSON OUTPUT TESTS (json_output.go)
// =============================================================================

func TestJSONResponse_Envelope(t *testing.T) {
	var buf bytes.Buffer
	if err := NewJSONResponse("ops", map[string]int{"count": 5}).WriteTo(&buf); err != nil {
		t.Fatal(err)
	}

	var got map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got["success"] != true || got["command"] != "ops" || got["error"] != nil {
		t.Errorf("envelope = %v", got)
	}
	if _, err := time.Parse(time.RFC3339, got["timestamp"].(string)); err != nil {
		t.Errorf("timestamp %v is not RFC3339", got["timestamp"])
	}

	buf.Reset()
	resp := NewJSONErrorResponse("exec", errors.New("Unauthorized access"), nil)
	if err := resp.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"error": "Unauthorized access"`) || !strings.Contains(buf.String(), `"success": false`) {
		t.Errorf("error envelope = %s", buf.String())
	}
}

func TestOutputJSON_TextModePassesErrorThrough(t *testing.T) {
	want := errors.New("boom")
	err := OutputJSON(false, "x", func() (interface{}, error) { return nil, want })
	if !errors.Is(err, want) {
		t.Errorf("err = %v, want %v", err, want)
	}
}

// =============================================================================
// EXIT CODE TESTS (errors.go)
// =============================================================================

func TestExitCodeFor(t *testing.T) {
	auditErr := fmt.Errorf("%w: disk full", audit.ErrAudit)
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"usage", ErrMissingArgument("user", "--user alice"), ExitUsageError},
		{"config", config.ValidateErrors{{Field: "store.path", Message: "must not be empty"}}, ExitConfigError},
		{"no bootstrap", fmt.Errorf("open: %w", storage.ErrNoBootstrap), ExitConfigError},
		{"locked", &auth.AuthError{Kind: auth.KindAccountLocked, Remaining: time.Minute}, ExitLockedError},
		{"wrong password", &auth.AuthError{Kind: auth.KindWrongPassword, AttemptsLeft: 1}, ExitAuthError},
		{"unknown user", &auth.AuthError{Kind: auth.KindUnknownUser}, ExitAuthError},
		{"unauthorized", &access.DispatchError{Kind: access.KindUnauthorized, Message: access.MsgUnauthorized}, ExitAuthError},
		{"rate limited", &access.DispatchError{Kind: access.KindRateLimited, Message: access.MsgRateLimited}, ExitLockedError},
		{"unknown op", &access.DispatchError{Kind: access.KindUnknownOperation, Message: access.MsgInvalidCall}, ExitNotFoundError},
		{"no session", simulator.ErrNotAuthenticated, ExitAuthError},
		{"not found", &NotFoundError{Resource: "user", ID: "x"}, ExitNotFoundError},
		{"audit beats policy", errors.Join(&access.DispatchError{Kind: access.KindUnauthorized}, auditErr), ExitSecurityError},
		{"timeout", fmt.Errorf("handler: %w", context.DeadlineExceeded), ExitTimeoutError},
		{"other", errors.New("something"), ExitGeneralError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCodeFor(tt.err); got != tt.want {
				t.Errorf("ExitCodeFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func TestFormatDuration(t *testing.T) {
	tests := map[time.Duration]string{
		45 * time.Second:            "45s",
		200 * time.Second:           "3m20s",
		300 * time.Second:           "5m00s",
		2*time.Hour + 5*time.Minute: "2h05m",
		1500 * time.Millisecond:     "2s",
	}
	for d, want := range tests {
		if got := formatDuration(d); got != want {
			t.Errorf("formatDuration(%v) = %q, want %q", d, got, want)
		}
	}
}

func TestTable_PadsAndTruncates(t *testing.T) {
	var buf bytes.Buffer
	tbl := newTable(&buf, 6, 10)
	tbl.row("alice", "a very long description")
	line := strings.TrimRight(buf.String(), "\n")
	if line != "  alice   a very ..." {
		t.Errorf("row = %q", line)
	}
}

func TestLastN(t *testing.T) {
	var entries []audit.Entry
	for i, actor := range []string{"alice", "bob", "alice", "alice", "bob"} {
		entries = append(entries, audit.Entry{Seq: uint64(i + 1), Actor: actor, Action: "read", Status: audit.StatusSuccess})
	}
	seq := func(yield func(audit.Entry, error) bool) {
		for _, e := range entries {
			if !yield(e, nil) {
				return
			}
		}
	}

	got, total, err := lastN(seq, auditFilter{user: "alice"}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || len(got) != 2 || got[0].Seq != 3 || got[1].Seq != 4 {
		t.Errorf("lastN = %+v (total %d), want seqs 3,4 of 3", got, total)
	}

	failing := func(yield func(audit.Entry, error) bool) {
		yield(audit.Entry{}, audit.ErrAudit)
	}
	if _, _, err := lastN(failing, auditFilter{}, 5); !errors.Is(err, audit.ErrAudit) {
		t.Errorf("err = %v, want ErrAudit", err)
	}
}
