// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// helpers.go - Small helpers shared by the subcommands.
package cli

import (
	"fmt"
	"io"
	"os"
	"os/user"
	"strings"
	"time"

	"github.com/jeranaias/syscallgate/internal/util"
)

// EnvPassword supplies a password to exec and users create without a
// prompt, for scripts.
const EnvPassword = "SYSCALLGATE_PASSWORD"

// formatDuration formats a time.Duration for display.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
}

// operatorName identifies the local operator in audit entries written by
// administrative subcommands, e.g. "cli:jmorgan".
func operatorName() string {
	name := os.Getenv("SYSCALLGATE_OPERATOR")
	if name == "" {
		if u, err := user.Current(); err == nil {
			name = u.Username
		}
	}
	if name == "" {
		name = os.Getenv("USER")
	}
	if name == "" {
		name = "unknown"
	}
	return "cli:" + name
}

// readPassword returns EnvPassword when set, otherwise prompts without
// echo. confirm asks twice and rejects a mismatch.
func readPassword(label string, confirm bool) (string, error) {
	if pw, ok := os.LookupEnv(EnvPassword); ok {
		return pw, nil
	}
	if !CanPrompt() {
		return "", &TTYRequiredError{Operation: "read a password (set " + EnvPassword + ")"}
	}

	p := NewLinePrompter()
	defer p.Close()
	pw, err := p.Password(label)
	if err != nil {
		return "", err
	}
	if confirm {
		again, err := p.Password("Confirm " + strings.ToLower(label))
		if err != nil {
			return "", err
		}
		if again != pw {
			return "", NewValidationErrorWithExample("password", "", "passwords do not match", "")
		}
	}
	return pw, nil
}

// table writes fixed-width columns sized in terminal cells.
type table struct {
	w      io.Writer
	widths []int
}

func newTable(w io.Writer, widths ...int) *table {
	return &table{w: w, widths: widths}
}

func (t *table) header(cols ...string) {
	t.row(cols...)
	total := 0
	for _, w := range t.widths {
		total += w + 2
	}
	fmt.Fprintln(t.w, DimStyle.Render("  "+strings.Repeat("-", total)))
}

// row pads every column but the last, which is only truncated.
func (t *table) row(cols ...string) {
	var b strings.Builder
	b.WriteString("  ")
	for i, c := range cols {
		if i >= len(t.widths) {
			break
		}
		if i == len(cols)-1 {
			b.WriteString(util.TruncateWidth(c, t.widths[i]))
			break
		}
		b.WriteString(util.PadWidth(c, t.widths[i]))
		b.WriteString("  ")
	}
	fmt.Fprintln(t.w, b.String())
}
