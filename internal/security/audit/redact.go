// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package audit

import "regexp"

// =============================================================================
// SECRET REDACTION
// =============================================================================

// Redactor scrubs sensitive text from entry details before they are
// sealed. Redaction has to happen first: a sealed entry cannot be edited.
type Redactor interface {
	Redact(input string) string
}

// PatternRedactor replaces every match of a pattern.
type PatternRedactor struct {
	name    string
	pattern *regexp.Regexp
	replace string
}

// NewPatternRedactor creates a new pattern-based redactor.
func NewPatternRedactor(name string, pattern *regexp.Regexp, replace string) *PatternRedactor {
	return &PatternRedactor{name: name, pattern: pattern, replace: replace}
}

// Redact implements Redactor.
func (r *PatternRedactor) Redact(input string) string {
	return r.pattern.ReplaceAllString(input, r.replace)
}

// Name returns the redactor name.
func (r *PatternRedactor) Name() string {
	return r.name
}

// Chain applies redactors in order.
type Chain []Redactor

// Redact implements Redactor.
func (c Chain) Redact(input string) string {
	for _, r := range c {
		input = r.Redact(input)
	}
	return input
}

var secretPatterns = []struct {
	name    string
	pattern *regexp.Regexp
	replace string
}{
	{"PrivateKey", regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]*?-----END [A-Z ]*PRIVATE KEY-----`), "[PRIVATE_KEY_REDACTED]"},
	{"Password", regexp.MustCompile(`(?i)(password|passwd|pwd)\s*[=:]\s*\S+`), "[PASSWORD_REDACTED]"},
	{"Bearer", regexp.MustCompile(`Bearer\s+[a-zA-Z0-9\-_.]+`), "Bearer [TOKEN_REDACTED]"},
	{"JWT", regexp.MustCompile(`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`), "[JWT_REDACTED]"},
	{"GitHub", regexp.MustCompile(`gh[pousr]_[a-zA-Z0-9]{36,}`), "[GITHUB_TOKEN_REDACTED]"},
	{"AWS", regexp.MustCompile(`AKIA[0-9A-Z]{16}`), "[AWS_KEY_REDACTED]"},
}

// DefaultRedactor returns the built-in secret patterns.
func DefaultRedactor() Chain {
	c := make(Chain, 0, len(secretPatterns))
	for _, sp := range secretPatterns {
		c = append(c, NewPatternRedactor(sp.name, sp.pattern, sp.replace))
	}
	return c
}
