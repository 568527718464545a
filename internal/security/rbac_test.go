// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package security

import (
	"errors"
	"testing"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		input   string
		want    Role
		wantErr bool
	}{
		{"admin", RoleAdmin, false},
		{"user", RoleUser, false},
		{"  ADMIN ", RoleAdmin, false},
		{"User", RoleUser, false},
		{"operator", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseRole(tt.input)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidRole) {
				t.Errorf("ParseRole(%q) error = %v, want ErrInvalidRole", tt.input, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseRole(%q) unexpected error: %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("ParseRole(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestRole_CanInvoke(t *testing.T) {
	tests := []struct {
		role      Role
		adminOnly bool
		want      bool
	}{
		{RoleAdmin, true, true},
		{RoleAdmin, false, true},
		{RoleUser, false, true},
		{RoleUser, true, false},
		{Role("guest"), true, false},
	}
	for _, tt := range tests {
		if got := tt.role.CanInvoke(tt.adminOnly); got != tt.want {
			t.Errorf("%q.CanInvoke(%v) = %v, want %v", tt.role, tt.adminOnly, got, tt.want)
		}
	}
}
