// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package security

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// NIST 800-53 AC-6 ROLES
// =============================================================================

// Role is the privilege level attached to a principal.
type Role string

const (
	// RoleAdmin may invoke every operation, including admin-only ones.
	RoleAdmin Role = "admin"

	// RoleUser may invoke only operations that are not admin-only.
	RoleUser Role = "user"
)

// ErrInvalidRole is returned when a role string is neither admin nor user.
var ErrInvalidRole = errors.New("invalid role")

// AllRoles lists the roles in privilege order, highest first.
func AllRoles() []Role {
	return []Role{RoleAdmin, RoleUser}
}

// ParseRole converts user input into a Role. Matching ignores case and
// surrounding whitespace.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q (must be admin or user)", ErrInvalidRole, s)
	}
	return r, nil
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// IsAdmin reports whether r carries administrative privilege.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

// CanInvoke reports whether a principal holding r may invoke an operation
// with the given admin-only flag.
func (r Role) CanInvoke(adminOnly bool) bool {
	return !adminOnly || r == RoleAdmin
}

func (r Role) String() string {
	return string(r)
}
