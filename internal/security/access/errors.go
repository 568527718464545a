// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package access

import (
	"errors"

	"github.com/jeranaias/syscallgate/internal/commands"
)

var (
	// ErrUnknownOperation matches a DispatchError for a name not in the
	// catalog.
	ErrUnknownOperation = commands.ErrUnknownOperation

	// ErrUnauthorized matches a DispatchError for an admin-only operation
	// requested without the admin role.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited matches a DispatchError for a caller over its budget.
	ErrRateLimited = errors.New("rate limited")

	// ErrHandlerFailure matches a DispatchError raised by the handler.
	ErrHandlerFailure = errors.New("handler failure")
)

// Messages recorded in the audit log and shown to callers.
const (
	MsgInvalidCall  = "Invalid system call"
	MsgUnauthorized = "Unauthorized access"
	MsgRateLimited  = "Rate limit exceeded"
)

// Kind classifies a dispatch failure.
type Kind int

const (
	KindUnknownOperation Kind = iota + 1
	KindUnauthorized
	KindRateLimited
	KindHandlerFailure
)

func (k Kind) String() string {
	switch k {
	case KindUnknownOperation:
		return "unknown_operation"
	case KindUnauthorized:
		return "unauthorized"
	case KindRateLimited:
		return "rate_limited"
	case KindHandlerFailure:
		return "handler_failure"
	default:
		return "unknown"
	}
}

// DispatchError is the typed result of a failed Execute.
type DispatchError struct {
	Kind      Kind
	Operation string

	// Message is the text recorded in the audit entry.
	Message string

	// Err is the handler's error for KindHandlerFailure.
	Err error
}

func (e *DispatchError) Error() string {
	return e.Message
}

// Unwrap exposes the kind's sentinel and, for handler failures, the
// handler's own error.
func (e *DispatchError) Unwrap() []error {
	var sentinel error
	switch e.Kind {
	case KindUnknownOperation:
		sentinel = ErrUnknownOperation
	case KindUnauthorized:
		sentinel = ErrUnauthorized
	case KindRateLimited:
		sentinel = ErrRateLimited
	case KindHandlerFailure:
		sentinel = ErrHandlerFailure
	}
	errs := make([]error, 0, 2)
	if sentinel != nil {
		errs = append(errs, sentinel)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
