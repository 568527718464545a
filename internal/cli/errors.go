// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Structured CLI errors and exit codes.
//
// Handlers always return errors and never print-and-swallow them. main
// calls DisplayError once and exits with ExitCodeFor.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/jeranaias/syscallgate/internal/config"
	"github.com/jeranaias/syscallgate/internal/security/access"
	"github.com/jeranaias/syscallgate/internal/security/audit"
	"github.com/jeranaias/syscallgate/internal/security/auth"
	"github.com/jeranaias/syscallgate/internal/simulator"
	"github.com/jeranaias/syscallgate/internal/storage"
)

// =============================================================================
// EXIT CODES - Specific codes for different error categories
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitAuthError indicates authentication or authorization failure
	ExitAuthError = 4
	// ExitLockedError indicates the account is locked out (AC-7)
	ExitLockedError = 5
	// ExitSecurityError indicates an audit or integrity failure (AU-5, AU-9)
	ExitSecurityError = 6
	// ExitNotFoundError indicates a resource was not found
	ExitNotFoundError = 7
	// ExitTimeoutError indicates an operation timed out
	ExitTimeoutError = 8
)

// =============================================================================
// ERROR TYPES FOR STRUCTURED ERROR HANDLING
// =============================================================================

// CommandError represents a CLI command error with context.
type CommandError struct {
	Command string // Command that failed (e.g., "audit", "users")
	Action  string // Action being performed (e.g., "verify", "create")
	Reason  string // Human-readable reason
	Err     error  // Underlying error (if any)
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s failed: %s: %v", e.Command, e.Action, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Command, e.Action, e.Reason)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ValidationError represents a validation failure for user input.
type ValidationError struct {
	Field   string // Field that failed validation
	Value   string // Value that was provided
	Reason  string // Why validation failed
	Example string // Example of valid value (optional)
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	if e.Value != "" {
		msg += fmt.Sprintf(" (got: %s)", e.Value)
	}
	if e.Example != "" {
		msg += fmt.Sprintf("\nExample: %s", e.Example)
	}
	return msg
}

// NotFoundError represents a resource not found error.
type NotFoundError struct {
	Resource string // Type of resource (e.g., "user", "operation")
	ID       string // Identifier that was not found
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// =============================================================================
// ERROR CONSTRUCTION HELPERS
// =============================================================================

// NewCommandError creates a new command error.
func NewCommandError(command, action, reason string, err error) error {
	return &CommandError{
		Command: command,
		Action:  action,
		Reason:  reason,
		Err:     err,
	}
}

// NewValidationErrorWithExample creates a validation error with an example.
func NewValidationErrorWithExample(field, value, reason, example string) error {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Reason:  reason,
		Example: example,
	}
}

// ErrMissingArgument creates an error for missing required arguments.
func ErrMissingArgument(argName, usage string) error {
	return NewValidationErrorWithExample(argName, "", "required argument missing", usage)
}

// =============================================================================
// ERROR DISPLAY
// =============================================================================

// DisplayError displays an error in a consistent format. Errors a JSON
// handler already reported are not printed twice.
func DisplayError(err error, jsonMode bool) {
	if err == nil {
		return
	}
	var reported *reportedError
	if errors.As(err, &reported) {
		return
	}

	if jsonMode {
		displayErrorJSON(err)
		return
	}
	fmt.Fprintf(os.Stderr, "%s %s\n", ErrorStyle.Render("[ERROR]"), err.Error())
}

func displayErrorJSON(err error) {
	output := map[string]interface{}{
		"error":      err.Error(),
		"success":    false,
		"error_type": errorType(err),
		"exit_code":  ExitCodeFor(err),
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		output["field"] = validationErr.Field
		if validationErr.Example != "" {
			output["example"] = validationErr.Example
		}
	}
	var authErr *auth.AuthError
	if errors.As(err, &authErr) && authErr.Kind == auth.KindAccountLocked {
		output["remaining_seconds"] = authErr.RemainingSeconds()
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(output)
}

func errorType(err error) string {
	var (
		validationErr *ValidationError
		notFoundErr   *NotFoundError
		commandErr    *CommandError
		authErr       *auth.AuthError
		dispatchErr   *access.DispatchError
	)
	switch {
	case errors.As(err, &validationErr):
		return "validation_error"
	case errors.As(err, &authErr):
		return "auth_error"
	case errors.As(err, &dispatchErr):
		return "dispatch_error"
	case errors.As(err, &notFoundErr):
		return "not_found_error"
	case errors.As(err, &commandErr):
		return "command_error"
	default:
		return "generic_error"
	}
}

// ExitCodeFor maps an error onto an exit code. Audit failures win over
// everything else because the attempt was not recorded.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var (
		validationErr *ValidationError
		notFoundErr   *NotFoundError
		cfgErr        config.ValidateErrors
		cfgFieldErr   config.ValidationError
	)
	switch {
	case errors.Is(err, audit.ErrAudit), errors.Is(err, audit.ErrInvalidEntry):
		return ExitSecurityError
	case errors.As(err, &validationErr):
		return ExitUsageError
	case errors.As(err, &cfgErr), errors.As(err, &cfgFieldErr), errors.Is(err, storage.ErrNoBootstrap):
		return ExitConfigError
	case errors.Is(err, auth.ErrAccountLocked), errors.Is(err, access.ErrRateLimited):
		return ExitLockedError
	case errors.Is(err, auth.ErrUnknownUser), errors.Is(err, auth.ErrWrongPassword),
		errors.Is(err, access.ErrUnauthorized), errors.Is(err, simulator.ErrNotAuthenticated):
		return ExitAuthError
	case errors.As(err, &notFoundErr), errors.Is(err, access.ErrUnknownOperation),
		errors.Is(err, storage.ErrUserNotFound):
		return ExitNotFoundError
	case errors.Is(err, context.DeadlineExceeded):
		return ExitTimeoutError
	default:
		return ExitGeneralError
	}
}
