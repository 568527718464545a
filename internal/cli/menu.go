// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// menu.go - Interactive login/signup menu and the operation menu.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jeranaias/syscallgate/internal/security"
	"github.com/jeranaias/syscallgate/internal/security/access"
	"github.com/jeranaias/syscallgate/internal/security/audit"
	"github.com/jeranaias/syscallgate/internal/security/auth"
	"github.com/jeranaias/syscallgate/internal/simulator"
	"github.com/jeranaias/syscallgate/internal/storage"
)

// errQuit unwinds the menu when input ends.
var errQuit = errors.New("quit")

var upper = cases.Upper(language.Und)

// Menu drives a Simulator from line input.
type Menu struct {
	sim *simulator.Simulator
	in  Prompter
	out io.Writer
}

// NewMenu returns a menu reading from in and writing to out.
func NewMenu(sim *simulator.Simulator, in Prompter, out io.Writer) *Menu {
	return &Menu{sim: sim, in: in, out: out}
}

// RunMenu runs the interactive menu until the user exits or input ends.
// Policy rejections are shown and the loop continues. Credential store
// and audit failures end the menu and are returned.
func RunMenu(ctx context.Context, sim *simulator.Simulator, in Prompter, out io.Writer) error {
	return NewMenu(sim, in, out).Run(ctx)
}

// Run is the main menu loop.
func (m *Menu) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.println()
		m.println(TitleStyle.Render("=== Secure System Call Interface ==="))
		m.println("1. Login")
		m.println("2. Signup")
		m.println("3. Exit")
		m.println()

		choice, err := m.in.Prompt("Enter your choice: ")
		if err != nil {
			return m.quit(err)
		}

		switch choice {
		case "1":
			session, err := m.login(ctx)
			if err == nil && session != nil {
				err = m.operations(ctx, session)
			}
			if err != nil {
				return m.quit(err)
			}
		case "2":
			if err := m.signup(ctx); err != nil {
				return m.quit(err)
			}
		case "3":
			m.println("Goodbye!")
			return nil
		default:
			m.println(ErrorStyle.Render("Invalid choice!"))
		}
	}
}

// quit maps end of input onto a clean exit.
func (m *Menu) quit(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, ErrAborted) || errors.Is(err, errQuit) {
		m.println()
		m.println("Goodbye!")
		return nil
	}
	return err
}

// =============================================================================
// LOGIN / SIGNUP
// =============================================================================

// login returns a nil session for a rejected attempt.
func (m *Menu) login(ctx context.Context) (*auth.Session, error) {
	m.println()
	m.println(TitleStyle.Render("=== Login ==="))
	username, err := m.in.Prompt("Username: ")
	if err != nil {
		return nil, err
	}
	password, err := m.in.Password("Password: ")
	if err != nil {
		return nil, err
	}

	session, err := m.sim.Authenticate(ctx, username, password)
	if err == nil {
		m.println(SuccessStyle.Render("Welcome, " + session.Username + "!"))
		return session, nil
	}

	var authErr *auth.AuthError
	if !errors.As(err, &authErr) {
		return nil, err
	}
	switch {
	case authErr.Kind == auth.KindAccountLocked:
		m.println(WarningStyle.Render(fmt.Sprintf("Account locked. Try again in %d seconds.", authErr.RemainingSeconds())))
	case authErr.JustLocked():
		_, lockout := m.sim.Lockout()
		m.println(WarningStyle.Render(fmt.Sprintf("Too many failed attempts. Account locked for %d seconds.", int(lockout.Seconds()))))
	default:
		m.println(ErrorStyle.Render("Login failed!"))
	}
	return nil, nil
}

func (m *Menu) signup(ctx context.Context) error {
	m.println()
	m.println(TitleStyle.Render("=== Signup ==="))
	username, err := m.in.Prompt("Username: ")
	if err != nil {
		return err
	}
	password, err := m.in.Password("Password: ")
	if err != nil {
		return err
	}

	// Self-service accounts are always unprivileged; administrators are
	// provisioned with 'syscallgate users create --role admin'.
	err = m.sim.Signup(ctx, username, password, security.RoleUser)
	switch {
	case err == nil:
		m.println(SuccessStyle.Render("User created successfully!"))
	case errors.Is(err, audit.ErrAudit):
		return err
	case errors.Is(err, storage.ErrAlreadyExists):
		m.println(ErrorStyle.Render("Username already exists!"))
	case errors.Is(err, storage.ErrInvalidCredential):
		m.println(ErrorStyle.Render("Username and password must not be empty!"))
	default:
		return err
	}
	return nil
}

// =============================================================================
// OPERATION MENU
// =============================================================================

func (m *Menu) operations(ctx context.Context, session *auth.Session) error {
	descriptions := make(map[string]string)
	for _, info := range m.sim.Describe() {
		descriptions[info.Name] = info.Description
	}

	for {
		allowed := slices.Collect(m.sim.ListAllowed(session.Role))

		m.println()
		m.println(TitleStyle.Render("=== Available System Calls ==="))
		for i, name := range allowed {
			m.printf("%d. %s - %s\n", i+1, name, descriptions[name])
		}
		m.printf("%d. Logout\n", len(allowed)+1)
		m.println()

		choice, err := m.in.Prompt("Enter your choice: ")
		if err != nil {
			if lerr := m.sim.Logout(ctx, session); lerr != nil {
				return lerr
			}
			return errQuit
		}

		n, convErr := strconv.Atoi(choice)
		switch {
		case convErr != nil:
			m.println(ErrorStyle.Render("Please enter a number!"))
		case n == len(allowed)+1:
			return m.sim.Logout(ctx, session)
		case n >= 1 && n <= len(allowed):
			if err := m.call(ctx, session, allowed[n-1]); err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, ErrAborted) {
					if lerr := m.sim.Logout(ctx, session); lerr != nil {
						return lerr
					}
					return errQuit
				}
				return err
			}
		default:
			m.println(ErrorStyle.Render("Invalid choice!"))
		}
	}
}

// call prompts for the operation's parameters and dispatches it.
func (m *Menu) call(ctx context.Context, session *auth.Session, name string) error {
	desc, err := m.sim.Lookup(name)
	if err != nil {
		return err
	}

	m.println()
	m.println(TitleStyle.Render("=== " + upper.String(name) + " ==="))
	args := make([]string, 0, len(desc.Params))
	for _, p := range desc.Params {
		value, err := m.in.Prompt(p.Prompt + ": ")
		if err != nil {
			return err
		}
		if value == "" {
			value = p.Default
		}
		args = append(args, value)
	}

	result, err := m.sim.Execute(ctx, session, name, args...)
	if err != nil {
		var de *access.DispatchError
		if errors.Is(err, audit.ErrAudit) || !errors.As(err, &de) {
			return err
		}
		result = de.Message
		if de.Kind == access.KindHandlerFailure {
			result = "Error: " + de.Message
		}
		m.println()
		m.println("Result: " + ErrorStyle.Render(result))
	} else {
		m.println()
		m.println("Result: " + ValueStyle.Render(result))
	}

	_, err = m.in.Prompt("Press Enter to continue...")
	return err
}

func (m *Menu) println(a ...interface{}) {
	fmt.Fprintln(m.out, a...)
}

func (m *Menu) printf(format string, a ...interface{}) {
	fmt.Fprintf(m.out, format, a...)
}
