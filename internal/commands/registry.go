// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"

	"github.com/jeranaias/syscallgate/internal/security"
)

// ErrUnknownOperation is returned by Lookup for a name not in the catalog.
var ErrUnknownOperation = errors.New("unknown operation")

// =============================================================================
// HANDLERS
// =============================================================================

// Handler performs an operation on positional arguments. A non-nil error
// is a handler failure; the result is meaningful only when err is nil.
type Handler interface {
	Invoke(ctx context.Context, args []string) (string, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, args []string) (string, error)

// Invoke implements Handler.
func (f HandlerFunc) Invoke(ctx context.Context, args []string) (string, error) {
	return f(ctx, args)
}

// =============================================================================
// DESCRIPTORS
// =============================================================================

// Param describes one positional argument, for prompting and usage text.
type Param struct {
	Name   string
	Prompt string

	// Default is used when the argument is omitted. Empty means required.
	Default string
}

// Required reports whether the parameter has no default.
func (p Param) Required() bool {
	return p.Default == ""
}

// Descriptor is one catalog entry.
type Descriptor struct {
	Name        string
	Description string
	AdminOnly   bool
	Params      []Param
	Handler     Handler
}

// Usage renders "name <required> [optional]".
func (d Descriptor) Usage() string {
	s := d.Name
	for _, p := range d.Params {
		if p.Required() {
			s += " <" + p.Name + ">"
		} else {
			s += " [" + p.Name + "]"
		}
	}
	return s
}

// Info is the display view of a Descriptor.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	AdminOnly   bool   `json:"admin_only"`
	Usage       string `json:"usage"`
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry is an immutable, ordered operation catalog.
type Registry struct {
	ops   []Descriptor
	index map[string]int
}

// NewRegistry builds a catalog in declaration order. Names must be unique
// and non-empty and every descriptor needs a handler.
func NewRegistry(descs ...Descriptor) (*Registry, error) {
	r := &Registry{
		ops:   make([]Descriptor, 0, len(descs)),
		index: make(map[string]int, len(descs)),
	}
	for _, d := range descs {
		if d.Name == "" {
			return nil, errors.New("operation name must not be empty")
		}
		if d.Handler == nil {
			return nil, fmt.Errorf("operation %q has no handler", d.Name)
		}
		if _, dup := r.index[d.Name]; dup {
			return nil, fmt.Errorf("duplicate operation %q", d.Name)
		}
		d.Params = slices.Clone(d.Params)
		r.index[d.Name] = len(r.ops)
		r.ops = append(r.ops, d)
	}
	return r, nil
}

// MustRegistry is like NewRegistry but panics on an invalid catalog.
func MustRegistry(descs ...Descriptor) *Registry {
	r, err := NewRegistry(descs...)
	if err != nil {
		panic(err)
	}
	return r
}

// Describe returns the catalog in declaration order.
func (r *Registry) Describe() []Info {
	out := make([]Info, 0, len(r.ops))
	for _, d := range r.ops {
		out = append(out, Info{
			Name:        d.Name,
			Description: d.Description,
			AdminOnly:   d.AdminOnly,
			Usage:       d.Usage(),
		})
	}
	return out
}

// AllowedFor yields, in declaration order, the names of operations role
// may invoke. The sequence is computed on each range and can be reused.
func (r *Registry) AllowedFor(role security.Role) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, d := range r.ops {
			if !role.CanInvoke(d.AdminOnly) {
				continue
			}
			if !yield(d.Name) {
				return
			}
		}
	}
}

// Lookup returns the descriptor for name or ErrUnknownOperation.
func (r *Registry) Lookup(name string) (Descriptor, error) {
	i, ok := r.index[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownOperation, name)
	}
	return r.ops[i], nil
}

// Len returns the number of operations.
func (r *Registry) Len() int {
	return len(r.ops)
}
