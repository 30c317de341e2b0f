// Package tool defines the capability contract every pluggable tool satisfies
// and the value types shared by the registry, executor and loader.
//
// Invariants:
// - Tool names are unique keys and never change after construction.
// - Method names are unique within their tool.
// - A Result is always returned as a value; nothing past the executor panics.
package tool

import (
	"context"
	"fmt"
)

// Tool is one pluggable handler unit.
type Tool interface {
	Name() string
	Description() string
	Version() string

	// Methods lists the callable entry points of the tool.
	Methods() []Method
}

// Initializer is implemented by tools that need setup before they serve calls.
// A failure aborts registration of the tool.
type Initializer interface {
	Initialize(ctx context.Context) error
}

// HealthChecker is implemented by tools that can report their own usability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) (bool, error)
}

// Closer is implemented by tools holding resources (plugin processes,
// connections) that must be released when the tool is unregistered.
type Closer interface {
	Close() error
}

// Handler implements a method. Params have already been validated and
// defaulted against the method's declared Params.
type Handler func(ctx context.Context, params map[string]any) (any, error)

// Method is one named entry point of a tool.
type Method struct {
	Name        string
	Description string
	Params      []Param
	Handler     Handler
}

// FindMethod returns the method named name declared by t.
func FindMethod(t Tool, name string) (Method, bool) {
	for _, m := range t.Methods() {
		if m.Name == name {
			return m, true
		}
	}
	return Method{}, false
}

// MethodNames returns the declared method names of t in declaration order.
func MethodNames(t Tool) []string {
	methods := t.Methods()
	names := make([]string, 0, len(methods))
	for _, m := range methods {
		names = append(names, m.Name)
	}
	return names
}

// Validate checks that t satisfies the shape the registry requires:
// a non-empty name and a usable method listing.
func Validate(t Tool) error {
	if t == nil {
		return fmt.Errorf("%w: tool is nil", ErrInvalidTool)
	}
	if t.Name() == "" {
		return fmt.Errorf("%w: tool name cannot be empty", ErrInvalidTool)
	}

	methods := t.Methods()
	if methods == nil {
		return fmt.Errorf("%w: tool %s does not list any methods", ErrInvalidTool, t.Name())
	}

	seen := make(map[string]bool, len(methods))
	for _, m := range methods {
		if m.Name == "" {
			return fmt.Errorf("%w: tool %s has a method with an empty name", ErrInvalidTool, t.Name())
		}
		if seen[m.Name] {
			return fmt.Errorf("%w: tool %s declares method %s twice", ErrInvalidTool, t.Name(), m.Name)
		}
		seen[m.Name] = true

		if m.Handler == nil {
			return fmt.Errorf("%w: method %s.%s has no handler", ErrInvalidTool, t.Name(), m.Name)
		}
		for _, p := range m.Params {
			if err := p.validate(); err != nil {
				return fmt.Errorf("%w: method %s.%s: %v", ErrInvalidTool, t.Name(), m.Name, err)
			}
		}
	}

	return nil
}
