package model

import (
	"context"
	"fmt"
	"strings"
)

// Args are the named arguments of a method call
type Args map[string]interface{}

// MethodFunc implements a model method. inst is nil for static methods.
// Results are plain data (records, lists, numbers, booleans or nil) so they
// can cross a wire unchanged.
type MethodFunc func(ctx context.Context, inst *Instance, args Args) (interface{}, error)

// Method is an entry of a model's method table
type Method struct {
	Name     string
	Static   bool
	Func     MethodFunc
	Relation string // Owning relation, empty for built-ins
	Remote   bool   // Bound to a remote dispatcher
}

// IsInstanceMethodName reports whether a method name denotes an instance method
func IsInstanceMethodName(name string) bool {
	return strings.HasPrefix(name, "prototype.")
}

// InstallMethod adds a method to the table. Installing a name twice is an error.
func (m *Model) InstallMethod(method Method) error {
	if method.Name == "" {
		return fmt.Errorf("%w: method name is required", ErrInvalid)
	}
	if method.Func == nil {
		return fmt.Errorf("%w: method %s has no implementation", ErrInvalid, method.Name)
	}
	if method.Static == IsInstanceMethodName(method.Name) {
		return fmt.Errorf("%w: method %s: instance methods must be prefixed with \"prototype.\"", ErrInvalid, method.Name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.methods[method.Name]; exists {
		return fmt.Errorf("%w: method %s already installed on %s", ErrInvalid, method.Name, m.Name())
	}
	mm := method
	m.methods[method.Name] = &mm
	m.methodOrder = append(m.methodOrder, method.Name)
	return nil
}

// Method returns a copy of the named method table entry
func (m *Model) Method(name string) (Method, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	method, ok := m.methods[name]
	if !ok {
		return Method{}, false
	}
	return *method, true
}

// Methods returns copies of every method table entry in installation order
func (m *Model) Methods() []Method {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Method, 0, len(m.methodOrder))
	for _, name := range m.methodOrder {
		out = append(out, *m.methods[name])
	}
	return out
}

// Rebind replaces the implementation of an installed method in place.
// The table never grows or shrinks through Rebind.
func (m *Model) Rebind(name string, fn MethodFunc, remote bool) error {
	if fn == nil {
		return fmt.Errorf("%w: rebinding %s to a nil implementation", ErrInvalid, name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	method, ok := m.methods[name]
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrMethodNotFound, m.Name(), name)
	}
	method.Func = fn
	method.Remote = remote
	return nil
}

// Invoke calls a method from the table
func (m *Model) Invoke(ctx context.Context, name string, inst *Instance, args Args) (interface{}, error) {
	method, ok := m.Method(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrMethodNotFound, m.Name(), name)
	}
	if !method.Static && inst == nil {
		return nil, fmt.Errorf("%w: %s.%s requires an instance", ErrInvalid, m.Name(), name)
	}
	if args == nil {
		args = Args{}
	}
	return method.Func(ctx, inst, args)
}
