package pipeline

import (
	"fmt"
	"sort"
)

// Func is a provider custom function. It receives the live graph through
// ctx and may read the immutable snapshot for pre-transformation values.
// An error (or panic) aborts only the pattern being processed.
type Func func(ctx *Context) error

// Registry maps custom-function names to implementations. Provider configs
// referencing unknown names are rejected at load time, not at call time.
type Registry struct {
	funcs map[string]Func
}

// NewRegistry returns a registry preloaded with the built-in provider
// custom functions.
func NewRegistry() *Registry {
	r := &Registry{funcs: make(map[string]Func)}
	registerAWS(r)
	return r
}

// Register adds a named custom function. Re-registering a name is a
// programming error.
func (r *Registry) Register(name string, fn Func) {
	if _, ok := r.funcs[name]; ok {
		panic(fmt.Sprintf("pipeline: custom function %q registered twice", name))
	}
	r.funcs[name] = fn
}

// Lookup returns the named function, or nil.
func (r *Registry) Lookup(name string) Func {
	return r.funcs[name]
}

// Names returns all registered names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
