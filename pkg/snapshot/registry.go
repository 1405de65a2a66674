package snapshot

import (
	"runtime"
	"testing"
)

// Producer computes the value recorded for one registered snapshot.
type Producer func() (any, error)

type registration struct {
	name   string
	fn     Producer
	caller caller
}

// Registry collects named producers and runs them as subtests of a single
// test function, each matched against its own snapshot.
type Registry struct {
	opts    []Option
	entries []registration
}

// NewRegistry returns an empty registry; opts apply to every match.
func NewRegistry(opts ...Option) *Registry {
	return &Registry{opts: opts}
}

// Register adds a producer. The snapshot is stored beside the file that
// calls Register.
func (r *Registry) Register(name string, fn Producer) {
	pc, file, _, _ := runtime.Caller(1)
	r.entries = append(r.entries, registration{
		name:   name,
		fn:     fn,
		caller: caller{pkg: packagePath(runtime.FuncForPC(pc).Name()), file: file},
	})
}

// Len returns the number of registered producers.
func (r *Registry) Len() int { return len(r.entries) }

// Run executes producers in registration order as subtests of t.
func (r *Registry) Run(t *testing.T) {
	t.Helper()
	o := buildOptions(r.opts)
	for _, e := range r.entries {
		t.Run(e.name, func(t *testing.T) {
			t.Helper()
			value, err := e.fn()
			if err != nil {
				t.Fatalf("snapshot: producer %s: %v", e.name, err)
				return
			}
			match(t, e.caller, value, o)
		})
	}
}
