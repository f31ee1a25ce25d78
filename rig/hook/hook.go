// Package hook defines interfaces that the rig and its esbuild integration recognize on hooks and will apply at
// various stages of a build or of serving a development rig.
package hook

import (
	"context"
	"net"
	"net/http"
	"sort"
)

// Listen hooks supply the listener a rig serves on, replacing the plain TCP listener.
type Listen interface {
	Listen(ctx context.Context) (net.Listener, error)
}

// Origin hooks that supply the listener also name the origin browsers use to reach it, such as a tailnet name.
// An empty origin falls back to one derived from the listener address.
type Origin interface {
	RigOrigin(lr net.Listener) string
}

// Serving hooks are told the origin the rig serves at once it is listening, before any Start hook runs.
type Serving interface {
	RigServing(ctx context.Context, origin string)
}

// Listener hooks are called when the rig is setting up a new listener.
type Listener interface {
	RigListener(*net.ListenConfig)
}

// Server hooks are called when the rig is setting up a new HTTP server.
type Server interface {
	RigServer(*http.Server)
}

// Mux hooks are called when the rig is setting up a new HTTP multiplexer.
type Mux interface {
	RigMux(*http.ServeMux)
}

// Start hooks are called once the rig is serving, with a context that is cancelled when the rig shuts down.  An error
// stops the rig.
type Start interface {
	RigStart(ctx context.Context) error
}

// Change hooks are told about every watched file that changes while a rig is serving.
type Change interface {
	RigChange(ctx context.Context, path string)
}

// AfterBuild hooks run once after a build has written all of its output files.  A returned error is reported as a
// build error.
type AfterBuild interface {
	AfterBuild(ctx context.Context) error
}

// RunAfterBuild runs every AfterBuild hook in dependency order, stopping at the first error.  Hooks that do not
// implement AfterBuild are ignored.
func RunAfterBuild(ctx context.Context, hooks ...any) error {
	for _, it := range Order(hooks...) {
		if impl, ok := it.(AfterBuild); ok {
			err := impl.AfterBuild(ctx)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// Order will return the provided hooks in the order they were provided with adjustments made so that all dependent
// hooks are run after their dependencies.  Note that cyclic dependencies will not produce an error, the order will
// simply be best effort.
func Order(hooks ...any) []any {
	dependencies := make(map[string][]int, len(hooks))
	for i, hook := range hooks {
		if dependency, ok := hook.(Provider); ok {
			for _, name := range dependency.Provides() {
				dependencies[name] = append(dependencies[name], i)
			}
		}
	}
	order := make([]any, 0, len(hooks))
	placed := make([]bool, len(hooks))
	var place func(int)
	place = func(i int) {
		if placed[i] {
			return
		}
		placed[i] = true
		if dependent, ok := hooks[i].(Dependent); ok {
			names := dependent.DependsOn()
			items := make([]int, 0, len(names))
			for _, name := range names {
				items = append(items, dependencies[name]...)
			}
			sort.Ints(items) // try to preserve the original order as much as possible
			for _, j := range items {
				place(j)
			}
		}
		order = append(order, hooks[i])
	}
	for i := range hooks {
		place(i)
	}
	return order
}

// A Provider provides a name so that it can be referenced by a Dependent.
type Provider interface {
	Provides() []string
}

// A Dependent hook will not be called until all of its dependencies have been provided.
type Dependent interface {
	DependsOn() []string
}
