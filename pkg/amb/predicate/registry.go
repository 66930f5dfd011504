package predicate

import (
	"errors"
	"sort"
	"sync"
)

// Func is the body of a predicate. It may branch with Choose, give up
// with Prune, require other predicates, watch variables and register
// cleanups on env. A returned error is fatal to the whole search; use
// Prune for "no solution here".
type Func func(env *Env, args Args) (interface{}, error)

// Registry maps predicate names to their functions. A Registry may be
// shared by several graphs.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

func NewRegistry() *Registry {
	return &Registry{funcs: map[string]Func{}}
}

// Register defines name, replacing any previous definition.
func (r *Registry) Register(name string, fn Func) error {
	if name == "" {
		return errors.New("predicate name must not be empty")
	}
	if fn == nil {
		return errors.New("predicate function must not be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
	return nil
}

func (r *Registry) Lookup(name string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
