package predicate

import (
	"context"
	"fmt"

	"github.com/operator-framework/amb/pkg/amb"
	"github.com/operator-framework/amb/pkg/amb/solver"
	"github.com/operator-framework/amb/pkg/amb/varstore"
)

// Env is a snapshot of a predicate graph: its instances, the variables
// they read and write, and the worklist of instances to solve. The
// baseline Env of a Graph is only changed through the Graph; candidates
// yielded by Graph.Solve are private copies that can be inspected and
// promoted with Graph.Apply.
type Env struct {
	graph *Graph
	id    amb.UniverseID
	base  *Env

	vars      *varstore.Store
	instances map[Key]*instance
	unsolved  keySet
	deferred  keySet

	ctx      context.Context
	universe *solver.Universe
	stack    []Key
	failure  error
}

func newEnv(g *Graph, vars *varstore.Store) *Env {
	root := newInstance(Key{}, Args{})
	root.state = Solved
	return &Env{
		graph:     g,
		id:        g.ids.NextID(),
		vars:      vars,
		instances: map[Key]*instance{{}: root},
		unsolved:  keySet{},
		deferred:  keySet{},
		ctx:       context.Background(),
	}
}

// clone copies e for a solving pass. The variable store is deep copied
// and every watch is registered again against the copy.
func (e *Env) clone() *Env {
	c := &Env{
		graph:     e.graph,
		id:        e.graph.ids.NextID(),
		base:      e,
		vars:      e.vars.Clone(),
		instances: make(map[Key]*instance, len(e.instances)),
		unsolved:  e.unsolved.clone(),
		deferred:  e.deferred.clone(),
		ctx:       context.Background(),
	}
	for k, inst := range e.instances {
		c.instances[k] = inst.clone()
	}
	for k, inst := range c.instances {
		for pk, w := range inst.watches {
			// paths were validated when first watched
			h, _ := c.vars.Watch(w.path, c.onChange(k))
			inst.watches[pk] = watchEntry{path: w.path, handle: h}
		}
	}
	return c
}

func (e *Env) ID() amb.UniverseID {
	return e.id
}

// Context returns the context of the solving pass, or a background
// context outside of one.
func (e *Env) Context() context.Context {
	return e.ctx
}

func (e *Env) Vars() *varstore.Store {
	return e.vars
}

// Universe returns the universe running the current solving pass, or
// nil outside of one.
func (e *Env) Universe() *solver.Universe {
	return e.universe
}

// Choose branches the solving pass over n options and returns the index
// taken.
func (e *Env) Choose(n int) int {
	return e.mustSolve("choose").Choose(n)
}

// Prune abandons the solving pass. The instance being solved fails and
// its parents are solved again.
func (e *Env) Prune() {
	e.mustSolve("prune").Prune()
}

// Choose is the typed form of Env.Choose.
func Choose[T any](env *Env, options ...T) T {
	return options[env.Choose(len(options))]
}

func (e *Env) mustSolve(op string) *solver.Universe {
	if e.universe == nil {
		panic(fmt.Errorf("%w: %s called outside a solving pass", amb.ErrNoCurrentInstance, op))
	}
	return e.universe
}

// Require returns the value of the predicate instance name(args...),
// solving it first if needed. The instance becomes a child of the
// instance being solved.
func (e *Env) Require(name string, args ...interface{}) (interface{}, error) {
	return e.RequireArgs(name, Args{Positional: args})
}

func (e *Env) RequireArgs(name string, args Args) (interface{}, error) {
	k, err := e.require(name, args)
	if err != nil {
		return nil, err
	}
	if e.universe == nil {
		return nil, nil
	}
	return e.evaluate(k)
}

// Cleanup registers fn on the instance being solved. Cleanups run once,
// last registered first, when the instance is destroyed, fails or is
// solved again.
func (e *Env) Cleanup(fn CleanupFunc) error {
	inst, err := e.current()
	if err != nil {
		return err
	}
	inst.cleanups = append(inst.cleanups, fn)
	return nil
}

// Watch subscribes the instance being solved to p. A change to p marks
// the instance and every instance depending on it unsolved.
func (e *Env) Watch(p varstore.Path) error {
	inst, err := e.current()
	if err != nil {
		return err
	}
	if _, ok := inst.watches[p.String()]; ok {
		return nil
	}
	h, err := e.vars.Watch(p, e.onChange(inst.key))
	if err != nil {
		return err
	}
	inst.watches[p.String()] = watchEntry{path: p, handle: h}
	return nil
}

// Current returns the key of the instance being solved.
func (e *Env) Current() (Key, bool) {
	if len(e.stack) == 0 {
		return Key{}, false
	}
	return e.stack[len(e.stack)-1], true
}

func (e *Env) current() (*instance, error) {
	k, ok := e.Current()
	if !ok {
		return nil, amb.ErrNoCurrentInstance
	}
	return e.instances[k], nil
}

// State reports the state of name(args...).
func (e *Env) State(name string, args ...interface{}) State {
	k, err := NewKey(name, Args{Positional: args})
	if err != nil {
		return Absent
	}
	return e.StateOf(k)
}

func (e *Env) StateOf(k Key) State {
	inst, ok := e.instances[k]
	if !ok || k.IsRoot() {
		return Absent
	}
	return inst.state
}

// Value returns the memoized value of a solved name(args...).
func (e *Env) Value(name string, args ...interface{}) (interface{}, bool) {
	k, err := NewKey(name, Args{Positional: args})
	if err != nil {
		return nil, false
	}
	return e.ValueOf(k)
}

func (e *Env) ValueOf(k Key) (interface{}, bool) {
	inst, ok := e.instances[k]
	if !ok || k.IsRoot() || inst.state != Solved {
		return nil, false
	}
	return inst.value, true
}

// Keys returns every instance key, sorted.
func (e *Env) Keys() []Key {
	all := make(keySet, len(e.instances))
	for k := range e.instances {
		if !k.IsRoot() {
			all[k] = struct{}{}
		}
	}
	return all.sorted()
}

// Goals returns the keys required directly through the Graph.
func (e *Env) Goals() []Key {
	return e.instances[Key{}].children.sorted()
}

func (e *Env) Unsolved() []Key {
	return e.unsolved.sorted()
}

// Converged reports whether nothing is left to solve. A candidate that
// has not converged saw variable changes while it was being solved and
// should be solved again after it is applied.
func (e *Env) Converged() bool {
	return len(e.unsolved) == 0
}

// Depth returns the level of k in the graph. Goals are at depth 1 and
// children are always deeper than their parents.
func (e *Env) Depth(k Key) int {
	if inst, ok := e.instances[k]; ok {
		return inst.depth
	}
	return -1
}

// Parents returns the instances requiring k. Goals have no parents.
func (e *Env) Parents(k Key) []Key {
	inst, ok := e.instances[k]
	if !ok {
		return nil
	}
	parents := inst.parents.clone()
	delete(parents, Key{})
	return parents.sorted()
}

func (e *Env) Children(k Key) []Key {
	inst, ok := e.instances[k]
	if !ok {
		return nil
	}
	return inst.children.sorted()
}
