package predicate

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/operator-framework/amb/pkg/amb"
	"github.com/operator-framework/amb/pkg/amb/varstore"
)

// require finds or creates the instance for name(args) and links it
// below the instance being solved, or below the root.
func (e *Env) require(name string, args Args) (Key, error) {
	if _, ok := e.graph.registry.Lookup(name); !ok {
		return Key{}, e.fatal(&amb.UnknownPredicateError{Name: name})
	}
	k, err := NewKey(name, args)
	if err != nil {
		return Key{}, e.fatal(err)
	}
	parent, _ := e.Current()
	if _, ok := e.instances[k]; !ok {
		e.instances[k] = newInstance(k, args)
		e.unsolved[k] = struct{}{}
	}
	if err := e.link(parent, k); err != nil {
		return Key{}, e.fatal(err)
	}
	return k, nil
}

// fatal records err so that it aborts the solving pass even when a
// predicate body drops it.
func (e *Env) fatal(err error) error {
	if e.failure == nil && e.universe != nil {
		e.failure = err
	}
	return err
}

func (e *Env) link(parent, child Key) error {
	p, c := e.instances[parent], e.instances[child]
	if _, ok := p.children[child]; ok {
		return nil
	}
	if c.state == Solving {
		return &amb.CycleError{Key: child.String(), Chain: e.stackChain(child)}
	}
	if chain := e.reach(child, parent); chain != nil {
		return &amb.CycleError{Key: child.String(), Chain: append([]string{parent.String()}, chain...)}
	}
	p.children[child] = struct{}{}
	c.parents[parent] = struct{}{}
	e.deepen(child, p.depth+1)
	return nil
}

func (e *Env) stackChain(k Key) []string {
	var chain []string
	for i := len(e.stack) - 1; i >= 0; i-- {
		chain = append([]string{e.stack[i].String()}, chain...)
		if e.stack[i] == k {
			break
		}
	}
	return append(chain, k.String())
}

// reach returns the chain of keys leading from "from" down to "to", or
// nil when "to" is not below "from".
func (e *Env) reach(from, to Key) []string {
	if from == to {
		return []string{to.String()}
	}
	for _, c := range e.instances[from].children.sorted() {
		if chain := e.reach(c, to); chain != nil {
			return append([]string{from.String()}, chain...)
		}
	}
	return nil
}

func (e *Env) deepen(k Key, depth int) {
	inst := e.instances[k]
	if inst.depth >= depth {
		return
	}
	inst.depth = depth
	for c := range inst.children {
		e.deepen(c, depth+1)
	}
}

// evaluate returns the value of k, solving it if it is not solved.
func (e *Env) evaluate(k Key) (interface{}, error) {
	inst := e.instances[k]
	switch inst.state {
	case Solved:
		return inst.value, nil
	case Failed:
		e.graph.logger.V(2).Info("required failed predicate", "env", e.id, "key", k.String())
		e.universe.Prune()
	case Solving:
		return nil, e.fatal(&amb.CycleError{Key: k.String(), Chain: e.stackChain(k)})
	}

	fn, ok := e.graph.registry.Lookup(k.Name)
	if !ok {
		return nil, e.fatal(&amb.UnknownPredicateError{Name: k.Name})
	}

	ctx, span := e.graph.tracer.Start(e.ctx, "predicate.evaluate", trace.WithAttributes(
		attribute.String("amb.predicate", k.String()),
	))
	defer span.End()

	e.unwatchAll(inst)
	if err := e.runCleanups(inst); err != nil {
		return nil, e.fatal(err)
	}
	previous := inst.children.sorted()
	for _, c := range previous {
		delete(e.instances[c].parents, k)
	}
	inst.children = keySet{}
	inst.state = Solving
	inst.value = nil

	e.graph.logger.V(1).Info("solving predicate", "env", e.id, "key", k.String(), "depth", inst.depth)
	outer := e.ctx
	e.ctx = ctx
	e.stack = append(e.stack, k)
	value, err := fn(e, inst.args)
	e.stack = e.stack[:len(e.stack)-1]
	e.ctx = outer

	if e.failure != nil {
		err = e.failure
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, e.fatal(err)
	}
	inst.state = Solved
	inst.value = value
	delete(e.unsolved, k)

	for _, c := range previous {
		if err := e.release(c); err != nil {
			return nil, e.fatal(err)
		}
	}
	return value, nil
}

// fail marks k failed, rolls back its changes and detaches it from its
// children. Every instance depending on it is solved again. A failed
// goal prunes the solving pass.
func (e *Env) fail(k Key) error {
	inst := e.instances[k]
	if _, ok := inst.parents[Key{}]; ok {
		e.graph.logger.V(1).Info("goal failed", "env", e.id, "key", k.String())
		e.universe.Prune()
	}
	e.graph.logger.V(1).Info("predicate failed", "env", e.id, "key", k.String())
	if err := e.runCleanups(inst); err != nil {
		return err
	}
	children := inst.children.sorted()
	for _, c := range children {
		delete(e.instances[c].parents, k)
	}
	inst.children = keySet{}
	inst.state = Failed
	inst.value = nil
	delete(e.unsolved, k)
	for _, p := range inst.parents.sorted() {
		e.invalidate(p)
	}
	for _, c := range children {
		if err := e.release(c); err != nil {
			return err
		}
	}
	return nil
}

// release destroys k when nothing requires it any more.
func (e *Env) release(k Key) error {
	inst, ok := e.instances[k]
	if !ok || len(inst.parents) > 0 {
		return nil
	}
	return e.destroy(k)
}

func (e *Env) destroy(k Key) error {
	inst := e.instances[k]
	e.graph.logger.V(1).Info("destroying predicate", "env", e.id, "key", k.String())
	e.unwatchAll(inst)
	err := e.runCleanups(inst)
	delete(e.instances, k)
	delete(e.unsolved, k)
	delete(e.deferred, k)
	for _, c := range inst.children.sorted() {
		delete(e.instances[c].parents, k)
		if rerr := e.release(c); rerr != nil && err == nil {
			err = rerr
		}
	}
	return err
}

// invalidate marks k and everything depending on it unsolved.
func (e *Env) invalidate(k Key) {
	if k.IsRoot() {
		return
	}
	inst, ok := e.instances[k]
	if !ok || inst.state == Solving {
		return
	}
	if _, queued := e.unsolved[k]; queued && inst.state == Unsolved {
		return
	}
	inst.state = Unsolved
	inst.value = nil
	e.unsolved[k] = struct{}{}
	for _, p := range inst.parents.sorted() {
		e.invalidate(p)
	}
}

func (e *Env) runCleanups(inst *instance) error {
	cleanups := inst.cleanups
	inst.cleanups = nil
	var errs []error
	for i := len(cleanups) - 1; i >= 0; i-- {
		if err := cleanups[i](e); err != nil {
			errs = append(errs, fmt.Errorf("cleanup of %s: %w", inst.key, err))
		}
	}
	return errors.Join(errs...)
}

func (e *Env) unwatchAll(inst *instance) {
	for _, w := range inst.watches {
		e.vars.Unwatch(w.handle)
	}
	inst.watches = map[string]watchEntry{}
}

func (e *Env) onChange(k Key) varstore.WatchFunc {
	return func(p varstore.Path) {
		inst, ok := e.instances[k]
		if !ok {
			return
		}
		if e.universe != nil {
			if inst.state != Solving {
				e.deferred[k] = struct{}{}
			}
			return
		}
		e.graph.logger.V(1).Info("variable changed", "env", e.id, "path", p.String(), "key", k.String())
		e.invalidate(k)
	}
}

// drain solves the worklist. Each round takes the deepest unsolved
// instances and branches over which of them to solve first. An instance
// whose every attempt prunes fails instead.
func (e *Env) drain() error {
	for len(e.unsolved) > 0 {
		candidates := e.deepest()
		k := candidates[0]
		if !e.graph.fixedOrder {
			k = candidates[e.universe.Choose(len(candidates))]
		}
		if e.universe.IfAny() {
			if _, err := e.evaluate(k); err != nil {
				return err
			}
		}
		if e.universe.ElseNone() {
			if err := e.fail(k); err != nil {
				return err
			}
		}
		if e.failure != nil {
			return e.failure
		}
	}
	return nil
}

func (e *Env) deepest() []Key {
	depth := -1
	var keys []Key
	for k := range e.unsolved {
		d := e.instances[k].depth
		switch {
		case d > depth:
			depth = d
			keys = append(keys[:0], k)
		case d == depth:
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })
	return keys
}

// settle ends a solving pass. Instances whose variables changed during
// the pass are left unsolved for the next one.
func (e *Env) settle() {
	e.universe = nil
	e.stack = nil
	e.ctx = context.Background()
	for _, k := range e.deferred.sorted() {
		e.invalidate(k)
	}
	e.deferred = keySet{}
}
