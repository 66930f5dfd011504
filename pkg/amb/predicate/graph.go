package predicate

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/operator-framework/amb/pkg/amb"
	"github.com/operator-framework/amb/pkg/amb/solver"
	"github.com/operator-framework/amb/pkg/amb/varstore"
)

// Graph holds the committed baseline of a predicate graph. Goals are
// required on the baseline; Solve explores the ways of solving them and
// Apply commits one of the results.
type Graph struct {
	registry   *Registry
	env        *Env
	vars       *varstore.Store
	logger     logr.Logger
	tracer     trace.Tracer
	ids        amb.IDProvider
	fixedOrder bool
}

func New(registry *Registry, options ...Option) (*Graph, error) {
	if registry == nil {
		return nil, errors.New("registry must not be nil")
	}
	g := &Graph{registry: registry, logger: logr.Discard()}
	for _, option := range append(options, defaults...) {
		if err := option(g); err != nil {
			return nil, err
		}
	}
	g.env = newEnv(g, g.vars)
	return g, nil
}

// Env returns the baseline environment.
func (g *Graph) Env() *Env {
	return g.env
}

// Vars returns the variable store of the baseline. Changes to watched
// variables immediately mark the depending instances unsolved.
func (g *Graph) Vars() *varstore.Store {
	return g.env.vars
}

func (g *Graph) Registry() *Registry {
	return g.registry
}

// Define registers fn as name and marks existing instances of name
// unsolved, so the next pass solves them with the new definition.
func (g *Graph) Define(name string, fn Func) error {
	if err := g.registry.Register(name, fn); err != nil {
		return err
	}
	for _, k := range g.env.Keys() {
		if k.Name == name {
			g.env.invalidate(k)
		}
	}
	return nil
}

// Require adds name(args...) as a goal of the graph.
func (g *Graph) Require(name string, args ...interface{}) error {
	_, err := g.RequireArgs(name, Args{Positional: args})
	return err
}

func (g *Graph) RequireArgs(name string, args Args) (Key, error) {
	return g.env.require(name, args)
}

// Release drops the goal name(args...). Instances no longer required by
// anything are destroyed and their cleanups run against the baseline.
func (g *Graph) Release(name string, args ...interface{}) error {
	k, err := NewKey(name, Args{Positional: args})
	if err != nil {
		return err
	}
	root := g.env.instances[Key{}]
	if _, ok := root.children[k]; !ok {
		return fmt.Errorf("%s is not a goal", k)
	}
	delete(root.children, k)
	delete(g.env.instances[k].parents, Key{})
	return g.env.release(k)
}

// Solve returns the lazy sequence of environments in which every goal
// is solved. Each one is solved from a private copy of the baseline
// taken when the iteration starts.
func (g *Graph) Solve(ctx context.Context, options ...solver.Option) iter.Seq2[*Env, error] {
	return func(yield func(*Env, error) bool) {
		base := g.env
		opts := append([]solver.Option{solver.WithLogger(g.logger)}, options...)
		for env, err := range solver.Solve(ctx, func(u *solver.Universe) (*Env, error) {
			return g.solve(base, u)
		}, opts...) {
			if !yield(env, err) {
				return
			}
		}
	}
}

func (g *Graph) solve(base *Env, u *solver.Universe) (*Env, error) {
	ctx, span := g.tracer.Start(u.Context(), "predicate.universe", trace.WithAttributes(
		attribute.String("amb.universe", u.ID().String()),
	))
	defer span.End()

	env := base.clone()
	env.universe = u
	env.ctx = ctx
	if err := env.drain(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	env.settle()
	span.SetAttributes(
		attribute.String("amb.env", env.id.String()),
		attribute.Bool("amb.converged", env.Converged()),
	)
	g.logger.V(1).Info("environment solved", "env", env.id, "universe", u.ID(), "converged", env.Converged())
	return env, nil
}

// Apply promotes a candidate yielded by Solve to the new baseline. Only
// candidates solved from the current baseline are accepted.
func (g *Graph) Apply(ctx context.Context, candidate *Env) error {
	_, span := g.tracer.Start(ctx, "predicate.apply")
	defer span.End()
	if candidate == nil || candidate.base != g.env || candidate.universe != nil {
		span.SetStatus(codes.Error, amb.ErrStaleCandidate.Error())
		return amb.ErrStaleCandidate
	}
	span.SetAttributes(attribute.String("amb.env", candidate.id.String()))
	candidate.base = nil
	g.env = candidate
	g.logger.V(1).Info("environment applied", "env", candidate.id, "unsolved", len(candidate.unsolved))
	return nil
}

// Resolve solves the graph and applies the first candidate.
func (g *Graph) Resolve(ctx context.Context, options ...solver.Option) (*Env, error) {
	for env, err := range g.Solve(ctx, append(options, solver.WithMaxSolutions(1))...) {
		if err != nil {
			return nil, err
		}
		if err := g.Apply(ctx, env); err != nil {
			return nil, err
		}
		return env, nil
	}
	return nil, amb.ErrUnsatisfiable
}
