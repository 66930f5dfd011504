package solver

import (
	"context"
	"iter"

	"github.com/operator-framework/amb/internal/search"
)

// Universe is one candidate execution handed to a nondeterministic
// function. See Choose, Universe.Prune, Universe.IfAny and
// Universe.ElseNone.
type Universe = search.Universe

type Option = search.Option

var (
	WithWorkers      = search.WithWorkers
	WithTracer       = search.WithTracer
	WithLogger       = search.WithLogger
	WithMaxUniverses = search.WithMaxUniverses
	WithMaxSolutions = search.WithMaxSolutions
	WithIDProvider   = search.WithIDProvider
)

// Solve returns the lazy sequence of values returned by fn across every
// universe that was not pruned. The function is re-run from the start for
// each universe; anything it does before its last recorded choice is done
// again and must be idempotent.
//
// A fatal error is yielded once, with the zero value, and ends the
// sequence.
func Solve[T any](ctx context.Context, fn func(u *Universe) (T, error), options ...Option) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		s, err := search.New(func(u *search.Universe) (interface{}, error) {
			return fn(u)
		}, options...)
		if err != nil {
			yield(zero, err)
			return
		}
		stopped := false
		err = s.Run(ctx, func(v interface{}) bool {
			t, _ := v.(T)
			if !yield(t, nil) {
				stopped = true
				return false
			}
			return true
		})
		if err != nil && !stopped {
			yield(zero, err)
		}
	}
}

// All collects every solution of fn.
func All[T any](ctx context.Context, fn func(u *Universe) (T, error), options ...Option) ([]T, error) {
	var out []T
	for v, err := range Solve(ctx, fn, options...) {
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, nil
}

// First returns the first solution of fn in breadth-first order. The
// boolean is false when every universe pruned.
func First[T any](ctx context.Context, fn func(u *Universe) (T, error), options ...Option) (T, bool, error) {
	for v, err := range Solve(ctx, fn, append(options, WithMaxSolutions(1))...) {
		if err != nil {
			var zero T
			return zero, false, err
		}
		return v, true, nil
	}
	var zero T
	return zero, false, nil
}

// Choose branches u over options and returns the option taken by this
// universe. With no options the universe is pruned.
func Choose[T any](u *Universe, options ...T) T {
	return options[u.Choose(len(options))]
}
