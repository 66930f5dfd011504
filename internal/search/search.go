package search

import (
	"context"
	"errors"
	"runtime/debug"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/operator-framework/amb/pkg/amb"
)

// Func is a nondeterministic function. It is re-run from the start for
// every universe, fast-forwarding through the choices recorded for that
// universe, so anything it does before its last recorded choice happens
// again on every run.
type Func func(u *Universe) (interface{}, error)

// Search explores every universe of a Func breadth first.
type Search struct {
	fn     Func
	queue  queue
	tracer amb.Tracer
	logger logr.Logger
	ids    amb.IDProvider

	workers      int
	maxUniverses int
	maxSolutions int

	explored  int
	solutions int
}

type result struct {
	u       *Universe
	value   interface{}
	outcome amb.Outcome
	err     error
}

func New(fn Func, options ...Option) (*Search, error) {
	if fn == nil {
		return nil, errors.New("search function must not be nil")
	}
	s := Search{fn: fn, logger: logr.Discard()}
	for _, option := range append(options, defaults...) {
		if err := option(&s); err != nil {
			return nil, err
		}
	}
	return &s, nil
}

// Run drains the pending-path queue, starting from the empty path, and
// passes the value of every solved universe to yield. Pruned universes
// are discarded. Run stops at the first fatal error, when yield returns
// false, or when a budget is reached.
func (s *Search) Run(ctx context.Context, yield func(interface{}) bool) error {
	s.queue.reset()
	s.queue.push(path{})
	s.explored, s.solutions = 0, 0

	for s.queue.len() > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.maxUniverses > 0 && s.explored >= s.maxUniverses {
			return amb.ErrUniverseLimit
		}
		for _, r := range s.runBatch(ctx, s.next()) {
			s.explored++
			if r.err != nil {
				s.logger.Error(r.err, "search aborted", "universe", r.u.id, "path", r.u.path.indices())
				return r.err
			}
			s.merge(r)
			if r.outcome != amb.Solved {
				continue
			}
			s.solutions++
			if !yield(r.value) {
				return nil
			}
			if s.maxSolutions > 0 && s.solutions >= s.maxSolutions {
				return nil
			}
		}
	}
	return nil
}

// Explored returns the number of universes run by the last Run.
func (s *Search) Explored() int {
	return s.explored
}

func (s *Search) next() []path {
	n := s.workers
	if s.maxUniverses > 0 && s.maxUniverses-s.explored < n {
		n = s.maxUniverses - s.explored
	}
	if q := s.queue.len(); q < n {
		n = q
	}
	batch := make([]path, n)
	for i := range batch {
		batch[i] = s.queue.pop()
	}
	return batch
}

func (s *Search) runBatch(ctx context.Context, batch []path) []result {
	ids := make([]amb.UniverseID, len(batch))
	for i := range batch {
		ids[i] = s.ids.NextID()
	}
	results := make([]result, len(batch))
	if len(batch) == 1 {
		results[0] = s.run(ctx, ids[0], batch[0])
		return results
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range batch {
		i := i
		g.Go(func() error {
			results[i] = s.run(gctx, ids[i], batch[i])
			return results[i].err
		})
	}
	// errors are reported per result, in queue order
	_ = g.Wait()
	return results
}

func (s *Search) run(ctx context.Context, id amb.UniverseID, recorded path) (res result) {
	u := newUniverse(ctx, id, recorded)
	res.u = u
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		switch sig := r.(type) {
		case pruneSignal:
			res.outcome = amb.Pruned
		case fatalSignal:
			res.err = sig.err
		default:
			res.err = &amb.PanicError{Value: r, StackTrace: debug.Stack()}
		}
	}()

	value, err := s.fn(u)
	switch {
	case u.failure != nil:
		res.err = u.failure
	case u.pruned:
		// the function recovered the prune signal itself
		res.outcome = amb.Pruned
	case err != nil:
		res.err = err
	default:
		u.finish()
		res.value = value
		res.outcome = amb.Solved
	}
	return res
}

// merge applies the effects recorded by a universe, in the order it
// recorded them.
func (s *Search) merge(r result) {
	branched := 0
	for _, e := range r.u.effects {
		switch e.kind {
		case effectBranch:
			s.queue.push(e.path)
			branched++
		case effectSplit:
			for _, m := range e.scopes {
				m.alive += e.n
			}
		case effectLock:
			e.marker.locked = true
		case effectPrune:
			s.retire(e.scopes, e.path)
		}
	}

	indices := r.u.path.indices()
	if branched > 0 {
		s.logger.V(2).Info("universe branched", "universe", r.u.id, "branches", branched, "pending", s.queue.len())
		s.tracer.Trace(position{id: r.u.id, path: indices, outcome: amb.Continue, pending: s.queue.len()})
	}
	s.logger.V(1).Info("universe finished", "universe", r.u.id, "path", indices, "outcome", r.outcome.String())
	s.tracer.Trace(position{id: r.u.id, path: indices, outcome: r.outcome, pending: s.queue.len()})
}

// retire removes a pruned universe from its enclosing scopes, innermost
// first. The first unlocked scope left with no live universe flips to
// its else block, and the else path takes the pruned universe's place in
// the scopes around it.
func (s *Search) retire(scopes []*marker, p path) {
	for i := len(scopes) - 1; i >= 0; i-- {
		m := scopes[i]
		m.alive--
		if m.alive == 0 && !m.locked {
			m.stands = false
			s.queue.push(p.prefix(m.site + 1))
			return
		}
	}
}
