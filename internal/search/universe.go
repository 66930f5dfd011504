package search

import (
	"context"
	"fmt"

	"github.com/operator-framework/amb/pkg/amb"
)

// pruneSignal unwinds a universe on Prune. It is recovered by the driver
// and never escapes a search.
type pruneSignal struct{}

// fatalSignal unwinds a universe on an engine-detected fatal error raised
// from a call that has no error return.
type fatalSignal struct {
	err error
}

type effectKind int

const (
	// effectBranch enqueues a new pending path.
	effectBranch effectKind = iota
	// effectSplit adds n live universes to every enclosing marker.
	effectSplit
	// effectLock locks a marker.
	effectLock
	// effectPrune retires one universe from its enclosing markers.
	effectPrune
)

// effect is a pending mutation of shared search state. Universes only
// record effects; the driver applies them in queue order, so markers are
// never written by more than one goroutine.
type effect struct {
	kind   effectKind
	path   path
	scopes []*marker
	marker *marker
	n      int
}

// Universe is one candidate execution of a nondeterministic function.
// It is handed to the function on every run and is only valid for the
// duration of that run.
type Universe struct {
	ctx    context.Context
	id     amb.UniverseID
	path   path
	replay int
	cursor int
	scopes []*marker

	effects []effect
	pruned  bool
	failure error
}

func newUniverse(ctx context.Context, id amb.UniverseID, recorded path) *Universe {
	return &Universe{
		ctx: ctx,
		id:  id,
		// full slice expression so appends never write into the queue's copy
		path:   recorded[:len(recorded):len(recorded)],
		replay: len(recorded),
	}
}

// Context returns the context of the search running this universe.
func (u *Universe) Context() context.Context {
	return u.ctx
}

func (u *Universe) ID() amb.UniverseID {
	return u.id
}

// Replaying reports whether the next call site is still covered by the
// recorded path.
func (u *Universe) Replaying() bool {
	return u.cursor < u.replay
}

// Choose branches the universe over n options and returns the index
// taken by this universe. On first visit it returns 0 and records one
// pending path per remaining index; while replaying it returns the
// recorded index. Choose with no options prunes, as does any call made
// after the universe has pruned.
func (u *Universe) Choose(n int) int {
	u.live()
	site := u.cursor
	u.cursor++
	if site < u.replay {
		s := u.path[site]
		if s.marker != nil || s.branch >= n {
			u.fatal(fmt.Errorf("%w: choose over %d options at site %d", amb.ErrReplayDivergence, n, site))
		}
		return s.branch
	}
	if n <= 0 {
		u.Prune()
	}
	for i := 1; i < n; i++ {
		u.effects = append(u.effects, effect{kind: effectBranch, path: u.path.extend(step{branch: i})})
	}
	if n > 1 && len(u.scopes) > 0 {
		u.effects = append(u.effects, effect{kind: effectSplit, scopes: u.openScopes(), n: n - 1})
	}
	u.path = append(u.path, step{branch: 0})
	return 0
}

// Prune abandons the universe. It never returns.
func (u *Universe) Prune() {
	if !u.pruned {
		u.pruned = true
		u.effects = append(u.effects, effect{kind: effectPrune, scopes: u.openScopes(), path: u.path.prefix(len(u.path))})
	}
	panic(pruneSignal{})
}

// IfAny opens a universal-failure scope. It returns true while the block
// that follows should run, and false on the single synthetic path that
// exists once every expansion of the block has pruned.
//
//	if u.IfAny() {
//		...
//	}
//	if u.ElseNone() {
//		...
//	}
func (u *Universe) IfAny() bool {
	u.live()
	site := u.cursor
	u.cursor++
	var m *marker
	if site < u.replay {
		m = u.path[site].marker
		if m == nil {
			u.fatal(fmt.Errorf("%w: if_any at site %d", amb.ErrReplayDivergence, site))
		}
	} else {
		m = &marker{site: site, alive: 1, stands: true}
		u.path = append(u.path, step{marker: m})
	}
	u.scopes = append(u.scopes, m)
	return m.stands
}

// ElseNone closes the innermost scope opened by IfAny and reports
// whether the else block should run.
func (u *Universe) ElseNone() bool {
	u.live()
	if len(u.scopes) == 0 {
		u.fatal(amb.ErrUnbalancedScope)
	}
	m := u.scopes[len(u.scopes)-1]
	u.scopes = u.scopes[:len(u.scopes)-1]
	u.effects = append(u.effects, effect{kind: effectLock, marker: m})
	return !m.stands
}

// finish records a normal return. Scopes still open are treated as
// blocks that produced a result.
func (u *Universe) finish() {
	for _, m := range u.scopes {
		u.effects = append(u.effects, effect{kind: effectLock, marker: m})
	}
	u.scopes = nil
}

// live stops a universe that recovered from its own prune.
func (u *Universe) live() {
	if u.pruned {
		panic(pruneSignal{})
	}
}

func (u *Universe) fatal(err error) {
	if u.failure == nil {
		u.failure = err
	}
	panic(fatalSignal{err: err})
}

func (u *Universe) openScopes() []*marker {
	out := make([]*marker, len(u.scopes))
	copy(out, u.scopes)
	return out
}
