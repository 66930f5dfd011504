package amb

import (
	"errors"
	"fmt"
	"strings"
)

// Outcome is the tagged result of running a universe. Prune travels
// through this channel only and is never reported as an error.
type Outcome int

const (
	// Continue marks a universe that is still running, e.g. at the
	// point where it split into new branches.
	Continue Outcome = iota
	// Pruned marks a universe that was abandoned.
	Pruned
	// Solved marks a universe whose function returned normally.
	Solved
)

func (o Outcome) String() string {
	switch o {
	case Continue:
		return "continue"
	case Pruned:
		return "pruned"
	case Solved:
		return "solved"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// UniverseID values identify a single run of a nondeterministic
// function within a search.
type UniverseID string

func (id UniverseID) String() string {
	return string(id)
}

// IDProvider hands out universe identifiers.
type IDProvider interface {
	NextID() UniverseID
}

var (
	// ErrReplayDivergence is returned when a function does not make the
	// same calls while fast-forwarding through a recorded choice path,
	// which happens when it depends on something other than its choices.
	ErrReplayDivergence = errors.New("replay diverged from the recorded choice path")

	// ErrUnbalancedScope is returned when ElseNone is called without a
	// matching IfAny.
	ErrUnbalancedScope = errors.New("else_none without matching if_any")

	// ErrUniverseLimit is returned when the configured universe budget is
	// exhausted while unexplored paths remain.
	ErrUniverseLimit = errors.New("universe limit reached before the search was exhausted")

	// ErrInvalidPath is returned for variable paths with empty segments.
	ErrInvalidPath = errors.New("invalid variable path")

	// ErrNoCurrentInstance is returned by predicate operations that need a
	// solving predicate instance when called from outside one.
	ErrNoCurrentInstance = errors.New("no predicate instance is being solved")

	// ErrUnsatisfiable is returned when no solving pass keeps every goal
	// of a predicate graph.
	ErrUnsatisfiable = errors.New("no environment satisfies every goal")

	// ErrStaleCandidate is returned when applying an environment that was
	// not derived from the current baseline.
	ErrStaleCandidate = errors.New("environment was not derived from the current baseline")
)

// CycleError reports a predicate instance that requires itself, directly
// or transitively.
type CycleError struct {
	Key   string
	Chain []string
}

func (e *CycleError) Error() string {
	if len(e.Chain) == 0 {
		return fmt.Sprintf("circular dependency on predicate %s", e.Key)
	}
	return fmt.Sprintf("circular dependency on predicate %s: %s", e.Key, strings.Join(e.Chain, " -> "))
}

// UnknownPredicateError reports a require of a predicate name that was
// never registered.
type UnknownPredicateError struct {
	Name string
}

func (e *UnknownPredicateError) Error() string {
	return fmt.Sprintf("undefined predicate %q", e.Name)
}

// TypeConflictError reports a variable path used both as a leaf and as a
// container.
type TypeConflictError struct {
	Path string
	// Container is true when the existing node at Path is a container.
	Container bool
}

func (e *TypeConflictError) Error() string {
	if e.Container {
		return fmt.Sprintf("variable %q is a container, not a value", e.Path)
	}
	return fmt.Sprintf("variable %q is a value, not a container", e.Path)
}

// MissingVariableError reports a lookup of a variable that does not exist.
type MissingVariableError struct {
	Path string
}

func (e *MissingVariableError) Error() string {
	return fmt.Sprintf("variable %q not found", e.Path)
}

// PanicError wraps a panic raised by client or predicate code. It is
// fatal: it aborts the search like any other error.
type PanicError struct {
	Value      interface{}
	StackTrace []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic during search: %v", e.Value)
}

// Unwrap exposes a panicked error value to errors.Is and errors.As.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
