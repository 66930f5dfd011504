package predicate

import (
	"fmt"
	"sort"

	"github.com/operator-framework/amb/pkg/amb/varstore"
)

type State int

const (
	// Absent is reported for keys with no instance.
	Absent State = iota
	Unsolved
	Solving
	Solved
	Failed
)

func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case Unsolved:
		return "unsolved"
	case Solving:
		return "solving"
	case Solved:
		return "solved"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// CleanupFunc undoes a change made by a predicate body. It is called
// with the environment destroying or re-solving the instance.
type CleanupFunc func(env *Env) error

type watchEntry struct {
	path   varstore.Path
	handle varstore.Handle
}

type keySet map[Key]struct{}

func (s keySet) sorted() []Key {
	out := make([]Key, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].less(out[j]) })
	return out
}

func (s keySet) clone() keySet {
	out := make(keySet, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

type instance struct {
	key   Key
	args  Args
	state State
	value interface{}
	depth int

	parents  keySet
	children keySet
	cleanups []CleanupFunc
	watches  map[string]watchEntry
}

func newInstance(key Key, args Args) *instance {
	return &instance{
		key:      key,
		args:     args,
		state:    Unsolved,
		parents:  keySet{},
		children: keySet{},
		watches:  map[string]watchEntry{},
	}
}

// clone copies the instance. Watch handles are copied as is and must be
// re-registered by the caller.
func (i *instance) clone() *instance {
	c := *i
	c.parents = i.parents.clone()
	c.children = i.children.clone()
	c.cleanups = append([]CleanupFunc(nil), i.cleanups...)
	c.watches = make(map[string]watchEntry, len(i.watches))
	for k, w := range i.watches {
		c.watches[k] = w
	}
	return &c
}
