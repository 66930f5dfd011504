package varstore

import (
	"fmt"
	"sort"

	"github.com/operator-framework/amb/pkg/amb"
)

// Load writes a tree of nested maps below p. Maps become containers and
// every other value is put as a leaf, in sorted key order.
func (s *Store) Load(p Path, tree map[string]interface{}) error {
	if err := s.Mkdir(p); err != nil {
		return err
	}
	names := make([]string, 0, len(tree))
	for name := range tree {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		child := p.Child(name)
		switch v := tree[name].(type) {
		case map[string]interface{}:
			if err := s.Load(child, v); err != nil {
				return err
			}
		case map[interface{}]interface{}:
			converted := make(map[string]interface{}, len(v))
			for k, vv := range v {
				converted[fmt.Sprint(k)] = vv
			}
			if err := s.Load(child, converted); err != nil {
				return err
			}
		default:
			if err := s.Put(child, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// Tree returns a copy of the container at p as nested maps.
func (s *Store) Tree(p Path) (map[string]interface{}, error) {
	p, err := clean(p)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := s.lookup(p)
	if n == nil {
		return nil, &amb.MissingVariableError{Path: p.String()}
	}
	if !n.isContainer() {
		return nil, &amb.TypeConflictError{Path: p.String()}
	}
	return n.tree(), nil
}

func (n *node) tree() map[string]interface{} {
	out := make(map[string]interface{}, len(n.children))
	for name, child := range n.children {
		if child.isContainer() {
			out[name] = child.tree()
			continue
		}
		out[name] = child.value
	}
	return out
}
