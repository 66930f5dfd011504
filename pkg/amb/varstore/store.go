package varstore

import (
	"errors"
	"sort"
	"sync"

	"github.com/operator-framework/amb/pkg/amb"
)

// WatchFunc is called with the path that changed.
type WatchFunc func(p Path)

// Handle identifies a registered watch.
type Handle uint64

type watch struct {
	handle Handle
	fn     WatchFunc
}

// Store is a hierarchical namespace of values. Mutations notify the
// watchers registered on exactly the mutated path. Watchers are called
// synchronously, after the mutation completed and the store lock was
// released, so they may read from or write to the store.
type Store struct {
	mu       sync.RWMutex
	root     *node
	watchers map[string][]watch
	paths    map[Handle]string
	next     Handle
}

func New() *Store {
	return &Store{
		root:     newContainer(),
		watchers: map[string][]watch{},
		paths:    map[Handle]string{},
	}
}

// Get returns the value stored at p. Containers have no value.
func (s *Store) Get(p Path) (interface{}, error) {
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
	if n.isContainer() {
		return nil, &amb.TypeConflictError{Path: p.String(), Container: true}
	}
	return n.value, nil
}

// GetDefault is Get, returning def when p does not exist.
func (s *Store) GetDefault(p Path, def interface{}) (interface{}, error) {
	v, err := s.Get(p)
	var missing *amb.MissingVariableError
	if errors.As(err, &missing) {
		return def, nil
	}
	return v, err
}

// Exists reports whether p names a value or a container.
func (s *Store) Exists(p Path) bool {
	p, err := clean(p)
	if err != nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookup(p) != nil
}

// Put stores v at p, creating missing containers on the way.
func (s *Store) Put(p Path, v interface{}) error {
	p, err := clean(p)
	if err != nil {
		return err
	}
	if len(p) == 0 {
		return &amb.TypeConflictError{Path: p.String(), Container: true}
	}
	changed, err := s.put(p, v)
	s.notify(changed)
	return err
}

func (s *Store) put(p Path, v interface{}) ([]Path, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	parent, changed, err := s.mkdirs(p.Parent())
	if err != nil {
		return changed, err
	}
	if n, ok := parent.children[p.Name()]; ok && n.isContainer() {
		return changed, &amb.TypeConflictError{Path: p.String(), Container: true}
	}
	parent.children[p.Name()] = &node{value: v}
	return append(changed, p), nil
}

// Mkdir creates a container at p. Creating an existing container is a
// no-op and notifies nobody.
func (s *Store) Mkdir(p Path) error {
	p, err := clean(p)
	if err != nil {
		return err
	}
	changed, err := s.mkdir(p)
	s.notify(changed)
	return err
}

func (s *Store) mkdir(p Path) ([]Path, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(p) == 0 {
		return nil, nil
	}
	parent, changed, err := s.mkdirs(p.Parent())
	if err != nil {
		return changed, err
	}
	if n, ok := parent.children[p.Name()]; ok {
		if !n.isContainer() {
			return changed, &amb.TypeConflictError{Path: p.String()}
		}
		return changed, nil
	}
	parent.children[p.Name()] = newContainer()
	return append(changed, p), nil
}

// mkdirs walks to the container at p, creating missing containers. Every
// created container changes the listing of its parent, so the parent's
// path is reported as changed.
func (s *Store) mkdirs(p Path) (*node, []Path, error) {
	var changed []Path
	n := s.root
	for i, name := range p {
		child, ok := n.children[name]
		if !ok {
			child = newContainer()
			n.children[name] = child
			changed = append(changed, p[:i:i])
		} else if !child.isContainer() {
			return nil, changed, &amb.TypeConflictError{Path: p[:i+1].String()}
		}
		n = child
	}
	return n, changed, nil
}

// Remove deletes the value or the whole container at p.
func (s *Store) Remove(p Path) error {
	p, err := clean(p)
	if err != nil {
		return err
	}
	if err := s.remove(p); err != nil {
		return err
	}
	s.notify([]Path{p})
	return nil
}

// Clear is Remove without notifications. Clearing a missing path is not
// an error.
func (s *Store) Clear(p Path) error {
	p, err := clean(p)
	if err != nil {
		return err
	}
	err = s.remove(p)
	var missing *amb.MissingVariableError
	if errors.As(err, &missing) {
		return nil
	}
	return err
}

func (s *Store) remove(p Path) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(p) == 0 {
		s.root = newContainer()
		return nil
	}
	parent := s.lookup(p.Parent())
	if parent == nil || !parent.isContainer() {
		return &amb.MissingVariableError{Path: p.String()}
	}
	if _, ok := parent.children[p.Name()]; !ok {
		return &amb.MissingVariableError{Path: p.String()}
	}
	delete(parent.children, p.Name())
	return nil
}

// List returns the sorted names held by the container at p.
func (s *Store) List(p Path) ([]string, error) {
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
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Watch registers fn to be called whenever p is put, removed or created.
// The path does not need to exist.
func (s *Store) Watch(p Path, fn WatchFunc) (Handle, error) {
	p, err := clean(p)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	key := p.key()
	s.watchers[key] = append(s.watchers[key], watch{handle: s.next, fn: fn})
	s.paths[s.next] = key
	return s.next, nil
}

// Unwatch removes a watch. Unknown or already removed handles are
// ignored.
func (s *Store) Unwatch(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.paths[h]
	if !ok {
		return
	}
	delete(s.paths, h)
	ws := s.watchers[key]
	for i, w := range ws {
		if w.handle == h {
			ws = append(ws[:i:i], ws[i+1:]...)
			break
		}
	}
	if len(ws) == 0 {
		delete(s.watchers, key)
		return
	}
	s.watchers[key] = ws
}

// Watched returns the number of registered watches.
func (s *Store) Watched() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.paths)
}

// Clone returns a deep copy of the stored data. Watches are not copied.
func (s *Store) Clone() *Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := New()
	c.root = s.root.clone()
	return c
}

func (s *Store) notify(paths []Path) {
	for _, p := range paths {
		s.mu.RLock()
		ws := append([]watch(nil), s.watchers[p.key()]...)
		s.mu.RUnlock()
		for _, w := range ws {
			w.fn(p)
		}
	}
}

func (s *Store) lookup(p Path) *node {
	n := s.root
	for _, name := range p {
		if !n.isContainer() {
			return nil
		}
		child, ok := n.children[name]
		if !ok {
			return nil
		}
		n = child
	}
	return n
}

type node struct {
	value    interface{}
	children map[string]*node
}

func newContainer() *node {
	return &node{children: map[string]*node{}}
}

func (n *node) isContainer() bool {
	return n.children != nil
}

func (n *node) clone() *node {
	if !n.isContainer() {
		return &node{value: n.value}
	}
	c := newContainer()
	for name, child := range n.children {
		c.children[name] = child.clone()
	}
	return c
}
