// Package buckets solves the water jug puzzle: measure an exact amount
// using buckets of fixed sizes that can be filled, emptied and poured
// into one another.
package buckets

import (
	"errors"
	"fmt"

	"github.com/operator-framework/amb/pkg/amb/solver"
)

type move int

const (
	empty move = iota
	fill
	pour
)

// Diehard returns the moves of one way to get target units into a
// bucket. Universes revisiting a bucket state are pruned, so the search
// is finite.
func Diehard(u *solver.Universe, target int, sizes ...int) ([]string, error) {
	if len(sizes) == 0 {
		return nil, errors.New("at least one bucket is needed")
	}
	for _, size := range sizes {
		if size < 1 {
			return nil, fmt.Errorf("invalid bucket size %d", size)
		}
	}

	p := puzzle{target: target, sizes: sizes, buckets: make([]int, len(sizes))}
	visited := map[string]struct{}{p.state(): {}}
	for {
		action := solver.Choose(u, empty, fill, pour)
		b := u.Choose(len(sizes))
		if p.apply(u, action, b) {
			return p.moves, nil
		}
		state := p.state()
		if _, ok := visited[state]; ok {
			u.Prune()
		}
		visited[state] = struct{}{}
	}
}

type puzzle struct {
	target  int
	sizes   []int
	buckets []int
	moves   []string
}

func (p *puzzle) state() string {
	return fmt.Sprint(p.buckets)
}

// apply performs action on bucket b and reports whether the target was
// reached.
func (p *puzzle) apply(u *solver.Universe, action move, b int) bool {
	switch action {
	case empty:
		p.moves = append(p.moves, fmt.Sprintf("empty %d", p.sizes[b]))
		return p.put(b, 0)
	case fill:
		p.moves = append(p.moves, fmt.Sprintf("fill %d", p.sizes[b]))
		return p.put(b, p.sizes[b])
	}
	to := u.Choose(len(p.sizes))
	if to == b {
		u.Prune()
	}
	poured := min(p.buckets[b], p.sizes[to]-p.buckets[to])
	p.moves = append(p.moves, fmt.Sprintf("pour %d from %d to %d", poured, p.sizes[b], p.sizes[to]))
	return p.put(b, p.buckets[b]-poured) || p.put(to, p.buckets[to]+poured)
}

func (p *puzzle) put(b, value int) bool {
	p.buckets[b] = value
	if value == p.target {
		p.moves = append(p.moves, fmt.Sprintf("done %d == %d", p.sizes[b], p.target))
		return true
	}
	return false
}
