// Package lookahead answers "can this partial assignment still be
// extended to a model?" for a fixed CNF formula. Search code uses it to
// prune a branch as soon as it becomes hopeless instead of at its leaf.
package lookahead

import (
	"fmt"
	"sync"

	"github.com/go-air/gini"
	"github.com/go-air/gini/z"
)

// Checker wraps an incremental SAT solver loaded with a formula.
// Literals use the DIMACS convention: variable v is v, its negation -v.
type Checker struct {
	mu        sync.Mutex
	g         *gini.Gini
	variables int
	checks    int
}

// New loads clauses over variables 1..variables.
func New(variables int, clauses [][]int) (*Checker, error) {
	g := gini.New()
	for i, clause := range clauses {
		if len(clause) == 0 {
			return nil, fmt.Errorf("clause %d is empty", i)
		}
		for _, lit := range clause {
			if err := validLit(lit, variables); err != nil {
				return nil, fmt.Errorf("clause %d: %w", i, err)
			}
			g.Add(z.Dimacs2Lit(lit))
		}
		g.Add(z.LitNull)
	}
	return &Checker{g: g, variables: variables}, nil
}

// Satisfiable reports whether the formula has a model in which every
// assumed literal holds. It is safe for concurrent use.
func (c *Checker) Satisfiable(assumed ...int) (bool, error) {
	ms := make([]z.Lit, 0, len(assumed))
	for _, lit := range assumed {
		if err := validLit(lit, c.variables); err != nil {
			return false, err
		}
		ms = append(ms, z.Dimacs2Lit(lit))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks++
	c.g.Assume(ms...)
	return c.g.Solve() == 1, nil
}

// Checks returns how many times Satisfiable ran the solver.
func (c *Checker) Checks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checks
}

func validLit(lit, variables int) error {
	if lit == 0 {
		return fmt.Errorf("0 is not a valid literal")
	}
	if lit > variables || lit < -variables {
		return fmt.Errorf("literal %d is out of range 1..%d", lit, variables)
	}
	return nil
}
