package dimacs

import (
	"context"

	"github.com/operator-framework/amb/internal/lookahead"
	"github.com/operator-framework/amb/pkg/amb/solver"
)

// Assign branches u over a truth value for every variable, true first,
// and returns the model as DIMACS literals. With a checker, a branch is
// pruned as soon as its partial assignment has no model.
func Assign(u *solver.Universe, p *Problem, check *lookahead.Checker) ([]int, error) {
	model := make([]int, 0, p.Variables)
	for v := 1; v <= p.Variables; v++ {
		model = append(model, solver.Choose(u, v, -v))
		if check == nil {
			continue
		}
		ok, err := check.Satisfiable(model...)
		if err != nil {
			return nil, err
		}
		if !ok {
			u.Prune()
		}
	}
	if check == nil && !p.Satisfied(model) {
		u.Prune()
	}
	return model, nil
}

// Satisfied reports whether every clause holds under model.
func (p *Problem) Satisfied(model []int) bool {
	truth := make(map[int]bool, len(model))
	for _, lit := range model {
		truth[lit] = true
	}
	for _, clause := range p.Clauses {
		ok := false
		for _, lit := range clause {
			if truth[lit] {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// Models enumerates the models of p in breadth-first order.
func Models(ctx context.Context, p *Problem, options ...solver.Option) ([][]int, error) {
	check, err := lookahead.New(p.Variables, p.Clauses)
	if err != nil {
		return nil, err
	}
	return solver.All(ctx, func(u *solver.Universe) ([]int, error) {
		return Assign(u, p, check)
	}, options...)
}
