// Package queens places n non-attacking queens on an n×n board.
package queens

import (
	"fmt"
	"strings"

	"github.com/operator-framework/amb/pkg/amb/solver"
)

// Solve places one queen per row, branching over its column. The
// returned board holds the column of the queen in each row.
func Solve(u *solver.Universe, n int) ([]int, error) {
	if n < 1 {
		return nil, fmt.Errorf("invalid board size %d", n)
	}
	board := make([]int, 0, n)
	for row := 0; row < n; row++ {
		col := u.Choose(n)
		if Attacked(board, row, col) {
			u.Prune()
		}
		board = append(board, col)
	}
	return board, nil
}

// Attacked reports whether a queen at row, col is attacked by the queens
// already on board.
func Attacked(board []int, row, col int) bool {
	for r, c := range board {
		if c == col || c+r == col+row || c-r == col-row {
			return true
		}
	}
	return false
}

func Format(board []int) string {
	var b strings.Builder
	for _, queen := range board {
		for col := range board {
			if col == queen {
				b.WriteByte('Q')
			} else {
				b.WriteByte('.')
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}
