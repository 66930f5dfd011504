// Package sudoku fills 9x9 sudoku boards by branching over the digit of
// every empty cell. A SAT lookahead keeps only the digits that can still
// lead to a full board, so the first universe never prunes.
package sudoku

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"github.com/operator-framework/amb/internal/lookahead"
	"github.com/operator-framework/amb/pkg/amb/solver"
)

// Board holds digits 1..9, or 0 for an empty cell.
type Board [9][9]int

// lit is the variable for "cell row, col holds digit n" (n in 1..9).
func lit(row, col, n int) int {
	return row*81 + col*9 + n
}

// Clauses encodes the sudoku rules over 729 variables.
// adapted from: https://github.com/go-air/gini/blob/871d828a26852598db2b88f436549634ba9533ff/sudoku_test.go#L10
func Clauses() [][]int {
	var clauses [][]int

	// every position on the board has a number
	for row := 0; row < 9; row++ {
		for col := 0; col < 9; col++ {
			clause := make([]int, 9)
			for n := 1; n <= 9; n++ {
				clause[n-1] = lit(row, col, n)
			}
			clauses = append(clauses, clause)
		}
	}

	conflict := func(a, b int) {
		clauses = append(clauses, []int{-a, -b})
	}

	for n := 1; n <= 9; n++ {
		for i := 0; i < 9; i++ {
			for a := 0; a < 9; a++ {
				for b := a + 1; b < 9; b++ {
					// rows and columns have unique numbers
					conflict(lit(i, a, n), lit(i, b, n))
					conflict(lit(a, i, n), lit(b, i, n))
				}
			}
		}
	}

	// every box rooted at x, y has unique numbers
	offs := []struct{ x, y int }{{0, 0}, {0, 1}, {0, 2}, {1, 0}, {1, 1}, {1, 2}, {2, 0}, {2, 1}, {2, 2}}
	for x := 0; x < 9; x += 3 {
		for y := 0; y < 9; y += 3 {
			for n := 1; n <= 9; n++ {
				for i, offA := range offs {
					for _, offB := range offs[i+1:] {
						conflict(lit(x+offA.x, y+offA.y, n), lit(x+offB.x, y+offB.y, n))
					}
				}
			}
		}
	}
	return clauses
}

// NewChecker returns a lookahead loaded with the sudoku rules.
func NewChecker() (*lookahead.Checker, error) {
	return lookahead.New(9*9*9, Clauses())
}

// Fill completes puzzle. Empty cells are filled in row-major order; each
// branches over the digits the checker still accepts, shuffled by seed
// when seed is not zero.
func Fill(u *solver.Universe, check *lookahead.Checker, puzzle Board, seed int64) (Board, error) {
	// a fresh source per run keeps replays deterministic
	var rng *rand.Rand
	if seed != 0 {
		rng = rand.New(rand.NewSource(seed))
	}

	var assumed []int
	for row := 0; row < 9; row++ {
		for col := 0; col < 9; col++ {
			if n := puzzle[row][col]; n != 0 {
				assumed = append(assumed, lit(row, col, n))
			}
		}
	}

	board := puzzle
	for row := 0; row < 9; row++ {
		for col := 0; col < 9; col++ {
			if board[row][col] != 0 {
				continue
			}
			digits := []int{1, 2, 3, 4, 5, 6, 7, 8, 9}
			if rng != nil {
				rng.Shuffle(len(digits), func(i, j int) { digits[i], digits[j] = digits[j], digits[i] })
			}
			var candidates []int
			for _, n := range digits {
				ok, err := check.Satisfiable(append(assumed, lit(row, col, n))...)
				if err != nil {
					return Board{}, err
				}
				if ok {
					candidates = append(candidates, n)
				}
			}
			n := solver.Choose(u, candidates...)
			board[row][col] = n
			assumed = append(assumed, lit(row, col, n))
		}
	}
	return board, nil
}

// Parse reads 81 cells, ignoring whitespace. Digits 1-9 are givens; '.'
// and '0' are empty cells.
func Parse(s string) (Board, error) {
	var b Board
	i := 0
	for _, r := range s {
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			continue
		case r == '.' || r == '0':
		case r >= '1' && r <= '9':
			if i < 81 {
				b[i/9][i%9] = int(r - '0')
			}
		default:
			return Board{}, fmt.Errorf("invalid cell %q", r)
		}
		i++
	}
	if i != 81 {
		return Board{}, fmt.Errorf("board has %d cells, expected 81", i)
	}
	return b, nil
}

// Valid reports whether b is a complete board that follows the rules.
func (b Board) Valid() bool {
	for i := 0; i < 9; i++ {
		var row, col, box [10]bool
		for j := 0; j < 9; j++ {
			r, c := b[i][j], b[j][i]
			x := b[3*(i/3)+j/3][3*(i%3)+j%3]
			if r == 0 || c == 0 || x == 0 || row[r] || col[c] || box[x] {
				return false
			}
			row[r], col[c], box[x] = true, true, true
		}
	}
	return true
}

func (b Board) String() string {
	var sb strings.Builder
	for _, row := range b {
		for col, n := range row {
			if col != 0 {
				sb.WriteByte(' ')
			}
			if n == 0 {
				sb.WriteByte('.')
			} else {
				sb.WriteByte(byte('0' + n))
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Solve returns the first completion of puzzle. The boolean is false
// when the puzzle has none.
func Solve(ctx context.Context, puzzle Board, seed int64, options ...solver.Option) (Board, bool, error) {
	check, err := NewChecker()
	if err != nil {
		return Board{}, false, err
	}
	return solver.First(ctx, func(u *solver.Universe) (Board, error) {
		return Fill(u, check, puzzle, seed)
	}, options...)
}
