package sudoku

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/operator-framework/amb/cmd/options"
	"github.com/operator-framework/amb/internal/examples/sudoku"
)

func NewSudokuCommand(opts *options.Options) *cobra.Command {
	var seed int64
	cmd := &cobra.Command{
		Use:   "sudoku [puzzle]",
		Short: "Returns a solved sudoku board",
		Long: `Returns a solved sudoku board. The optional puzzle lists the 81 cells
row by row, with '.' or '0' for empty cells. Without a puzzle an empty
board is filled; --seed shuffles the digits tried in every cell.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var puzzle sudoku.Board
			if len(args) == 1 {
				var err error
				if puzzle, err = sudoku.Parse(strings.Join(args, "")); err != nil {
					return err
				}
			}
			board, ok, err := sudoku.Solve(cmd.Context(), puzzle, seed, opts.SolverOptions()...)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "no solution found")
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), board)
			return nil
		},
	}
	cmd.Flags().Int64Var(&seed, "seed", 0, "shuffle digits with this seed (0 keeps them in order)")
	return cmd
}
