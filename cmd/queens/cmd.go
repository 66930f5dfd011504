package queens

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/operator-framework/amb/cmd/options"
	"github.com/operator-framework/amb/internal/examples/queens"
	"github.com/operator-framework/amb/pkg/amb/solver"
)

func NewQueensCommand(opts *options.Options) *cobra.Command {
	var count bool
	cmd := &cobra.Command{
		Use:   "queens [n]",
		Short: "Places n non-attacking queens on an n×n board",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n := 8
			if len(args) == 1 {
				var err error
				if n, err = strconv.Atoi(args[0]); err != nil {
					return fmt.Errorf("invalid board size (%s): %w", args[0], err)
				}
			}

			out := cmd.OutOrStdout()
			found := 0
			for board, err := range solver.Solve(cmd.Context(), func(u *solver.Universe) ([]int, error) {
				return queens.Solve(u, n)
			}, opts.SolverOptions()...) {
				if err != nil {
					return err
				}
				if !count {
					if found > 0 {
						fmt.Fprintln(out)
					}
					fmt.Fprint(out, queens.Format(board))
				}
				found++
			}
			if count {
				fmt.Fprintln(out, found)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&count, "count", false, "print the number of solutions only")
	return cmd
}
