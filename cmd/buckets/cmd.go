package buckets

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/operator-framework/amb/cmd/options"
	"github.com/operator-framework/amb/internal/examples/buckets"
	"github.com/operator-framework/amb/pkg/amb/solver"
)

func NewBucketsCommand(opts *options.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "buckets <target> <size>...",
		Short: "Measures target units of water with buckets of the given sizes",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			numbers := make([]int, len(args))
			for i, arg := range args {
				n, err := strconv.Atoi(arg)
				if err != nil {
					return fmt.Errorf("invalid number (%s): %w", arg, err)
				}
				numbers[i] = n
			}
			moves, ok, err := solver.First(cmd.Context(), func(u *solver.Universe) ([]string, error) {
				return buckets.Diehard(u, numbers[0], numbers[1:]...)
			}, opts.SolverOptions()...)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !ok {
				fmt.Fprintln(out, "no solution found")
				return nil
			}
			for _, m := range moves {
				fmt.Fprintln(out, m)
			}
			return nil
		},
	}
}
