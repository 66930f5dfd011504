package root

import (
	"github.com/spf13/cobra"

	"github.com/operator-framework/amb/cmd/buckets"
	"github.com/operator-framework/amb/cmd/dimacs"
	"github.com/operator-framework/amb/cmd/options"
	"github.com/operator-framework/amb/cmd/provision"
	"github.com/operator-framework/amb/cmd/queens"
	"github.com/operator-framework/amb/cmd/sudoku"
)

// NewRootCmd builds the amb command tree over opts. The caller owns opts
// and must call opts.Stop once the command returns, whether or not it
// failed.
func NewRootCmd(opts *options.Options) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "amb",
		Short: "Amb is a nondeterministic search framework",
		Long: `Amb explores every choice a program makes, one universe at a time,
and solves graphs of predicates over a reactive variable store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.Start(cmd)
		},
	}
	opts.AddFlags(rootCmd)

	// add sub-commands
	rootCmd.AddCommand(queens.NewQueensCommand(opts))
	rootCmd.AddCommand(buckets.NewBucketsCommand(opts))
	rootCmd.AddCommand(dimacs.NewDimacsCommand(opts))
	rootCmd.AddCommand(sudoku.NewSudokuCommand(opts))
	rootCmd.AddCommand(provision.NewProvisionCommand(opts))

	return rootCmd
}
