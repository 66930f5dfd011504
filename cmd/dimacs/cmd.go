package dimacs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/operator-framework/amb/cmd/options"
	"github.com/operator-framework/amb/internal/examples/dimacs"
	"github.com/operator-framework/amb/pkg/amb/solver"
)

func NewDimacsCommand(opts *options.Options) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "dimacs <path>",
		Short: "Solves a sat problem given in dimacs format",
		Long: `Solves a sat problem given in dimacs format. For instance:
c
c this is a comment
c header: p cnf <number of variable> <number of clauses>
p cnf 2 2
c clauses end in zero, negative means 'not'
c 0 (zero) is not a valid literal
1 2 0
1 -2 0
c cnf: (1 or 2) and (1 and not 2)
`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(args[0]); errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("file (%s) not found", args[0])
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return solve(cmd, opts, args[0], all)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "print every model instead of the first")
	return cmd
}

func solve(cmd *cobra.Command, opts *options.Options, path string, all bool) error {
	// open dimacs file
	dimacsFile, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("error opening dimacs file (%s): %w", path, err)
	}
	defer dimacsFile.Close()

	problem, err := dimacs.Parse(dimacsFile)
	if err != nil {
		return fmt.Errorf("error parsing dimacs file (%s): %w", path, err)
	}

	options := opts.SolverOptions()
	if !all {
		options = append(options, solver.WithMaxSolutions(1))
	}
	models, err := dimacs.Models(cmd.Context(), problem, options...)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(models) == 0 {
		fmt.Fprintln(out, "no solution found")
		return nil
	}
	fmt.Fprintln(out, "solution found:")
	for _, model := range models {
		printModel(out, model)
	}
	return nil
}

func printModel(w io.Writer, model []int) {
	fields := make([]string, 0, len(model)+1)
	for _, lit := range model {
		fields = append(fields, fmt.Sprint(lit))
	}
	fields = append(fields, "0")
	fmt.Fprintln(w, strings.Join(fields, " "))
}
