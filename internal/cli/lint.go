package cli

import (
	"docprov/internal/project"

	"github.com/spf13/cobra"
)

func newLintCmd() *cobra.Command {
	var verbose bool

	lintCmd := &cobra.Command{
		Use:   "lint <path-to-project>",
		Short: "Validate templates and manifests without contacting the service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return project.Lint(project.LintOptions{
				ProjectPath: args[0],
				Verbose:     verbose,
				Out:         cmd.OutOrStdout(),
			})
		},
	}

	lintCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	return lintCmd
}
