package cli

import (
	"docprov/internal/project"

	"github.com/spf13/cobra"
)

type workflow struct {
	op    project.Operation
	short string
}

var (
	workflowIndexing = workflow{
		op:    project.OperationIndexing,
		short: "Replace indexing policies that differ from the manifests",
	}
	workflowThroughput = workflow{
		op:    project.OperationThroughput,
		short: "Replace offers whose throughput differs from the manifests",
	}
	workflowTeardown = workflow{
		op:    project.OperationTeardown,
		short: "Delete every resource declared by the project",
	}
)

func (a *app) runOptions(cmd *cobra.Command, path string, verbose bool) project.RunOptions {
	return project.RunOptions{
		ProjectPath: path,
		Verbose:     verbose,
		Config:      a.config,
		Out:         cmd.OutOrStdout(),
	}
}

// withMetrics runs fn while the configured metrics endpoint is served
func (a *app) withMetrics(fn func() error) error {
	stop, err := exposeMetrics(a.config.MetricsAddr)
	if err != nil {
		return err
	}
	defer stop()

	return fn()
}

func (a *app) newApplyCmd() *cobra.Command {
	var dryRun, verbose bool

	applyCmd := &cobra.Command{
		Use:   "apply <path-to-project>",
		Short: "Create missing databases and collections (use --dry-run to preview)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := a.runOptions(cmd, args[0], verbose)
			opts.DryRun = dryRun
			return a.withMetrics(func() error {
				_, err := project.Run(cmd.Context(), project.OperationApply, opts)
				return err
			})
		},
	}

	applyCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Preview changes without applying them")
	applyCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print rendered manifests and final metrics")
	return applyCmd
}

func (a *app) newWorkflowCmd(w workflow) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   string(w.op) + " <path-to-project>",
		Short: w.short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withMetrics(func() error {
				_, err := project.Run(cmd.Context(), w.op, a.runOptions(cmd, args[0], verbose))
				return err
			})
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print rendered manifests and final metrics")
	return cmd
}

func (a *app) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <path-to-project>",
		Short: "Show which declared resources exist and how they are provisioned",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withMetrics(func() error {
				_, err := project.Status(cmd.Context(), a.runOptions(cmd, args[0], false))
				return err
			})
		},
	}
}
