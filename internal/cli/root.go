// Package cli implements the docprov command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"docprov/internal/config"
	"docprov/internal/logging"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is set at build time
var Version = "dev"

// app carries the state shared by all commands of one invocation
type app struct {
	viper  *viper.Viper
	config config.Config
}

// NewRootCmd builds the command tree
func NewRootCmd() *cobra.Command {
	a := &app{viper: config.NewViper()}

	rootCmd := &cobra.Command{
		Use:   "docprov",
		Short: "docprov provisions databases and collections on a document service",
		Long: fmt.Sprintf(`docprov (%s)

Provisions databases and collections on a document database service from
templated manifests. Every setting can also be given as a DOCPROV_<FLAG>
environment variable, e.g. DOCPROV_ENDPOINT, or in a .env file.`, Version),
		SilenceUsage:      true,
		PersistentPreRunE: a.loadConfig,
	}

	if err := config.SetupFlags(rootCmd, a.viper); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(
		a.newApplyCmd(),
		a.newWorkflowCmd(workflowIndexing),
		a.newWorkflowCmd(workflowThroughput),
		a.newWorkflowCmd(workflowTeardown),
		a.newStatusCmd(),
		newLintCmd(),
		a.newServeCmd(),
		newVersionCmd(),
	)

	return rootCmd
}

// loadConfig resolves the configuration once flags are parsed
func (a *app) loadConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.viper)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.config = cfg

	logging.InitForCLI(cfg.LogLevel, cmd.ErrOrStderr())
	logging.Debug("CLI", "Using %s backend at %s", cfg.Backend, cfg.Endpoint)
	return nil
}

// Execute runs the CLI and exits non-zero on failure. SIGINT and SIGTERM
// cancel the command context, so a mutation waiting on a conflict stops
// with a cancelled outcome and the result is still printed.
func Execute() {
	config.LoadEnvFiles()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of docprov",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "docprov %s\n", Version)
		},
	}
}
