package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Lego4005/scribe/internal/config"
	"github.com/Lego4005/scribe/pkg/version"
)

var (
	cfgFile string
	homeDir string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "scribe",
	Short: "Scribe - write-behind provenance persistence for Neo4j",
	Long: `Scribe records provenance facts (experts, decisions, games and the
relationships between them) in Neo4j without ever blocking the caller.

Submissions land on a bounded in-memory queue and a background executor
flushes them in priority order with retries, a circuit breaker and a
dead-letter queue for operations that exhaust their retry budget.

Run 'scribe serve' to start the service.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command with signal handling.
func Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return rootCmd.ExecuteContext(ctx)
}

// configPath resolves the config file location from the --config flag, the
// SCRIBE_HOME environment variable and the default home directory, in that
// order.
func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}

	home := homeDir
	if home == "" {
		home = os.Getenv("SCRIBE_HOME")
	}
	if home == "" {
		home = config.DefaultHomeDir()
	}

	return config.DefaultConfigPath(home)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to config file (default: $SCRIBE_HOME/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "Scribe home directory (default: ~/.scribe)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println(version.String())
	},
}
