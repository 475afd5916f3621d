package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/Lego4005/scribe/internal/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize scribe configuration",
	Long: `Initialize scribe by creating:
- The scribe home directory
- A starter configuration file with documented defaults
- A dead-letter archive location wired into that configuration

Existing configuration is left untouched unless --force is given.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing configuration")
}

func runInit(cmd *cobra.Command, args []string) error {
	home := homeDir
	if home == "" {
		home = os.Getenv("SCRIBE_HOME")
	}
	if home == "" {
		home = config.DefaultHomeDir()
	}

	path := cfgFile
	if path == "" {
		path = config.DefaultConfigPath(home)
	}

	cmd.Printf("Initializing scribe in %s...\n", home)

	if _, err := os.Stat(path); err == nil && !initForce {
		cmd.Printf("Config already exists at %s (use --force to overwrite)\n", path)
		return nil
	}

	cfg := config.DefaultConfig()
	cfg.Archive.Path = config.DefaultArchivePath(home)

	if err := config.InitConfigFile(path, cfg); err != nil {
		return err
	}

	cmd.Println("\nScribe initialized successfully!")
	cmd.Printf("  Home directory: %s\n", home)
	cmd.Printf("  Config created: %s\n", path)
	cmd.Printf("  Dead-letter archive: %s\n", cfg.Archive.Path)
	cmd.Println("\nEdit the config, then run 'scribe serve' to start the service.")

	return nil
}
