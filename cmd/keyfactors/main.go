// cmd/keyfactors/main.go
//
// This is the entry point for the keyfactors CLI.
//
//	keyfactors workbench   open the drafting TUI against a platform API
//	keyfactors serve       run the local SQLite-backed API for development
//	keyfactors validate    check fixture files before serving them
//	keyfactors init        write .keyfactors/ with a default config

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Metaculus/metaculus-sub005/internal/config"
	"github.com/Metaculus/metaculus-sub005/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

var projectFlag string

var rootCmd = &cobra.Command{
	Use:   "keyfactors",
	Short: "Draft, suggest and vote on forecast key factors",
	Long: "keyfactors attaches structured key factors (drivers, base rates, news and\n" +
		"question links) to forecast comments, reviews machine suggestions and\n" +
		"serves a local development backend.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create .keyfactors/ with a default config.yaml",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		dir, err := projectDir()
		if err != nil {
			return err
		}
		if err := config.InitDir(dir); err != nil {
			return fmt.Errorf("init .keyfactors: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Initialized %s\n", filepath.Join(dir, config.Dir))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&projectFlag, "project", "", "project directory holding .keyfactors/ (defaults to cwd)")
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(workbenchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func projectDir() (string, error) {
	dir := projectFlag
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("determine working directory: %w", err)
		}
		dir = cwd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve project dir: %w", err)
	}
	return abs, nil
}

// loadProject initializes .keyfactors/ when needed and returns its config
// together with the project logger.
func loadProject() (*config.Config, *logging.Logger, error) {
	dir, err := projectDir()
	if err != nil {
		return nil, nil, err
	}
	if err := config.InitDir(dir); err != nil {
		return nil, nil, fmt.Errorf("init .keyfactors: %w", err)
	}
	cfg, err := config.NewConfig(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(dir, cfg.Project.Logging.Level)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
