package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Metaculus/metaculus-sub005/internal/contracts"
)

var validateCmd = &cobra.Command{
	Use:   "validate [paths...]",
	Short: "Validate fixture files (defaults to the configured fixtures directory)",
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	paths := args
	if len(paths) == 0 {
		cfg, logs, err := loadProject()
		if err != nil {
			return err
		}
		defer logs.Close()
		paths = []string{cfg.FixturesDir()}
	}

	out := cmd.OutOrStdout()
	invalid := 0
	for _, path := range paths {
		reports, err := contracts.ValidatePath(path)
		if err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		for _, report := range reports {
			if report.IsValid() {
				fmt.Fprintf(out, "OK: %s (%d posts, %d suggestions)\n", report.Path, report.Posts, report.Suggestions)
			} else {
				invalid++
				fmt.Fprintf(out, "Invalid: %s\n", report.Path)
				for _, validationErr := range report.Errors {
					fmt.Fprintf(out, "- %v\n", validationErr)
				}
			}
			for _, warning := range report.Warnings {
				fmt.Fprintf(out, "  warning: %s\n", warning)
			}
		}
	}
	if invalid > 0 {
		return fmt.Errorf("%d fixture file(s) invalid", invalid)
	}
	return nil
}
