package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/sentinel/internal/config"
)

func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate Sentinel configuration",
	}
	cmd.AddCommand(buildConfigValidateCmd())
	return cmd
}

func buildConfigValidateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load a config file and report every validation issue",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(configPath)
			if err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: valid\n", configPath)
				return nil
			}

			var validationErr *config.ConfigValidationError
			if errors.As(err, &validationErr) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d issue(s)\n", configPath, len(validationErr.Issues))
				for _, issue := range validationErr.Issues {
					fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", issue)
				}
				return fmt.Errorf("config is invalid")
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "sentinel.yaml", "path to the config file")
	return cmd
}
