package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/sentinel/internal/config"
	"github.com/haasonsaas/sentinel/internal/skillrunner"
)

func buildSkillsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skills",
		Short: "Inspect skills discovered under capabilities.skills_dir",
	}
	cmd.AddCommand(buildSkillsListCmd())
	return cmd
}

func buildSkillsListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List skill manifests, flagging any that failed to parse",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Capabilities.SkillsDir == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "capabilities.skills_dir is not set; no skills to discover")
				return nil
			}

			manifests, rejected, err := skillrunner.DiscoverManifests(cfg.Capabilities.SkillsDir)
			if err != nil {
				return fmt.Errorf("discover manifests: %w", err)
			}

			for _, m := range manifests {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", m.ToolName(), m.ResolvedExecutable())
			}
			for name, rejectErr := range rejected {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\trejected: %s\n", name, rejectErr)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d discovered, %d rejected\n", len(manifests), len(rejected))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "sentinel.yaml", "path to the config file")
	return cmd
}
