package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/sentinel/internal/config"
)

func buildAuditLogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit-log",
		Short: "Inspect the audit log",
	}
	cmd.AddCommand(buildAuditLogTailCmd())
	return cmd
}

func buildAuditLogTailCmd() *cobra.Command {
	var configPath string
	var follow bool

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print the audit log, optionally following it for new events",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Persistence.AuditLogPath == "" {
				return fmt.Errorf("config: persistence.audit_log_path is not set")
			}
			return tailFile(cmd.Context(), cmd.OutOrStdout(), cfg.Persistence.AuditLogPath, follow)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "sentinel.yaml", "path to the config file")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing new events as they are appended")
	return cmd
}

// tailFile prints every line currently in path, then — if follow is
// set — polls for appended lines until ctx is cancelled.
func tailFile(ctx interface{ Done() <-chan struct{} }, w io.Writer, path string, follow bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		fmt.Fprintln(w, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read audit log: %w", err)
	}

	if !follow {
		return nil
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			scanner = bufio.NewScanner(f)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for scanner.Scan() {
				fmt.Fprintln(w, scanner.Text())
			}
		}
	}
}
