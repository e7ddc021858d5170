package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/sentinel/internal/agent"
	"github.com/haasonsaas/sentinel/internal/audit"
	"github.com/haasonsaas/sentinel/internal/config"
	"github.com/haasonsaas/sentinel/internal/connector"
	"github.com/haasonsaas/sentinel/internal/connector/discord"
	"github.com/haasonsaas/sentinel/internal/connector/slack"
	"github.com/haasonsaas/sentinel/internal/connector/telegram"
	"github.com/haasonsaas/sentinel/internal/cron"
	"github.com/haasonsaas/sentinel/internal/skillrunner"
)

func buildServeCmd() *cobra.Command {
	var configPath string
	var debug bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Sentinel runtime",
		Long: `Loads the configuration, wires up the capability-checked agent
pipeline, and polls every enabled messaging connector until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if debug {
				slog.SetLogLoggerLevel(slog.LevelDebug)
			}
			return runServe(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "sentinel.yaml", "path to the config file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")

	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	auditLogger, err := buildAuditLogger(cfg)
	if err != nil {
		return fmt.Errorf("build audit logger: %w", err)
	}
	defer auditLogger.Close()

	backend, err := buildPlatformBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build platform backend: %w", err)
	}

	metrics := buildMetrics(cfg)
	tracer, shutdownTracer, err := buildTracer(cfg)
	if err != nil {
		return fmt.Errorf("build tracer: %w", err)
	}
	defer shutdownTracer(context.Background())

	grant, err := buildGrant(cfg, backend)
	if err != nil {
		return fmt.Errorf("build capability grant: %w", err)
	}
	checker := buildCapabilityChecker(grant, backend, auditLogger, metrics)

	skillRunner, err := buildSkillRunner(cfg, grant, backend, auditLogger)
	if err != nil {
		return fmt.Errorf("build skill runner: %w", err)
	}

	dispatcher := buildToolDispatcher(cfg, checker, backend, skillRunner)

	provider, err := buildLLMProvider(cfg)
	if err != nil {
		return fmt.Errorf("build llm provider: %w", err)
	}

	store, err := buildConversationStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build conversation store: %w", err)
	}

	orchestrator := agent.NewOrchestrator(provider, dispatcher, store, auditLogger, orchestratorConfig(cfg))
	agentDispatcher := agent.NewDispatcher(orchestrator)

	connectors, err := buildConnectors(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build connectors: %w", err)
	}
	if len(connectors) == 0 {
		return fmt.Errorf("config: no messaging connector is enabled")
	}

	registry := connector.NewRegistry(connectors, agentDispatcher, store, checker, slog.Default()).
		WithObservability(metrics, tracer)

	scheduler, err := buildScheduler(cfg, auditLogger, skillRunner)
	if err != nil {
		return fmt.Errorf("build scheduler: %w", err)
	}

	runCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if scheduler != nil {
		scheduler.Start(runCtx)
		defer scheduler.Stop()
	}

	jwtService := buildJWTService(cfg)
	if controlPlane := startControlPlane(cfg, jwtService); controlPlane != nil {
		slog.Info("control plane listening", "addr", cfg.Security.ControlPlaneAddr, "auth", jwtService.Enabled())
		defer controlPlane.Close()
	}

	slog.Info("sentinel starting", "connectors", len(connectors), "provider", cfg.LLM.DefaultProvider)
	if err := registry.Run(runCtx); err != nil && runCtx.Err() == nil {
		return fmt.Errorf("connector registry: %w", err)
	}

	slog.Info("sentinel shutting down")
	return nil
}

// buildConnectors constructs one connector.Connector per enabled
// messaging platform, resolving each credential through its env var
// rather than ever reading a literal secret out of config.
func buildConnectors(ctx context.Context, cfg *config.Config) ([]connector.Connector, error) {
	var out []connector.Connector

	if cfg.Messaging.Telegram.Enabled {
		token := config.ResolveSecret(cfg.Messaging.Telegram.TokenEnv)
		if token == "" {
			return nil, fmt.Errorf("config: env var %q (messaging.telegram.token_env) is unset", cfg.Messaging.Telegram.TokenEnv)
		}
		c, err := telegram.New(ctx, telegram.Config{
			Token:           token,
			LongPollTimeout: cfg.Messaging.Telegram.PollTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		out = append(out, c)
	}

	if cfg.Messaging.Discord.Enabled {
		token := config.ResolveSecret(cfg.Messaging.Discord.TokenEnv)
		if token == "" {
			return nil, fmt.Errorf("config: env var %q (messaging.discord.token_env) is unset", cfg.Messaging.Discord.TokenEnv)
		}
		c, err := discord.New(discord.Config{Token: token})
		if err != nil {
			return nil, fmt.Errorf("discord: %w", err)
		}
		out = append(out, c)
	}

	if cfg.Messaging.Slack.Enabled {
		botToken := config.ResolveSecret(cfg.Messaging.Slack.BotTokenEnv)
		appToken := config.ResolveSecret(cfg.Messaging.Slack.AppTokenEnv)
		if botToken == "" || appToken == "" {
			return nil, fmt.Errorf("config: messaging.slack.bot_token_env/app_token_env must both resolve to non-empty values")
		}
		c, err := slack.New(ctx, slack.Config{BotToken: botToken, AppToken: appToken})
		if err != nil {
			return nil, fmt.Errorf("slack: %w", err)
		}
		out = append(out, c)
	}

	return out, nil
}

// buildScheduler wires the audit-rotation and skill-rescan
// maintenance tasks, each skipped if its cron expression is empty.
func buildScheduler(cfg *config.Config, auditLogger *audit.Logger, skillRunner *skillrunner.Runner) (*cron.Scheduler, error) {
	var tasks []cron.Task

	if cfg.Cron.AuditRotation != "" {
		sched, err := cron.NewSchedule(cfg.Cron.AuditRotation, cfg.Cron.Timezone)
		if err != nil {
			return nil, fmt.Errorf("cron.audit_rotation: %w", err)
		}
		tasks = append(tasks, cron.NewAuditRotationTask("audit-rotation", sched, auditLogger))
	}

	if cfg.Cron.SkillRediscovery != "" && skillRunner != nil {
		sched, err := cron.NewSchedule(cfg.Cron.SkillRediscovery, cfg.Cron.Timezone)
		if err != nil {
			return nil, fmt.Errorf("cron.skill_rediscovery: %w", err)
		}
		tasks = append(tasks, cron.NewSkillRescanTask("skill-rescan", sched, skillRunner))
	}

	if len(tasks) == 0 {
		return nil, nil
	}
	return cron.NewScheduler(tasks), nil
}
