package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/mkessler/cachegate/internal/app"
	"github.com/mkessler/cachegate/internal/observability"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string, version, commit string) error {
	cmd := &cli.Command{
		Name:    "cachegate",
		Usage:   "Prompt-caching gateway for the Anthropic Messages API",
		Version: fmt.Sprintf("%s (%s)", version, commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to TOML config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json|otlp-http|otlp-grpc|otlp-stdout)",
				Value: "text",
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			chatCommand(),
			authCommand(),
		},
	}

	return cmd.Run(ctx, args)
}

// setupObservability configures the logging pipeline from root flags and
// returns its shutdown function.
func setupObservability(ctx context.Context, cmd *cli.Command) (func(context.Context) error, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cmd.String("log-level"))); err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	shutdown, err := observability.Instrument(ctx, level, cmd.String("log-format"))
	if err != nil {
		return nil, fmt.Errorf("failed to set up observability layer: %w", err)
	}
	return shutdown, nil
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Start the gateway server",
		Action: serveAction,
	}
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	shutdown, err := setupObservability(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			slog.Error("observability shutdown failed", "error", err)
		}
	}()

	cfg, err := app.LoadConfig(cmd.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}

	slog.InfoContext(ctx, "starting")

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("app failed to start: %w", err)
	}

	slog.InfoContext(ctx, "stopped gracefully")
	return nil
}
