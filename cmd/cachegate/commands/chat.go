package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/urfave/cli/v3"

	"github.com/mkessler/cachegate/internal/app"
	"github.com/mkessler/cachegate/internal/claudeclient"
	"github.com/mkessler/cachegate/internal/promptcache"
)

// chatCommand returns the 'chat' subcommand for one-shot streaming completions.
func chatCommand() *cli.Command {
	return &cli.Command{
		Name:      "chat",
		Usage:     "Send a prompt and stream the response to stdout",
		ArgsUsage: "<prompt>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "model",
				Aliases: []string{"m"},
				Usage:   "model to use (overrides config)",
			},
			&cli.StringFlag{
				Name:    "system",
				Aliases: []string{"s"},
				Usage:   "system prompt",
			},
			&cli.BoolFlag{
				Name:  "no-cache",
				Usage: "disable prompt cache annotation for this request",
			},
		},
		Action: chatAction,
	}
}

func chatAction(ctx context.Context, cmd *cli.Command) error {
	prompt := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if prompt == "" {
		return fmt.Errorf("usage: cachegate chat <prompt>")
	}

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
	if cmd.Bool("no-cache") {
		cfg.CacheDisabled = true
	}

	client, err := app.NewClient(cfg)
	if err != nil {
		return err
	}

	model := cfg.Model
	if m := cmd.String("model"); m != "" {
		model = m
	}

	req := claudeclient.Request{
		Model:    model,
		System:   cmd.String("system"),
		Messages: []promptcache.Message{promptcache.UserMessage(prompt)},
	}

	var message anthropic.Message
	for event, err := range client.CreateMessage(ctx, req) {
		if err != nil {
			return fmt.Errorf("stream failed: %w", err)
		}
		if err := message.Accumulate(*event); err != nil {
			return fmt.Errorf("failed to accumulate event: %w", err)
		}
		if event.Type == "content_block_delta" && event.Delta.Text != "" {
			fmt.Print(event.Delta.Text)
		}
	}
	fmt.Fprintln(os.Stdout)

	slog.InfoContext(ctx, "completion finished",
		"model", message.Model,
		"stop_reason", message.StopReason,
		"input_tokens", message.Usage.InputTokens,
		"output_tokens", message.Usage.OutputTokens,
		"cache_creation_input_tokens", message.Usage.CacheCreationInputTokens,
		"cache_read_input_tokens", message.Usage.CacheReadInputTokens,
	)

	return nil
}
