package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/mkessler/cachegate/internal/app"
)

// authCommand returns the 'auth' subcommand for managing provider credentials.
func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage Anthropic API credentials",
		Commands: []*cli.Command{
			authLoginCommand(),
			authLogoutCommand(),
		},
	}
}

func authLoginCommand() *cli.Command {
	return &cli.Command{
		Name:   "login",
		Usage:  "Save an Anthropic API key to the OS keyring",
		Action: authLoginAction,
	}
}

func authLogoutCommand() *cli.Command {
	return &cli.Command{
		Name:   "logout",
		Usage:  "Remove the stored Anthropic API key",
		Action: authLogoutAction,
	}
}

func authLoginAction(ctx context.Context, cmd *cli.Command) error {
	key, err := readSecureInput(ctx, "Enter Anthropic API key: ")
	if err != nil {
		return err
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("API key cannot be empty")
	}

	if err := app.StoreAPIKey(key); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("=== Login Successful ===")
	fmt.Println("API key saved to OS keyring")

	return nil
}

func authLogoutAction(ctx context.Context, cmd *cli.Command) error {
	if err := app.ClearAPIKey(); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("=== Logout Successful ===")
	fmt.Println("API key cleared from OS keyring")

	return nil
}

// readSecureInput reads user input with hidden display and context cancellation support.
// Goroutine+select pattern required because term.ReadPassword has no native context support.
func readSecureInput(ctx context.Context, prompt string) (string, error) {
	fmt.Print(prompt)
	defer fmt.Println()

	type result struct {
		value string
		err   error
	}
	resultCh := make(chan result, 1)

	go func() {
		inputBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		resultCh <- result{value: string(inputBytes), err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-resultCh:
		if res.err != nil {
			return "", fmt.Errorf("failed to read input: %w", res.err)
		}
		return res.value, nil
	}
}
