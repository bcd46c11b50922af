package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mkessler/cachegate/internal/claudeclient"
	"github.com/mkessler/cachegate/internal/gateway"
	"github.com/mkessler/cachegate/internal/tokensource"
)

// NewClient builds the upstream client from config. API key auth resolves the
// credential from config first and falls back to the OS keyring; bearer auth
// attaches the token as an Authorization header on the transport instead.
func NewClient(cfg *Config) (*claudeclient.Client, error) {
	opts := []claudeclient.Option{
		claudeclient.WithMaxTokens(cfg.MaxTokens),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, claudeclient.WithBaseURL(cfg.BaseURL))
	}
	if cfg.CacheDisabled {
		opts = append(opts, claudeclient.WithCachingDisabled())
	}

	var apiKey string
	switch cfg.Auth.Mode {
	case AuthModeAPIKey:
		apiKey = cfg.Auth.APIKey
		if apiKey == "" {
			stored, err := StoredAPIKey()
			if err != nil {
				return nil, err
			}
			apiKey = stored
		}
		if apiKey == "" {
			return nil, errors.New("no API key configured; set auth.api_key or run `cachegate auth login`")
		}
	case AuthModeBearer:
		if cfg.Auth.BearerToken == "" {
			return nil, errors.New("auth.mode is bearer but auth.bearer_token is empty")
		}
		opts = append(opts, claudeclient.WithTransport(tokensource.Bearer(cfg.Auth.BearerToken, nil)))
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Auth.Mode)
	}

	return claudeclient.New(apiKey, opts...), nil
}

// App orchestrates the lifecycle of the gateway server and related services.
type App struct {
	cfg     *Config
	gateway *gateway.Gateway
	health  *Health
}

// New creates a new App instance.
func New(cfg *Config) (*App, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream client: %w", err)
	}

	health := NewHealth()

	gw, err := gateway.New(client, health, gateway.WithRequestSizeLimit(cfg.RequestSizeLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}

	return &App{
		cfg:     cfg,
		gateway: gw,
		health:  health,
	}, nil
}

// Start starts all services and blocks until shutdown is triggered.
// Uses errgroup for runtime error monitoring and shutdown function collection for coordinated cleanup.
func (a *App) Start(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	var shutdownFuncs []func(context.Context) error

	slog.InfoContext(gCtx, "starting gateway server", "addr", a.cfg.Listen)
	gatewayErrCh, err := a.gateway.Start(gCtx, a.cfg.Listen)
	if err != nil {
		return fmt.Errorf("gateway startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, a.gateway.Shutdown)

	a.health.SetReady(true)

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-gatewayErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "gateway runtime error", "error", err)
				return fmt.Errorf("gateway: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	runtimeErr := g.Wait()

	a.health.SetReady(false)
	slog.InfoContext(gCtx, "shutting down services")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("application stopped")
	return nil
}
