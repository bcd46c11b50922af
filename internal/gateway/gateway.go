// Package gateway exposes the cache-annotation adapter over HTTP. It accepts
// Anthropic-shaped message requests, annotates them, forwards them upstream
// through a shared client, and relays the provider's event stream verbatim.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/mkessler/cachegate/internal/claudeclient"
	"github.com/mkessler/cachegate/internal/observability/middleware"
)

// defaultMaxRequestBytes caps inbound request bodies. Conversations with
// long cached prefixes are large, so the limit is generous.
const defaultMaxRequestBytes = 10 << 20

// ReadinessChecker reports whether the application is ready to serve traffic.
type ReadinessChecker interface {
	IsReady() bool
}

// Gateway is the HTTP front for the annotation adapter.
type Gateway struct {
	handler http.Handler
	server  *http.Server
}

type config struct {
	maxRequestBytes int64
}

// Option configures a Gateway.
type Option func(*config)

// WithRequestSizeLimit overrides the maximum request body size in bytes.
func WithRequestSizeLimit(maxBytes int64) Option {
	return func(c *config) { c.maxRequestBytes = maxBytes }
}

// New creates a Gateway routing onto the given upstream client.
func New(client *claudeclient.Client, health ReadinessChecker, opts ...Option) (*Gateway, error) {
	if client == nil {
		return nil, fmt.Errorf("client cannot be nil")
	}
	if health == nil {
		return nil, fmt.Errorf("health checker cannot be nil")
	}

	cfg := config{maxRequestBytes: defaultMaxRequestBytes}
	for _, opt := range opts {
		opt(&cfg)
	}

	mux := http.NewServeMux()
	mux.Handle("POST /v1/messages", &createMessageHandler{Client: client})
	mux.Handle("GET /v1/models", modelsHandler())
	mux.Handle("GET /healthz/live", livenessHandler())
	mux.Handle("GET /healthz/ready", readinessHandler(health))

	handler := applyMiddlewares(mux,
		Recovery,
		middleware.Logging(slog.Default()),
		middleware.RequestID,
		middleware.TraceContext,
		RequestSizeLimit(cfg.maxRequestBytes),
	)

	return &Gateway{handler: handler}, nil
}

// ServeHTTP implements http.Handler, mainly for tests.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.handler.ServeHTTP(w, r)
}

// Start begins serving on addr and returns a channel that receives the
// terminal serve error, if any. Shutdown must be called to stop.
func (g *Gateway) Start(ctx context.Context, addr string) (<-chan error, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	g.server = &http.Server{
		Handler:           g.handler,
		ReadHeaderTimeout: 10 * time.Second,
		// WriteTimeout stays 0: streaming responses are open-ended and
		// bounded by the upstream request timeout instead.
	}

	slog.InfoContext(ctx, "gateway listening", "addr", listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := g.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	return errCh, nil
}

// Shutdown gracefully stops the server, waiting for in-flight streams up to
// the context deadline.
func (g *Gateway) Shutdown(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	return g.server.Shutdown(ctx)
}
