package claudeclient

import (
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// defaultMaxTokens bounds the response when the caller does not ask for a
// specific limit.
const defaultMaxTokens = 1024

// Client wraps an Anthropic SDK client with prompt-cache annotation.
// A Client is safe for concurrent use; it holds no per-request state.
type Client struct {
	api            anthropic.Client
	maxTokens      int64
	cachingAllowed bool
}

type settings struct {
	baseURL        string
	transport      http.RoundTripper
	maxTokens      int64
	cachingAllowed bool
}

// Option configures a Client.
type Option func(*settings)

// WithBaseURL overrides the API base URL, e.g. for a local gateway or a
// recording proxy.
func WithBaseURL(baseURL string) Option {
	return func(s *settings) { s.baseURL = baseURL }
}

// WithTransport sets the HTTP transport used for all requests. The transport
// chain may handle authentication itself, in which case apiKey can be empty.
func WithTransport(transport http.RoundTripper) Option {
	return func(s *settings) { s.transport = transport }
}

// WithMaxTokens sets the default max_tokens for requests that don't specify one.
func WithMaxTokens(maxTokens int64) Option {
	return func(s *settings) { s.maxTokens = maxTokens }
}

// WithCachingDisabled turns off cache annotation for every request,
// regardless of model capability.
func WithCachingDisabled() Option {
	return func(s *settings) { s.cachingAllowed = false }
}

// New creates a Client. An empty apiKey is allowed when the configured
// transport injects credentials (e.g. an OAuth bearer transport).
func New(apiKey string, opts ...Option) *Client {
	s := settings{
		maxTokens:      defaultMaxTokens,
		cachingAllowed: true,
	}
	for _, opt := range opts {
		opt(&s)
	}

	httpClient := &http.Client{
		Transport: s.transport,
		// Client.Timeout stays 0 so long-running SSE streams aren't cut off mid-read
	}

	requestOpts := []option.RequestOption{
		option.WithHTTPClient(httpClient),
		option.WithRequestTimeout(1 * time.Hour),
	}
	if apiKey != "" {
		requestOpts = append(requestOpts, option.WithAPIKey(apiKey))
	}
	if s.baseURL != "" {
		requestOpts = append(requestOpts, option.WithBaseURL(s.baseURL))
	}

	return &Client{
		api:            anthropic.NewClient(requestOpts...),
		maxTokens:      s.maxTokens,
		cachingAllowed: s.cachingAllowed,
	}
}
