package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkessler/cachegate/internal/claudeclient"
)

// capturingTransport records the upstream request and serves a canned
// response, so tests exercise the full handler chain without a network.
type capturingTransport struct {
	request        *http.Request
	requestBody    []byte
	responseBody   string
	responseStatus int
	isStreaming    bool
}

func (c *capturingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.request = req
	if req.Body != nil {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		c.requestBody = body
	}

	contentType := "application/json"
	if c.isStreaming {
		contentType = "text/event-stream"
	}

	return &http.Response{
		StatusCode: c.responseStatus,
		Body:       io.NopCloser(strings.NewReader(c.responseBody)),
		Header:     http.Header{"Content-Type": []string{contentType}},
		Request:    req,
	}, nil
}

const upstreamStreamFixture = `event: message_start
data: {"type":"message_start","message":{"id":"msg_01","type":"message","role":"assistant","model":"claude-3-5-sonnet-20241022","content":[],"stop_reason":null,"usage":{"input_tokens":25,"output_tokens":1}}}

event: content_block_start
data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hello"}}

event: content_block_stop
data: {"type":"content_block_stop","index":0}

event: message_stop
data: {"type":"message_stop"}

`

type staticHealth struct {
	ready bool
}

func (s *staticHealth) IsReady() bool { return s.ready }

func newTestGateway(t *testing.T, transport *capturingTransport, opts ...Option) *Gateway {
	t.Helper()

	client := claudeclient.New("test-key", claudeclient.WithTransport(transport))
	gw, err := New(client, &staticHealth{ready: true}, opts...)
	require.NoError(t, err)
	return gw
}

func postMessages(t *testing.T, gw *Gateway, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, req)
	return rec
}

func TestGatewayStreamingRelay(t *testing.T) {
	transport := &capturingTransport{
		responseBody:   upstreamStreamFixture,
		responseStatus: http.StatusOK,
		isStreaming:    true,
	}
	gw := newTestGateway(t, transport)

	rec := postMessages(t, gw, `{
		"model": "claude-3-5-sonnet-20241022",
		"system": "You are terse.",
		"messages": [{"role": "user", "content": "hi"}],
		"stream": true
	}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	for _, eventType := range []string{
		"event: message_start",
		"event: content_block_start",
		"event: content_block_delta",
		"event: content_block_stop",
		"event: message_stop",
	} {
		assert.Contains(t, body, eventType)
	}
	assert.Contains(t, body, `"text":"Hello"`)

	// The upstream request carries the cache annotation.
	assert.Equal(t, "prompt-caching-2024-07-31", transport.request.Header.Get("anthropic-beta"))
	assert.Contains(t, string(transport.requestBody), `"cache_control":{"type":"ephemeral"}`)
}

func TestGatewayNonStreamingAccumulates(t *testing.T) {
	transport := &capturingTransport{
		responseBody:   upstreamStreamFixture,
		responseStatus: http.StatusOK,
		isStreaming:    true,
	}
	gw := newTestGateway(t, transport)

	rec := postMessages(t, gw, `{
		"model": "claude-3-5-sonnet-20241022",
		"messages": [{"role": "user", "content": "hi"}]
	}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var message struct {
		ID      string `json:"id"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &message))
	assert.Equal(t, "msg_01", message.ID)
	require.Len(t, message.Content, 1)
	assert.Equal(t, "Hello", message.Content[0].Text)
}

func TestGatewayNonCachingModelSkipsAnnotation(t *testing.T) {
	transport := &capturingTransport{
		responseBody:   upstreamStreamFixture,
		responseStatus: http.StatusOK,
		isStreaming:    true,
	}
	gw := newTestGateway(t, transport)

	rec := postMessages(t, gw, `{
		"model": "claude-2.1",
		"messages": [{"role": "user", "content": "hi"}],
		"stream": true
	}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, transport.request.Header.Get("anthropic-beta"))
	assert.NotContains(t, string(transport.requestBody), "cache_control")
}

func TestGatewayUpstreamErrorPassthrough(t *testing.T) {
	transport := &capturingTransport{
		responseBody:   `{"type":"error","error":{"type":"invalid_request_error","message":"max_tokens: required"}}`,
		responseStatus: http.StatusBadRequest,
	}
	gw := newTestGateway(t, transport)

	rec := postMessages(t, gw, `{
		"model": "claude-3-5-sonnet-20241022",
		"messages": [{"role": "user", "content": "hi"}],
		"stream": true
	}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_request_error")
	assert.Contains(t, rec.Body.String(), "max_tokens: required")
}

func TestGatewayRejectsMalformedBody(t *testing.T) {
	gw := newTestGateway(t, &capturingTransport{responseStatus: http.StatusOK})

	rec := postMessages(t, gw, `{"model": `)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_request_error")
}

func TestGatewayRequestSizeLimit(t *testing.T) {
	gw := newTestGateway(t, &capturingTransport{responseStatus: http.StatusOK},
		WithRequestSizeLimit(64))

	rec := postMessages(t, gw, `{"model":"claude-3-5-sonnet-20241022","messages":[{"role":"user","content":"`+
		strings.Repeat("x", 256)+`"}]}`)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestGatewayModelsEndpoint(t *testing.T) {
	gw := newTestGateway(t, &capturingTransport{responseStatus: http.StatusOK})

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []struct {
			ID            string `json:"id"`
			PromptCaching bool   `json:"prompt_caching"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Data)

	found := false
	for _, m := range resp.Data {
		if m.ID == "claude-3-5-sonnet-20241022" {
			found = true
			assert.True(t, m.PromptCaching)
		}
	}
	assert.True(t, found, "expected claude-3-5-sonnet-20241022 in model list")
}

func TestGatewayHealthEndpoints(t *testing.T) {
	client := claudeclient.New("test-key",
		claudeclient.WithTransport(&capturingTransport{responseStatus: http.StatusOK}))

	health := &staticHealth{ready: false}
	gw, err := New(client, health)
	require.NoError(t, err)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		gw.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	assert.Equal(t, http.StatusOK, get("/healthz/live").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get("/healthz/ready").Code)

	health.ready = true
	assert.Equal(t, http.StatusOK, get("/healthz/ready").Code)
}
