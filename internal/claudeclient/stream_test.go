package claudeclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkessler/cachegate/internal/promptcache"
)

// capturingTransport records the outgoing request and returns a pre-recorded
// response without network calls.
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

const streamFixture = `event: message_start
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

// capturedBody is the subset of the outgoing payload the tests inspect.
type capturedBody struct {
	Model    string            `json:"model"`
	System   json.RawMessage   `json:"system"`
	Messages []json.RawMessage `json:"messages"`
}

func sendConversation(t *testing.T, model string, opts ...Option) (*capturingTransport, capturedBody) {
	t.Helper()

	transport := &capturingTransport{
		responseBody:   streamFixture,
		responseStatus: http.StatusOK,
		isStreaming:    true,
	}
	client := New("test-key", append([]Option{WithTransport(transport)}, opts...)...)

	seq := client.CreateMessage(context.Background(), Request{
		Model:  model,
		System: "You are a helpful assistant.",
		Messages: []promptcache.Message{
			promptcache.UserMessage("first"),
			promptcache.AssistantMessage("assistant answer"),
			promptcache.UserMessage("second"),
		},
	})
	for _, err := range seq {
		require.NoError(t, err)
	}

	require.NotNil(t, transport.request, "no request was sent")
	var body capturedBody
	require.NoError(t, json.Unmarshal(transport.requestBody, &body))
	return transport, body
}

func TestCreateMessage_CachingModel(t *testing.T) {
	transport, body := sendConversation(t, "claude-3-5-sonnet-20241022")

	assert.Equal(t, "prompt-caching-2024-07-31", transport.request.Header.Get("anthropic-beta"))

	require.JSONEq(t,
		`[{"type":"text","text":"You are a helpful assistant.","cache_control":{"type":"ephemeral"}}]`,
		string(body.System),
	)

	require.Len(t, body.Messages, 3)
	require.JSONEq(t,
		`{"role":"user","content":[{"type":"text","text":"first","cache_control":{"type":"ephemeral"}}]}`,
		string(body.Messages[0]),
	)
	require.JSONEq(t,
		`{"role":"assistant","content":[{"type":"text","text":"assistant answer"}]}`,
		string(body.Messages[1]),
	)
	require.JSONEq(t,
		`{"role":"user","content":[{"type":"text","text":"second","cache_control":{"type":"ephemeral"}}]}`,
		string(body.Messages[2]),
	)
}

func TestCreateMessage_NonCachingModel(t *testing.T) {
	transport, body := sendConversation(t, "claude-3-sonnet-20240229")

	assert.Empty(t, transport.request.Header.Get("anthropic-beta"))

	require.JSONEq(t,
		`[{"type":"text","text":"You are a helpful assistant."}]`,
		string(body.System),
	)
	assert.NotContains(t, string(transport.requestBody), "cache_control")
}

func TestCreateMessage_CachingDisabledOverride(t *testing.T) {
	transport, _ := sendConversation(t, "claude-3-5-sonnet-20241022", WithCachingDisabled())

	assert.Empty(t, transport.request.Header.Get("anthropic-beta"))
	assert.NotContains(t, string(transport.requestBody), "cache_control")
}

func TestCreateMessage_SegmentListMarksLastSegment(t *testing.T) {
	transport := &capturingTransport{
		responseBody:   streamFixture,
		responseStatus: http.StatusOK,
		isStreaming:    true,
	}
	client := New("test-key", WithTransport(transport))

	seq := client.CreateMessage(context.Background(), Request{
		Model: "claude-3-5-sonnet-20241022",
		Messages: []promptcache.Message{
			{Role: promptcache.RoleUser, Content: promptcache.SegmentContent(
				promptcache.TextSegment("part 1"),
				promptcache.TextSegment("part 2"),
			)},
		},
	})
	for _, err := range seq {
		require.NoError(t, err)
	}

	var body capturedBody
	require.NoError(t, json.Unmarshal(transport.requestBody, &body))
	require.Len(t, body.Messages, 1)
	require.JSONEq(t,
		`{"role":"user","content":[{"type":"text","text":"part 1"},{"type":"text","text":"part 2","cache_control":{"type":"ephemeral"}}]}`,
		string(body.Messages[0]),
	)
}

func TestCreateMessage_ForwardsEventsVerbatim(t *testing.T) {
	transport := &capturingTransport{
		responseBody:   streamFixture,
		responseStatus: http.StatusOK,
		isStreaming:    true,
	}
	client := New("test-key", WithTransport(transport))

	var types []string
	var inputTokens int64
	seq := client.CreateMessage(context.Background(), Request{
		Model:    "claude-3-5-sonnet-20241022",
		Messages: []promptcache.Message{promptcache.UserMessage("hi")},
	})
	for event, err := range seq {
		require.NoError(t, err)
		types = append(types, string(event.Type))
		if start, ok := event.AsAny().(anthropic.MessageStartEvent); ok {
			inputTokens = start.Message.Usage.InputTokens
		}
	}

	assert.Equal(t, []string{
		"message_start",
		"content_block_start",
		"content_block_delta",
		"content_block_stop",
		"message_stop",
	}, types)
	assert.Equal(t, int64(25), inputTokens)
}

func TestCreateMessage_EarlyBreakAbandonsStream(t *testing.T) {
	transport := &capturingTransport{
		responseBody:   streamFixture,
		responseStatus: http.StatusOK,
		isStreaming:    true,
	}
	client := New("test-key", WithTransport(transport))

	count := 0
	seq := client.CreateMessage(context.Background(), Request{
		Model:    "claude-3-5-sonnet-20241022",
		Messages: []promptcache.Message{promptcache.UserMessage("hi")},
	})
	for _, err := range seq {
		require.NoError(t, err)
		count++
		if count == 2 {
			break
		}
	}

	assert.Equal(t, 2, count)
}

func TestCreateMessage_TransportErrorPropagates(t *testing.T) {
	transport := &capturingTransport{
		responseBody:   `{"type":"error","error":{"type":"invalid_request_error","message":"max_tokens: required"}}`,
		responseStatus: http.StatusBadRequest,
	}
	client := New("test-key", WithTransport(transport))

	var streamErr error
	seq := client.CreateMessage(context.Background(), Request{
		Model:    "claude-3-5-sonnet-20241022",
		Messages: []promptcache.Message{promptcache.UserMessage("hi")},
	})
	for event, err := range seq {
		require.Nil(t, event)
		streamErr = err
	}

	require.Error(t, streamErr)
	var apiErr *anthropic.Error
	assert.True(t, errors.As(streamErr, &apiErr), "expected *anthropic.Error, got %T", streamErr)
}
