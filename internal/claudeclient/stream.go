package claudeclient

import (
	"context"
	"iter"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/mkessler/cachegate/internal/promptcache"
)

// Beta header attached on the caching path. The provider ignores the flag on
// models where the feature is generally available, so sending it is harmless.
const (
	betaHeader        = "anthropic-beta"
	promptCachingBeta = "prompt-caching-2024-07-31"
)

// Request is one conversation turn to send upstream.
type Request struct {
	Model     string
	System    string
	Messages  []promptcache.Message
	MaxTokens int64 // 0 means the client default
}

// Event is one provider streaming event, forwarded verbatim from the SDK.
type Event = anthropic.MessageStreamEventUnion

// CreateMessage issues exactly one streaming send and returns the provider's
// event sequence unaltered. The sequence is single-consumer and lazy: the
// upstream connection is opened on first iteration and closed when the
// caller stops iterating. Transport and API errors surface as the final
// element's error value, unchanged.
func (c *Client) CreateMessage(ctx context.Context, req Request) iter.Seq2[*Event, error] {
	caching := c.cachingAllowed && promptcache.SupportsPromptCaching(req.Model)
	params := c.buildParams(req, caching)

	var opts []option.RequestOption
	if caching {
		opts = append(opts, option.WithHeader(betaHeader, promptCachingBeta))
	}

	return func(yield func(*Event, error) bool) {
		stream := c.api.Messages.NewStreaming(ctx, params, opts...)
		defer func() { _ = stream.Close() }()

		for stream.Next() {
			event := stream.Current()
			if !yield(&event, nil) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			yield(nil, err)
		}
	}
}

// buildParams assembles the outgoing payload, annotated when caching is on.
func (c *Client) buildParams(req Request, caching bool) anthropic.MessageNewParams {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	msgs := req.Messages
	if caching {
		msgs = promptcache.Annotate(msgs)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages:  toMessageParams(msgs),
	}
	if req.System != "" {
		params.System = toSystemParams(promptcache.AnnotateSystem(req.System, caching))
	}
	return params
}

func toSystemParams(blocks []promptcache.SystemBlock) []anthropic.TextBlockParam {
	params := make([]anthropic.TextBlockParam, 0, len(blocks))
	for _, block := range blocks {
		param := anthropic.TextBlockParam{Text: block.Text}
		if block.CacheControl != nil {
			param.CacheControl = anthropic.NewCacheControlEphemeralParam()
		}
		params = append(params, param)
	}
	return params
}

func toMessageParams(msgs []promptcache.Message) []anthropic.MessageParam {
	params := make([]anthropic.MessageParam, 0, len(msgs))
	for _, msg := range msgs {
		params = append(params, anthropic.MessageParam{
			Role:    anthropic.MessageParamRole(msg.Role),
			Content: toContentBlocks(msg.Content),
		})
	}
	return params
}

// toContentBlocks maps domain content onto SDK content blocks. Plain-string
// content becomes a single text block (the SDK sends content as an array in
// both cases; the string form is normalized here exactly as the SDK's own
// helpers would).
func toContentBlocks(content promptcache.Content) []anthropic.ContentBlockParamUnion {
	if !content.IsSegments() {
		return []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(content.Text())}
	}

	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(content.Segments()))
	for _, segment := range content.Segments() {
		block := anthropic.NewTextBlock(segment.Text)
		if segment.CacheControl != nil {
			block.OfText.CacheControl = anthropic.NewCacheControlEphemeralParam()
		}
		blocks = append(blocks, block)
	}
	return blocks
}
