package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"log/slog"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/mkessler/cachegate/internal/claudeclient"
	"github.com/mkessler/cachegate/internal/promptcache"
)

// createMessageRequest is the inbound payload of POST /v1/messages. It
// mirrors the provider's own request shape so existing Anthropic clients can
// point at the gateway unchanged.
type createMessageRequest struct {
	Model     string                `json:"model"`
	MaxTokens int64                 `json:"max_tokens"`
	System    string                `json:"system,omitempty"`
	Messages  []promptcache.Message `json:"messages"`
	Stream    bool                  `json:"stream,omitempty"`
}

// createMessageHandler annotates inbound conversations and relays the
// upstream event stream.
type createMessageHandler struct {
	Client *claudeclient.Client
}

var _ http.Handler = (*createMessageHandler)(nil)

func (h *createMessageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			slog.WarnContext(ctx, "request exceeds size limit", "limit_bytes", maxBytesErr.Limit)
			writeJSON(ctx, w,
				newErrorResponse("invalid_request_error", http.StatusText(http.StatusRequestEntityTooLarge)),
				http.StatusRequestEntityTooLarge)
			return
		}
		slog.ErrorContext(ctx, "failed to decode request", "error", err)
		writeJSON(ctx, w,
			newErrorResponse("invalid_request_error", err.Error()),
			http.StatusBadRequest)
		return
	}

	events := h.Client.CreateMessage(ctx, claudeclient.Request{
		Model:     req.Model,
		System:    req.System,
		Messages:  req.Messages,
		MaxTokens: req.MaxTokens,
	})

	if req.Stream {
		h.streamResponse(ctx, w, events)
	} else {
		h.writeResponse(ctx, w, events)
	}
}

// writeResponse accumulates the event stream into a single message.
func (h *createMessageHandler) writeResponse(
	ctx context.Context,
	w http.ResponseWriter,
	events iter.Seq2[*claudeclient.Event, error],
) {
	var message anthropic.Message
	for event, err := range events {
		if err != nil {
			slog.ErrorContext(ctx, "upstream request failed", "error", err)
			writeUpstreamError(ctx, w, err)
			return
		}
		if err := message.Accumulate(*event); err != nil {
			slog.ErrorContext(ctx, "failed to accumulate event", "error", err)
			writeJSON(ctx, w,
				newErrorResponse("api_error", http.StatusText(http.StatusInternalServerError)),
				http.StatusInternalServerError)
			return
		}
	}

	writeJSON(ctx, w, message, http.StatusOK)
}

// streamResponse relays upstream events as SSE frames, unaltered. The first
// element is pulled before committing to an SSE response so upstream
// rejections still produce a proper HTTP error status.
func (h *createMessageHandler) streamResponse(
	ctx context.Context,
	w http.ResponseWriter,
	events iter.Seq2[*claudeclient.Event, error],
) {
	next, stop := iter.Pull2(events)
	defer stop()

	event, err, ok := next()
	if ok && err != nil {
		slog.ErrorContext(ctx, "upstream request failed", "error", err)
		writeUpstreamError(ctx, w, err)
		return
	}

	sse, sseErr := NewSSEWriter(w)
	if sseErr != nil {
		slog.ErrorContext(ctx, "SSE not supported", "error", sseErr)
		writeJSON(ctx, w,
			newErrorResponse("api_error", http.StatusText(http.StatusInternalServerError)),
			http.StatusInternalServerError)
		return
	}

	for ok {
		if ctx.Err() != nil {
			slog.DebugContext(ctx, "client disconnected during stream")
			return
		}

		if err != nil {
			slog.ErrorContext(ctx, "stream error", "error", err)
			resp, _ := upstreamErrorResponse(err)
			if writeErr := sse.WriteEvent("error"); writeErr != nil {
				slog.ErrorContext(ctx, "failed to write error event type", "error", writeErr)
				return
			}
			if writeErr := sse.WriteData(resp); writeErr != nil {
				slog.ErrorContext(ctx, "failed to write error event", "error", writeErr)
			}
			return
		}

		if writeErr := sse.WriteEvent(string(event.Type)); writeErr != nil {
			slog.ErrorContext(ctx, "failed to write event type", "error", writeErr)
			return
		}
		if writeErr := sse.WriteRaw(event.RawJSON()); writeErr != nil {
			slog.ErrorContext(ctx, "failed to write event", "error", writeErr)
			return
		}

		event, err, ok = next()
	}
}
