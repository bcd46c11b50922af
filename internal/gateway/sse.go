package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// SSEWriter writes server-sent events and flushes after every frame so
// clients see tokens as they arrive.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter prepares w for an SSE response. Fails when the underlying
// writer cannot flush, since unflushed streaming defeats the purpose.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	return &SSEWriter{w: w, flusher: flusher}, nil
}

// WriteEvent writes an event-type line. The next WriteData or WriteRaw call
// completes the frame.
func (s *SSEWriter) WriteEvent(name string) error {
	if _, err := fmt.Fprintf(s.w, "event: %s\n", name); err != nil {
		return err
	}
	return nil
}

// WriteData marshals v and writes it as a data frame.
func (s *SSEWriter) WriteData(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal SSE data: %w", err)
	}
	return s.WriteRaw(string(data))
}

// WriteRaw writes a pre-encoded data frame.
func (s *SSEWriter) WriteRaw(data string) error {
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
