package promptcache

import (
	"encoding/json"
	"fmt"
)

// Message roles accepted by the Messages API.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// CacheControl marks a content segment as a cache breakpoint. The provider
// caches the prompt prefix up to and including the marked segment.
type CacheControl struct {
	Type string `json:"type"` // "ephemeral" is the only supported value
}

// NewCacheControl creates the ephemeral cache breakpoint marker.
func NewCacheControl() *CacheControl {
	return &CacheControl{Type: "ephemeral"}
}

// Segment is one typed unit of message content. Only text segments are
// produced by this package; unknown types decode and re-encode untouched.
type Segment struct {
	Type         string        `json:"type"`
	Text         string        `json:"text,omitempty"`
	CacheControl *CacheControl `json:"cache_control,omitempty"`
}

// TextSegment creates an unmarked text segment.
func TextSegment(text string) Segment {
	return Segment{Type: "text", Text: text}
}

// SystemBlock is one entry of the system payload. System prompts use a
// slightly different wire structure than message content: text is required
// and never omitted.
type SystemBlock struct {
	Type         string        `json:"type"`
	Text         string        `json:"text"`
	CacheControl *CacheControl `json:"cache_control,omitempty"`
}

// Content is message content in one of its two wire forms: a plain string or
// an ordered list of segments. The zero value is the empty plain string.
//
// The two forms round-trip through JSON without normalization, so messages
// that are not annotation targets keep their original shape on the wire.
type Content struct {
	text     string
	segments []Segment
	isList   bool
}

// TextContent creates plain-string content.
func TextContent(text string) Content {
	return Content{text: text}
}

// SegmentContent creates segment-list content.
func SegmentContent(segments ...Segment) Content {
	return Content{segments: segments, isList: true}
}

// IsSegments reports whether the content is the segment-list form.
func (c Content) IsSegments() bool {
	return c.isList
}

// Text returns the plain-string form value. Empty for segment-list content.
func (c Content) Text() string {
	if c.isList {
		return ""
	}
	return c.text
}

// Segments returns the segment-list form value. Nil for plain-string content.
func (c Content) Segments() []Segment {
	return c.segments
}

// MarshalJSON encodes the content in the same shape it was created with.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.isList {
		return json.Marshal(c.segments)
	}
	return json.Marshal(c.text)
}

// UnmarshalJSON decodes either wire form, rejecting everything else.
func (c *Content) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*c = Content{text: text}
		return nil
	}

	var segments []Segment
	if err := json.Unmarshal(data, &segments); err != nil {
		return fmt.Errorf("content must be a string or an array of content blocks: %w", err)
	}
	*c = Content{segments: segments, isList: true}
	return nil
}

// Message is one conversation turn. Owned by the caller; annotation reads it
// and produces a new copy.
type Message struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

// UserMessage creates a user message with plain-string content.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: TextContent(text)}
}

// AssistantMessage creates an assistant message with plain-string content.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: TextContent(text)}
}
