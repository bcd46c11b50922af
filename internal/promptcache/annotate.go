package promptcache

// breakpointTargets is how many trailing user messages receive a cache
// breakpoint. Marking the previous user turn as well as the current one lets
// the provider serve the N-1 prefix from cache while writing the N prefix.
const breakpointTargets = 2

// AnnotateSystem wraps a system prompt as a single text block, marked as a
// cache breakpoint when caching is enabled.
func AnnotateSystem(prompt string, caching bool) []SystemBlock {
	block := SystemBlock{Type: "text", Text: prompt}
	if caching {
		block.CacheControl = NewCacheControl()
	}
	return []SystemBlock{block}
}

// Annotate returns a copy of msgs with cache breakpoints attached to the last
// two user messages. All other messages, and the relative order of all
// messages, pass through structurally unchanged. The input is not modified.
func Annotate(msgs []Message) []Message {
	targets := trailingUserIndices(msgs, breakpointTargets)

	out := make([]Message, len(msgs))
	for i, msg := range msgs {
		if targets[i] {
			out[i] = annotateMessage(msg)
		} else {
			out[i] = msg
		}
	}
	return out
}

// trailingUserIndices returns the set of indices of the last n user messages.
func trailingUserIndices(msgs []Message, n int) map[int]bool {
	targets := make(map[int]bool, n)
	for i := len(msgs) - 1; i >= 0 && len(targets) < n; i-- {
		if msgs[i].Role == RoleUser {
			targets[i] = true
		}
	}
	return targets
}

// annotateMessage attaches a cache breakpoint to a targeted user message.
// Plain-string content is wrapped into a one-element segment list carrying
// the marker. Segment-list content gets the marker on its last segment only;
// preceding segments are copied through unmarked. An empty segment list is
// returned as-is: there is nothing to mark, and failing would turn a
// degenerate but accepted payload into an error.
func annotateMessage(msg Message) Message {
	if !msg.Content.IsSegments() {
		marked := TextSegment(msg.Content.Text())
		marked.CacheControl = NewCacheControl()
		return Message{Role: msg.Role, Content: SegmentContent(marked)}
	}

	segments := msg.Content.Segments()
	if len(segments) == 0 {
		return msg
	}

	annotated := make([]Segment, len(segments))
	copy(annotated, segments)
	annotated[len(annotated)-1].CacheControl = NewCacheControl()

	return Message{Role: msg.Role, Content: SegmentContent(annotated...)}
}
