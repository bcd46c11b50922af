// Package promptcache decides which parts of a conversation become cache
// breakpoints for Anthropic's prompt-caching beta.
//
// The annotation is purely additive: it never changes roles, text, or message
// order, it only attaches cache_control markers to specific content segments.
// Inputs are never mutated; every annotated value is a fresh copy.
//
// Breakpoint placement follows the provider's recommended strategy for
// multi-turn conversations: the system prompt is always marked, and the last
// two user messages each get one marker on their final content segment. The
// provider then caches the prompt prefix up to each marker, so consecutive
// turns re-use the cached prefix of the previous turn.
package promptcache
