// Package claudeclient sends annotated conversations to the Anthropic
// Messages API and forwards the resulting stream of events verbatim.
//
// The package owns exactly one decision: whether a request goes down the
// caching-enabled path (cache breakpoints attached, prompt-caching beta
// header set) or the plain path. Everything below that - transport,
// authentication headers, SSE parsing - is the Anthropic SDK's job. Errors
// raised by the SDK propagate to the caller unchanged; there is no retry
// logic here.
package claudeclient
