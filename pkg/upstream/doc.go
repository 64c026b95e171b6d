/*
Package upstream implements the Zai.is client.

One chat turn against the upstream takes two calls: a conversation is
created with POST /api/v1/chats/new, then the completion is streamed from
POST /api/chat/completions as server-sent events. Both calls authenticate
with a per-account bearer token and browser-equivalent headers.

The client classifies every failure into the account failure taxonomy
(AuthError, RateLimitError, UnavailableError, BannedError,
UnrecoverableError) and never mutates pool state itself; callers act on the
classified result.

Streaming responses are delivered as a bounded channel of Chunk values so a
slow consumer exerts backpressure on the upstream read instead of buffering
without limit.
*/
package upstream
