// Package translate converts between the native messages protocol spoken
// by clients and the OpenAI-compatible chat-completion protocol spoken by
// alternative upstreams.
//
// Request conversion (ToChatRequest) and response conversion
// (FromChatResponse) handle the non-streaming path. StreamState drives
// the streaming path, turning chat-completion chunks into an ordered
// native event sequence: message_start, content_block_start, one or more
// content_block_delta events, content_block_stop, message_delta,
// message_stop. Upstream errors are re-shaped into native error
// envelopes by ErrorFromUpstream and ErrorFromTransport.
package translate
