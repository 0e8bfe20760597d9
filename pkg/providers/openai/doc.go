// Package openai implements the provider plugin for OpenAI-compatible
// upstreams. Native messages requests are translated to chat completions
// and back, including live stream translation; the upstream's own
// chat-completion surface (chat/completions, models, embeddings, usage,
// with bare-path aliases) is forwarded unchanged.
package openai
