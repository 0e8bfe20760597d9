// Package providers defines the provider plugin contract and the registry
// the proxy dispatches through.
//
// A plugin declares a Descriptor (id, display name, setting descriptors),
// the request paths it serves, and a HandleRequest implementation that
// writes the response over the intercepted connection via RequestContext.
// Plugins register explicitly at startup; a plugin failing validation is
// recorded in the registry's error map and skipped without affecting the
// others.
//
// Upstream is the shared HTTP client plugins use to reach their provider
// API. It layers rate gating, bearer-token resolution, retries with
// exponential backoff, and consecutive-failure health tracking over a
// pooled http.Client.
//
// Concrete plugins live in subpackages: anthropic (native passthrough)
// and openai (chat-completion translation).
package providers
