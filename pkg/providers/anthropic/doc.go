// Package anthropic implements the native passthrough provider plugin.
// Requests already speak the native protocol, so nothing is translated;
// the plugin injects authentication, forwards to the Anthropic API, and
// relays buffered or streamed responses byte for byte.
package anthropic
