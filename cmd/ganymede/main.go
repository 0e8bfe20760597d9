// Ganymede is a TLS-intercepting proxy that sits between an LLM coding
// agent and upstream LLM APIs.
//
// It terminates CONNECT tunnels with certificates minted by its own
// certificate authority, decrypts the agent's traffic, and dispatches
// each request to the active provider plugin, translating request and
// response formats where the upstream speaks a different dialect.
//
// Usage:
//
//	# Start the proxy with default configuration
//	ganymede run
//
//	# Start with a custom configuration file
//	ganymede run --config /path/to/config.yaml
//
//	# Print the root certificate to trust in the client
//	ganymede certs show
//
//	# List the available provider plugins and their settings
//	ganymede providers
//
//	# Show version information
//	ganymede version
package main

func main() {
	Execute()
}
