package providers

// Plugin is the capability set every provider implementation exposes to
// the proxy. Exactly one plugin handles any given request; the proxy
// resolves the active provider id from the runtime snapshot and dispatches
// to its plugin inside a failure boundary.
type Plugin interface {
	// Descriptor returns the plugin's static metadata. It must be
	// constant for the life of the process.
	Descriptor() Descriptor

	// HandlesPath reports whether the plugin serves the given request
	// path. Alias paths are plugin-declared, not fixed by the proxy.
	HandlesPath(path string) bool

	// ExpectsJSONBody reports whether requests to the given path carry
	// a JSON body the proxy should read in full before dispatch.
	ExpectsJSONBody(path string) bool

	// HandleRequest serves one request. It returns true when the plugin
	// produced a response (success or error body), false when the path
	// was declined and the proxy should answer 404. A returned error or
	// panic is converted by the proxy into a 502 naming the provider.
	HandleRequest(ctx *RequestContext) (bool, error)
}

// AuthFlow is implemented by plugins whose provider needs an interactive
// authorization step before first use. force re-runs the flow even when
// stored credentials exist.
type AuthFlow interface {
	RunAuthFlow(force bool) error
}
