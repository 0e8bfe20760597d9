// Package ca implements the certificate authority used for TLS
// interception.
//
// The Authority maintains a self-signed root (generated once, persisted to
// a fixed directory, reloaded thereafter) and issues per-host leaf
// certificates signed by that root, cached in memory for the process
// lifetime. Clients that trust the root certificate accept the proxy's
// terminated TLS sessions for any intercepted host.
//
// Leaf entries are never revalidated against their validity window at
// runtime; with a one-year validity and process-lifetime caching, a cached
// entry cannot expire under any realistic process lifetime.
package ca
