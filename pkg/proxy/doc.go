// Package proxy is the request orchestrator: the listening socket, the
// CONNECT handshake, TLS termination under the local authority, and
// dispatch of decrypted requests to provider plugins.
//
// Each client connection gets its own goroutine. Plugin dispatch runs
// inside a recover boundary, so a failing plugin yields a single 502 and
// a proxy-error event without affecting the process or sibling requests.
package proxy
