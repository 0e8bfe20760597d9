// Package limits provides per-upstream request pacing for the proxy.
//
// Unlike quota-style rate limiting, the proxy only needs a minimum-interval
// gate: some upstream provider families throttle aggressively when requests
// arrive back-to-back, so each family gets an IntervalGate that spaces
// requests out. A zero interval disables gating.
package limits
