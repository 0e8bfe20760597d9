// Package credentials resolves and caches upstream provider bearer
// tokens.
//
// An explicit configured token always wins and never triggers a refresh
// call. Otherwise a long-lived credential is exchanged at the provider's
// refresh endpoint; successful exchanges are cached keyed by the
// credential, with a refresh-due time ahead of expiry. Missing
// configuration and failed refreshes are explicit errors, never silent
// empty tokens.
package credentials
