// Package runtime holds the proxy's live configuration snapshot.
//
// A Snapshot is an immutable value: the active provider id plus the
// current provider settings. The Store swaps whole snapshots atomically,
// so request handlers reading mid-change always see either the old or the
// new configuration, never a mix.
//
// Environment variables declared by provider setting descriptors override
// file-persisted settings; provider selection itself is overridable with
// GANYMEDE_PROVIDER. An optional fsnotify-based watcher reloads the
// settings file live.
package runtime
