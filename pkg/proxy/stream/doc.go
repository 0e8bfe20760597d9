// Package stream fans a single upstream byte stream out to the client
// connection and any number of auxiliary sinks without re-reading the
// source. All consumers observe chunks in exactly upstream arrival
// order; a mid-stream failure truncates every consumer at the same
// chunk. SSESink layers server-sent-event decoding on top of the raw
// chunk interface.
package stream
