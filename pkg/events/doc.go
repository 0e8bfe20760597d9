// Package events defines the proxy event sink contract and two reference
// sinks.
//
// The proxy emits request, response, and error events through the Sink
// interface. External collaborators (session storage, traffic recording,
// AI enrichment, the terminal UI) attach their own sinks; the proxy does
// not know or care what consumers do with events, and a misbehaving sink
// never affects request handling.
//
// LogSink mirrors events to the structured log. SQLiteSink appends them to
// a local database, which doubles as the integration point for consumers
// that want durable history without implementing their own sink.
package events
