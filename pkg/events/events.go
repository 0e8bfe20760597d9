package events

import (
	"log/slog"
	"time"
)

// Kind identifies the type of a proxy event.
type Kind string

const (
	// KindRequest is emitted when a decrypted client request is dispatched.
	KindRequest Kind = "request"

	// KindResponse is emitted when a response has been fully delivered.
	KindResponse Kind = "response"

	// KindError is emitted when an upstream or translation error is
	// returned to the client.
	KindError Kind = "error"

	// KindProxyError is emitted when the proxy itself fails a request,
	// including plugin dispatch failures.
	KindProxyError Kind = "proxy_error"
)

// Event is a single proxy-emitted event. External collaborators (session
// storage, recording, enrichment) consume these through the Sink interface;
// the proxy never depends on what they do with them.
type Event struct {
	// RequestID correlates all events for one proxied request.
	RequestID string `json:"request_id"`

	// Provider is the provider id handling the request, if resolved.
	Provider string `json:"provider,omitempty"`

	// Kind is the event type.
	Kind Kind `json:"kind"`

	// Time is when the event was emitted.
	Time time.Time `json:"time"`

	// Path is the request path, where applicable.
	Path string `json:"path,omitempty"`

	// Detail is a short human-readable description (error message,
	// status text).
	Detail string `json:"detail,omitempty"`

	// Payload carries event-specific structured data.
	Payload map[string]any `json:"payload,omitempty"`
}

// Sink receives proxy events. Implementations must be safe for concurrent
// use; Emit must not block request handling for long.
type Sink interface {
	Emit(ev Event)
}

// Multi fans an event out to several sinks in registration order.
type Multi []Sink

// Emit delivers ev to every sink in order.
func (m Multi) Emit(ev Event) {
	for _, s := range m {
		s.Emit(ev)
	}
}

// LogSink mirrors events into the structured log.
type LogSink struct {
	Logger *slog.Logger
}

// NewLogSink creates a LogSink backed by the default logger.
func NewLogSink() *LogSink {
	return &LogSink{Logger: slog.Default().With("component", "events")}
}

// Emit logs the event at info level (error kinds at warn).
func (s *LogSink) Emit(ev Event) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attrs := []any{
		"request_id", ev.RequestID,
		"kind", string(ev.Kind),
	}
	if ev.Provider != "" {
		attrs = append(attrs, "provider", ev.Provider)
	}
	if ev.Path != "" {
		attrs = append(attrs, "path", ev.Path)
	}
	if ev.Detail != "" {
		attrs = append(attrs, "detail", ev.Detail)
	}

	switch ev.Kind {
	case KindError, KindProxyError:
		logger.Warn("proxy event", attrs...)
	default:
		logger.Info("proxy event", attrs...)
	}
}
