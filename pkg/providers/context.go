package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"

	"mercator-hq/ganymede/pkg/events"
	"mercator-hq/ganymede/pkg/runtime"
)

// RequestContext carries one decrypted inbound request through a single
// plugin call. The proxy constructs it, passes it to exactly one
// HandleRequest invocation, and discards it when the response completes.
//
// Responses go back over the intercepted TLS connection as hand-written
// HTTP/1.1: buffered responses carry a Content-Length and keep the
// connection alive, streamed responses are read-until-close.
type RequestContext struct {
	// ID is the unique request id, also attached to emitted events.
	ID string

	Method string
	Path   string
	Header http.Header

	// Body is the full request body when the plugin declared
	// ExpectsJSONBody for the path, nil otherwise.
	Body []byte

	// Snapshot is the runtime configuration this request is served
	// under. It never changes mid-request.
	Snapshot *runtime.Snapshot

	// Events receives request lifecycle events.
	Events events.Sink

	// OnStreamBytes, when set, receives the relayed byte count of a
	// streamed response.
	OnStreamBytes func(n int)

	Log *slog.Logger

	ctx           context.Context
	conn          io.Writer
	wroteResponse bool
	closeAfter    bool
}

// Context returns the request-scoped context, cancelled when the client
// connection goes away.
func (c *RequestContext) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// NewRequestContext builds the context for one inbound request.
func NewRequestContext(conn io.Writer, req *http.Request, body []byte, snap *runtime.Snapshot, sink events.Sink, logger *slog.Logger) *RequestContext {
	if sink == nil {
		sink = events.Multi{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &RequestContext{
		ctx:      req.Context(),
		ID:       id,
		Method:   req.Method,
		Path:     req.URL.Path,
		Header:   req.Header,
		Body:     body,
		Snapshot: snap,
		Events:   sink,
		Log:      logger.With("request_id", id, "path", req.URL.Path),
		conn:     conn,
	}
}

// Responded reports whether a response has been written.
func (c *RequestContext) Responded() bool {
	return c.wroteResponse
}

// CloseAfterResponse reports whether the connection must be closed once
// the response is complete (set for streamed responses).
func (c *RequestContext) CloseAfterResponse() bool {
	return c.closeAfter
}

// Setting reads a runtime setting with a fallback.
func (c *RequestContext) Setting(key, fallback string) string {
	return c.Snapshot.Setting(key, fallback)
}

// RecordStreamBytes reports how many upstream bytes a streamed response
// relayed. The orchestrator hooks OnStreamBytes into its metrics.
func (c *RequestContext) RecordStreamBytes(n int) {
	if c.OnStreamBytes != nil {
		c.OnStreamBytes(n)
	}
}

// Emit sends an event stamped with this request's id.
func (c *RequestContext) Emit(provider string, kind events.Kind, detail string, payload map[string]any) {
	c.Events.Emit(events.Event{
		RequestID: c.ID,
		Provider:  provider,
		Kind:      kind,
		Time:      time.Now(),
		Path:      c.Path,
		Detail:    detail,
		Payload:   payload,
	})
}

// Respond writes a complete buffered response with a Content-Length.
func (c *RequestContext) Respond(status int, header http.Header, body []byte) error {
	if c.wroteResponse {
		return fmt.Errorf("response already written for request %s", c.ID)
	}
	c.wroteResponse = true

	if _, err := fmt.Fprintf(c.conn, "HTTP/1.1 %d %s\r\n", status, http.StatusText(status)); err != nil {
		return err
	}
	for _, key := range sortedHeaderKeys(header) {
		for _, v := range header[key] {
			if _, err := fmt.Fprintf(c.conn, "%s: %s\r\n", key, v); err != nil {
				return err
			}
		}
	}
	if _, err := fmt.Fprintf(c.conn, "Content-Length: %d\r\n\r\n", len(body)); err != nil {
		return err
	}
	_, err := c.conn.Write(body)
	return err
}

// RespondJSON marshals v and writes it as an application/json response.
func (c *RequestContext) RespondJSON(status int, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal response body: %w", err)
	}
	header := http.Header{"Content-Type": []string{"application/json"}}
	return c.Respond(status, header, body)
}

// RespondText writes a plain-text response.
func (c *RequestContext) RespondText(status int, text string) error {
	header := http.Header{"Content-Type": []string{"text/plain; charset=utf-8"}}
	return c.Respond(status, header, []byte(text))
}

// StartStream writes the response head for a streamed body and returns
// the writer for it. The body has no Content-Length; the connection is
// closed when the stream ends.
func (c *RequestContext) StartStream(status int, header http.Header) (io.Writer, error) {
	if c.wroteResponse {
		return nil, fmt.Errorf("response already written for request %s", c.ID)
	}
	c.wroteResponse = true
	c.closeAfter = true

	if _, err := fmt.Fprintf(c.conn, "HTTP/1.1 %d %s\r\n", status, http.StatusText(status)); err != nil {
		return nil, err
	}
	for _, key := range sortedHeaderKeys(header) {
		for _, v := range header[key] {
			if _, err := fmt.Fprintf(c.conn, "%s: %s\r\n", key, v); err != nil {
				return nil, err
			}
		}
	}
	if _, err := io.WriteString(c.conn, "Connection: close\r\n\r\n"); err != nil {
		return nil, err
	}
	return c.conn, nil
}

// StartEventStream is StartStream with text/event-stream headers.
func (c *RequestContext) StartEventStream(status int) (io.Writer, error) {
	header := http.Header{
		"Content-Type":  []string{"text/event-stream"},
		"Cache-Control": []string{"no-cache"},
	}
	return c.StartStream(status, header)
}

func sortedHeaderKeys(header http.Header) []string {
	keys := make([]string, 0, len(header))
	for k := range header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
