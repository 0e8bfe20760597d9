package providers

import (
	"bufio"
	"bytes"
	"net/http"
	"strings"
	"testing"

	"mercator-hq/ganymede/pkg/events"
	"mercator-hq/ganymede/pkg/runtime"
)

type captureSink struct {
	events []events.Event
}

func (s *captureSink) Emit(ev events.Event) {
	s.events = append(s.events, ev)
}

func newTestContext(t *testing.T, conn *bytes.Buffer) (*RequestContext, *captureSink) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, "https://api.example.com/v1/messages", nil)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	sink := &captureSink{}
	snap := &runtime.Snapshot{ActiveProvider: "p", Settings: map[string]string{"p.base_url": "https://up"}}
	return NewRequestContext(conn, req, []byte(`{}`), snap, sink, nil), sink
}

func TestRespondWritesCompleteHTTPResponse(t *testing.T) {
	var conn bytes.Buffer
	ctx, _ := newTestContext(t, &conn)

	if err := ctx.RespondJSON(http.StatusOK, map[string]string{"ok": "yes"}); err != nil {
		t.Fatalf("RespondJSON failed: %v", err)
	}

	resp, err := http.ReadResponse(bufio.NewReader(&conn), nil)
	if err != nil {
		t.Fatalf("Response does not parse: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected application/json, got %q", ct)
	}
	if resp.ContentLength != 12 {
		t.Errorf("Expected Content-Length 12, got %d", resp.ContentLength)
	}
	if !ctx.Responded() {
		t.Error("Expected Responded() true after writing")
	}
	if ctx.CloseAfterResponse() {
		t.Error("Buffered responses must keep the connection alive")
	}
}

func TestRespondTwiceFails(t *testing.T) {
	var conn bytes.Buffer
	ctx, _ := newTestContext(t, &conn)

	if err := ctx.RespondText(http.StatusOK, "first"); err != nil {
		t.Fatalf("First response failed: %v", err)
	}
	if err := ctx.RespondText(http.StatusOK, "second"); err == nil {
		t.Error("Expected error writing a second response")
	}
}

func TestStartEventStream(t *testing.T) {
	var conn bytes.Buffer
	ctx, _ := newTestContext(t, &conn)

	w, err := ctx.StartEventStream(http.StatusOK)
	if err != nil {
		t.Fatalf("StartEventStream failed: %v", err)
	}
	if _, err := w.Write([]byte("data: {}\n\n")); err != nil {
		t.Fatalf("Stream write failed: %v", err)
	}

	raw := conn.String()
	if !strings.HasPrefix(raw, "HTTP/1.1 200 OK\r\n") {
		t.Errorf("Unexpected status line: %q", raw)
	}
	if !strings.Contains(raw, "Content-Type: text/event-stream\r\n") {
		t.Error("Expected text/event-stream content type")
	}
	if !strings.Contains(raw, "Connection: close\r\n") {
		t.Error("Streamed responses must announce connection close")
	}
	if strings.Contains(raw, "Content-Length") {
		t.Error("Streamed responses must not carry a Content-Length")
	}
	if !ctx.CloseAfterResponse() {
		t.Error("Expected CloseAfterResponse() true after streaming")
	}
}

func TestEmitStampsRequestID(t *testing.T) {
	var conn bytes.Buffer
	ctx, sink := newTestContext(t, &conn)

	ctx.Emit("p", events.KindError, "boom", nil)

	if len(sink.events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(sink.events))
	}
	ev := sink.events[0]
	if ev.RequestID != ctx.ID {
		t.Errorf("Expected event stamped with request id %s, got %s", ctx.ID, ev.RequestID)
	}
	if ev.Path != "/v1/messages" || ev.Provider != "p" || ev.Kind != events.KindError {
		t.Errorf("Unexpected event: %+v", ev)
	}
	if ev.Time.IsZero() {
		t.Error("Expected event time to be stamped")
	}
}

func TestSettingFallback(t *testing.T) {
	var conn bytes.Buffer
	ctx, _ := newTestContext(t, &conn)

	if got := ctx.Setting("p.base_url", "fallback"); got != "https://up" {
		t.Errorf("Expected snapshot value, got %q", got)
	}
	if got := ctx.Setting("p.unset", "fallback"); got != "fallback" {
		t.Errorf("Expected fallback, got %q", got)
	}
}
