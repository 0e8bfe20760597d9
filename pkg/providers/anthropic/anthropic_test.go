package anthropic

import (
	"bufio"
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"mercator-hq/ganymede/pkg/events"
	"mercator-hq/ganymede/pkg/providers"
	"mercator-hq/ganymede/pkg/runtime"
)

type captureSink struct {
	events []events.Event
}

func (s *captureSink) Emit(ev events.Event) {
	s.events = append(s.events, ev)
}

func newContext(t *testing.T, conn *bytes.Buffer, method, path string, body []byte, settings map[string]string) (*providers.RequestContext, *captureSink) {
	t.Helper()
	req, err := http.NewRequest(method, "https://api.anthropic.com"+path, nil)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	sink := &captureSink{}
	snap := &runtime.Snapshot{ActiveProvider: ID, Settings: settings}
	return providers.NewRequestContext(conn, req, body, snap, sink, nil), sink
}

func TestHandlesPath(t *testing.T) {
	p := New(nil)

	for _, path := range []string{"/v1/messages", "/v1/messages/count_tokens", "/v1/models", "/v1/usage"} {
		if !p.HandlesPath(path) {
			t.Errorf("Expected %s handled", path)
		}
	}
	for _, path := range []string{"/v1/chat/completions", "/v1/embeddings", "/other"} {
		if p.HandlesPath(path) {
			t.Errorf("Expected %s not handled", path)
		}
	}

	if !p.ExpectsJSONBody("/v1/messages") {
		t.Error("Expected JSON body on /v1/messages")
	}
	if p.ExpectsJSONBody("/v1/models") {
		t.Error("Expected no JSON body on /v1/models")
	}
}

func TestDescriptorIsValid(t *testing.T) {
	if err := New(nil).Descriptor().Validate(); err != nil {
		t.Errorf("Descriptor must validate: %v", err)
	}
}

func TestPassthroughInjectsConfiguredKey(t *testing.T) {
	var gotKey, gotVersion string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Api-Key")
		gotVersion = r.Header.Get("Anthropic-Version")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"msg_1","type":"message"}`))
	}))
	defer srv.Close()

	p := New(providers.NewUpstream(providers.UpstreamOptions{Provider: ID, BaseURL: srv.URL}))

	var conn bytes.Buffer
	ctx, sink := newContext(t, &conn, http.MethodPost, "/v1/messages", []byte(`{"model":"claude"}`),
		map[string]string{"anthropic.api_key": "sk-config"})

	handled, err := p.HandleRequest(ctx)
	if err != nil {
		t.Fatalf("HandleRequest failed: %v", err)
	}
	if !handled {
		t.Fatal("Expected request handled")
	}

	if gotKey != "sk-config" {
		t.Errorf("Expected configured api key injected, got %q", gotKey)
	}
	if gotVersion != defaultVersion {
		t.Errorf("Expected default version header, got %q", gotVersion)
	}

	resp, err := http.ReadResponse(bufio.NewReader(&conn), nil)
	if err != nil {
		t.Fatalf("Client response does not parse: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "msg_1") {
		t.Errorf("Unexpected relayed response: %d %q", resp.StatusCode, body)
	}

	kinds := make([]events.Kind, 0, len(sink.events))
	for _, ev := range sink.events {
		kinds = append(kinds, ev.Kind)
	}
	if len(kinds) != 2 || kinds[0] != events.KindRequest || kinds[1] != events.KindResponse {
		t.Errorf("Expected request then response events, got %v", kinds)
	}
}

func TestClientKeyWinsOverConfigured(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Api-Key")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	p := New(providers.NewUpstream(providers.UpstreamOptions{Provider: ID, BaseURL: srv.URL}))

	var conn bytes.Buffer
	req, _ := http.NewRequest(http.MethodGet, "https://api.anthropic.com/v1/models", nil)
	req.Header.Set("X-Api-Key", "sk-client")
	snap := &runtime.Snapshot{Settings: map[string]string{"anthropic.api_key": "sk-config"}}
	ctx := providers.NewRequestContext(&conn, req, nil, snap, nil, nil)

	if _, err := p.HandleRequest(ctx); err != nil {
		t.Fatalf("HandleRequest failed: %v", err)
	}
	if gotKey != "sk-client" {
		t.Errorf("Expected client key to win, got %q", gotKey)
	}
}

func TestStreamedResponseRelayedVerbatim(t *testing.T) {
	sse := "event: message_start\ndata: {\"type\":\"message_start\"}\n\nevent: message_stop\ndata: {\"type\":\"message_stop\"}\n\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(sse))
	}))
	defer srv.Close()

	p := New(providers.NewUpstream(providers.UpstreamOptions{Provider: ID, BaseURL: srv.URL}))

	var conn bytes.Buffer
	ctx, sink := newContext(t, &conn, http.MethodPost, "/v1/messages", []byte(`{"stream":true}`), nil)

	if _, err := p.HandleRequest(ctx); err != nil {
		t.Fatalf("HandleRequest failed: %v", err)
	}

	raw := conn.String()
	if !strings.Contains(raw, "Content-Type: text/event-stream") {
		t.Error("Expected event-stream content type relayed")
	}
	if !strings.HasSuffix(raw, sse) {
		t.Errorf("Expected verbatim stream bytes, got %q", raw)
	}
	if !ctx.CloseAfterResponse() {
		t.Error("Streamed relay must close the connection afterwards")
	}

	last := sink.events[len(sink.events)-1]
	if last.Kind != events.KindResponse || last.Payload["streamed"] != true {
		t.Errorf("Expected streamed response event, got %+v", last)
	}
}

func TestUpstreamErrorBodyRelayed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"type":"error","error":{"type":"not_found_error","message":"no such model"}}`))
	}))
	defer srv.Close()

	p := New(providers.NewUpstream(providers.UpstreamOptions{Provider: ID, BaseURL: srv.URL}))

	var conn bytes.Buffer
	ctx, sink := newContext(t, &conn, http.MethodPost, "/v1/messages", []byte(`{}`), nil)

	if _, err := p.HandleRequest(ctx); err != nil {
		t.Fatalf("HandleRequest failed: %v", err)
	}

	resp, err := http.ReadResponse(bufio.NewReader(&conn), nil)
	if err != nil {
		t.Fatalf("Client response does not parse: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected upstream status relayed, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "no such model") {
		t.Errorf("Expected upstream error body relayed, got %q", body)
	}

	sawError := false
	for _, ev := range sink.events {
		if ev.Kind == events.KindError {
			sawError = true
		}
	}
	if !sawError {
		t.Error("Expected an error event emitted")
	}
}
