package events

import (
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// captureSink records emitted events for assertions.
type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureSink) Emit(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func TestMulti_DeliversInOrder(t *testing.T) {
	s1 := &captureSink{}
	s2 := &captureSink{}
	m := Multi{s1, s2}

	for i := 0; i < 3; i++ {
		m.Emit(Event{RequestID: "req-1", Kind: KindRequest, Time: time.Now()})
	}

	if len(s1.events) != 3 || len(s2.events) != 3 {
		t.Fatalf("Expected 3 events in each sink, got %d and %d", len(s1.events), len(s2.events))
	}
}

func TestSQLiteSink_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	sink, err := NewSQLiteSink(SQLiteSinkConfig{Path: path})
	if err != nil {
		t.Fatalf("NewSQLiteSink failed: %v", err)
	}
	defer sink.Close()

	sink.Emit(Event{
		RequestID: "req-42",
		Provider:  "openai",
		Kind:      KindRequest,
		Time:      time.Now(),
		Path:      "/v1/messages",
		Payload:   map[string]any{"model": "claude-sonnet-4-20251001"},
	})
	sink.Emit(Event{
		RequestID: "req-42",
		Provider:  "openai",
		Kind:      KindError,
		Time:      time.Now(),
		Detail:    "upstream timeout",
	})

	total, err := sink.Count("")
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if total != 2 {
		t.Errorf("Expected 2 events, got %d", total)
	}

	errors, err := sink.Count(KindError)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if errors != 1 {
		t.Errorf("Expected 1 error event, got %d", errors)
	}
}

func TestSQLiteSink_ConcurrentEmit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	sink, err := NewSQLiteSink(SQLiteSinkConfig{Path: path})
	if err != nil {
		t.Fatalf("NewSQLiteSink failed: %v", err)
	}
	defer sink.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sink.Emit(Event{RequestID: "req-c", Kind: KindResponse, Time: time.Now()})
		}()
	}
	wg.Wait()

	total, err := sink.Count(KindResponse)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if total != 10 {
		t.Errorf("Expected 10 events, got %d", total)
	}
}
