package stream

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

type recordingSink struct {
	chunks [][]byte
	err    error
	ended  bool
}

func (s *recordingSink) OnChunk(chunk []byte) {
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.chunks = append(s.chunks, cp)
}

func (s *recordingSink) OnEnd(err error) {
	s.ended = true
	s.err = err
}

// chunkReader yields each chunk from exactly one Read call, then the
// configured terminal error.
type chunkReader struct {
	chunks [][]byte
	pos    int
	errAt  int
	err    error
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.err != nil && r.pos == r.errAt {
		return 0, r.err
	}
	if r.pos >= len(r.chunks) {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[r.pos])
	r.pos++
	return n, nil
}

func TestFanOutDeliversInOrder(t *testing.T) {
	src := &chunkReader{chunks: [][]byte{[]byte("c1"), []byte("c2"), []byte("c3")}}
	var client bytes.Buffer
	s1 := &recordingSink{}
	s2 := &recordingSink{}

	if err := FanOut(src, &client, s1, s2); err != nil {
		t.Fatalf("FanOut failed: %v", err)
	}

	if client.String() != "c1c2c3" {
		t.Errorf("Client received %q, want c1c2c3", client.String())
	}
	for i, sink := range []*recordingSink{s1, s2} {
		if len(sink.chunks) != 3 {
			t.Fatalf("Sink %d observed %d chunks, want 3", i, len(sink.chunks))
		}
		for j, want := range []string{"c1", "c2", "c3"} {
			if string(sink.chunks[j]) != want {
				t.Errorf("Sink %d chunk %d = %q, want %q", i, j, sink.chunks[j], want)
			}
		}
		if !sink.ended || sink.err != nil {
			t.Errorf("Sink %d: expected clean end, ended=%v err=%v", i, sink.ended, sink.err)
		}
	}
}

func TestFanOutTruncatesAllConsumersIdentically(t *testing.T) {
	readErr := errors.New("connection reset")
	src := &chunkReader{
		chunks: [][]byte{[]byte("c1"), []byte("c2"), []byte("c3")},
		errAt:  2,
		err:    readErr,
	}
	var client bytes.Buffer
	s1 := &recordingSink{}
	s2 := &recordingSink{}

	err := FanOut(src, &client, s1, s2)
	if !errors.Is(err, readErr) {
		t.Fatalf("Expected read error returned, got %v", err)
	}

	if client.String() != "c1c2" {
		t.Errorf("Client received %q, want exactly c1c2", client.String())
	}
	for i, sink := range []*recordingSink{s1, s2} {
		if len(sink.chunks) != 2 {
			t.Fatalf("Sink %d observed %d chunks, want exactly 2", i, len(sink.chunks))
		}
		if string(sink.chunks[0]) != "c1" || string(sink.chunks[1]) != "c2" {
			t.Errorf("Sink %d prefix = %q %q, want c1 c2", i, sink.chunks[0], sink.chunks[1])
		}
		if !errors.Is(sink.err, readErr) {
			t.Errorf("Sink %d: expected truncation error, got %v", i, sink.err)
		}
	}
}

func TestFanOutNilDestination(t *testing.T) {
	src := &chunkReader{chunks: [][]byte{[]byte("only")}}
	sink := &recordingSink{}

	if err := FanOut(src, nil, sink); err != nil {
		t.Fatalf("FanOut failed: %v", err)
	}
	if len(sink.chunks) != 1 || string(sink.chunks[0]) != "only" {
		t.Errorf("Unexpected sink chunks: %v", sink.chunks)
	}
}

func TestAssembler(t *testing.T) {
	src := &chunkReader{chunks: [][]byte{[]byte("ab"), []byte("cd")}}
	a := &Assembler{}

	if err := FanOut(src, nil, a); err != nil {
		t.Fatalf("FanOut failed: %v", err)
	}
	if string(a.Bytes()) != "abcd" {
		t.Errorf("Assembled %q, want abcd", a.Bytes())
	}
	if !a.Ended() || a.Err() != nil {
		t.Errorf("Expected clean end, ended=%v err=%v", a.Ended(), a.Err())
	}
}
