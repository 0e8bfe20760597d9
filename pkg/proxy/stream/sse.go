package stream

import (
	"bytes"
	"io"
)

// doneMarker terminates a server-sent-event stream.
var doneMarker = []byte("[DONE]")

// SSESink decodes server-sent-event framing out of a raw byte stream and
// hands each complete data payload to a callback. A [DONE] payload ends
// this sink's view of the stream without affecting other fan-out
// consumers.
type SSESink struct {
	// OnData receives each complete data payload, [DONE] excluded. The
	// slice is only valid for the duration of the call.
	OnData func(data []byte)

	// OnDone is called when the [DONE] marker arrives, if set.
	OnDone func()

	// OnTruncated is called when the stream ends with an error before
	// [DONE], if set.
	OnTruncated func(err error)

	buf  bytes.Buffer
	done bool
}

// OnChunk buffers raw bytes and emits every complete data line.
func (s *SSESink) OnChunk(chunk []byte) {
	if s.done {
		return
	}
	s.buf.Write(chunk)

	for {
		raw := s.buf.Bytes()
		nl := bytes.IndexByte(raw, '\n')
		if nl < 0 {
			return
		}
		line := bytes.TrimRight(raw[:nl], "\r")
		s.buf.Next(nl + 1)
		s.handleLine(line)
		if s.done {
			return
		}
	}
}

func (s *SSESink) handleLine(line []byte) {
	data, ok := bytes.CutPrefix(line, []byte("data:"))
	if !ok {
		// Comment lines, event names, and blank separators carry no
		// payload.
		return
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return
	}
	if bytes.Equal(data, doneMarker) {
		s.done = true
		if s.OnDone != nil {
			s.OnDone()
		}
		return
	}
	if s.OnData != nil {
		s.OnData(data)
	}
}

// OnEnd reports truncation when the stream ended before [DONE].
func (s *SSESink) OnEnd(err error) {
	if s.done {
		return
	}
	s.done = true
	if err != nil && s.OnTruncated != nil {
		s.OnTruncated(err)
	}
}

// Done reports whether this sink's view of the stream has ended.
func (s *SSESink) Done() bool {
	return s.done
}

// WriteEvent frames one payload as a server-sent event.
func WriteEvent(dst io.Writer, payload []byte) error {
	if _, err := dst.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := dst.Write(payload); err != nil {
		return err
	}
	_, err := dst.Write([]byte("\n\n"))
	return err
}

// WriteDone frames the terminal [DONE] event.
func WriteDone(dst io.Writer) error {
	_, err := dst.Write([]byte("data: [DONE]\n\n"))
	return err
}
