package stream

import (
	"io"
)

// ChunkSink observes a byte stream chunk by chunk, in strict arrival
// order. The chunk slice is only valid for the duration of the call;
// sinks that keep data must copy it.
type ChunkSink interface {
	// OnChunk receives one chunk.
	OnChunk(chunk []byte)

	// OnEnd is called exactly once when the stream ends, with nil on a
	// clean end and the read or write error on a truncated one.
	OnEnd(err error)
}

// FanOut reads src once and delivers every chunk, in arrival order, to
// dst and to every sink. No consumer observes a chunk before all
// consumers observed the previous one, so a mid-stream failure leaves
// every consumer with the identical truncated prefix.
//
// A nil dst fans out to sinks only. FanOut returns the error that ended
// the stream, nil for a clean EOF.
func FanOut(src io.Reader, dst io.Writer, sinks ...ChunkSink) error {
	buf := make([]byte, 32*1024)

	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if dst != nil {
				if _, err := dst.Write(chunk); err != nil {
					end(sinks, err)
					return err
				}
			}
			for _, s := range sinks {
				s.OnChunk(chunk)
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				end(sinks, nil)
				return nil
			}
			end(sinks, readErr)
			return readErr
		}
	}
}

func end(sinks []ChunkSink, err error) {
	for _, s := range sinks {
		s.OnEnd(err)
	}
}

// Assembler is a ChunkSink that collects the full stream into memory.
type Assembler struct {
	buf []byte
	err error
	end bool
}

// OnChunk appends a copy of the chunk.
func (a *Assembler) OnChunk(chunk []byte) {
	a.buf = append(a.buf, chunk...)
}

// OnEnd records how the stream ended.
func (a *Assembler) OnEnd(err error) {
	a.end = true
	a.err = err
}

// Bytes returns the assembled stream so far.
func (a *Assembler) Bytes() []byte {
	return a.buf
}

// Err returns the error that truncated the stream, if any.
func (a *Assembler) Err() error {
	return a.err
}

// Ended reports whether the stream has ended.
func (a *Assembler) Ended() bool {
	return a.end
}
