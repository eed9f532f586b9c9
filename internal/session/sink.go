package session

import (
	"fmt"
	"io"
	"sync"
)

// Sink serialises formatted writes to the serial descriptor. Each emit is a
// single write call, so a command reply never interleaves with a periodic
// data frame at byte granularity. The sink lock is separate from the
// session mutex; lock order is session then sink.
type Sink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewSink wraps w.
func NewSink(w io.Writer) *Sink {
	return &Sink{w: w}
}

// Emitf formats and writes one frame.
func (s *Sink) Emitf(format string, args ...interface{}) error {
	return s.Emit([]byte(fmt.Sprintf(format, args...)))
}

// Emit writes one pre-formatted frame.
func (s *Sink) Emit(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(frame); err != nil {
		return fmt.Errorf("serial write: %w", err)
	}
	return nil
}
