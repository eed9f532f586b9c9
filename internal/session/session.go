// Package session runs the per-device serial engine: a receiver goroutine
// that frames and dispatches incoming commands and a paced sender that
// emits data frames while the device is in continuous mode. The two share
// the session mutex; the sender is woken through a single-slot channel so
// one state change produces exactly one wake-up.
package session

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/metwx/metemu/internal/log"
)

const idleSleep = 10 * time.Millisecond

// Device is an emulated instrument. All methods are invoked with the
// session mutex held.
type Device interface {
	// Feed consumes one received byte; completed frames are parsed and
	// dispatched inside. The return value reports whether the command
	// changed state the sender cares about (mode, interval).
	Feed(b byte, now time.Time, sink *Sink) bool

	// Tick runs once per idle read timeout; families with quiet-interval
	// framing flush pending commands here.
	Tick(now time.Time, sink *Sink) bool

	// Continuous reports whether the device is in its RUN mode.
	Continuous() bool

	// Interval is the continuous-mode transmit cadence.
	Interval() time.Duration

	// EmitData renders one data frame from the replay source and writes
	// it to the sink. A drained source skips the tick.
	EmitData(now time.Time, sink *Sink)
}

// Session owns the two cooperating goroutines for one device.
type Session struct {
	ID   string
	dev  Device
	rw   io.ReadWriter
	sink *Sink

	mu       sync.Mutex
	wake     chan struct{}
	lastSend time.Time
}

// New builds a session for dev speaking over rw.
func New(rw io.ReadWriter, dev Device) *Session {
	return &Session{
		ID:   uuid.NewString(),
		dev:  dev,
		rw:   rw,
		sink: NewSink(rw),
		wake: make(chan struct{}, 1),
	}
}

// Sink returns the session's serial sink.
func (s *Session) Sink() *Sink {
	return s.sink
}

// Wake nudges the sender. Non-blocking; coalesces with a pending wake.
func (s *Session) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Inject feeds raw bytes into the command path as if they arrived on the
// wire. Used by the HTTP control endpoint.
func (s *Session) Inject(frame []byte) {
	now := time.Now()
	changed := false
	s.mu.Lock()
	for _, b := range frame {
		if s.dev.Feed(b, now, s.sink) {
			changed = true
		}
	}
	s.mu.Unlock()
	if changed {
		s.Wake()
	}
}

// WithLock runs fn under the session mutex. The control endpoint uses it
// to take consistent snapshots of the device.
func (s *Session) WithLock(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// readDeadliner is implemented by net.Conn transports. Cancellation sets
// an immediate deadline so a receiver blocked in Read unblocks; the serial
// port needs no nudge, its reads already time out.
type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// Run starts the receiver and sender and blocks until both exit. The
// receiver exits on ctx cancellation or when the transport reports EOF;
// EOF also tears down the sender.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		if d, ok := s.rw.(readDeadliner); ok {
			d.SetReadDeadline(time.Now())
		}
	}()

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		defer cancel()
		s.receiver(ctx)
	}()
	go func() {
		defer wg.Done()
		s.sender(ctx)
	}()

	wg.Wait()
	return nil
}

// receiver reads one byte at a time, feeding the device's frame assembler.
// Errors never unwind the loop; only EOF or cancellation end it.
func (s *Session) receiver(ctx context.Context) {
	buf := make([]byte, 1)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := s.rw.Read(buf)
		now := time.Now()

		// A byte delivered together with an error is still data.
		if n > 0 {
			s.mu.Lock()
			changed := s.dev.Feed(buf[0], now, s.sink)
			s.mu.Unlock()
			if changed {
				s.Wake()
			}
		}

		if err != nil {
			var nerr net.Error
			switch {
			case errors.As(err, &nerr) && nerr.Timeout():
				// Read deadline lapsed; treat as idle.
			case errors.Is(err, io.EOF):
				log.Info("serial input closed")
				return
			default:
				if ctx.Err() != nil {
					return
				}
				log.Errorf("serial read: %v", err)
				continue
			}
		}

		if n == 0 {
			s.idle(now)
			time.Sleep(idleSleep)
		}
	}
}

// idle runs the device tick that drives quiet-interval command flushing.
func (s *Session) idle(now time.Time) {
	s.mu.Lock()
	changed := s.dev.Tick(now, s.sink)
	s.mu.Unlock()
	if changed {
		s.Wake()
	}
}

// sender paces continuous-mode data frames. Timed waits ride on Go's
// monotonic clock, so wall-clock steps do not disturb the cadence.
func (s *Session) sender(ctx context.Context) {
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		s.mu.Lock()
		run := s.dev.Continuous()
		interval := s.dev.Interval()
		last := s.lastSend
		s.mu.Unlock()

		if !run {
			select {
			case <-ctx.Done():
				return
			case <-s.wake:
			}
			continue
		}

		now := time.Now()
		if wait := last.Add(interval).Sub(now); wait > 0 {
			timer.Reset(wait)
			select {
			case <-ctx.Done():
				return
			case <-s.wake:
				if !timer.Stop() {
					<-timer.C
				}
			case <-timer.C:
			}
			continue
		}

		s.mu.Lock()
		if s.dev.Continuous() {
			s.dev.EmitData(now, s.sink)
			s.lastSend = now
		}
		s.mu.Unlock()
	}
}
