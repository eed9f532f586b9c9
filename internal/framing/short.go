package framing

import "time"

// Short-command constraints: one letter plus at most three digits, no
// terminator. A command completes at max length, at the next letter, or
// after a quiet gap on the wire.
const (
	shortMaxLen  = 4
	DefaultQuiet = 100 * time.Millisecond
)

// ShortAssembler frames the ice probe's terminator-less commands.
type ShortAssembler struct {
	quiet time.Duration
	buf   []byte
	last  time.Time
}

// NewShortAssembler builds an assembler with the given inter-byte quiet
// interval; zero selects DefaultQuiet.
func NewShortAssembler(quiet time.Duration) *ShortAssembler {
	if quiet <= 0 {
		quiet = DefaultQuiet
	}
	return &ShortAssembler{quiet: quiet}
}

// Feed consumes one byte at the given instant and returns zero or more
// completed commands. A letter flushes any pending command before starting
// a new one; the fourth byte completes a command immediately.
func (a *ShortAssembler) Feed(b byte, now time.Time) [][]byte {
	var out [][]byte

	if cmd := a.Tick(now); cmd != nil {
		out = append(out, cmd)
	}

	switch {
	case isLetter(b):
		if len(a.buf) > 0 {
			out = append(out, a.take())
		}
		a.buf = append(a.buf, b)
		a.last = now
	case isDigit(b) && len(a.buf) > 0:
		a.buf = append(a.buf, b)
		a.last = now
		if len(a.buf) == shortMaxLen {
			out = append(out, a.take())
		}
	default:
		// Noise outside a command is dropped and does not refresh the
		// quiet timer.
	}

	return out
}

// Tick flushes a pending command once the quiet interval has elapsed. The
// receiver calls it on every read timeout.
func (a *ShortAssembler) Tick(now time.Time) []byte {
	if len(a.buf) == 0 || now.Sub(a.last) < a.quiet {
		return nil
	}
	return a.take()
}

func (a *ShortAssembler) take() []byte {
	cmd := a.buf
	a.buf = nil
	return cmd
}

func isLetter(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
