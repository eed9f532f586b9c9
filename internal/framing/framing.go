// Package framing implements the byte-level receive framing used by the
// instrument families: plain line delimiting, STX/ETX frames with a trailing
// CRC-16 field, and the ice probe's terminator-less short commands.
package framing

import "errors"

// Framing sentinels shared by the framed families.
const (
	STX = 0x02
	ETX = 0x03
)

var (
	// ErrInvalidFormat marks a frame whose STX/ETX or delimiter structure
	// is broken.
	ErrInvalidFormat = errors.New("framing: invalid frame format")
	// ErrInvalidCrc marks a structurally valid frame whose CRC does not
	// match its payload.
	ErrInvalidCrc = errors.New("framing: crc mismatch")
)

// maxLineLen bounds a line-delimited frame; longer partial lines are
// discarded (observed hardware keeps reading without a diagnostic).
const maxLineLen = 256

// LineAssembler accumulates bytes until CR or LF and emits the completed
// line. Empty lines are swallowed.
type LineAssembler struct {
	buf []byte
}

// Feed consumes one byte. It returns a completed line and true when a
// delimiter arrives with a non-empty buffer.
func (a *LineAssembler) Feed(b byte) ([]byte, bool) {
	switch b {
	case '\r', '\n':
		if len(a.buf) == 0 {
			return nil, false
		}
		line := a.buf
		a.buf = nil
		return line, true
	default:
		if len(a.buf) >= maxLineLen {
			a.buf = a.buf[:0]
		}
		a.buf = append(a.buf, b)
		return nil, false
	}
}
