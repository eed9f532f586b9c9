package framing

import (
	"bytes"
	"strconv"

	"github.com/metwx/metemu/pkg/checksum"
)

// maxFrameLen bounds an STX/ETX frame; a runaway frame without ETX is
// dropped and the assembler resyncs on the next STX.
const maxFrameLen = 512

// FramedAssembler accumulates an STX-delimited frame of the shape
//
//	STX <payload> ':' <crc-hex-4> ':' ETX
//
// and verifies the CRC-16/CCITT of the payload. Whitespace on either side
// of the CRC field is tolerated. CRC verification can be switched off at
// runtime (SETNC crc_checking_enabled=0), which turns a mismatch into a
// soft accept.
type FramedAssembler struct {
	seed     uint16
	checkCRC func() bool
	buf      []byte
	inFrame  bool
}

// NewFramedAssembler builds an assembler for the given CRC seed. checkCRC
// is consulted per frame so the dispatcher can toggle enforcement on the
// live sensor record.
func NewFramedAssembler(seed uint16, checkCRC func() bool) *FramedAssembler {
	if checkCRC == nil {
		checkCRC = func() bool { return true }
	}
	return &FramedAssembler{seed: seed, checkCRC: checkCRC}
}

// Feed consumes one byte. On frame completion it returns the payload bytes
// strictly between STX and the second-last ':'. A broken frame returns
// ErrInvalidFormat or ErrInvalidCrc and resets the assembler.
func (a *FramedAssembler) Feed(b byte) ([]byte, error) {
	if !a.inFrame {
		if b == STX {
			a.inFrame = true
			a.buf = a.buf[:0]
		}
		return nil, nil
	}

	switch b {
	case STX:
		// New frame start aborts the previous partial frame.
		a.buf = a.buf[:0]
		return nil, nil
	case ETX:
		a.inFrame = false
		return a.close()
	default:
		if len(a.buf) >= maxFrameLen {
			a.inFrame = false
			a.buf = a.buf[:0]
			return nil, ErrInvalidFormat
		}
		a.buf = append(a.buf, b)
		return nil, nil
	}
}

// close validates the accumulated frame body (payload ':' crc ':').
func (a *FramedAssembler) close() ([]byte, error) {
	body := a.buf
	a.buf = nil

	last := bytes.LastIndexByte(body, ':')
	if last < 0 {
		return nil, ErrInvalidFormat
	}
	if trailing := bytes.TrimSpace(body[last+1:]); len(trailing) != 0 {
		return nil, ErrInvalidFormat
	}

	prev := bytes.LastIndexByte(body[:last], ':')
	if prev < 0 {
		return nil, ErrInvalidFormat
	}

	crcField := bytes.TrimSpace(body[prev+1 : last])
	if len(crcField) != 4 {
		return nil, ErrInvalidFormat
	}
	received, err := strconv.ParseUint(string(crcField), 16, 16)
	if err != nil {
		return nil, ErrInvalidFormat
	}

	payload := body[:prev]
	if len(payload) == 0 {
		return nil, ErrInvalidFormat
	}

	if computed := checksum.Crc16CCITTSeed(a.seed, payload); uint16(received) != computed && a.checkCRC() {
		return nil, ErrInvalidCrc
	}
	return payload, nil
}
