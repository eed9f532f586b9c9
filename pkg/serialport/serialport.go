// Package serialport opens the emulator's serial transport: raw 8N1 at the
// family's baud rate with a 100 ms read timeout, plus optional half-duplex
// RS-485 turnaround on Linux drivers that support it.
package serialport

import (
	"fmt"
	"io"
	"strings"
	"time"

	serial "github.com/tarm/goserial"
)

// Link modes accepted on the command line. RS-232 and RS-422 need no
// driver support beyond the plain port; RS-485 requests hardware RTS
// turnaround where available.
const (
	ModeRS232 = "RS232"
	ModeRS422 = "RS422"
	ModeRS485 = "RS485"
)

// ReadTimeout matches VMIN=0, VTIME=1.
const ReadTimeout = 100 * time.Millisecond

// Open opens device at baud in the given link mode. The returned
// ReadWriteCloser yields (0, nil) on a read timeout so the session's
// receiver can idle instead of treating the lapse as end of input.
func Open(device string, baud int, mode string) (io.ReadWriteCloser, error) {
	switch strings.ToUpper(mode) {
	case "", ModeRS232, ModeRS422:
	case ModeRS485:
		// Best effort; drivers without TIOCSRS485 stay full-duplex.
		if err := enableRS485(device); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown link mode %q", mode)
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        device,
		Baud:        baud,
		ReadTimeout: ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", device, err)
	}

	return &timeoutAdapter{port}, nil
}

// timeoutAdapter converts the io.EOF that the serial layer reports on a
// zero-byte timed-out read into (0, nil). True end-of-input does not exist
// on a serial line.
type timeoutAdapter struct {
	io.ReadWriteCloser
}

func (t *timeoutAdapter) Read(p []byte) (int, error) {
	n, err := t.ReadWriteCloser.Read(p)
	if n == 0 && err == io.EOF {
		return 0, nil
	}
	return n, err
}
