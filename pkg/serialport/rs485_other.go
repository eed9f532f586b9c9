//go:build !linux

package serialport

import "github.com/metwx/metemu/internal/log"

// enableRS485 is Linux-only; other platforms stay full-duplex.
func enableRS485(device string) error {
	log.Warnf("RS-485 turnaround not supported on this platform, %s stays full-duplex", device)
	return nil
}
