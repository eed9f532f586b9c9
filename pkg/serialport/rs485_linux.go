//go:build linux

package serialport

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/metwx/metemu/internal/log"
)

// struct serial_rs485 flag bits from linux/serial.h.
const (
	serRS485Enabled      = 1 << 0
	serRS485RTSOnSend    = 1 << 1
	serRS485RTSAfterSend = 1 << 2
)

type serialRS485 struct {
	Flags              uint32
	DelayRTSBeforeSend uint32
	DelayRTSAfterSend  uint32
	Padding            [5]uint32
}

// enableRS485 asks the driver for half-duplex turnaround: RTS asserted on
// send, deasserted after. Drivers without TIOCSRS485 support fall back
// silently to full-duplex.
func enableRS485(device string) error {
	f, err := os.OpenFile(device, os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	cfg := serialRS485{Flags: serRS485Enabled | serRS485RTSOnSend}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), unix.TIOCSRS485, uintptr(unsafe.Pointer(&cfg)))
	if errno != 0 {
		log.Warnf("driver does not support RS-485 turnaround on %s, staying full-duplex: %v", device, errno)
	}
	return nil
}
