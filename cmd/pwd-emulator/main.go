// The pwd-emulator impersonates a forward-scatter present-weather and
// visibility head on a serial port or TCP listener.
package main

import (
	"flag"
	"os"

	"github.com/metwx/metemu/internal/emulator"
	"github.com/metwx/metemu/internal/replay"
	"github.com/metwx/metemu/internal/sensors/pwd"
	"github.com/metwx/metemu/internal/session"
	"github.com/metwx/metemu/pkg/state"
)

func main() {
	var (
		flaky         = flag.Bool("flaky", false, "Enable flaky hardware simulation")
		badCRCRate    = flag.Float64("bad-crc-rate", 0.03, "Probability of corrupting a frame CRC (0.0-1.0)")
		dropFrameRate = flag.Float64("drop-rate", 0.02, "Probability of dropping a frame (0.0-1.0)")
		noReplyRate   = flag.Float64("no-response-rate", 0.01, "Probability of ignoring a command (0.0-1.0)")
	)

	os.Exit(emulator.Run(emulator.Options{
		Family:            "pwd",
		DefaultSerialPort: "/dev/ttyUSB0",
		DefaultBaud:       9600,
		NewDevice: func(src *replay.Source, store state.Store) (session.Device, error) {
			return pwd.NewDevice(src, store, pwd.FlakyConfig{
				Enabled:       *flaky,
				BadCRCRate:    *badCRCRate,
				DropFrameRate: *dropFrameRate,
				NoReplyRate:   *noReplyRate,
			})
		},
		Snapshot: func(dev session.Device) interface{} {
			return dev.(*pwd.Device).Sensor()
		},
	}))
}
