// The ice-emulator impersonates a vibrating-probe ice detector with
// terminator-less short commands.
package main

import (
	"os"

	"github.com/metwx/metemu/internal/emulator"
	"github.com/metwx/metemu/internal/replay"
	"github.com/metwx/metemu/internal/sensors/ice"
	"github.com/metwx/metemu/internal/session"
	"github.com/metwx/metemu/pkg/state"
)

func main() {
	os.Exit(emulator.Run(emulator.Options{
		Family:            "ice",
		DefaultSerialPort: "/dev/ttyUSB0",
		DefaultBaud:       2400,
		NewDevice: func(src *replay.Source, store state.Store) (session.Device, error) {
			return ice.NewDevice(src, store)
		},
		Snapshot: func(dev session.Device) interface{} {
			return dev.(*ice.Device).Sensor()
		},
	}))
}
