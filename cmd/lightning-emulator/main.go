// The lightning-emulator impersonates a lightning detector, restamping
// replayed DATA records to the current wallclock.
package main

import (
	"os"

	"github.com/metwx/metemu/internal/emulator"
	"github.com/metwx/metemu/internal/replay"
	"github.com/metwx/metemu/internal/sensors/lightning"
	"github.com/metwx/metemu/internal/session"
	"github.com/metwx/metemu/pkg/state"
)

func main() {
	os.Exit(emulator.Run(emulator.Options{
		Family:            "lightning",
		DefaultSerialPort: "/dev/ttyUSB0",
		DefaultBaud:       9600,
		NewDevice: func(src *replay.Source, store state.Store) (session.Device, error) {
			return lightning.NewDevice(src, store)
		},
		Snapshot: func(dev session.Device) interface{} {
			return dev.(*lightning.Device).Sensor()
		},
	}))
}
