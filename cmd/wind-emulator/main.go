// The wind-emulator impersonates an addressed ultrasonic anemometer.
package main

import (
	"os"

	"github.com/metwx/metemu/internal/emulator"
	"github.com/metwx/metemu/internal/replay"
	"github.com/metwx/metemu/internal/sensors/wind"
	"github.com/metwx/metemu/internal/session"
	"github.com/metwx/metemu/pkg/state"
)

func main() {
	os.Exit(emulator.Run(emulator.Options{
		Family:            "wind",
		DefaultSerialPort: "/dev/ttyUSB0",
		DefaultBaud:       9600,
		NewDevice: func(src *replay.Source, store state.Store) (session.Device, error) {
			return wind.NewDevice(src, store)
		},
		Snapshot: func(dev session.Device) interface{} {
			return dev.(*wind.Device).Sensor()
		},
	}))
}
