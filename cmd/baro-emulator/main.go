// The baro-emulator impersonates a Vaisala-style digital barometer with a
// user-programmable output format.
package main

import (
	"os"
	"time"

	"github.com/metwx/metemu/internal/emulator"
	"github.com/metwx/metemu/internal/replay"
	"github.com/metwx/metemu/internal/sensors/baro"
	"github.com/metwx/metemu/internal/session"
	"github.com/metwx/metemu/pkg/state"
)

func main() {
	os.Exit(emulator.Run(emulator.Options{
		Family:            "baro",
		DefaultSerialPort: "/dev/ttyUSB0",
		DefaultBaud:       9600,
		NewDevice: func(src *replay.Source, store state.Store) (session.Device, error) {
			return baro.NewDevice(src, store)
		},
		Snapshot: func(dev session.Device) interface{} {
			return dev.(*baro.Device).Sensor()
		},
		// SEND start mode transmits once at boot, then waits for requests.
		OnStart: func(sess *session.Session, dev session.Device) {
			d := dev.(*baro.Device)
			sess.WithLock(func() {
				if d.Sensor().Mode == baro.ModeSend {
					d.EmitData(time.Now(), sess.Sink())
				}
			})
		},
	}))
}
