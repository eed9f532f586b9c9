// Package ice emulates a vibrating-probe ice detector. Commands are one
// letter plus up to three digits with no terminator; a quiet gap on the
// wire completes a partial command. Responses use the layout
// `STX CR LF payload sum ETX CR LF` where sum is the mod-256 byte sum of
// everything before it, as two uppercase hex digits.
package ice

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/metwx/metemu/internal/framing"
	"github.com/metwx/metemu/internal/log"
	"github.com/metwx/metemu/internal/replay"
	"github.com/metwx/metemu/internal/session"
	"github.com/metwx/metemu/pkg/checksum"
	"github.com/metwx/metemu/pkg/config"
	"github.com/metwx/metemu/pkg/state"
)

const (
	maxInterval = 999 // seconds, bounded by the three command digits
	minInterval = 1
)

// Sensor is the probe's configuration record. The probe frequency drops
// as ice accretes; the replay file carries the recorded frequency curve.
type Sensor struct {
	SWVersion    string
	Continuous   bool
	IntervalSecs int
	DeiceCycles  int // count of commanded de-ice cycles
}

// NewSensor returns the family defaults.
func NewSensor() *Sensor {
	return &Sensor{
		SWVersion:    "3.02",
		IntervalSecs: 10,
	}
}

// Record flattens the record for the state store.
func (s *Sensor) Record() map[string]string {
	return map[string]string{
		"interval": strconv.Itoa(s.IntervalSecs),
	}
}

// Restore overlays a committed record onto the defaults.
func (s *Sensor) Restore(record map[string]string) {
	if v, ok := record["interval"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n >= minInterval && n <= maxInterval {
			s.IntervalSecs = n
		}
	}
}

// Device wires the probe into a session.Device.
type Device struct {
	sensor *Sensor
	asm    *framing.ShortAssembler
	src    *replay.Source
	store  state.Store
}

// NewDevice builds the family device, restoring any committed record.
func NewDevice(src *replay.Source, store state.Store) (*Device, error) {
	sensor := NewSensor()

	record, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("loading persisted sensor record: %w", err)
	}
	sensor.Restore(record)

	return &Device{
		sensor: sensor,
		asm:    framing.NewShortAssembler(0),
		src:    src,
		store:  store,
	}, nil
}

// Sensor exposes the model for status snapshots under the session mutex.
func (d *Device) Sensor() *Sensor {
	return d.sensor
}

// Configure overlays the fleet-configuration entry onto the record. The
// probe has no bus address; only interval and start mode apply.
func (d *Device) Configure(cfg config.DeviceData) {
	if cfg.IntervalSecs >= minInterval && cfg.IntervalSecs <= maxInterval {
		d.sensor.IntervalSecs = cfg.IntervalSecs
	}
	switch strings.ToUpper(cfg.StartMode) {
	case "RUN":
		d.sensor.Continuous = true
	case "STOP":
		d.sensor.Continuous = false
	}
}

// Feed consumes one received byte. A letter may flush the previous
// command and open a new one, so one byte can complete a frame.
func (d *Device) Feed(b byte, now time.Time, sink *session.Sink) bool {
	wake := false
	for _, cmd := range d.asm.Feed(b, now) {
		if d.dispatch(cmd, now, sink) {
			wake = true
		}
	}
	return wake
}

// Tick flushes a command that ended with wire silence instead of a
// terminator. The receiver calls it on every read timeout.
func (d *Device) Tick(now time.Time, sink *session.Sink) bool {
	cmd := d.asm.Tick(now)
	if cmd == nil {
		return false
	}
	return d.dispatch(cmd, now, sink)
}

// Continuous reports continuous output mode.
func (d *Device) Continuous() bool {
	return d.sensor.Continuous
}

// Interval is the transmit cadence.
func (d *Device) Interval() time.Duration {
	return time.Duration(d.sensor.IntervalSecs) * time.Second
}

// EmitData frames one replayed probe record.
func (d *Device) EmitData(now time.Time, sink *session.Sink) {
	line, ok := d.src.NextLine()
	if !ok {
		log.Debug("no replay data available, skipping data frame")
		return
	}
	d.emitFrame(sink, strings.TrimSpace(line))
}

// dispatch runs one assembled command. Commands that only trigger an
// action acknowledge with `<letter>DOK`.
func (d *Device) dispatch(cmd []byte, now time.Time, sink *session.Sink) bool {
	op := cmd[0] &^ 0x20 // fold to upper case
	arg := string(cmd[1:])

	switch op {
	case 'D':
		d.EmitData(now, sink)
		return false

	case 'R':
		d.sensor.Continuous = true
		d.commit()
		d.ack(sink, op)
		return true

	case 'S':
		d.sensor.Continuous = false
		d.commit()
		d.ack(sink, op)
		return true

	case 'I':
		n, err := strconv.Atoi(arg)
		if err != nil || n < minInterval || n > maxInterval {
			d.emitFrame(sink, "ERR")
			return false
		}
		d.sensor.IntervalSecs = n
		d.commit()
		d.ack(sink, op)
		return true

	case 'Z':
		// De-ice cycle; the argument selects the heater profile and is
		// accepted as given.
		d.sensor.DeiceCycles++
		d.ack(sink, op)
		return false

	case 'T':
		d.ack(sink, op)
		return false

	case 'V':
		d.emitFrame(sink, d.sensor.SWVersion)
		return false
	}

	d.emitFrame(sink, "ERR")
	return false
}

// ack is the action acknowledgement `<letter>DOK`.
func (d *Device) ack(sink *session.Sink, op byte) {
	d.emitFrame(sink, fmt.Sprintf("%cDOK", op))
}

func (d *Device) commit() {
	if err := d.store.Save(d.sensor.Record()); err != nil {
		log.Errorf("committing sensor record: %v", err)
	}
}

// emitFrame writes `STX CR LF payload sum ETX CR LF`; the sum covers the
// STX, the CR LF and the payload.
func (d *Device) emitFrame(sink *session.Sink, payload string) {
	sum := checksum.SumMod256([]byte("\x02\r\n" + payload))
	if err := sink.Emitf("\x02\r\n%s%02X\x03\r\n", payload, sum); err != nil {
		log.Errorf("emitting frame: %v", err)
	}
}
