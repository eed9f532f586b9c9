// Package lightning emulates a lightning detector that streams DATA
// records. Commands are CR/LF-terminated lines; data frames use the
// XOR-checksummed layout `STX payload ETX xx CR LF`. Replayed records
// are restamped so the system timestamp reads the current wallclock and
// every flash keeps its original offset from it.
package lightning

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
	minInterval = 1
	maxInterval = 3600
)

// Sensor is the detector's configuration record.
type Sensor struct {
	SWVersion    string
	Continuous   bool
	IntervalSecs int
	Records      int // data frames emitted since start-up
}

// NewSensor returns the family defaults.
func NewSensor() *Sensor {
	return &Sensor{
		SWVersion:    "1.22",
		IntervalSecs: 60,
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

// Device wires the detector into a session.Device.
type Device struct {
	sensor *Sensor
	asm    framing.LineAssembler
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

	return &Device{sensor: sensor, src: src, store: store}, nil
}

// Sensor exposes the model for status snapshots under the session mutex.
func (d *Device) Sensor() *Sensor {
	return d.sensor
}

// Configure overlays the fleet-configuration entry onto the record. The
// detector has no bus address; only interval and start mode apply.
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

// Feed consumes one received byte.
func (d *Device) Feed(b byte, now time.Time, sink *session.Sink) bool {
	line, ok := d.asm.Feed(b)
	if !ok {
		return false
	}
	return d.dispatch(string(line), now, sink)
}

// Tick is a no-op; line framing needs no quiet-interval flush.
func (d *Device) Tick(time.Time, *session.Sink) bool {
	return false
}

// Continuous reports continuous output mode.
func (d *Device) Continuous() bool {
	return d.sensor.Continuous
}

// Interval is the transmit cadence.
func (d *Device) Interval() time.Duration {
	return time.Duration(d.sensor.IntervalSecs) * time.Second
}

// EmitData restamps one replayed record to the current wallclock and
// frames it. Records the restamper rejects are skipped, not replayed
// stale.
func (d *Device) EmitData(now time.Time, sink *session.Sink) {
	line, ok := d.src.NextLine()
	if !ok {
		log.Debug("no replay data available, skipping data frame")
		return
	}
	stamped, err := replay.RestampRecord(strings.TrimSpace(line), now)
	if err != nil {
		log.Errorf("bad replay record: %v", err)
		return
	}
	d.sensor.Records++
	d.emitFrame(sink, stamped)
}

func (d *Device) dispatch(line string, now time.Time, sink *session.Sink) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	kw := strings.ToUpper(fields[0])

	switch kw {
	case "DATA?":
		d.EmitData(now, sink)
		return false

	case "RUN":
		d.sensor.Continuous = true
		d.commit()
		return true

	case "STOP":
		d.sensor.Continuous = false
		d.commit()
		return true

	case "INTV":
		if len(fields) < 2 {
			d.emitFrame(sink, fmt.Sprintf("INTV %d", d.sensor.IntervalSecs))
			return false
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < minInterval || n > maxInterval {
			d.emitFrame(sink, "ERR")
			return false
		}
		d.sensor.IntervalSecs = n
		d.commit()
		d.emitFrame(sink, fmt.Sprintf("INTV %d", n))
		return true

	case "STAT?":
		mode := "STOP"
		if d.sensor.Continuous {
			mode = "RUN"
		}
		d.emitFrame(sink, fmt.Sprintf("STAT %s %d %d",
			mode, d.sensor.IntervalSecs, d.sensor.Records))
		return false

	case "VERS?":
		d.emitFrame(sink, fmt.Sprintf("VERS %s", d.sensor.SWVersion))
		return false
	}

	d.emitFrame(sink, "ERR")
	return false
}

func (d *Device) commit() {
	if err := d.store.Save(d.sensor.Record()); err != nil {
		log.Errorf("committing sensor record: %v", err)
	}
}

// emitFrame writes `STX payload ETX xx CR LF` with the XOR checksum
// computed over the payload bytes only.
func (d *Device) emitFrame(sink *session.Sink, payload string) {
	sum := checksum.Xor8([]byte(payload))
	if err := sink.Emitf("\x02%s\x03%02X\r\n", payload, sum); err != nil {
		log.Errorf("emitting frame: %v", err)
	}
}
