// Package wind emulates an addressed ultrasonic anemometer. Commands are
// short CR/LF-terminated lines `<addr><letter>[arg]`; data and reply
// frames use the XOR-checksummed layout `STX payload ETX xx CR LF`.
package wind

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

// Speed units and their conversion factor from the recorded m/s values.
var speedUnits = map[byte]float64{
	'M': 1,        // m/s
	'K': 3.6,      // km/h
	'N': 1.943844, // knots
}

const (
	maxAddress  = 9
	maxInterval = 3600
	maxAzimuth  = 359
)

// Sensor is the anemometer's configuration record.
type Sensor struct {
	Address       int
	SWVersion     string
	Continuous    bool
	IntervalSecs  int
	Units         byte
	AzimuthOffset int // degrees added to the recorded direction
}

// NewSensor returns the family defaults.
func NewSensor() *Sensor {
	return &Sensor{
		SWVersion:    "2.11",
		IntervalSecs: 2,
		Units:        'M',
	}
}

// Record flattens the record for the state store.
func (s *Sensor) Record() map[string]string {
	return map[string]string{
		"address":  strconv.Itoa(s.Address),
		"interval": strconv.Itoa(s.IntervalSecs),
		"units":    string(s.Units),
		"azimuth":  strconv.Itoa(s.AzimuthOffset),
	}
}

// Restore overlays a committed record onto the defaults.
func (s *Sensor) Restore(record map[string]string) {
	if v, ok := record["address"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= maxAddress {
			s.Address = n
		}
	}
	if v, ok := record["interval"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 && n <= maxInterval {
			s.IntervalSecs = n
		}
	}
	if v, ok := record["units"]; ok && len(v) == 1 {
		if _, known := speedUnits[v[0]]; known {
			s.Units = v[0]
		}
	}
	if v, ok := record["azimuth"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= maxAzimuth {
			s.AzimuthOffset = n
		}
	}
}

// Device wires the anemometer into a session.Device.
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

// Configure overlays the fleet-configuration entry onto the record.
func (d *Device) Configure(cfg config.DeviceData) {
	if cfg.Address > 0 && cfg.Address <= maxAddress {
		d.sensor.Address = cfg.Address
	}
	if cfg.IntervalSecs >= 1 && cfg.IntervalSecs <= maxInterval {
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
	return d.dispatch(line, now, sink)
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

// EmitData renders one replayed wind vector as a data frame.
func (d *Device) EmitData(now time.Time, sink *session.Sink) {
	line, ok := d.src.NextLine()
	if !ok {
		log.Debug("no replay data available, skipping data frame")
		return
	}
	m, err := ParseMeasurement(line)
	if err != nil {
		log.Errorf("bad replay record: %v", err)
		return
	}
	d.emitFrame(sink, m.Render(d.sensor))
}

// dispatch decodes `<addr><letter>[arg]`. A command addressed to another
// unit on the bus is dropped without reply.
func (d *Device) dispatch(line []byte, now time.Time, sink *session.Sink) bool {
	if len(line) < 2 || line[0] < '0' || line[0] > '9' {
		d.emitFrame(sink, "ERR")
		return false
	}
	if int(line[0]-'0') != d.sensor.Address {
		return false
	}

	op := line[1] &^ 0x20 // fold to upper case
	arg := string(line[2:])

	switch op {
	case 'P':
		d.EmitData(now, sink)
		return false

	case 'R':
		d.sensor.Continuous = true
		d.commit()
		return true

	case 'S':
		d.sensor.Continuous = false
		d.commit()
		return true

	case 'I':
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 || n > maxInterval {
			d.emitFrame(sink, "ERR")
			return false
		}
		d.sensor.IntervalSecs = n
		d.commit()
		d.emitFrame(sink, fmt.Sprintf("I %d", n))
		return true

	case 'U':
		if len(arg) != 1 {
			d.emitFrame(sink, "ERR")
			return false
		}
		u := arg[0] &^ 0x20
		if _, known := speedUnits[u]; !known {
			d.emitFrame(sink, "ERR")
			return false
		}
		d.sensor.Units = u
		d.commit()
		d.emitFrame(sink, fmt.Sprintf("U %c", u))
		return false

	case 'A':
		n, err := strconv.Atoi(arg)
		if err != nil || n < 0 || n > maxAzimuth {
			d.emitFrame(sink, "ERR")
			return false
		}
		d.sensor.AzimuthOffset = n
		d.commit()
		d.emitFrame(sink, fmt.Sprintf("A %d", n))
		return false

	case 'V':
		d.emitFrame(sink, fmt.Sprintf("V %s", d.sensor.SWVersion))
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
