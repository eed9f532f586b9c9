package pwd

import (
	"fmt"
	"math/rand"
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

// crcSeed is this family's CRC-16/CCITT initial value.
const crcSeed = 0x0000

// FlakyConfig simulates hardware faults for resilience testing of the
// system under test.
type FlakyConfig struct {
	Enabled       bool
	BadCRCRate    float64 // corrupt the CRC of a data frame
	DropFrameRate float64 // swallow a data frame entirely
	NoReplyRate   float64 // ignore a received command
}

// Device wires the present-weather sensor model, frame assembler, replay
// source and dispatcher into a session.Device. All methods run under the
// session mutex.
type Device struct {
	sensor *Sensor
	asm    *framing.FramedAssembler
	src    *replay.Source
	store  state.Store
	flaky  FlakyConfig
	rng    *rand.Rand
}

// NewDevice builds the family device, restoring any previously committed
// record from the store.
func NewDevice(src *replay.Source, store state.Store, flaky FlakyConfig) (*Device, error) {
	sensor := NewSensor()

	record, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("loading persisted sensor record: %w", err)
	}
	sensor.Restore(record)

	d := &Device{
		sensor: sensor,
		src:    src,
		store:  store,
		flaky:  flaky,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	d.asm = framing.NewFramedAssembler(crcSeed, func() bool { return sensor.CRCChecking })
	return d, nil
}

// Sensor exposes the model for status snapshots; callers hold the session
// mutex via Session.WithLock.
func (d *Device) Sensor() *Sensor {
	return d.sensor
}

// Configure overlays the fleet-configuration entry onto the record. Values
// outside the family ranges are ignored like an out-of-range SET field.
func (d *Device) Configure(cfg config.DeviceData) {
	if cfg.Address > 0 && validAddress(cfg.Address) {
		d.sensor.ID = cfg.Address
	}
	if cfg.IntervalSecs > 0 && cfg.IntervalSecs <= 36000 {
		d.sensor.IntervalSecs = cfg.IntervalSecs
	}
	switch strings.ToUpper(cfg.StartMode) {
	case "RUN":
		d.sensor.Mode = ModeRun
	case "POLL":
		d.sensor.Mode = ModePoll
	case "STOP":
		d.sensor.Mode = ModeStop
	}
}

// Feed consumes one received byte.
func (d *Device) Feed(b byte, now time.Time, sink *session.Sink) bool {
	payload, err := d.asm.Feed(b)
	switch {
	case err == framing.ErrInvalidFormat:
		d.reply(sink, "ERROR:FORMAT")
		return false
	case err == framing.ErrInvalidCrc:
		d.reply(sink, "ERROR:CRC")
		return false
	case payload == nil:
		return false
	}

	if d.flaky.Enabled && d.rng.Float64() < d.flaky.NoReplyRate {
		log.Infof("flaky: ignoring command %q", payload)
		return false
	}

	return d.dispatch(Parse(payload), sink)
}

// Tick is a no-op; this family has no quiet-interval framing.
func (d *Device) Tick(time.Time, *session.Sink) bool {
	return false
}

// Continuous reports RUN mode.
func (d *Device) Continuous() bool {
	return d.sensor.Mode == ModeRun
}

// Interval is the transmit cadence; interval 0 means "every second" on
// the real head.
func (d *Device) Interval() time.Duration {
	if d.sensor.IntervalSecs <= 0 {
		return time.Second
	}
	return time.Duration(d.sensor.IntervalSecs) * time.Second
}

// EmitData renders one replayed measurement as a data frame. A drained
// source skips this tick.
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

// dispatch applies one parsed command. It runs with the session mutex held
// so replies stay causally ordered with state changes. The return value
// reports whether the sender should be woken.
func (d *Device) dispatch(cmd Command, sink *session.Sink) bool {
	switch c := cmd.(type) {
	case Poll:
		if c.Addr != d.sensor.ID {
			return false
		}
		d.EmitData(time.Now(), sink)
		return false

	case Get:
		if c.Addr != d.sensor.ID {
			return false
		}
		d.reply(sink, d.renderGet())
		return false

	case Set:
		if c.Addr != d.sensor.ID {
			return false
		}
		d.sensor.Apply(c.Fields)
		if !c.NoCommit {
			if err := d.sensor.Commit(d.store); err != nil {
				log.Errorf("committing sensor record: %v", err)
			}
		}
		d.reply(sink, c.Echo)
		return true

	case MsgSet:
		if c.Addr != d.sensor.ID {
			return false
		}
		d.sensor.CustomMsgBits = c.Bits
		d.reply(sink, fmt.Sprintf("MSGSET:%d:%04X", d.sensor.ID, c.Bits))
		return false

	case InvalidBits:
		// Reserved bits set: no state change and no confirmation frame.
		log.Errorf("MSGSET bitmap rejected: %q", c.Echo)
		return false

	case AccReset:
		if c.Addr != d.sensor.ID {
			return false
		}
		d.sensor.PrecipAccum = 0
		d.reply(sink, c.Echo)
		return false

	case InvalidID:
		d.reply(sink, "ERROR:ID")
		return false

	case Unknown:
		d.reply(sink, "ERROR:UNKNOWN")
		return false
	}
	return false
}

// renderGet is the space-separated configuration projection (23 fields,
// the first being the device address).
func (d *Device) renderGet() string {
	s := d.sensor
	b := func(v bool) int {
		if v {
			return 1
		}
		return 0
	}
	fields := []string{
		fmt.Sprintf("%d", s.ID),
		s.SerialNumber,
		s.SWVersion,
		string(s.Units),
		fmt.Sprintf("%d", s.IntervalSecs),
		fmt.Sprintf("%d", int(s.Mode)),
		fmt.Sprintf("%d", s.Averaging),
		fmt.Sprintf("%d", s.MessageFormat),
		fmt.Sprintf("%d", s.CommType),
		fmt.Sprintf("%d", s.SampleTiming),
		fmt.Sprintf("%d", s.BaudCode),
		fmt.Sprintf("%d", b(s.CRCChecking)),
		fmt.Sprintf("%d", b(s.Alarm1.Enabled)),
		fmt.Sprintf("%d", b(s.Alarm1.Active)),
		fmt.Sprintf("%d", s.Alarm1.Distance),
		fmt.Sprintf("%d", b(s.Alarm2.Enabled)),
		fmt.Sprintf("%d", b(s.Alarm2.Active)),
		fmt.Sprintf("%d", s.Alarm2.Distance),
		fmt.Sprintf("%.1f", s.PowerDownVolt),
		fmt.Sprintf("%d", s.HumidityThr),
		fmt.Sprintf("%d", s.DataFormat),
		fmt.Sprintf("%04X", s.CustomMsgBits),
		fmt.Sprintf("%d", s.PrecipAccum),
	}
	return strings.Join(fields, " ")
}

// reply frames a command response. Replies share the data-frame framing.
func (d *Device) reply(sink *session.Sink, payload string) {
	d.emitFrame(sink, payload)
}

// emitFrame writes `STX payload SP crc4 ETX CR LF` with the CRC computed
// over the payload bytes only.
func (d *Device) emitFrame(sink *session.Sink, payload string) {
	if d.flaky.Enabled && d.rng.Float64() < d.flaky.DropFrameRate {
		log.Infof("flaky: dropping frame %q", payload)
		return
	}

	crc := checksum.Crc16CCITTSeed(crcSeed, []byte(payload))
	if d.flaky.Enabled && d.rng.Float64() < d.flaky.BadCRCRate {
		crc ^= 0xFFFF
		log.Info("flaky: corrupting frame CRC")
	}

	if err := sink.Emitf("\x02%s %04X\x03\r\n", payload, crc); err != nil {
		log.Errorf("emitting frame: %v", err)
	}
}

// FrameCommand wraps a payload in this family's command framing. Test
// fixtures and the control endpoint use it to build valid request frames.
func FrameCommand(payload string) []byte {
	crc := checksum.Crc16CCITTSeed(crcSeed, []byte(payload))
	return []byte(fmt.Sprintf("\x02%s:%04X:\x03", payload, crc))
}
