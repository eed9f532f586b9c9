package baro

import (
	"fmt"
	"time"

	"github.com/metwx/metemu/internal/framing"
	"github.com/metwx/metemu/internal/log"
	"github.com/metwx/metemu/internal/replay"
	"github.com/metwx/metemu/internal/session"
	"github.com/metwx/metemu/pkg/config"
	"github.com/metwx/metemu/pkg/state"
)

// Device wires the barometer model, line assembler, replay source and
// dispatcher into a session.Device. All methods run under the session
// mutex.
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

// Sensor exposes the model for status snapshots; callers hold the session
// mutex via Session.WithLock.
func (d *Device) Sensor() *Sensor {
	return d.sensor
}

// Configure overlays the fleet-configuration entry onto the record. The
// configured interval is in seconds; out-of-range values are ignored.
func (d *Device) Configure(cfg config.DeviceData) {
	s := d.sensor
	if cfg.Address > 0 && cfg.Address <= maxAddress {
		s.Address = cfg.Address
	}
	if cfg.IntervalSecs > 0 && cfg.IntervalSecs <= maxIntervals {
		s.IntervalN = cfg.IntervalSecs
		s.IntervalUnit = "s"
	}
	if cfg.StartMode != "" {
		if m, ok := ParseMode(cfg.StartMode); ok {
			s.Mode = m
		}
	}
}

// Feed consumes one received byte.
func (d *Device) Feed(b byte, now time.Time, sink *session.Sink) bool {
	line, ok := d.asm.Feed(b)
	if !ok {
		return false
	}
	if d.sensor.Echo {
		d.reply(sink, string(line))
	}
	return d.dispatch(Parse(line), now, sink)
}

// Tick is a no-op; line framing needs no quiet-interval flush.
func (d *Device) Tick(time.Time, *session.Sink) bool {
	return false
}

// Continuous reports RUN mode.
func (d *Device) Continuous() bool {
	return d.sensor.Mode == ModeRun
}

// Interval is the transmit cadence.
func (d *Device) Interval() time.Duration {
	return time.Duration(d.sensor.IntervalSeconds()) * time.Second
}

// EmitData renders one replayed measurement through the active format
// program. A drained source skips this tick.
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
	view := m.View(d.sensor)
	view.Now = now
	if err := sink.Emit(d.sensor.Format.Render(view)); err != nil {
		log.Errorf("emitting data frame: %v", err)
	}
}

// dispatch applies one parsed command. The return value reports whether
// the sender cadence changed and should be woken.
func (d *Device) dispatch(cmd Command, now time.Time, sink *session.Sink) bool {
	if cmd.BadArg {
		d.reply(sink, "INVALID ARGUMENT")
		return false
	}

	s := d.sensor
	switch cmd.Kind {
	case KindSend:
		d.EmitData(now, sink)
		return false

	case KindRun:
		s.Mode = ModeRun
		d.commit()
		return true

	case KindStop:
		s.Mode = ModeStop
		d.commit()
		return true

	case KindSmode:
		if !cmd.Query {
			s.Mode = cmd.Mode
			d.commit()
		}
		d.reply(sink, fmt.Sprintf("SMODE : %s", s.Mode))
		return !cmd.Query

	case KindIntv:
		if !cmd.Query {
			s.IntervalN = cmd.N
			s.IntervalUnit = cmd.Unit
			d.commit()
		}
		d.reply(sink, fmt.Sprintf("INTV : %d %s", s.IntervalN, s.IntervalUnit))
		return !cmd.Query

	case KindUnit:
		if !cmd.Query {
			s.PressureUnit = cmd.Unit
			d.commit()
		}
		d.reply(sink, fmt.Sprintf("UNIT : %s", s.PressureUnit))
		return false

	case KindForm:
		if cmd.Query {
			d.reply(sink, fmt.Sprintf("FORM : %s", s.Format.Source()))
			return false
		}
		prog, err := Compile(cmd.Raw)
		if err != nil {
			log.Errorf("rejecting format string %q: %v", cmd.Raw, err)
			d.reply(sink, "SYNTAX ERROR")
			return false
		}
		s.Format = prog
		d.commit()
		d.reply(sink, "OK")
		return false

	case KindInfo:
		d.reply(sink, d.renderInfo())
		return false

	case KindVers:
		d.reply(sink, fmt.Sprintf("%s / %s", s.Model, s.SWVersion))
		return false

	case KindSnum:
		d.reply(sink, s.SerialNumber)
		return false

	case KindErrs:
		d.reply(sink, fmt.Sprintf("%X%X%X",
			s.ErrorFlags[0]&0xF, s.ErrorFlags[1]&0xF, s.ErrorFlags[2]&0xF))
		return false

	case KindReset:
		*s = *NewSensor()
		d.reply(sink, fmt.Sprintf("%s / %s", s.Model, s.SWVersion))
		return true

	case KindAddr:
		if !cmd.Query {
			s.Address = cmd.N
			d.commit()
		}
		d.reply(sink, fmt.Sprintf("ADDR : %d", s.Address))
		return false

	case KindAvrg:
		if !cmd.Query {
			s.Averaging = cmd.N
			d.commit()
		}
		d.reply(sink, fmt.Sprintf("AVRG : %d s", s.Averaging))
		return false

	case KindPstab:
		d.reply(sink, fmt.Sprintf("PSTAB : %.2f", s.Stability))
		return false

	case KindHhcp:
		if !cmd.Query {
			s.HCPHeight = cmd.F
			d.commit()
		}
		d.reply(sink, fmt.Sprintf("HHCP : %.1f m", s.HCPHeight))
		return false

	case KindHqnh:
		if !cmd.Query {
			s.QNHHeight = cmd.F
			d.commit()
		}
		d.reply(sink, fmt.Sprintf("HQNH : %.1f m", s.QNHHeight))
		return false

	case KindHqfe:
		if !cmd.Query {
			s.QFEHeight = cmd.F
			d.commit()
		}
		d.reply(sink, fmt.Sprintf("HQFE : %.1f m", s.QFEHeight))
		return false

	case KindEcho:
		if !cmd.Query {
			s.Echo = cmd.On
			d.commit()
		}
		if s.Echo {
			d.reply(sink, "ECHO : ON")
		} else {
			d.reply(sink, "ECHO : OFF")
		}
		return false

	case KindHelp:
		d.reply(sink, helpText)
		return false
	}

	d.reply(sink, "UNKNOWN COMMAND")
	return false
}

func (d *Device) renderInfo() string {
	s := d.sensor
	return fmt.Sprintf(
		"%s / %s\r\nSerial number    : %s\r\nAddress          : %d\r\n"+
			"Start mode       : %s\r\nOutput interval  : %d %s\r\n"+
			"Pressure unit    : %s\r\nAveraging        : %d s\r\n"+
			"Output format    : %s",
		s.Model, s.SWVersion, s.SerialNumber, s.Address, s.Mode,
		s.IntervalN, s.IntervalUnit, s.PressureUnit, s.Averaging,
		s.Format.Source())
}

const helpText = "SEND R S INTV SMODE UNIT FORM INFO VERS SNUM ERRS " +
	"RESET ADDR AVRG PSTAB HHCP HQNH HQFE ECHO HELP"

func (d *Device) commit() {
	if err := d.sensor.Commit(d.store); err != nil {
		log.Errorf("committing sensor record: %v", err)
	}
}

// reply terminates every response line with CR LF.
func (d *Device) reply(sink *session.Sink, line string) {
	if err := sink.Emitf("%s\r\n", line); err != nil {
		log.Errorf("emitting reply: %v", err)
	}
}
