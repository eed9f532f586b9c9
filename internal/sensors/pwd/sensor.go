// Package pwd emulates a forward-scatter present-weather and visibility
// head. Commands arrive in STX/ETX frames with a trailing CRC-16 field and
// replies are framed the same way; data frames carry the 32-field
// measurement record replayed from file.
package pwd

import (
	"fmt"
	"strconv"

	"github.com/metwx/metemu/pkg/state"
)

// Operating modes.
type Mode int

const (
	ModeStop Mode = iota
	ModePoll
	ModeRun
)

func (m Mode) String() string {
	switch m {
	case ModeStop:
		return "STOP"
	case ModePoll:
		return "POLL"
	case ModeRun:
		return "RUN"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Unit systems for the distance fields.
const (
	UnitMetres = 'M'
	UnitFeet   = 'F'
)

// Distance bounds per unit system.
const (
	minDistMetres = 5
	maxDistMetres = 100000
	minDistFeet   = 16
	maxDistFeet   = 328084
)

// MsgBitsMask is the allowed custom-message bitmap; bits 14 and 15 are
// reserved.
const MsgBitsMask = 0x3FFF

// maxAddress bounds the device address for this family.
const maxAddress = 99

// Alarm is one of the two user visibility alarms.
type Alarm struct {
	Enabled  bool
	Active   bool
	Distance int
}

// Calibration carries the user and factory scaling of the optics. Factory
// values are read-only over the wire.
type Calibration struct {
	UserGain      float64
	UserOffset    float64
	FactoryGain   float64
	FactoryOffset float64
	CleanWindowTx float64
	CleanWindowRx float64
	DiskSerial    string
	DiskEXCO      float64
}

// Sensor is the emulated device's configuration record. All mutation goes
// through Apply under the session mutex.
type Sensor struct {
	ID            int
	SerialNumber  string
	Model         string
	SWVersion     string
	Units         byte
	IntervalSecs  int
	Mode          Mode
	MessageFormat int
	CommType      int
	Averaging     int
	SampleTiming  int
	Overrides     [4]bool
	CRCChecking   bool
	PowerDownVolt float64
	HumidityThr   int
	DataFormat    int
	BaudCode      int
	Alarm1        Alarm
	Alarm2        Alarm
	CustomMsgBits uint16
	PrecipAccum   int
	Calib         Calibration
	ErrorFlags    [3]uint8
}

// NewSensor returns the family defaults.
func NewSensor() *Sensor {
	return &Sensor{
		ID:            0,
		SerialNumber:  "P4350021",
		Model:         "PWD22",
		SWVersion:     "1.07",
		Units:         UnitMetres,
		IntervalSecs:  15,
		Mode:          ModePoll,
		Averaging:     1,
		CRCChecking:   true,
		PowerDownVolt: 9.0,
		HumidityThr:   95,
		CustomMsgBits: 0x0FFF,
		Calib: Calibration{
			UserGain:    1.0,
			FactoryGain: 1.0,
			DiskSerial:  "D0117",
			DiskEXCO:    15.3,
		},
	}
}

// SetFields is the positional parameter list of SET / SETNC. Short records
// leave trailing fields zero; Apply's range checks keep the old value for
// anything out of bounds.
type SetFields struct {
	SensorID      int
	Alarm1Enable  int
	Alarm1Active  int
	Alarm1Dist    int
	Alarm2Enable  int
	Alarm2Active  int
	Alarm2Dist    int
	BaudCode      int
	Serial        string
	Units         byte
	IntervalSecs  int
	Mode          int
	MessageFormat int
	CommType      int
	Averaging     int
	SampleTiming  int
	Overrides     [4]int
	CRCEnable     int
	PowerDownVolt float64
	HumidityThr   int
	DataFormat    int
}

func distanceInRange(units byte, d int) bool {
	if units == UnitFeet {
		return d >= minDistFeet && d <= maxDistFeet
	}
	return d >= minDistMetres && d <= maxDistMetres
}

func validAddress(a int) bool {
	return a >= 0 && a <= maxAddress
}

// Apply updates the record field by field. Each field change is gated by
// an independent range test; one invalid field never voids its valid
// siblings (matches observed hardware). The caller decides whether to
// commit afterwards (SET) or not (SETNC).
func (s *Sensor) Apply(f SetFields) {
	if validAddress(f.SensorID) {
		s.ID = f.SensorID
	}

	// Units first so distance bounds use the unit system this command
	// establishes.
	if f.Units == UnitMetres || f.Units == UnitFeet {
		s.Units = f.Units
	}

	if f.Alarm1Enable == 0 || f.Alarm1Enable == 1 {
		s.Alarm1.Enabled = f.Alarm1Enable == 1
	}
	if f.Alarm1Active == 0 || f.Alarm1Active == 1 {
		s.Alarm1.Active = f.Alarm1Active == 1
	}
	if distanceInRange(s.Units, f.Alarm1Dist) {
		s.Alarm1.Distance = f.Alarm1Dist
	}
	if f.Alarm2Enable == 0 || f.Alarm2Enable == 1 {
		s.Alarm2.Enabled = f.Alarm2Enable == 1
	}
	if f.Alarm2Active == 0 || f.Alarm2Active == 1 {
		s.Alarm2.Active = f.Alarm2Active == 1
	}
	if distanceInRange(s.Units, f.Alarm2Dist) {
		s.Alarm2.Distance = f.Alarm2Dist
	}

	if f.BaudCode >= 0 && f.BaudCode <= 9 {
		s.BaudCode = f.BaudCode
	}
	if f.Serial != "" && len(f.Serial) <= 16 {
		s.SerialNumber = f.Serial
	}
	if f.IntervalSecs >= 0 && f.IntervalSecs <= 36000 {
		s.IntervalSecs = f.IntervalSecs
	}
	if f.Mode >= int(ModeStop) && f.Mode <= int(ModeRun) {
		s.Mode = Mode(f.Mode)
	}
	if f.MessageFormat >= 0 && f.MessageFormat <= 7 {
		s.MessageFormat = f.MessageFormat
	}
	if f.CommType >= 0 && f.CommType <= 3 {
		s.CommType = f.CommType
	}
	if f.Averaging == 1 || f.Averaging == 10 {
		s.Averaging = f.Averaging
	}
	if f.SampleTiming >= 0 && f.SampleTiming <= 59 {
		s.SampleTiming = f.SampleTiming
	}
	for i, ov := range f.Overrides {
		if ov == 0 || ov == 1 {
			s.Overrides[i] = ov == 1
		}
	}
	if f.CRCEnable == 0 || f.CRCEnable == 1 {
		s.CRCChecking = f.CRCEnable == 1
	}
	if f.PowerDownVolt >= 0 && f.PowerDownVolt <= 30 {
		s.PowerDownVolt = f.PowerDownVolt
	}
	if f.HumidityThr >= 0 && f.HumidityThr <= 100 {
		s.HumidityThr = f.HumidityThr
	}
	if f.DataFormat >= 0 && f.DataFormat <= 7 {
		s.DataFormat = f.DataFormat
	}
}

// Record flattens the persistent part of the sensor into the key-value
// shape the state store takes.
func (s *Sensor) Record() map[string]string {
	b2i := func(b bool) string {
		if b {
			return "1"
		}
		return "0"
	}
	return map[string]string{
		"id":             strconv.Itoa(s.ID),
		"serial":         s.SerialNumber,
		"units":          string(s.Units),
		"interval":       strconv.Itoa(s.IntervalSecs),
		"mode":           strconv.Itoa(int(s.Mode)),
		"message_format": strconv.Itoa(s.MessageFormat),
		"comm_type":      strconv.Itoa(s.CommType),
		"averaging":      strconv.Itoa(s.Averaging),
		"sample_timing":  strconv.Itoa(s.SampleTiming),
		"crc_checking":   b2i(s.CRCChecking),
		"baud_code":      strconv.Itoa(s.BaudCode),
		"power_down_v":   strconv.FormatFloat(s.PowerDownVolt, 'f', 1, 64),
		"humidity_thr":   strconv.Itoa(s.HumidityThr),
		"data_format":    strconv.Itoa(s.DataFormat),
		"alarm1_enabled": b2i(s.Alarm1.Enabled),
		"alarm1_dist":    strconv.Itoa(s.Alarm1.Distance),
		"alarm2_enabled": b2i(s.Alarm2.Enabled),
		"alarm2_dist":    strconv.Itoa(s.Alarm2.Distance),
		"msg_bits":       strconv.FormatUint(uint64(s.CustomMsgBits), 16),
	}
}

// Restore overlays a previously committed record onto the defaults.
// Unknown or malformed keys are skipped.
func (s *Sensor) Restore(record map[string]string) {
	geti := func(key string, dst *int) {
		if v, ok := record[key]; ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	getb := func(key string, dst *bool) {
		if v, ok := record[key]; ok {
			*dst = v == "1"
		}
	}

	geti("id", &s.ID)
	if v, ok := record["serial"]; ok && v != "" {
		s.SerialNumber = v
	}
	if v, ok := record["units"]; ok && len(v) == 1 {
		if v[0] == UnitMetres || v[0] == UnitFeet {
			s.Units = v[0]
		}
	}
	geti("interval", &s.IntervalSecs)
	if v, ok := record["mode"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n >= int(ModeStop) && n <= int(ModeRun) {
			s.Mode = Mode(n)
		}
	}
	geti("message_format", &s.MessageFormat)
	geti("comm_type", &s.CommType)
	geti("averaging", &s.Averaging)
	geti("sample_timing", &s.SampleTiming)
	getb("crc_checking", &s.CRCChecking)
	geti("baud_code", &s.BaudCode)
	if v, ok := record["power_down_v"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			s.PowerDownVolt = f
		}
	}
	geti("humidity_thr", &s.HumidityThr)
	geti("data_format", &s.DataFormat)
	getb("alarm1_enabled", &s.Alarm1.Enabled)
	geti("alarm1_dist", &s.Alarm1.Distance)
	getb("alarm2_enabled", &s.Alarm2.Enabled)
	geti("alarm2_dist", &s.Alarm2.Distance)
	if v, ok := record["msg_bits"]; ok {
		if n, err := strconv.ParseUint(v, 16, 16); err == nil && uint16(n)&^MsgBitsMask == 0 {
			s.CustomMsgBits = uint16(n)
		}
	}
}

// Commit persists the record through the store.
func (s *Sensor) Commit(store state.Store) error {
	return store.Save(s.Record())
}
