// Package baro emulates a Vaisala-style digital barometer. Commands are
// plain CR/LF-terminated lines; the data output is programmable through
// the FORM command, compiled by this package's formatter.
package baro

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/metwx/metemu/pkg/state"
)

// Start modes. RUN streams at the configured interval, STOP is silent,
// POLL answers SEND only, SEND emits one frame at boot then behaves like
// POLL.
type Mode int

const (
	ModeStop Mode = iota
	ModeRun
	ModePoll
	ModeSend
)

func (m Mode) String() string {
	switch m {
	case ModeStop:
		return "STOP"
	case ModeRun:
		return "RUN"
	case ModePoll:
		return "POLL"
	case ModeSend:
		return "SEND"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode maps the SMODE argument.
func ParseMode(s string) (Mode, bool) {
	switch {
	case strings.EqualFold(s, "RUN"):
		return ModeRun, true
	case strings.EqualFold(s, "STOP"):
		return ModeStop, true
	case strings.EqualFold(s, "POLL"):
		return ModePoll, true
	case strings.EqualFold(s, "SEND"):
		return ModeSend, true
	}
	return ModeStop, false
}

// Interval units accepted by INTV.
var intervalUnits = map[string]int{
	"s":   1,
	"min": 60,
	"h":   3600,
	"d":   86400,
}

// pressureUnits maps a unit name to the factor converting hPa into it.
// The map key is the canonical spelling echoed back to the user.
var pressureUnits = map[string]float64{
	"hPa":  1,
	"kPa":  0.1,
	"Pa":   100,
	"bar":  0.001,
	"mbar": 1,
	"mmHg": 0.750062,
	"inHg": 0.0295300,
	"psi":  0.0145038,
	"torr": 0.750062,
}

// CanonicalUnit resolves a case-insensitive unit name.
func CanonicalUnit(s string) (string, bool) {
	for name := range pressureUnits {
		if strings.EqualFold(s, name) {
			return name, true
		}
	}
	return "", false
}

const (
	maxAddress   = 99
	maxAvrgSecs  = 600
	maxIntervals = 255 // interval count, unit-scaled at use
)

// Sensor is the barometer's configuration record. Mutation happens in the
// dispatcher under the session mutex; the compiled format program is
// swapped whole so a render sees either the old or the new program.
type Sensor struct {
	Address      int
	SerialNumber string
	Model        string
	SWVersion    string

	Mode         Mode
	IntervalN    int    // cadence count
	IntervalUnit string // one of intervalUnits

	PressureUnit string
	Averaging    int // seconds
	Echo         bool

	// Height corrections, metres. Zero disables the correction.
	HCPHeight float64
	QNHHeight float64
	QFEHeight float64

	Stability  float64 // hPa over the stability window
	ErrorFlags [3]uint8

	Format *Program
}

// NewSensor returns the family defaults, including the default output
// format program.
func NewSensor() *Sensor {
	prog, err := Compile(DefaultFormat)
	if err != nil {
		// The default format is a constant; a compile failure is a
		// programming error.
		panic(fmt.Sprintf("default format does not compile: %v", err))
	}
	return &Sensor{
		Address:      0,
		SerialNumber: "S1930124",
		Model:        "PTB220",
		SWVersion:    "1.04",
		Mode:         ModeStop,
		IntervalN:    1,
		IntervalUnit: "s",
		PressureUnit: "hPa",
		Averaging:    1,
		Stability:    0.0,
		Format:       prog,
	}
}

// IntervalSeconds is the transmit cadence in seconds, never below 1.
func (s *Sensor) IntervalSeconds() int {
	mult, ok := intervalUnits[s.IntervalUnit]
	if !ok {
		mult = 1
	}
	secs := s.IntervalN * mult
	if secs < 1 {
		return 1
	}
	return secs
}

// ConvertPressure maps an hPa value into the configured display unit.
func (s *Sensor) ConvertPressure(hpa float64) float64 {
	f, ok := pressureUnits[s.PressureUnit]
	if !ok {
		return hpa
	}
	return hpa * f
}

// Record flattens the persistent part of the record for the state store.
func (s *Sensor) Record() map[string]string {
	b2i := func(b bool) string {
		if b {
			return "1"
		}
		return "0"
	}
	return map[string]string{
		"address":       strconv.Itoa(s.Address),
		"serial":        s.SerialNumber,
		"mode":          strconv.Itoa(int(s.Mode)),
		"interval_n":    strconv.Itoa(s.IntervalN),
		"interval_unit": s.IntervalUnit,
		"pressure_unit": s.PressureUnit,
		"averaging":     strconv.Itoa(s.Averaging),
		"echo":          b2i(s.Echo),
		"hcp_height":    strconv.FormatFloat(s.HCPHeight, 'f', 1, 64),
		"qnh_height":    strconv.FormatFloat(s.QNHHeight, 'f', 1, 64),
		"qfe_height":    strconv.FormatFloat(s.QFEHeight, 'f', 1, 64),
		"format":        s.Format.Source(),
	}
}

// Restore overlays a committed record onto the defaults. Malformed values
// are skipped; a persisted format string that no longer compiles keeps the
// default program.
func (s *Sensor) Restore(record map[string]string) {
	geti := func(key string, dst *int) {
		if v, ok := record[key]; ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	getf := func(key string, dst *float64) {
		if v, ok := record[key]; ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}

	if v, ok := record["address"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= maxAddress {
			s.Address = n
		}
	}
	if v, ok := record["serial"]; ok && v != "" {
		s.SerialNumber = v
	}
	if v, ok := record["mode"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n >= int(ModeStop) && n <= int(ModeSend) {
			s.Mode = Mode(n)
		}
	}
	geti("interval_n", &s.IntervalN)
	if v, ok := record["interval_unit"]; ok {
		if _, known := intervalUnits[v]; known {
			s.IntervalUnit = v
		}
	}
	if v, ok := record["pressure_unit"]; ok {
		if name, known := CanonicalUnit(v); known {
			s.PressureUnit = name
		}
	}
	if v, ok := record["averaging"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= maxAvrgSecs {
			s.Averaging = n
		}
	}
	if v, ok := record["echo"]; ok {
		s.Echo = v == "1"
	}
	getf("hcp_height", &s.HCPHeight)
	getf("qnh_height", &s.QNHHeight)
	getf("qfe_height", &s.QFEHeight)
	if v, ok := record["format"]; ok && v != "" {
		if prog, err := Compile(v); err == nil {
			s.Format = prog
		}
	}
}

// Commit persists the record through the store.
func (s *Sensor) Commit(store state.Store) error {
	return store.Save(s.Record())
}
