package pwd

import (
	"fmt"
	"strconv"
	"strings"
)

// measurementFields is the field count of one replayed data record: the
// visibility, present-weather and precipitation block the real head emits
// in its full message.
const measurementFields = 32

// Measurement is one typed data record. The frequently inspected slots are
// decoded; the remainder rides along in Raw so rendering reproduces the
// recorded line bit-exactly.
type Measurement struct {
	Vis1Min   int    // one-minute MOR, metres
	Vis10Min  int    // ten-minute MOR, metres
	NWSCode   string // NWS present-weather code
	SynopInst int    // instant SYNOP code
	Metar     string // instant METAR token
	WaterSum  float64
	Raw       []string
}

// ParseMeasurement validates and decodes one replay line.
func ParseMeasurement(line string) (*Measurement, error) {
	fields := strings.Fields(line)
	if len(fields) != measurementFields {
		return nil, fmt.Errorf("measurement has %d fields, want %d", len(fields), measurementFields)
	}

	vis1, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, fmt.Errorf("visibility field: %w", err)
	}
	vis10, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, fmt.Errorf("10-min visibility field: %w", err)
	}
	synop, err := strconv.Atoi(fields[3])
	if err != nil {
		return nil, fmt.Errorf("synop field: %w", err)
	}
	water, err := strconv.ParseFloat(fields[5], 64)
	if err != nil {
		return nil, fmt.Errorf("water sum field: %w", err)
	}

	return &Measurement{
		Vis1Min:   vis1,
		Vis10Min:  vis10,
		NWSCode:   fields[2],
		SynopInst: synop,
		Metar:     fields[4],
		WaterSum:  water,
		Raw:       fields,
	}, nil
}

// Render produces the data-frame payload: the sensor address, the alarm
// state pair, then the 32 recorded fields.
func (m *Measurement) Render(s *Sensor) string {
	a := func(al Alarm) byte {
		if al.Active {
			return '1'
		}
		return '0'
	}
	return fmt.Sprintf("PW %2d %c%c %s", s.ID, a(s.Alarm1), a(s.Alarm2), strings.Join(m.Raw, " "))
}
