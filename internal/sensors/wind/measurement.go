package wind

import (
	"fmt"
	"strconv"
	"strings"
)

// A replay line carries direction (degrees true), mean speed and gust
// speed, both in m/s.
const measurementFields = 3

// Measurement is one decoded replay record.
type Measurement struct {
	Direction int
	Speed     float64
	Gust      float64
}

// ParseMeasurement decodes one whitespace-separated replay line.
func ParseMeasurement(line string) (*Measurement, error) {
	fields := strings.Fields(line)
	if len(fields) != measurementFields {
		return nil, fmt.Errorf("measurement has %d fields, want %d", len(fields), measurementFields)
	}

	dir, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, fmt.Errorf("direction field: %w", err)
	}
	speed, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return nil, fmt.Errorf("speed field: %w", err)
	}
	gust, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return nil, fmt.Errorf("gust field: %w", err)
	}

	return &Measurement{Direction: dir, Speed: speed, Gust: gust}, nil
}

// Render produces the data-frame payload with the azimuth offset applied
// and the speeds converted into the configured unit.
func (m *Measurement) Render(s *Sensor) string {
	dir := (m.Direction + s.AzimuthOffset) % 360
	factor := speedUnits[s.Units]
	if factor == 0 {
		factor = 1
	}
	return fmt.Sprintf("WV %03d %05.1f %05.1f %c",
		dir, m.Speed*factor, m.Gust*factor, s.Units)
}
