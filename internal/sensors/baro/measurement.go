package baro

import (
	"fmt"
	"strconv"
	"strings"
)

// A replay line carries the three transducer pressures (hPa), their
// temperatures, the three-hour trend and the tendency code.
const measurementFields = 8

// Measurement is one decoded replay record.
type Measurement struct {
	P1, P2, P3    float64
	TP1, TP2, TP3 float64
	Trend3H       float64
	Tendency3H    int
}

// ParseMeasurement decodes one whitespace-separated replay line.
func ParseMeasurement(line string) (*Measurement, error) {
	fields := strings.Fields(line)
	if len(fields) != measurementFields {
		return nil, fmt.Errorf("measurement has %d fields, want %d", len(fields), measurementFields)
	}

	vals := make([]float64, measurementFields-1)
	for i := range vals {
		f, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		vals[i] = f
	}
	tendency, err := strconv.Atoi(fields[7])
	if err != nil {
		return nil, fmt.Errorf("tendency field: %w", err)
	}

	return &Measurement{
		P1: vals[0], P2: vals[1], P3: vals[2],
		TP1: vals[3], TP2: vals[4], TP3: vals[5],
		Trend3H:    vals[6],
		Tendency3H: tendency,
	}, nil
}

// hpaPerMetre is the near-sea-level barometric lapse used for the height
// corrections (HHCP, HQNH, HQFE).
const hpaPerMetre = 0.12

// View derives the render view from a measurement and the sensor record,
// applying the display unit conversion and the configured height
// corrections.
func (m *Measurement) View(s *Sensor) View {
	p := (m.P1 + m.P2 + m.P3) / 3

	conv := s.ConvertPressure
	qfe := p + s.QFEHeight*hpaPerMetre
	return View{
		P:         conv(p),
		P1:        conv(m.P1),
		P2:        conv(m.P2),
		P3:        conv(m.P3),
		P3H:       conv(m.Trend3H),
		A3H:       m.Tendency3H,
		DP12:      conv(m.P1 - m.P2),
		DP13:      conv(m.P1 - m.P3),
		DP23:      conv(m.P2 - m.P3),
		HCP:       conv(p + s.HCPHeight*hpaPerMetre),
		QFE:       conv(qfe),
		QNH:       conv(qfe + s.QNHHeight*hpaPerMetre),
		TP1:       m.TP1,
		TP2:       m.TP2,
		TP3:       m.TP3,
		Serial:    s.SerialNumber,
		Stability: s.Stability,
		Address:   s.Address,
		Unit:      s.PressureUnit,
		ErrFlags:  s.ErrorFlags,
	}
}
