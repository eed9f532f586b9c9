package pwd

import (
	"testing"

	"github.com/metwx/metemu/pkg/state"
)

// fieldsFor returns a full valid SET parameter list matching the sensor's
// current configuration, so single-field mutations can be tested in
// isolation.
func fieldsFor(s *Sensor) SetFields {
	b := func(v bool) int {
		if v {
			return 1
		}
		return 0
	}
	f := SetFields{
		SensorID:      s.ID,
		Alarm1Enable:  b(s.Alarm1.Enabled),
		Alarm1Active:  b(s.Alarm1.Active),
		Alarm1Dist:    s.Alarm1.Distance,
		Alarm2Enable:  b(s.Alarm2.Enabled),
		Alarm2Active:  b(s.Alarm2.Active),
		Alarm2Dist:    s.Alarm2.Distance,
		BaudCode:      s.BaudCode,
		Serial:        s.SerialNumber,
		Units:         s.Units,
		IntervalSecs:  s.IntervalSecs,
		Mode:          int(s.Mode),
		MessageFormat: s.MessageFormat,
		CommType:      s.CommType,
		Averaging:     s.Averaging,
		SampleTiming:  s.SampleTiming,
		CRCEnable:     b(s.CRCChecking),
		PowerDownVolt: s.PowerDownVolt,
		HumidityThr:   s.HumidityThr,
		DataFormat:    s.DataFormat,
	}
	for i, ov := range s.Overrides {
		f.Overrides[i] = b(ov)
	}
	return f
}

func TestApplyOutOfRangeFieldKeepsOldValue(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SetFields)
		check  func(t *testing.T, s *Sensor)
	}{
		{
			name:   "alarm1 distance beyond metres range",
			mutate: func(f *SetFields) { f.Alarm1Dist = 200000 },
			check: func(t *testing.T, s *Sensor) {
				if s.Alarm1.Distance != 1500 {
					t.Errorf("Alarm1.Distance = %d, want 1500", s.Alarm1.Distance)
				}
			},
		},
		{
			name:   "alarm1 distance below metres range",
			mutate: func(f *SetFields) { f.Alarm1Dist = 3 },
			check: func(t *testing.T, s *Sensor) {
				if s.Alarm1.Distance != 1500 {
					t.Errorf("Alarm1.Distance = %d, want 1500", s.Alarm1.Distance)
				}
			},
		},
		{
			name:   "averaging outside {1,10}",
			mutate: func(f *SetFields) { f.Averaging = 5 },
			check: func(t *testing.T, s *Sensor) {
				if s.Averaging != 1 {
					t.Errorf("Averaging = %d, want 1", s.Averaging)
				}
			},
		},
		{
			name:   "interval beyond bound",
			mutate: func(f *SetFields) { f.IntervalSecs = 40000 },
			check: func(t *testing.T, s *Sensor) {
				if s.IntervalSecs != 15 {
					t.Errorf("IntervalSecs = %d, want 15", s.IntervalSecs)
				}
			},
		},
		{
			name:   "humidity threshold beyond bound",
			mutate: func(f *SetFields) { f.HumidityThr = 150 },
			check: func(t *testing.T, s *Sensor) {
				if s.HumidityThr != 95 {
					t.Errorf("HumidityThr = %d, want 95", s.HumidityThr)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSensor()
			s.Alarm1.Distance = 1500

			f := fieldsFor(s)
			tt.mutate(&f)
			s.Apply(f)
			tt.check(t, s)
		})
	}
}

func TestApplyInvalidFieldDoesNotVoidSiblings(t *testing.T) {
	s := NewSensor()
	s.Alarm1.Distance = 1500

	f := fieldsFor(s)
	f.Alarm1Dist = 999999 // invalid
	f.Alarm2Dist = 4000   // valid
	f.IntervalSecs = 60   // valid
	s.Apply(f)

	if s.Alarm1.Distance != 1500 {
		t.Errorf("invalid Alarm1Dist applied: %d", s.Alarm1.Distance)
	}
	if s.Alarm2.Distance != 4000 {
		t.Errorf("valid Alarm2Dist dropped: %d", s.Alarm2.Distance)
	}
	if s.IntervalSecs != 60 {
		t.Errorf("valid IntervalSecs dropped: %d", s.IntervalSecs)
	}
}

func TestApplyFeetBounds(t *testing.T) {
	s := NewSensor()
	f := fieldsFor(s)
	f.Units = UnitFeet
	f.Alarm1Dist = 300000 // valid in feet, invalid in metres
	s.Apply(f)

	if s.Units != UnitFeet {
		t.Fatalf("Units = %c, want F", s.Units)
	}
	if s.Alarm1.Distance != 300000 {
		t.Errorf("Alarm1.Distance = %d, want 300000 (feet bounds)", s.Alarm1.Distance)
	}
}

func TestApplyIdempotent(t *testing.T) {
	s := NewSensor()
	f := fieldsFor(s)
	f.IntervalSecs = 45
	f.Mode = int(ModeRun)
	f.Alarm1Enable = 1
	f.Alarm1Dist = 2500

	s.Apply(f)
	first := *s
	s.Apply(f)

	if *s != first {
		t.Errorf("second Apply changed the record:\n first: %+v\nsecond: %+v", first, *s)
	}
}

func TestRecordRestoreRoundTrip(t *testing.T) {
	s := NewSensor()
	f := fieldsFor(s)
	f.SensorID = 7
	f.IntervalSecs = 120
	f.Averaging = 10
	f.Alarm1Enable = 1
	f.Alarm1Dist = 3000
	f.CRCEnable = 0
	s.Apply(f)
	s.CustomMsgBits = 0x1234

	restored := NewSensor()
	restored.Restore(s.Record())

	if restored.ID != 7 || restored.IntervalSecs != 120 || restored.Averaging != 10 {
		t.Errorf("restored = %+v", restored)
	}
	if !restored.Alarm1.Enabled || restored.Alarm1.Distance != 3000 {
		t.Errorf("alarm1 not restored: %+v", restored.Alarm1)
	}
	if restored.CRCChecking {
		t.Error("CRCChecking not restored")
	}
	if restored.CustomMsgBits != 0x1234 {
		t.Errorf("CustomMsgBits = %#04x, want 0x1234", restored.CustomMsgBits)
	}
}

func TestCommitUsesStore(t *testing.T) {
	s := NewSensor()
	if err := s.Commit(state.Discard{}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}
