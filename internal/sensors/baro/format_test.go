package baro

import (
	"strings"
	"testing"
	"time"
)

func TestRenderUserFormat(t *testing.T) {
	prog, err := Compile(`"P=" 6.2 P " " U3 \R\N`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	out := prog.Render(View{P: 1013.25, Unit: "hPa"})
	if got, want := string(out), "P=1013.25 hPa\r\n"; got != want {
		t.Errorf("render = %q, want %q", got, want)
	}
}

func TestRenderVariables(t *testing.T) {
	now := time.Date(2026, 8, 27, 14, 30, 45, 0, time.Local)
	view := View{
		P: 1000.5, P3: 999.5, P3H: 1.2,
		DP12:     0.05,
		ErrFlags: [3]uint8{1, 10, 15},
		Serial:   "S1930124",
		Address:  7,
		Unit:     "hPa",
		Now:      now,
	}

	tests := []struct {
		name   string
		format string
		want   string
	}{
		{
			name:   "longest prefix picks P3H over P3 over P",
			format: `P3H " " P3 " " P`,
			want:   "1.20 999.50 1000.50",
		},
		{
			name:   "explicit width pads left",
			format: `8.2 P`,
			want:   " 1000.50",
		},
		{
			name:   "width is a minimum not a cap",
			format: `4.2 P`,
			want:   "1000.50",
		},
		{
			name:   "sticky width applies to later variables",
			format: `7.2 P " " DP12`,
			want:   "1000.50    0.05",
		},
		{
			name:   "error flags as three nibbles",
			format: `ERR`,
			want:   "1AF",
		},
		{
			name:   "serial address and unit",
			format: `SN " " ADDR " " U5`,
			want:   "S1930124 7 hPa  ",
		},
		{
			name:   "date and time",
			format: `DATE " " TIME`,
			want:   "2026-08-27 14:30:45",
		},
		{
			name:   "tab escape",
			format: `P \T P`,
			want:   "1000.50\t1000.50",
		},
		{
			name:   "combined crlf escape",
			format: `P \RN`,
			want:   "1000.50\r\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog, err := Compile(tt.format)
			if err != nil {
				t.Fatalf("Compile(%q): %v", tt.format, err)
			}
			if got := string(prog.Render(view)); got != tt.want {
				t.Errorf("render = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderPositionalChecksums(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{`"AB" CS2`, "AB83"},
		{`"AB" CS4`, "AB4B74"},
		{`"AB" CSX`, "AB03"},
		// The checksum covers only the bytes before it.
		{`"AB" CS2 "AB"`, "AB83AB"},
	}

	for _, tt := range tests {
		prog, err := Compile(tt.format)
		if err != nil {
			t.Fatalf("Compile(%q): %v", tt.format, err)
		}
		if got := string(prog.Render(View{})); got != tt.want {
			t.Errorf("render(%q) = %q, want %q", tt.format, got, tt.want)
		}
	}
}

func TestCompileRejects(t *testing.T) {
	tests := []struct {
		name   string
		format string
	}{
		{"unknown variable", `P " " BOGUS`},
		{"unterminated literal", `"abc`},
		{"unknown escape", `\Q`},
		{"bare decimal point", `3. P`},
		{"too many items", strings.Repeat(`"x" `, maxItems+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Compile(tt.format); err == nil {
				t.Errorf("Compile(%q) accepted", tt.format)
			}
		})
	}
}

func TestRenderTruncatesAtItemBoundary(t *testing.T) {
	long := `"` + strings.Repeat("x", maxFrame-4) + `"`
	prog, err := Compile(long + ` " tail that does not fit" P`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	out := prog.Render(View{P: 1000})
	if len(out) != maxFrame-4 {
		t.Errorf("render kept %d bytes, want %d", len(out), maxFrame-4)
	}
}

func TestDefaultFormatCompiles(t *testing.T) {
	prog, err := Compile(DefaultFormat)
	if err != nil {
		t.Fatalf("Compile(DefaultFormat): %v", err)
	}
	if got := string(prog.Render(View{P: 990.1, Unit: "hPa"})); got != "990.10 hPa\r\n" {
		t.Errorf("default render = %q", got)
	}
}
