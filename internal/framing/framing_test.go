package framing

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func feedLine(a *LineAssembler, in string) [][]byte {
	var out [][]byte
	for i := 0; i < len(in); i++ {
		if line, ok := a.Feed(in[i]); ok {
			out = append(out, line)
		}
	}
	return out
}

func TestLineAssembler(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"cr terminated", "SEND\r", []string{"SEND"}},
		{"lf terminated", "SEND\n", []string{"SEND"}},
		{"crlf yields one line", "INTV 5 s\r\n", []string{"INTV 5 s"}},
		{"two commands", "R\rS\r", []string{"R", "S"}},
		{"blank lines swallowed", "\r\n\r\nVERS\r", []string{"VERS"}},
		{"no delimiter no line", "SMODE RUN", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var a LineAssembler
			got := feedLine(&a, tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d lines, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if string(got[i]) != tt.want[i] {
					t.Errorf("line %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestLineAssemblerOverflowDiscards(t *testing.T) {
	var a LineAssembler
	long := strings.Repeat("X", 300) + "TAIL\r"
	got := feedLine(&a, long)
	if len(got) != 1 {
		t.Fatalf("got %d lines, want 1", len(got))
	}
	// The first 256 bytes were discarded; only the overflow remainder
	// survives to the delimiter.
	if len(got[0]) >= 256 {
		t.Errorf("overflowed line not discarded, %d bytes survived", len(got[0]))
	}
	if !bytes.HasSuffix(got[0], []byte("TAIL")) {
		t.Errorf("line tail lost: %q", got[0])
	}
}

func feedFramed(a *FramedAssembler, in string) ([]byte, error) {
	for i := 0; i < len(in); i++ {
		payload, err := a.Feed(in[i])
		if payload != nil || err != nil {
			return payload, err
		}
	}
	return nil, nil
}

func TestFramedAssembler(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr error
	}{
		{
			name: "get frame with valid crc",
			in:   "\x02GET:0:0:2C67:\x03",
			want: "GET:0:0",
		},
		{
			name: "spaces around crc tolerated",
			in:   "\x02GET:0:0: 2C67 :\x03",
			want: "GET:0:0",
		},
		{
			name:    "crc mismatch",
			in:      "\x02GET:0:0:DEAD:\x03",
			wantErr: ErrInvalidCrc,
		},
		{
			name:    "missing crc delimiters",
			in:      "\x02GET\x03",
			wantErr: ErrInvalidFormat,
		},
		{
			name:    "crc field wrong width",
			in:      "\x02GET:0:0:2C6:\x03",
			wantErr: ErrInvalidFormat,
		},
		{
			name:    "crc field not hex",
			in:      "\x02GET:0:0:ZZZZ:\x03",
			wantErr: ErrInvalidFormat,
		},
		{
			name:    "trailing junk after crc colon",
			in:      "\x02GET:0:0:2C67:xx\x03",
			wantErr: ErrInvalidFormat,
		},
		{
			name: "noise before stx ignored",
			in:   "junk\x02GET:0:0:2C67:\x03",
			want: "GET:0:0",
		},
		{
			name: "restart on second stx",
			in:   "\x02GARBAGE\x02GET:0:0:2C67:\x03",
			want: "GET:0:0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewFramedAssembler(0x0000, nil)
			payload, err := feedFramed(a, tt.in)
			if tt.wantErr != nil {
				if err != tt.wantErr {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(payload) != tt.want {
				t.Errorf("payload = %q, want %q", payload, tt.want)
			}
		})
	}
}

func TestFramedAssemblerCrcCheckDisabled(t *testing.T) {
	enabled := false
	a := NewFramedAssembler(0x0000, func() bool { return enabled })

	payload, err := feedFramed(a, "\x02GET:0:0:DEAD:\x03")
	if err != nil {
		t.Fatalf("crc mismatch not soft-accepted: %v", err)
	}
	if string(payload) != "GET:0:0" {
		t.Errorf("payload = %q, want GET:0:0", payload)
	}

	enabled = true
	if _, err := feedFramed(a, "\x02GET:0:0:DEAD:\x03"); err != ErrInvalidCrc {
		t.Errorf("err = %v, want ErrInvalidCrc after re-enabling", err)
	}
}

func TestShortAssembler(t *testing.T) {
	base := time.Now()

	t.Run("max length completes", func(t *testing.T) {
		a := NewShortAssembler(0)
		var got [][]byte
		for i, b := range []byte("Z305") {
			got = append(got, a.Feed(b, base.Add(time.Duration(i)*time.Millisecond))...)
		}
		if len(got) != 1 || string(got[0]) != "Z305" {
			t.Fatalf("got %q, want [Z305]", got)
		}
	})

	t.Run("next letter flushes previous", func(t *testing.T) {
		a := NewShortAssembler(0)
		var got [][]byte
		for i, b := range []byte("Z3R") {
			got = append(got, a.Feed(b, base.Add(time.Duration(i)*time.Millisecond))...)
		}
		if len(got) != 1 || string(got[0]) != "Z3" {
			t.Fatalf("got %q, want [Z3]", got)
		}
		if cmd := a.Tick(base.Add(200 * time.Millisecond)); string(cmd) != "R" {
			t.Errorf("pending command = %q, want R", cmd)
		}
	})

	t.Run("quiet interval flushes", func(t *testing.T) {
		a := NewShortAssembler(0)
		a.Feed('T', base)
		if cmd := a.Tick(base.Add(50 * time.Millisecond)); cmd != nil {
			t.Errorf("flushed too early: %q", cmd)
		}
		if cmd := a.Tick(base.Add(150 * time.Millisecond)); string(cmd) != "T" {
			t.Errorf("quiet flush = %q, want T", cmd)
		}
	})

	t.Run("stale buffer flushed on next byte", func(t *testing.T) {
		a := NewShortAssembler(0)
		a.Feed('Z', base)
		got := a.Feed('9', base.Add(500*time.Millisecond))
		if len(got) != 1 || string(got[0]) != "Z" {
			t.Fatalf("got %q, want [Z]", got)
		}
	})

	t.Run("digits without letter dropped", func(t *testing.T) {
		a := NewShortAssembler(0)
		if got := a.Feed('7', base); len(got) != 0 {
			t.Fatalf("unexpected frames %q", got)
		}
		if cmd := a.Tick(base.Add(time.Second)); cmd != nil {
			t.Errorf("noise produced command %q", cmd)
		}
	})

	t.Run("noise does not postpone quiet flush", func(t *testing.T) {
		a := NewShortAssembler(0)
		a.Feed('I', base)
		a.Feed('5', base.Add(10*time.Millisecond))

		// Line noise keeps arriving inside the quiet interval. The quiet
		// timer counts from the last buffered byte, not the last noise.
		if got := a.Feed(0x00, base.Add(50*time.Millisecond)); len(got) != 0 {
			t.Fatalf("flushed too early: %q", got)
		}
		got := a.Feed(0xFF, base.Add(120*time.Millisecond))
		if len(got) != 1 || string(got[0]) != "I5" {
			t.Fatalf("got %q, want [I5] flushed despite noise", got)
		}
	})
}
