package baro

import (
	"fmt"
	"strings"
	"time"

	"github.com/metwx/metemu/pkg/checksum"
)

// DefaultFormat is the output program active until the first FORM command.
const DefaultFormat = `6.2 P " " U3 \R\N`

// maxItems bounds a compiled program; a longer format string is rejected
// whole.
const maxItems = 50

// maxFrame bounds one rendered output line. Overflow truncates silently
// at an item boundary.
const maxFrame = 256

type variable int

const (
	varP variable = iota
	varP1
	varP2
	varP3
	varP3H
	varErr
	varDP12
	varDP13
	varDP23
	varHCP
	varQFE
	varQNH
	varTP1
	varTP2
	varTP3
	varA3H
	varCS2
	varCS4
	varCSX
	varSN
	varPSTAB
	varADDR
	varDATE
	varTIME
)

// variable names ordered longest first so prefix matching is unambiguous
// (P3H before P3 before P).
var varNames = []struct {
	name string
	v    variable
}{
	{"PSTAB", varPSTAB},
	{"DP12", varDP12},
	{"DP13", varDP13},
	{"DP23", varDP23},
	{"ADDR", varADDR},
	{"DATE", varDATE},
	{"TIME", varTIME},
	{"P3H", varP3H},
	{"ERR", varErr},
	{"HCP", varHCP},
	{"QFE", varQFE},
	{"QNH", varQNH},
	{"TP1", varTP1},
	{"TP2", varTP2},
	{"TP3", varTP3},
	{"A3H", varA3H},
	{"CS2", varCS2},
	{"CS4", varCS4},
	{"CSX", varCSX},
	{"P1", varP1},
	{"P2", varP2},
	{"P3", varP3},
	{"SN", varSN},
	{"P", varP},
}

type itemKind int

const (
	itemLiteral itemKind = iota
	itemUnit
	itemVariable
)

// naturalPrec marks "use the sensor's natural precision" for a variable
// emitted before any N.M token.
const naturalPrec = -1

type item struct {
	kind  itemKind
	lit   []byte
	v     variable
	width int
	prec  int
}

// Program is one compiled output format. It is immutable after Compile;
// the dispatcher swaps the sensor's program pointer whole.
type Program struct {
	src   string
	items []item
}

// Source returns the format string the program was compiled from.
func (p *Program) Source() string {
	return p.src
}

// View carries the live values one render substitutes. Pressure values
// are already converted to the display unit.
type View struct {
	P, P1, P2, P3    float64
	P3H              float64 // three-hour trend
	A3H              int     // three-hour tendency code
	DP12, DP13, DP23 float64
	HCP, QFE, QNH    float64
	TP1, TP2, TP3    float64
	ErrFlags         [3]uint8
	Serial           string
	Stability        float64
	Address          int
	Unit             string
	Now              time.Time
}

// Compile translates a format string into an item list. The grammar is
// whitespace-separated tokens: N or N.M (sticky width/precision for later
// variables), "literal", escapes \T \R \N \RN, unit U or Un, and the
// variable names above matched longest-prefix. Any unrecognised input
// rejects the whole string and the previous program stays active.
func Compile(src string) (*Program, error) {
	p := &Program{src: src}
	width, prec := 0, naturalPrec

	add := func(it item) error {
		if len(p.items) >= maxItems {
			return fmt.Errorf("format has more than %d items", maxItems)
		}
		p.items = append(p.items, it)
		return nil
	}

	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t':
			i++

		case c == '"':
			j := strings.IndexByte(src[i+1:], '"')
			if j < 0 {
				return nil, fmt.Errorf("unterminated literal at offset %d", i)
			}
			if err := add(item{kind: itemLiteral, lit: []byte(src[i+1 : i+1+j])}); err != nil {
				return nil, err
			}
			i += j + 2

		case c == '\\':
			rest := src[i+1:]
			var lit []byte
			var n int
			switch {
			case hasFoldPrefix(rest, "RN"):
				lit, n = []byte("\r\n"), 2
			case hasFoldPrefix(rest, "R"):
				lit, n = []byte("\r"), 1
			case hasFoldPrefix(rest, "N"):
				lit, n = []byte("\n"), 1
			case hasFoldPrefix(rest, "T"):
				lit, n = []byte("\t"), 1
			default:
				return nil, fmt.Errorf("unknown escape at offset %d", i)
			}
			if err := add(item{kind: itemLiteral, lit: lit}); err != nil {
				return nil, err
			}
			i += 1 + n

		case c >= '0' && c <= '9':
			w, f, n, err := scanNumber(src[i:])
			if err != nil {
				return nil, fmt.Errorf("bad number at offset %d: %w", i, err)
			}
			width, prec = w, f
			i += n

		case c == 'U' || c == 'u':
			it := item{kind: itemUnit}
			i++
			if i < len(src) && src[i] >= '1' && src[i] <= '9' {
				it.width = int(src[i] - '0')
				i++
			}
			if err := add(it); err != nil {
				return nil, err
			}

		case isAlpha(c):
			v, n := matchVariable(src[i:])
			if n == 0 {
				return nil, fmt.Errorf("unknown token at offset %d", i)
			}
			if err := add(item{kind: itemVariable, v: v, width: width, prec: prec}); err != nil {
				return nil, err
			}
			i += n

		default:
			return nil, fmt.Errorf("unexpected byte %q at offset %d", c, i)
		}
	}
	return p, nil
}

// scanNumber reads N or N.M and returns (width, precision, consumed).
func scanNumber(s string) (int, int, int, error) {
	i := 0
	w := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		w = w*10 + int(s[i]-'0')
		i++
	}
	if i >= len(s) || s[i] != '.' {
		return w, naturalPrec, i, nil
	}
	i++
	if i >= len(s) || s[i] < '0' || s[i] > '9' {
		return 0, 0, 0, fmt.Errorf("missing digits after decimal point")
	}
	f := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		f = f*10 + int(s[i]-'0')
		i++
	}
	return w, f, i, nil
}

func matchVariable(s string) (variable, int) {
	for _, c := range varNames {
		if hasFoldPrefix(s, c.name) {
			return c.v, len(c.name)
		}
	}
	return 0, 0
}

func hasFoldPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func isAlpha(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

// Render substitutes v into the program. Checksums cover the bytes already
// rendered into the current frame, so their position in the format
// matters. Rendering never fails; a frame longer than the output bound is
// cut at the first item that does not fit.
func (p *Program) Render(v View) []byte {
	buf := make([]byte, 0, maxFrame)
	for _, it := range p.items {
		out := renderItem(it, v, buf)
		if len(buf)+len(out) > maxFrame {
			break
		}
		buf = append(buf, out...)
	}
	return buf
}

func renderItem(it item, v View, sofar []byte) []byte {
	switch it.kind {
	case itemLiteral:
		return it.lit
	case itemUnit:
		return []byte(padField(v.Unit, it.width))
	}

	switch it.v {
	case varP:
		return numField(v.P, it)
	case varP1:
		return numField(v.P1, it)
	case varP2:
		return numField(v.P2, it)
	case varP3:
		return numField(v.P3, it)
	case varP3H:
		return numField(v.P3H, it)
	case varDP12:
		return numField(v.DP12, it)
	case varDP13:
		return numField(v.DP13, it)
	case varDP23:
		return numField(v.DP23, it)
	case varHCP:
		return numField(v.HCP, it)
	case varQFE:
		return numField(v.QFE, it)
	case varQNH:
		return numField(v.QNH, it)
	case varTP1:
		return numField(v.TP1, it)
	case varTP2:
		return numField(v.TP2, it)
	case varTP3:
		return numField(v.TP3, it)
	case varPSTAB:
		return numField(v.Stability, it)
	case varA3H:
		return []byte(fmt.Sprintf("%*d", it.width, v.A3H))
	case varADDR:
		return []byte(fmt.Sprintf("%*d", it.width, v.Address))
	case varSN:
		return []byte(padField(v.Serial, it.width))
	case varErr:
		return []byte(fmt.Sprintf("%X%X%X",
			v.ErrFlags[0]&0xF, v.ErrFlags[1]&0xF, v.ErrFlags[2]&0xF))
	case varDATE:
		return []byte(v.Now.Format("2006-01-02"))
	case varTIME:
		return []byte(v.Now.Format("15:04:05"))
	case varCS2:
		return []byte(fmt.Sprintf("%02X", checksum.SumMod256(sofar)))
	case varCS4:
		return []byte(fmt.Sprintf("%04X", checksum.Crc16CCITT(sofar)))
	case varCSX:
		return []byte(fmt.Sprintf("%02X", checksum.Xor8(sofar)))
	}
	return nil
}

// numField formats a float with the item's recorded width and precision.
// The natural precision of the pressure channels is two decimals.
func numField(f float64, it item) []byte {
	prec := it.prec
	if prec == naturalPrec {
		prec = 2
	}
	return []byte(fmt.Sprintf("%*.*f", it.width, prec, f))
}

// padField left-justifies s into a fixed field; width 0 passes it through.
func padField(s string, width int) string {
	if width <= 0 {
		return s
	}
	if len(s) > width {
		return s[:width]
	}
	return s + strings.Repeat(" ", width-len(s))
}
