package pwd

import (
	"strconv"
	"strings"
)

// Command is the tagged result of parsing one validated frame payload.
type Command interface{ isCmd() }

// Poll requests one data frame.
type Poll struct{ Addr int }

// Get requests the configuration projection.
type Get struct{ Addr int }

// Set carries the positional parameter list; NoCommit distinguishes SETNC.
type Set struct {
	Addr     int
	Fields   SetFields
	NoCommit bool
	Echo     string
}

// MsgSet replaces the custom-message bitmap.
type MsgSet struct {
	Addr int
	Bits uint16
	Echo string
}

// AccReset zeroes the precipitation accumulator.
type AccReset struct {
	Addr int
	Echo string
}

// Unknown is a structurally valid frame naming no command.
type Unknown struct{ Echo string }

// InvalidID is an address token outside the family range.
type InvalidID struct{}

// InvalidBits is a MSGSET whose bitmap fails the reserved-bit mask.
type InvalidBits struct{ Echo string }

func (Poll) isCmd()        {}
func (Get) isCmd()         {}
func (Set) isCmd()         {}
func (MsgSet) isCmd()      {}
func (AccReset) isCmd()    {}
func (Unknown) isCmd()     {}
func (InvalidID) isCmd()   {}
func (InvalidBits) isCmd() {}

// keyword table, longest prefix first so SETNC never falls into SET.
var keywords = []string{"MSGSET", "ACCRES", "SETNC", "POLL", "SET", "GET"}

// Parse maps a validated payload to a command. It is pure: no sensor or
// sink access. Tokens split on colons and whitespace; the keyword match is
// case-insensitive longest-prefix.
func Parse(payload []byte) Command {
	text := string(payload)
	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return r == ':' || r == ' ' || r == '\t'
	})
	if len(tokens) == 0 {
		return Unknown{Echo: text}
	}

	var kw string
	for _, k := range keywords {
		if len(tokens[0]) >= len(k) && strings.EqualFold(tokens[0][:len(k)], k) {
			kw = k
			break
		}
	}
	if kw == "" {
		return Unknown{Echo: text}
	}

	addr := 0
	if len(tokens) > 1 {
		n, err := strconv.Atoi(tokens[1])
		if err != nil || !validAddress(n) {
			return InvalidID{}
		}
		addr = n
	}

	params := tokens[2:]

	switch kw {
	case "POLL":
		return Poll{Addr: addr}
	case "GET":
		return Get{Addr: addr}
	case "SET", "SETNC":
		return Set{
			Addr:     addr,
			Fields:   parseSetFields(params),
			NoCommit: kw == "SETNC",
			Echo:     text,
		}
	case "MSGSET":
		if len(params) == 0 {
			return InvalidBits{Echo: text}
		}
		bits, err := strconv.ParseUint(params[0], 16, 16)
		if err != nil || uint16(bits)&^uint16(MsgBitsMask) != 0 {
			return InvalidBits{Echo: text}
		}
		return MsgSet{Addr: addr, Bits: uint16(bits), Echo: text}
	case "ACCRES":
		return AccReset{Addr: addr, Echo: text}
	}
	return Unknown{Echo: text}
}

// parseSetFields fills the positional list. Parsing is tolerant: a short
// record leaves the tail zeroed and unparseable numbers become zero; the
// model's range checks decide acceptance per field.
func parseSetFields(params []string) SetFields {
	get := func(i int) string {
		if i < len(params) {
			return params[i]
		}
		return ""
	}
	num := func(i int) int {
		n, _ := strconv.Atoi(get(i))
		return n
	}
	flt := func(i int) float64 {
		f, _ := strconv.ParseFloat(get(i), 64)
		return f
	}

	f := SetFields{
		SensorID:      num(0),
		Alarm1Enable:  num(1),
		Alarm1Active:  num(2),
		Alarm1Dist:    num(3),
		Alarm2Enable:  num(4),
		Alarm2Active:  num(5),
		Alarm2Dist:    num(6),
		BaudCode:      num(7),
		Serial:        get(8),
		IntervalSecs:  num(10),
		Mode:          num(11),
		MessageFormat: num(12),
		CommType:      num(13),
		Averaging:     num(14),
		SampleTiming:  num(15),
		CRCEnable:     num(20),
		PowerDownVolt: flt(21),
		HumidityThr:   num(22),
		DataFormat:    num(23),
	}
	if u := get(9); len(u) == 1 {
		f.Units = u[0] &^ 0x20 // fold to upper case
	}
	for i := 0; i < 4; i++ {
		f.Overrides[i] = num(16 + i)
	}
	return f
}
