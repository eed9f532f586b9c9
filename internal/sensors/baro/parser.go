package baro

import (
	"strconv"
	"strings"
)

// Kind tags a parsed command line.
type Kind int

const (
	KindUnknown Kind = iota
	KindSend
	KindRun
	KindStop
	KindIntv
	KindSmode
	KindUnit
	KindForm
	KindInfo
	KindVers
	KindSnum
	KindErrs
	KindReset
	KindAddr
	KindAvrg
	KindPstab
	KindHhcp
	KindHqnh
	KindHqfe
	KindEcho
	KindHelp
)

// Command is one parsed line. Query is set when the command carries no
// argument; BadArg when an argument is present but malformed or out of
// range. The parser never touches the sensor record.
type Command struct {
	Kind   Kind
	Text   string
	Query  bool
	BadArg bool

	Mode Mode    // SMODE
	N    int     // INTV count, ADDR, AVRG
	Unit string  // INTV unit or pressure unit
	F    float64 // HHCP / HQNH / HQFE height
	On   bool    // ECHO
	Raw  string  // FORM string, verbatim
}

// keyword table ordered longest first; a keyword matches as a prefix of
// the first token, so RESET wins over R and SNUM over S.
var keywords = []struct {
	word string
	kind Kind
}{
	{"PSTAB", KindPstab},
	{"RESET", KindReset},
	{"SMODE", KindSmode},
	{"ADDR", KindAddr},
	{"AVRG", KindAvrg},
	{"ECHO", KindEcho},
	{"ERRS", KindErrs},
	{"FORM", KindForm},
	{"HELP", KindHelp},
	{"HHCP", KindHhcp},
	{"HQFE", KindHqfe},
	{"HQNH", KindHqnh},
	{"INFO", KindInfo},
	{"INTV", KindIntv},
	{"SEND", KindSend},
	{"SNUM", KindSnum},
	{"UNIT", KindUnit},
	{"VERS", KindVers},
	{"R", KindRun},
	{"S", KindStop},
}

// Parse maps one delimiter-stripped line to a command.
func Parse(payload []byte) Command {
	text := string(payload)
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Command{Kind: KindUnknown, Text: text}
	}

	first := trimmed
	rest := ""
	if i := strings.IndexAny(trimmed, " \t"); i >= 0 {
		first, rest = trimmed[:i], strings.TrimSpace(trimmed[i+1:])
	}

	kind := KindUnknown
	for _, k := range keywords {
		if len(first) >= len(k.word) && strings.EqualFold(first[:len(k.word)], k.word) {
			kind = k.kind
			break
		}
	}

	cmd := Command{Kind: kind, Text: text, Query: rest == ""}
	switch kind {
	case KindIntv:
		parseInterval(&cmd, rest)
	case KindSmode:
		if rest != "" {
			m, ok := ParseMode(rest)
			if !ok {
				cmd.BadArg = true
				break
			}
			cmd.Mode = m
		}
	case KindUnit:
		if rest != "" {
			name, ok := CanonicalUnit(rest)
			if !ok {
				cmd.BadArg = true
				break
			}
			cmd.Unit = name
		}
	case KindForm:
		cmd.Raw = rest
	case KindAddr:
		parseIntArg(&cmd, rest, 0, maxAddress)
	case KindAvrg:
		parseIntArg(&cmd, rest, 0, maxAvrgSecs)
	case KindHhcp, KindHqnh, KindHqfe:
		if rest != "" {
			f, err := strconv.ParseFloat(rest, 64)
			if err != nil {
				cmd.BadArg = true
				break
			}
			cmd.F = f
		}
	case KindEcho:
		switch {
		case rest == "":
		case strings.EqualFold(rest, "ON"):
			cmd.On = true
		case strings.EqualFold(rest, "OFF"):
			cmd.On = false
		default:
			cmd.BadArg = true
		}
	}
	return cmd
}

// parseInterval accepts `<n> <unit>`, `<n><unit>` or `<n>` (seconds).
// The count is bounded 0..255; units are s, min, h, d.
func parseInterval(cmd *Command, rest string) {
	if rest == "" {
		return
	}
	s := strings.ReplaceAll(rest, " ", "")
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		cmd.BadArg = true
		return
	}
	n, err := strconv.Atoi(s[:i])
	if err != nil || n > maxIntervals {
		cmd.BadArg = true
		return
	}
	unit := strings.ToLower(s[i:])
	if unit == "" {
		unit = "s"
	}
	if _, ok := intervalUnits[unit]; !ok {
		cmd.BadArg = true
		return
	}
	cmd.N = n
	cmd.Unit = unit
}

func parseIntArg(cmd *Command, rest string, lo, hi int) {
	if rest == "" {
		return
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < lo || n > hi {
		cmd.BadArg = true
		return
	}
	cmd.N = n
}
