package replay

import (
	"fmt"
	"strings"
	"time"
)

// Layout of a lightning detector DATA record: 25 comma-separated tokens.
// Tokens 2 and 3 carry the system date (ddmmyy) and time (hhmmss); token 4
// is the flash count; four 5-token flash tuples follow, each opening with
// its own date,time pair.
const (
	recordTokens   = 25
	sysDateToken   = 2
	sysTimeToken   = 3
	firstFlashTok  = 5
	flashTupleSize = 5
	maxFlashes     = 4

	dateLayout = "020106"
	timeLayout = "150405"
)

// RestampRecord rewrites the system timestamp of a recorded lightning
// record to now and shifts every flash timestamp so that its offset from
// the system time is preserved. Malformed records are rejected without
// mutation.
func RestampRecord(line string, now time.Time) (string, error) {
	tokens := strings.Split(line, ",")
	if len(tokens) != recordTokens {
		return "", fmt.Errorf("lightning record has %d fields, want %d", len(tokens), recordTokens)
	}

	sysTime, err := parseStamp(tokens[sysDateToken], tokens[sysTimeToken], now.Location())
	if err != nil {
		return "", fmt.Errorf("system timestamp: %w", err)
	}

	tokens[sysDateToken] = now.Format(dateLayout)
	tokens[sysTimeToken] = now.Format(timeLayout)

	for i := 0; i < maxFlashes; i++ {
		di := firstFlashTok + i*flashTupleSize
		ti := di + 1

		// Unused tuple slots carry zero fillers; leave them alone.
		flashTime, err := parseStamp(tokens[di], tokens[ti], now.Location())
		if err != nil {
			continue
		}

		shifted := now.Add(flashTime.Sub(sysTime))
		tokens[di] = shifted.Format(dateLayout)
		tokens[ti] = shifted.Format(timeLayout)
	}

	return strings.Join(tokens, ","), nil
}

func parseStamp(date, clock string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(dateLayout+timeLayout, date+clock, loc)
}
