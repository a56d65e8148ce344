package segment

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// UnorderedInputError reports a message whose ts cannot be parsed, so the
// channel's messages cannot be put in chronological order.
type UnorderedInputError struct {
	ChannelID string
	TS        string
	Position  int
}

func (e *UnorderedInputError) Error() string {
	return fmt.Sprintf("channel %s: malformed ts %q at position %d", e.ChannelID, e.TS, e.Position)
}

// ParseTS converts a chat timestamp ("1700000000.000100") to microseconds
// since the epoch. Fraction digits beyond microseconds are truncated.
func ParseTS(ts string) (int64, error) {
	whole, frac, hasFrac := strings.Cut(ts, ".")
	if !isDigits(whole) || (hasFrac && !isDigits(frac)) {
		return 0, fmt.Errorf("malformed ts %q", ts)
	}

	seconds, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || seconds > (1<<63-1)/1_000_000-1 {
		return 0, fmt.Errorf("ts %q out of range", ts)
	}

	var micros int64
	for i := 0; i < 6; i++ {
		micros *= 10
		if i < len(frac) {
			micros += int64(frac[i] - '0')
		}
	}
	return seconds*1_000_000 + micros, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// isoTime formats a microsecond timestamp as ISO 8601 in UTC
func isoTime(micros int64) string {
	return time.UnixMicro(micros).UTC().Format(time.RFC3339Nano)
}

// mustMicros parses a ts that has already been validated
func mustMicros(ts string) int64 {
	v, _ := ParseTS(ts)
	return v
}
