package mirror

import (
	"fmt"
	"time"
)

// TimestampLayout is the MLSD/MDTM/MFMT time format.
const TimestampLayout = "20060102150405"

// Timestamp is a UTC time at second resolution in YYYYMMDDHHMMSS form.
// Two valid timestamps compare chronologically under plain string comparison.
type Timestamp string

// FormatTimestamp converts t to UTC and drops sub-second precision.
func FormatTimestamp(t time.Time) Timestamp {
	return Timestamp(t.UTC().Format(TimestampLayout))
}

// ParseTimestamp parses a 14-digit UTC timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	if !Timestamp(s).Valid() {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
	}
	return time.ParseInLocation(TimestampLayout, s, time.UTC)
}

// Time converts ts back to a UTC time.
func (ts Timestamp) Time() (time.Time, error) {
	return ParseTimestamp(string(ts))
}

// Valid reports whether ts is exactly 14 ASCII digits.
func (ts Timestamp) Valid() bool {
	if len(ts) != len(TimestampLayout) {
		return false
	}
	for i := 0; i < len(ts); i++ {
		if ts[i] < '0' || ts[i] > '9' {
			return false
		}
	}
	return true
}
