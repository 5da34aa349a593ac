package util

import (
	"fmt"
	"strconv"
	"time"
)

// ExpirationLayout is the compact wire form of an option expiration (YYYYMMDD).
const ExpirationLayout = "20060102"

// TimestampLayout renders instants as ISO-8601 UTC with second precision.
const TimestampLayout = "2006-01-02T15:04:05Z"

// ParseTime tries RFC3339, RFC3339Nano, and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0), true
	}
	return time.Time{}, false
}

// UnixNumber converts a numeric epoch to time. Values above 1e12 are treated as milliseconds.
func UnixNumber(v float64) (time.Time, bool) {
	if v <= 0 {
		return time.Time{}, false
	}
	if v > 1e12 {
		return time.UnixMilli(int64(v)).UTC(), true
	}
	sec := int64(v)
	nsec := int64((v - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC(), true
}

// FormatTimestamp renders t as ISO-8601 UTC; the zero time renders empty.
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimestampLayout)
}

// ParseExpiration validates a YYYYMMDD integer as a real calendar date.
func ParseExpiration(exp int) (time.Time, error) {
	if exp < 10000101 || exp > 99991231 {
		return time.Time{}, fmt.Errorf("expiration %d is not an 8-digit YYYYMMDD date", exp)
	}
	s := strconv.Itoa(exp)
	t, err := time.Parse(ExpirationLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("expiration %d is not a valid calendar date", exp)
	}
	return t, nil
}

// FormatExpiration renders a YYYYMMDD integer as YYYY-MM-DD.
// Values that are not valid dates are rendered as their raw digits.
func FormatExpiration(exp int) string {
	t, err := ParseExpiration(exp)
	if err != nil {
		return strconv.Itoa(exp)
	}
	return t.Format("2006-01-02")
}
