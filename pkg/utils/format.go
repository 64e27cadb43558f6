package utils

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// DisplayDateLayout is the short date used in history listings.
const DisplayDateLayout = "Jan 02, 15:04"

// GenerateID returns a random request/correlation ID.
func GenerateID() string {
	return uuid.NewString()
}

// FormatDateTime formats t for history listings in local time.
func FormatDateTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(DisplayDateLayout)
}

// FormatRelative renders t as "3 minutes ago".
func FormatRelative(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return humanize.Time(t)
}

// FormatBytes renders a byte count as "1.2 MB".
func FormatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}

// UnixMillis converts t to milliseconds since the epoch.
func UnixMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// FromUnixMillis converts milliseconds since the epoch to a UTC time.
func FromUnixMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
