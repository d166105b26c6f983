// Package utils provides utility functions for the application.
package utils

import (
	"time"
)

// UTCNow returns the current time in UTC
func UTCNow() time.Time {
	return time.Now().UTC()
}

// StartOfUTCDay returns midnight UTC of the day t falls on
func StartOfUTCDay(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}

// FromUnix converts provider epoch seconds to UTC
func FromUnix(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
