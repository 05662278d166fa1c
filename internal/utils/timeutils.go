package utils

import (
	"fmt"
	"time"
)

// ParseRFC3339 returns a time from the provided string or an error.
func ParseRFC3339(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time: %w", err)
	}
	return t, nil
}

// HourWindow returns the hour-aligned window of the given length ending at end.
func HourWindow(end time.Time, hours int) (time.Time, time.Time) {
	end = end.UTC().Truncate(time.Hour)
	return end.Add(-time.Duration(hours) * time.Hour), end
}
