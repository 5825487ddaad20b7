package database

import (
	"fmt"
	"time"
)

// DateLayout is the calendar day format used for keyword rankings.
const DateLayout = "2006-01-02"

// GetToday returns today's UTC date as YYYY-MM-DD.
func GetToday() string {
	return time.Now().UTC().Format(DateLayout)
}

// DateOf returns the UTC calendar day of a unix timestamp.
func DateOf(unix int64) string {
	return time.Unix(unix, 0).UTC().Format(DateLayout)
}

// ParseDate validates a YYYY-MM-DD string and returns the start of that UTC day.
func ParseDate(date string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, date, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", date)
	}
	return d, nil
}

// DayBounds returns the [start, end) unix range covering a UTC day.
func DayBounds(date string) (start, end int64, err error) {
	d, err := ParseDate(date)
	if err != nil {
		return 0, 0, err
	}
	return d.Unix(), d.AddDate(0, 0, 1).Unix(), nil
}

// FormatDateDisplay formats a YYYY-MM-DD date for human-readable display.
func FormatDateDisplay(date string) string {
	d, err := ParseDate(date)
	if err != nil {
		return date
	}
	return d.Format("Jan 02, 2006")
}
