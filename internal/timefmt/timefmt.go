// Package timefmt converts UTC instants between the wire formats used by
// the Carbon Intensity feed, the display layer and calendar export.
// Display helpers fail softly: a string that cannot be parsed passes
// through unchanged so the UI never shows a fabricated time.
package timefmt

import (
	"errors"
	"strings"
	"time"
)

// Feed timestamps arrive at minute precision with a Z suffix
// ("2025-02-13T14:00Z"); oracle output sometimes carries seconds or a
// numeric offset instead.
var utcLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// FeedTime is the minute-precision UTC layout the Carbon Intensity API
// uses for both request paths and response fields.
const FeedTime = "2006-01-02T15:04Z"

var errUnparsable = errors.New("unparsable UTC instant")

// ParseUTC parses an ISO-8601 UTC instant, tolerating minute precision
// and a missing zone designator. The result is always in UTC.
func ParseUTC(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errUnparsable
	}
	for _, layout := range utcLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errUnparsable
}

// ToLocalDisplay renders a UTC instant as "HH:MM <abbrev>" in the given
// zone, e.g. "14:00 GMT" in winter and "15:00 BST" in summer for the UK.
// On parse failure the input is returned unchanged.
func ToLocalDisplay(utcStr string, loc *time.Location) string {
	t, err := ParseUTC(utcStr)
	if err != nil {
		return utcStr
	}
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("15:04 MST")
}

// ToLocalDisplayWithDate is ToLocalDisplay prefixed with a short date,
// e.g. "13 Feb 14:00 GMT".
func ToLocalDisplayWithDate(utcStr string, loc *time.Location) string {
	t, err := ParseUTC(utcStr)
	if err != nil {
		return utcStr
	}
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("02 Jan 15:04 MST")
}

// CalendarTimestamp renders a UTC instant in the compact calendar
// interchange form YYYYMMDDThhmmssZ. It returns "" on unparsable input
// so callers can treat "no export" as a data-absence case.
func CalendarTimestamp(utcStr string) string {
	t, err := ParseUTC(utcStr)
	if err != nil {
		return ""
	}
	return t.Format("20060102T150405Z")
}

// HalfHourFloor rounds an instant down to the current half hour, the
// granularity the Carbon Intensity API expects for range starts.
func HalfHourFloor(t time.Time) time.Time {
	t = t.UTC().Truncate(time.Minute)
	minute := 0
	if t.Minute() >= 30 {
		minute = 30
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), minute, 0, 0, time.UTC)
}
