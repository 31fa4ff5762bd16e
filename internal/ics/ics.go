// Package ics builds minimal iCalendar blocks for exporting a charging
// slot to Apple/Outlook calendars, plus the equivalent Google Calendar
// render URL. Timestamps are the compact UTC form produced by
// timefmt.CalendarTimestamp (YYYYMMDDThhmmssZ).
package ics

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const prodID = "-//GreenCharge//Charging Slots//EN"

// Event is one exportable charging window. Start and End are calendar
// timestamps; free-text fields are escaped on encode.
type Event struct {
	UID         string
	Stamp       string
	Start       string
	End         string
	Summary     string
	Description string
	Location    string
}

// NewEvent creates an event with a fresh UID and a DTSTAMP of now.
func NewEvent(start, end, summary, description, location string) Event {
	return Event{
		UID:         uuid.NewString(),
		Stamp:       time.Now().UTC().Format("20060102T150405Z"),
		Start:       start,
		End:         end,
		Summary:     summary,
		Description: description,
		Location:    location,
	}
}

// Encode renders the full VCALENDAR block with CRLF line endings.
func (e Event) Encode() string {
	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:" + prodID,
		"BEGIN:VEVENT",
		"UID:" + e.UID,
		"DTSTAMP:" + e.Stamp,
		"DTSTART:" + e.Start,
		"DTEND:" + e.End,
		"SUMMARY:" + escapeText(e.Summary),
		"DESCRIPTION:" + escapeText(e.Description),
		"LOCATION:" + escapeText(e.Location),
		"END:VEVENT",
		"END:VCALENDAR",
	}
	return strings.Join(lines, "\r\n") + "\r\n"
}

// escapeText applies the iCalendar TEXT escaping rule: backslash first,
// then semicolon, comma and literal newlines.
func escapeText(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, ";", `\;`)
	s = strings.ReplaceAll(s, ",", `\,`)
	s = strings.ReplaceAll(s, "\r\n", `\n`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return s
}

// GoogleCalendarURL builds the prefilled event-creation link used by the
// dashboard's "Add to Google Calendar" button.
func GoogleCalendarURL(start, end, title, details, location string) string {
	return fmt.Sprintf(
		"https://calendar.google.com/calendar/render?action=TEMPLATE&text=%s&dates=%s/%s&details=%s&location=%s",
		url.QueryEscape(title), start, end, url.QueryEscape(details), url.QueryEscape(location),
	)
}
