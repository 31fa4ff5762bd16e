package ics

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventEncode(t *testing.T) {
	e := Event{
		UID:         "abc-123",
		Stamp:       "20250213T000000Z",
		Start:       "20250213T020000Z",
		End:         "20250213T073000Z",
		Summary:     "EV Charging (Low carbon window)",
		Description: "Best time to charge based on low carbon intensity",
		Location:    "Home",
	}

	out := e.Encode()

	assert.True(t, strings.HasPrefix(out, "BEGIN:VCALENDAR\r\n"))
	assert.True(t, strings.HasSuffix(out, "END:VCALENDAR\r\n"))
	assert.Contains(t, out, "DTSTART:20250213T020000Z\r\n")
	assert.Contains(t, out, "DTEND:20250213T073000Z\r\n")
	assert.Contains(t, out, "UID:abc-123\r\n")

	// Every line break must be CRLF; no bare LF allowed.
	assert.NotContains(t, strings.ReplaceAll(out, "\r\n", ""), "\n")
}

func TestEscapeText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "plain text", want: "plain text"},
		{in: "low, sustained", want: `low\, sustained`},
		{in: "a;b", want: `a\;b`},
		{in: `back\slash`, want: `back\\slash`},
		{in: "line1\nline2", want: `line1\nline2`},
		{in: `mix; of, all\`, want: `mix\; of\, all\\`},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, escapeText(tt.in), "input %q", tt.in)
	}
}

func TestNewEventFillsIdentity(t *testing.T) {
	a := NewEvent("20250213T020000Z", "20250213T073000Z", "t", "d", "l")
	b := NewEvent("20250213T020000Z", "20250213T073000Z", "t", "d", "l")

	assert.NotEmpty(t, a.UID)
	assert.NotEqual(t, a.UID, b.UID)
	assert.Len(t, a.Stamp, len("20060102T150405Z"))
}

func TestGoogleCalendarURL(t *testing.T) {
	u := GoogleCalendarURL("20250213T020000Z", "20250213T073000Z",
		"EV Charging (Low carbon window)", "details here", "Home")

	assert.Contains(t, u, "action=TEMPLATE")
	assert.Contains(t, u, "dates=20250213T020000Z/20250213T073000Z")
	assert.Contains(t, u, "text=EV+Charging+%28Low+carbon+window%29")
}
