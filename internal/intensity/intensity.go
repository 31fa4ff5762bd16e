// Package intensity fetches and parses the UK Carbon Intensity 48-hour
// forecast feed. Parsing is deliberately forgiving per record and strict
// about the envelope: a payload without a data list is malformed, while
// a record with an unparsable timestamp is dropped and counted.
package intensity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/greencharge/greencharge/internal/engine"
	"github.com/greencharge/greencharge/internal/timefmt"
)

const defaultAPIBase = "https://api.carbonintensity.org.uk"

// ErrMalformedFeed means the top-level payload lacked a list of periods.
// Fatal to that fetch; not retried automatically.
var ErrMalformedFeed = errors.New("carbon intensity feed has no data list")

// Client fetches the Carbon Intensity API. Outbound calls go through a
// circuit breaker so a flapping upstream fails fast instead of stacking
// timeouts.
type Client struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	baseURL    string
}

// NewClient creates a Carbon Intensity client. The API needs no key.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		breaker: gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
			Name:     "carbon-intensity",
			Interval: 60 * time.Second,
			Timeout:  30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
		}),
		baseURL: defaultAPIBase,
	}
}

// NewClientWithBase creates a client against a non-default endpoint,
// used by tests.
func NewClientWithBase(baseURL string) *Client {
	c := NewClient()
	c.baseURL = baseURL
	return c
}

// Forecast48h fetches the 48-hour forecast starting at from (floored to
// the half hour) and returns the parsed intervals plus the number of
// records dropped for unparsable timestamps.
func (c *Client) Forecast48h(ctx context.Context, from time.Time) ([]engine.ForecastInterval, int, error) {
	fromTS := timefmt.HalfHourFloor(from).Format(timefmt.FeedTime)
	url := fmt.Sprintf("%s/intensity/%s/fw48h", c.baseURL, fromTS)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			return nil, fmt.Errorf("carbon intensity server error (status %d)", resp.StatusCode)
		}
		return resp, nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("fetching carbon intensity: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("carbon intensity API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("reading carbon intensity response: %w", err)
	}

	return ParseFeed(body)
}

type feedEnvelope struct {
	Data []feedPeriod `json:"data"`
}

type feedPeriod struct {
	From      string         `json:"from"`
	To        string         `json:"to"`
	Intensity *feedIntensity `json:"intensity"`
}

type feedIntensity struct {
	Forecast *float64 `json:"forecast"`
	Index    string   `json:"index"`
}

// ParseFeed parses the feed body into ordered forecast intervals.
// Records whose timestamps cannot be parsed (or whose end does not
// follow their start) are dropped and counted, not fatal. A missing
// intensity object or index leaves the class unknown - downstream
// classification treats unknown as absent data, never as a default.
func ParseFeed(body []byte) ([]engine.ForecastInterval, int, error) {
	var envelope feedEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrMalformedFeed, err)
	}
	if envelope.Data == nil {
		return nil, 0, ErrMalformedFeed
	}

	intervals := make([]engine.ForecastInterval, 0, len(envelope.Data))
	dropped := 0
	for _, p := range envelope.Data {
		start, errFrom := timefmt.ParseUTC(p.From)
		end, errTo := timefmt.ParseUTC(p.To)
		if errFrom != nil || errTo != nil || !end.After(start) {
			dropped++
			continue
		}

		iv := engine.ForecastInterval{Start: start, End: end}
		if p.Intensity != nil {
			iv.Forecast = p.Intensity.Forecast
			iv.Index = engine.ParseIntensityClass(p.Intensity.Index)
		}
		intervals = append(intervals, iv)
	}

	return intervals, dropped, nil
}
