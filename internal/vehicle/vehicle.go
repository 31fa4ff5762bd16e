// Package vehicle looks up electric vehicle specifications from the API
// Ninjas EV endpoint and derives the minimum charging duration from them.
// Spec fields arrive as free-text strings with embedded units ("50 kWh",
// "11 kW AC"); the parsers here strip units tolerantly.
package vehicle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const defaultAPIBase = "https://api.api-ninjas.com/v1/electricvehicle"

// ErrNotFound means the API answered but knows no vehicle for that make
// and model. Callers fall back to the LLM oracle in that case.
var ErrNotFound = errors.New("no vehicle found for that make and model")

// Specs holds one vehicle's charging-relevant fields, kept as the raw
// strings the API returns. Source is "api" or "llm".
type Specs struct {
	Make                  string `json:"make"`
	Model                 string `json:"model"`
	BatteryCapacity       string `json:"battery_capacity"`
	BatteryUsableCapacity string `json:"battery_useable_capacity"`
	ChargePower           string `json:"charge_power"`
	Source                string `json:"source,omitempty"`
}

// Client calls the API Ninjas electric vehicle endpoint.
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
}

// NewClient creates a vehicle lookup client. The API key is required by
// the service; an empty key fails at request time with a 4xx.
func NewClient(apiKey string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		apiKey:     apiKey,
		baseURL:    defaultAPIBase,
	}
}

// NewClientWithBase creates a client against a non-default endpoint,
// used by tests.
func NewClientWithBase(apiKey, baseURL string) *Client {
	c := NewClient(apiKey)
	c.baseURL = baseURL
	return c
}

// Lookup fetches specs for a make and model. An empty result list from
// the API maps to ErrNotFound.
func (c *Client) Lookup(ctx context.Context, make, model string) ([]Specs, error) {
	make = strings.TrimSpace(make)
	model = strings.TrimSpace(model)
	if make == "" || model == "" {
		return nil, errors.New("make and model are required")
	}

	params := url.Values{}
	params.Add("make", make)
	params.Add("model", model)

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching vehicle data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("vehicle API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var specs []Specs
	if err := json.NewDecoder(resp.Body).Decode(&specs); err != nil {
		return nil, fmt.Errorf("decoding vehicle response: %w", err)
	}
	if len(specs) == 0 {
		return nil, ErrNotFound
	}

	for i := range specs {
		specs[i].Source = "api"
	}
	return specs, nil
}

var (
	kwhPattern = regexp.MustCompile(`(?i)([\d.]+)\s*kWh?`)
	kwPattern  = regexp.MustCompile(`(?i)([\d.]+)\s*kW?`)
	nonNumeric = regexp.MustCompile(`[^\d.]`)
)

// ParseKWh extracts a kWh value from a free-text capacity string.
// Returns nil when no number can be recovered.
func ParseKWh(s string) *float64 {
	return parseUnit(s, kwhPattern)
}

// ParseKW extracts a kW value from a free-text power string.
func ParseKW(s string) *float64 {
	return parseUnit(s, kwPattern)
}

func parseUnit(s string, pattern *regexp.Regexp) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if m := pattern.FindStringSubmatch(s); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			return &v
		}
	}
	stripped := nonNumeric.ReplaceAllString(s, "")
	if stripped == "" {
		return nil
	}
	v, err := strconv.ParseFloat(stripped, 64)
	if err != nil {
		return nil
	}
	return &v
}

// ChargingHours estimates a full charge in hours from usable (preferred)
// or nominal battery capacity divided by charge power, rounded to two
// decimal places. Returns nil when either factor is unknown or the
// charge power is not positive.
func ChargingHours(s Specs) *float64 {
	battery := s.BatteryUsableCapacity
	if strings.TrimSpace(battery) == "" {
		battery = s.BatteryCapacity
	}

	kwh := ParseKWh(battery)
	kw := ParseKW(s.ChargePower)
	if kwh == nil || kw == nil || *kw <= 0 {
		return nil
	}

	hours := math.Round(*kwh / *kw * 100) / 100
	return &hours
}
