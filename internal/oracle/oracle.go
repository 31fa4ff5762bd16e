// Package oracle wraps the LLM chat-completion endpoints the dashboard
// relies on: extracting a vehicle make/model from free text, inferring
// approximate EV specs when the lookup API knows nothing, and proposing
// candidate charging slots from a 48-hour intensity forecast.
//
// Everything an oracle returns is untrusted. Responses are mined for
// JSON with bracket/brace matching plus a regex fallback, and slot
// proposals are always re-validated by the engine before use.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/greencharge/greencharge/internal/engine"
	"github.com/greencharge/greencharge/internal/timefmt"
	"github.com/greencharge/greencharge/internal/vehicle"
)

// Config selects the chat endpoint and model. BaseURL lets one client
// type serve both OpenAI and Ollama Cloud's OpenAI-compatible /v1.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client is a chat-completion client for one configured endpoint.
type Client struct {
	llm     *openai.Client
	model   string
	timeout time.Duration
}

// ErrEmptyResponse means the endpoint answered without any usable
// message content.
var ErrEmptyResponse = errors.New("empty response from chat endpoint")

// NewClient builds a client from the config. The API key is passed as a
// bearer token; a missing key surfaces as an auth error at call time.
func NewClient(cfg Config) *Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		// Slot suggestions send a large prompt and can take a while.
		timeout = 120 * time.Second
	}

	return &Client{
		llm:     openai.NewClientWithConfig(clientConfig),
		model:   cfg.Model,
		timeout: timeout,
	}
}

// chat sends a single-user-message completion and returns the text.
func (c *Client) chat(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.llm.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}

const makeModelPrompt = `You are a car expert. The user described an electric vehicle. Extract only the manufacturer (make) and model name.

User input: "%s"

Respond with exactly a JSON object, nothing else, in this format:
{"make": "ManufacturerName", "model": "ModelName"}

Use proper capitalization (e.g. Tesla, Model 3). If you cannot determine make or model, use empty string for that field. Output only the JSON object.`

// ExtractMakeModel asks the oracle to pull a make and model out of a
// free-text vehicle description. Either may come back empty when the
// oracle cannot determine it.
func (c *Client) ExtractMakeModel(ctx context.Context, userInput string) (string, string, error) {
	text, err := c.chat(ctx, fmt.Sprintf(makeModelPrompt, userInput))
	if err != nil {
		return "", "", err
	}
	make, model := parseMakeModel(text)
	return make, model, nil
}

const specsPrompt = `You are an expert on electric vehicles. Given make and model, provide approximate specs in JSON only.

Make: %s
Model: %s

Return exactly one JSON object with these keys (use empty string if unknown):
{"make": "MakeName", "model": "ModelName", "battery_capacity": "XX kWh", "charge_power": "XX kW AC"}
Output only the JSON object.`

// FallbackSpecs asks the oracle for approximate EV specs when the lookup
// API has no record. The result is tagged source "llm" so the UI can
// show a provenance disclaimer.
func (c *Client) FallbackSpecs(ctx context.Context, make, model string) (*vehicle.Specs, error) {
	make = strings.TrimSpace(make)
	model = strings.TrimSpace(model)
	if make == "" || model == "" {
		return nil, errors.New("make and model are required")
	}

	text, err := c.chat(ctx, fmt.Sprintf(specsPrompt, make, model))
	if err != nil {
		return nil, err
	}

	specs := parseSpecs(text)
	if specs == nil {
		return nil, errors.New("could not parse EV specs from the response")
	}
	if specs.Make == "" {
		specs.Make = make
	}
	if specs.Model == "" {
		specs.Model = model
	}
	specs.Source = "llm"
	return specs, nil
}

const slotsPrompt = `You are an expert in UK carbon intensity forecasting and EV smart charging optimization.

TASK:
The user must charge their electric vehicle for %.2f continuous hours.
You are given a 48-hour carbon intensity forecast where each row represents a 30-minute period.

Each row contains:
- start time (UTC)
- end time (UTC)
- forecast intensity (gCO2/kWh)
- intensity index (low/moderate/high)

DATA:
%s

GOAL:
Suggest 3 to 5 feasible charging time slots within the next 48 hours.

CONSTRAINTS:
1. Each slot must be at least %.2f continuous hours long.
2. Slots must consist only of contiguous 30-minute periods from the dataset.
3. Prefer lowest carbon intensity periods first.
4. Avoid high intensity periods if low or moderate alternatives exist.
5. If multiple similar options exist, prefer:
   - lowest average carbon intensity
   - longer continuous low-intensity windows
   - earlier time slots (tie-breaker)
6. Never suggest overlapping slots.
7. Use ONLY data provided - do not invent forecast values.

EDGE CASES:
- If fewer than 3 valid low-intensity slots exist, include moderate ones.
- If still insufficient, include best available options ranked by lowest average intensity.
- If no valid slot meets the duration, return an empty JSON array [].

OUTPUT FORMAT (STRICT):
Return ONLY a JSON array. No explanation, no markdown, no extra text.

Each object must contain:
- "start": ISO8601 UTC start time
- "end": ISO8601 UTC end time
- "reason": short explanation (12 words or fewer)

Example:
[
  {"start": "2025-02-13T02:00Z", "end": "2025-02-13T07:30Z", "reason": "Sustained low overnight intensity"},
  {"start": "2025-02-13T23:00Z", "end": "2025-02-14T04:00Z", "reason": "Lowest average carbon window"}
]

Return only the JSON array.`

// maxPromptPeriods caps the forecast rows sent to the oracle at the
// feed's 48-hour size.
const maxPromptPeriods = 96

// SuggestSlots asks the oracle to propose candidate charging windows of
// at least effectiveHours from the forecast. Structurally unusable
// entries in the response are dropped; the caller must still run the
// result through engine.AcceptProposals.
func (c *Client) SuggestSlots(ctx context.Context, effectiveHours float64, forecast []engine.ForecastInterval) ([]engine.CandidateSlot, error) {
	if len(forecast) == 0 {
		return nil, errors.New("no intensity data to analyze")
	}

	prompt := fmt.Sprintf(slotsPrompt, effectiveHours, forecastSummary(forecast), effectiveHours)
	text, err := c.chat(ctx, prompt)
	if err != nil {
		return nil, err
	}

	slots := parseSlots(text)
	if len(slots) == 0 {
		return nil, errors.New("could not parse suggested slots from the response")
	}
	return slots, nil
}

// forecastSummary renders the forecast as one line per period, the shape
// the slot prompt documents.
func forecastSummary(forecast []engine.ForecastInterval) string {
	if len(forecast) > maxPromptPeriods {
		forecast = forecast[:maxPromptPeriods]
	}

	var b strings.Builder
	for _, iv := range forecast {
		value := ""
		if iv.Forecast != nil {
			value = fmt.Sprintf("%g", *iv.Forecast)
		}
		fmt.Fprintf(&b, "  %s to %s  forecast=%s  index=%s\n",
			iv.Start.Format(timefmt.FeedTime), iv.End.Format(timefmt.FeedTime), value, iv.Index)
	}
	return strings.TrimRight(b.String(), "\n")
}
