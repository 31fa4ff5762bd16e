package oracle

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/greencharge/greencharge/internal/engine"
	"github.com/greencharge/greencharge/internal/timefmt"
	"github.com/greencharge/greencharge/internal/vehicle"
)

// Chat models wrap JSON in prose, markdown fences or labels despite
// instructions, so extraction scans for the first balanced object or
// array instead of unmarshalling the whole response.

// extractJSON returns the first balanced {...} or [...] run in text,
// depending on the open/close pair given, or "" when none exists.
func extractJSON(text string, open, close byte) string {
	start := strings.IndexByte(text, open)
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		switch {
		case escaped:
			escaped = false
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == open:
			depth++
		case ch == close:
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

var (
	makePattern  = regexp.MustCompile(`(?i)"make"\s*:\s*"([^"]*)"`)
	modelPattern = regexp.MustCompile(`(?i)"model"\s*:\s*"([^"]*)"`)
	slotPattern  = regexp.MustCompile(`"start"\s*:\s*"([^"]+)"\s*,\s*"end"\s*:\s*"([^"]+)"\s*,\s*"reason"\s*:\s*"([^"]*)"`)
)

// parseMakeModel pulls a make and model out of oracle response text,
// first as a JSON object, then by field regex. Empty strings mean the
// oracle could not determine the value.
func parseMakeModel(text string) (string, string) {
	if raw := extractJSON(text, '{', '}'); raw != "" {
		var obj struct {
			Make  string `json:"make"`
			Model string `json:"model"`
		}
		if err := json.Unmarshal([]byte(raw), &obj); err == nil {
			return strings.TrimSpace(obj.Make), strings.TrimSpace(obj.Model)
		}
	}

	var make, model string
	if m := makePattern.FindStringSubmatch(text); m != nil {
		make = strings.TrimSpace(m[1])
	}
	if m := modelPattern.FindStringSubmatch(text); m != nil {
		model = strings.TrimSpace(m[1])
	}
	return make, model
}

// parseSpecs extracts one vehicle spec object from oracle response text,
// tolerating the "usable" spelling of the usable-capacity key.
func parseSpecs(text string) *vehicle.Specs {
	raw := extractJSON(text, '{', '}')
	if raw == "" {
		return nil
	}

	var obj struct {
		Make                   string `json:"make"`
		Model                  string `json:"model"`
		BatteryCapacity        string `json:"battery_capacity"`
		BatteryUseableCapacity string `json:"battery_useable_capacity"`
		BatteryUsableCapacity  string `json:"battery_usable_capacity"`
		ChargePower            string `json:"charge_power"`
	}
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil
	}

	usable := obj.BatteryUseableCapacity
	if usable == "" {
		usable = obj.BatteryUsableCapacity
	}
	return &vehicle.Specs{
		Make:                  strings.TrimSpace(obj.Make),
		Model:                 strings.TrimSpace(obj.Model),
		BatteryCapacity:       strings.TrimSpace(obj.BatteryCapacity),
		BatteryUsableCapacity: strings.TrimSpace(usable),
		ChargePower:           strings.TrimSpace(obj.ChargePower),
	}
}

// parseSlots extracts candidate slots from oracle response text. Entries
// missing a parsable start or end are dropped individually; they never
// abort the remaining proposals. Falls back to a field regex when no
// balanced array parses.
func parseSlots(text string) []engine.CandidateSlot {
	var slots []engine.CandidateSlot

	if raw := extractJSON(text, '[', ']'); raw != "" {
		var entries []struct {
			Start  string `json:"start"`
			From   string `json:"from"`
			End    string `json:"end"`
			To     string `json:"to"`
			Reason string `json:"reason"`
		}
		if err := json.Unmarshal([]byte(raw), &entries); err == nil {
			for _, e := range entries {
				startStr := e.Start
				if startStr == "" {
					startStr = e.From
				}
				endStr := e.End
				if endStr == "" {
					endStr = e.To
				}
				if slot, ok := buildSlot(startStr, endStr, e.Reason); ok {
					slots = append(slots, slot)
				}
			}
		}
	}

	if len(slots) == 0 {
		for _, m := range slotPattern.FindAllStringSubmatch(text, -1) {
			if slot, ok := buildSlot(m[1], m[2], m[3]); ok {
				slots = append(slots, slot)
			}
		}
	}
	return slots
}

func buildSlot(startStr, endStr, reason string) (engine.CandidateSlot, bool) {
	start, errStart := timefmt.ParseUTC(startStr)
	end, errEnd := timefmt.ParseUTC(endStr)
	if errStart != nil || errEnd != nil {
		return engine.CandidateSlot{}, false
	}
	return engine.CandidateSlot{Start: start, End: end, Reason: strings.TrimSpace(reason)}, true
}
