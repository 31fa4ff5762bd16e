package engine

import "time"

// IntensityClass is the coarse carbon emissions bucket reported by the
// Carbon Intensity API for a forecast period.
type IntensityClass string

const (
	IndexUnknown  IntensityClass = ""
	IndexLow      IntensityClass = "low"
	IndexModerate IntensityClass = "moderate"
	IndexHigh     IntensityClass = "high"
)

// severity orders classes for tie-breaking: higher emissions win ties.
func (c IntensityClass) severity() int {
	switch c {
	case IndexLow:
		return 0
	case IndexModerate:
		return 1
	case IndexHigh:
		return 2
	default:
		return -1
	}
}

// ParseIntensityClass normalizes a feed index value. Anything outside
// low/moderate/high maps to IndexUnknown rather than a guessed class.
func ParseIntensityClass(s string) IntensityClass {
	switch IntensityClass(s) {
	case IndexLow, IndexModerate, IndexHigh:
		return IntensityClass(s)
	default:
		return IndexUnknown
	}
}

// ForecastInterval represents one fixed-width (typically 30-minute)
// carbon intensity forecast period. Forecast is gCO2/kWh and may be
// absent; Index may be unknown when the feed omits it.
type ForecastInterval struct {
	Start    time.Time      `json:"from"`
	End      time.Time      `json:"to"`
	Forecast *float64       `json:"forecast,omitempty"`
	Index    IntensityClass `json:"index,omitempty"`
}

// CandidateSlot is a proposed contiguous charging window. Start, End and
// Reason come from the recommendation oracle; Index is attached by the
// validator and never trusted from outside.
type CandidateSlot struct {
	Start  time.Time      `json:"start"`
	End    time.Time      `json:"end"`
	Reason string         `json:"reason,omitempty"`
	Index  IntensityClass `json:"intensity_index,omitempty"`
}

// Duration returns the slot length.
func (s CandidateSlot) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// Overlaps reports whether two slots intersect as half-open intervals.
func (s CandidateSlot) Overlaps(o CandidateSlot) bool {
	return s.Start.Before(o.End) && s.End.After(o.Start)
}
