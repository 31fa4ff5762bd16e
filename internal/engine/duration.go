package engine

import (
	"errors"
	"math"
)

// Bounds for the resolved charging duration, in hours.
const (
	DefaultMinimumHours = 4.0
	MinimumSlotHours    = 0.5
	MaximumSlotHours    = 24.0
)

// ErrDurationTooShort is returned when the resolved charging duration
// falls below MinimumSlotHours.
var ErrDurationTooShort = errors.New("charging duration below minimum of 0.5 hours")

// EffectiveHours merges the user-chosen minimum slot length with the
// vehicle-derived minimum charging time and returns the binding
// constraint: the larger of the two when both are known, otherwise
// whichever is present, otherwise DefaultMinimumHours. The result is
// capped at MaximumSlotHours; a result below MinimumSlotHours is an
// error rather than being rounded up.
func EffectiveHours(userHours, deviceHours *float64) (float64, error) {
	hours := DefaultMinimumHours
	switch {
	case userHours != nil && deviceHours != nil:
		hours = math.Max(*userHours, *deviceHours)
	case userHours != nil:
		hours = *userHours
	case deviceHours != nil:
		hours = *deviceHours
	}

	if hours > MaximumSlotHours {
		hours = MaximumSlotHours
	}
	if hours < MinimumSlotHours {
		return 0, ErrDurationTooShort
	}
	return hours, nil
}
