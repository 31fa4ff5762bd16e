package engine

import "time"

// AcceptProposals filters and classifies candidate charging slots against
// the forecast they were proposed from. Proposals come from an untrusted
// recommendation oracle, so every guarantee is re-derived here:
//
//  1. a slot shorter than effectiveHours is rejected
//  2. a slot not fully covered by a contiguous run of forecast intervals
//     is rejected (spanning a gap in the feed disqualifies it)
//  3. proposals are walked in the order given and accepted greedily;
//     a slot overlapping an already-accepted slot is dropped
//  4. each accepted slot gets its dominant intensity class attached
//
// An empty result is the legitimate "no feasible slot" outcome, not an
// error. The proposer's ranking order is preserved; this step never
// re-sorts.
func AcceptProposals(proposals []CandidateSlot, forecast []ForecastInterval, effectiveHours float64) []CandidateSlot {
	minDuration := time.Duration(effectiveHours * float64(time.Hour))

	accepted := []CandidateSlot{}
	for _, p := range proposals {
		if p.Duration() < minDuration {
			continue
		}
		if !coveredContiguously(p.Start, p.End, forecast) {
			continue
		}
		if overlapsAny(p, accepted) {
			continue
		}
		p.Index = ClassifyWindow(p.Start, p.End, forecast)
		accepted = append(accepted, p)
	}
	return accepted
}

// coveredContiguously reports whether [start, end) is fully covered by a
// gap-free run of forecast intervals: the intervals overlapping the
// window must reach both endpoints and meet each other exactly. The
// forecast is assumed ascending by start, as the feed parser produces it.
func coveredContiguously(start, end time.Time, forecast []ForecastInterval) bool {
	if !end.After(start) {
		return false
	}

	var run []ForecastInterval
	for _, iv := range forecast {
		if start.Before(iv.End) && end.After(iv.Start) {
			run = append(run, iv)
		}
	}
	if len(run) == 0 {
		return false
	}
	if run[0].Start.After(start) || run[len(run)-1].End.Before(end) {
		return false
	}
	for i := 1; i < len(run); i++ {
		if !run[i].Start.Equal(run[i-1].End) {
			return false
		}
	}
	return true
}

func overlapsAny(slot CandidateSlot, accepted []CandidateSlot) bool {
	for _, a := range accepted {
		if slot.Overlaps(a) {
			return true
		}
	}
	return false
}
