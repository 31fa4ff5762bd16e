package engine

import "time"

// ClassifyWindow computes the dominant intensity class for an arbitrary
// time window: the mode of the classes of all forecast intervals that
// overlap it (half-open intersection). Intervals with an unknown class
// contribute nothing. Count ties resolve to the more severe class, so an
// uncertain window reports the higher emissions bucket. A window that
// overlaps no classified interval is IndexModerate.
func ClassifyWindow(start, end time.Time, forecast []ForecastInterval) IntensityClass {
	if !end.After(start) {
		return IndexModerate
	}

	counts := map[IntensityClass]int{}
	for _, iv := range forecast {
		if !start.Before(iv.End) || !end.After(iv.Start) {
			continue
		}
		if iv.Index.severity() < 0 {
			continue
		}
		counts[iv.Index]++
	}

	best := IndexModerate
	bestCount := 0
	for _, class := range []IntensityClass{IndexLow, IndexModerate, IndexHigh} {
		n := counts[class]
		if n == 0 {
			continue
		}
		if n > bestCount || (n == bestCount && class.severity() > best.severity()) {
			best = class
			bestCount = n
		}
	}
	if bestCount == 0 {
		return IndexModerate
	}
	return best
}
