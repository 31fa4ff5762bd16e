package engine

import (
	"errors"
	"testing"
	"time"
)

// halfHourFeed builds n consecutive 30-minute intervals starting at base,
// with classes assigned round-robin from indexes.
func halfHourFeed(base time.Time, n int, indexes ...IntensityClass) []ForecastInterval {
	feed := make([]ForecastInterval, 0, n)
	for i := 0; i < n; i++ {
		iv := ForecastInterval{
			Start: base.Add(time.Duration(i) * 30 * time.Minute),
			End:   base.Add(time.Duration(i+1) * 30 * time.Minute),
		}
		if len(indexes) > 0 {
			iv.Index = indexes[i%len(indexes)]
		}
		feed = append(feed, iv)
	}
	return feed
}

func TestAcceptProposals(t *testing.T) {
	base := time.Date(2025, 2, 13, 0, 0, 0, 0, time.UTC)
	lowFeed := halfHourFeed(base, 6, IndexLow) // 00:00-03:00, all low

	tests := []struct {
		name           string
		proposals      []CandidateSlot
		forecast       []ForecastInterval
		effectiveHours float64
		wantCount      int
		wantIndex      IntensityClass
	}{
		{
			name: "two hour slot over low feed accepted as low",
			proposals: []CandidateSlot{
				{Start: base, End: base.Add(2 * time.Hour), Reason: "overnight low"},
			},
			forecast:       lowFeed,
			effectiveHours: 2.0,
			wantCount:      1,
			wantIndex:      IndexLow,
		},
		{
			name: "slot shorter than effective duration rejected",
			proposals: []CandidateSlot{
				{Start: base, End: base.Add(90 * time.Minute)},
			},
			forecast:       lowFeed,
			effectiveHours: 2.0,
			wantCount:      0,
		},
		{
			name: "overlapping proposals keep only the first",
			proposals: []CandidateSlot{
				{Start: base, End: base.Add(2 * time.Hour), Reason: "first"},
				{Start: base.Add(90 * time.Minute), End: base.Add(3 * time.Hour), Reason: "second"},
			},
			forecast:       halfHourFeed(base, 8, IndexLow),
			effectiveHours: 1.0,
			wantCount:      1,
			wantIndex:      IndexLow,
		},
		{
			name: "slot spanning feed gap rejected",
			proposals: []CandidateSlot{
				{Start: base, End: base.Add(2 * time.Hour)},
			},
			forecast: []ForecastInterval{
				{Start: base, End: base.Add(30 * time.Minute), Index: IndexLow},
				// 00:30-01:00 missing from the feed
				{Start: base.Add(time.Hour), End: base.Add(2 * time.Hour), Index: IndexLow},
			},
			effectiveHours: 1.0,
			wantCount:      0,
		},
		{
			name: "slot extending beyond the feed rejected",
			proposals: []CandidateSlot{
				{Start: base, End: base.Add(4 * time.Hour)},
			},
			forecast:       lowFeed, // ends at 03:00
			effectiveHours: 1.0,
			wantCount:      0,
		},
		{
			name: "end before start rejected",
			proposals: []CandidateSlot{
				{Start: base.Add(2 * time.Hour), End: base},
			},
			forecast:       lowFeed,
			effectiveHours: 1.0,
			wantCount:      0,
		},
		{
			name:           "no proposals yields empty list",
			proposals:      nil,
			forecast:       lowFeed,
			effectiveHours: 2.0,
			wantCount:      0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accepted := AcceptProposals(tt.proposals, tt.forecast, tt.effectiveHours)

			if accepted == nil {
				t.Fatal("accepted list must be non-nil even when empty")
			}
			if len(accepted) != tt.wantCount {
				t.Fatalf("got %d accepted slots, want %d", len(accepted), tt.wantCount)
			}
			if tt.wantCount > 0 && accepted[0].Index != tt.wantIndex {
				t.Errorf("accepted[0].Index = %q, want %q", accepted[0].Index, tt.wantIndex)
			}

			minDuration := time.Duration(tt.effectiveHours * float64(time.Hour))
			for i, s := range accepted {
				if s.Duration() < minDuration {
					t.Errorf("slot %d duration %v below effective %v", i, s.Duration(), minDuration)
				}
				for j := i + 1; j < len(accepted); j++ {
					if s.Overlaps(accepted[j]) {
						t.Errorf("accepted slots %d and %d overlap", i, j)
					}
				}
			}
		})
	}
}

func TestAcceptProposalsPreservesProposerOrder(t *testing.T) {
	base := time.Date(2025, 2, 13, 0, 0, 0, 0, time.UTC)
	feed := halfHourFeed(base, 16, IndexLow) // 00:00-08:00

	// Later window first: the oracle's ranking, not chronology, must win.
	proposals := []CandidateSlot{
		{Start: base.Add(4 * time.Hour), End: base.Add(6 * time.Hour), Reason: "ranked first"},
		{Start: base, End: base.Add(2 * time.Hour), Reason: "ranked second"},
	}

	accepted := AcceptProposals(proposals, feed, 2.0)
	if len(accepted) != 2 {
		t.Fatalf("got %d accepted slots, want 2", len(accepted))
	}
	if accepted[0].Reason != "ranked first" || accepted[1].Reason != "ranked second" {
		t.Errorf("proposer order not preserved: got %q then %q", accepted[0].Reason, accepted[1].Reason)
	}
}

func TestClassifyWindow(t *testing.T) {
	base := time.Date(2025, 2, 13, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		forecast []ForecastInterval
		start    time.Time
		end      time.Time
		want     IntensityClass
	}{
		{
			name:     "all low classifies low",
			forecast: halfHourFeed(base, 4, IndexLow),
			start:    base,
			end:      base.Add(2 * time.Hour),
			want:     IndexLow,
		},
		{
			name:     "majority moderate classifies moderate",
			forecast: halfHourFeed(base, 4, IndexModerate, IndexModerate, IndexModerate, IndexLow),
			start:    base,
			end:      base.Add(2 * time.Hour),
			want:     IndexModerate,
		},
		{
			name:     "two low two high ties to high",
			forecast: halfHourFeed(base, 4, IndexLow, IndexLow, IndexHigh, IndexHigh),
			start:    base,
			end:      base.Add(2 * time.Hour),
			want:     IndexHigh,
		},
		{
			name:     "low moderate tie picks moderate",
			forecast: halfHourFeed(base, 4, IndexLow, IndexModerate),
			start:    base,
			end:      base.Add(2 * time.Hour),
			want:     IndexModerate,
		},
		{
			name:     "empty feed defaults to moderate",
			forecast: nil,
			start:    base,
			end:      base.Add(2 * time.Hour),
			want:     IndexModerate,
		},
		{
			name:     "unknown classes contribute nothing",
			forecast: halfHourFeed(base, 4, IndexUnknown, IndexUnknown, IndexUnknown, IndexLow),
			start:    base,
			end:      base.Add(2 * time.Hour),
			want:     IndexLow,
		},
		{
			name:     "all unknown defaults to moderate",
			forecast: halfHourFeed(base, 4, IndexUnknown),
			start:    base,
			end:      base.Add(2 * time.Hour),
			want:     IndexModerate,
		},
		{
			name:     "intervals outside the window ignored",
			forecast: halfHourFeed(base, 8, IndexLow, IndexLow, IndexLow, IndexLow, IndexHigh, IndexHigh, IndexHigh, IndexHigh),
			start:    base,
			end:      base.Add(2 * time.Hour),
			want:     IndexLow,
		},
		{
			name:     "partial overlap counts the interval",
			forecast: halfHourFeed(base, 2, IndexHigh, IndexLow),
			start:    base.Add(15 * time.Minute),
			end:      base.Add(45 * time.Minute),
			want:     IndexHigh, // touches both, tie goes to high
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyWindow(tt.start, tt.end, tt.forecast)
			if got != tt.want {
				t.Errorf("ClassifyWindow() = %q, want %q", got, tt.want)
			}

			// Same inputs must classify identically.
			if again := ClassifyWindow(tt.start, tt.end, tt.forecast); again != got {
				t.Errorf("classification not deterministic: %q then %q", got, again)
			}
		})
	}
}

func TestEffectiveHours(t *testing.T) {
	tests := []struct {
		name    string
		user    *float64
		device  *float64
		want    float64
		wantErr error
	}{
		{name: "both present takes the larger", user: ptr(4.0), device: ptr(6.5), want: 6.5},
		{name: "user dominates device", user: ptr(8.0), device: ptr(3.0), want: 8.0},
		{name: "only user", user: ptr(2.0), want: 2.0},
		{name: "only device", device: ptr(5.25), want: 5.25},
		{name: "neither falls back to default", want: DefaultMinimumHours},
		{name: "excessive user clamps to 24", user: ptr(30.0), want: 24.0},
		{name: "too short fails", user: ptr(0.1), wantErr: ErrDurationTooShort},
		{name: "device rescues short user", user: ptr(0.1), device: ptr(3.0), want: 3.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EffectiveHours(tt.user, tt.device)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("EffectiveHours() = %v, want %v", got, tt.want)
			}
		})
	}
}

func ptr(f float64) *float64 {
	return &f
}
