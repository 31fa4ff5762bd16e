package uiapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/greencharge/greencharge/internal/config"
	"github.com/greencharge/greencharge/internal/engine"
	"github.com/greencharge/greencharge/internal/vehicle"
)

type fakeForecast struct {
	intervals []engine.ForecastInterval
	dropped   int
	err       error
}

func (f *fakeForecast) Forecast48h(ctx context.Context, from time.Time) ([]engine.ForecastInterval, int, error) {
	return f.intervals, f.dropped, f.err
}

type fakeVehicles struct {
	specs []vehicle.Specs
	err   error
}

func (f *fakeVehicles) Lookup(ctx context.Context, make, model string) ([]vehicle.Specs, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.specs, nil
}

type fakeOracle struct {
	make, model string
	specs       *vehicle.Specs
	slots       []engine.CandidateSlot
	err         error
}

func (f *fakeOracle) ExtractMakeModel(ctx context.Context, userInput string) (string, string, error) {
	return f.make, f.model, f.err
}

func (f *fakeOracle) FallbackSpecs(ctx context.Context, make, model string) (*vehicle.Specs, error) {
	if f.specs == nil {
		return nil, f.err
	}
	return f.specs, nil
}

func (f *fakeOracle) SuggestSlots(ctx context.Context, effectiveHours float64, forecast []engine.ForecastInterval) ([]engine.CandidateSlot, error) {
	return f.slots, f.err
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	loc, err := time.LoadLocation("Europe/London")
	require.NoError(t, err)
	return &config.Config{
		Timezone:        "Europe/London",
		DefaultMinHours: 4.0,
		Location:        loc,
	}
}

func testForecast(hours int) []engine.ForecastInterval {
	base := time.Date(2025, 2, 13, 0, 0, 0, 0, time.UTC)
	low := 45.0
	var out []engine.ForecastInterval
	for i := 0; i < hours*2; i++ {
		out = append(out, engine.ForecastInterval{
			Start:    base.Add(time.Duration(i) * 30 * time.Minute),
			End:      base.Add(time.Duration(i+1) * 30 * time.Minute),
			Forecast: &low,
			Index:    engine.IndexLow,
		})
	}
	return out
}

func newTestServer(t *testing.T, forecast ForecastSource, vehicles VehicleSource, oracle Oracle) *Server {
	t.Helper()
	return NewServer(nil, testConfig(t), forecast, vehicles, oracle, oracle, zap.NewNop().Sugar())
}

func TestStatus(t *testing.T) {
	srv := newTestServer(t, &fakeForecast{}, &fakeVehicles{}, &fakeOracle{})

	req := httptest.NewRequest("GET", "/api/status", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "Europe/London", body["timezone"])
}

func TestRecommendationsPipeline(t *testing.T) {
	forecast := testForecast(12)
	slots := []engine.CandidateSlot{
		{
			Start:  forecast[0].Start,
			End:    forecast[0].Start.Add(4 * time.Hour),
			Reason: "lowest carbon window overnight",
		},
		// too short, the validator must drop it
		{
			Start: forecast[10].Start,
			End:   forecast[10].Start.Add(time.Hour),
		},
	}
	srv := newTestServer(t, &fakeForecast{intervals: forecast}, &fakeVehicles{}, &fakeOracle{slots: slots})

	body := bytes.NewBufferString(`{"min_hours": 4}`)
	req := httptest.NewRequest("POST", "/api/recommendations", body)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp recommendationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 4.0, resp.EffectiveHours)
	require.Len(t, resp.Slots, 1)
	assert.Equal(t, "2025-02-13T00:00Z", resp.Slots[0].Start)
	assert.Equal(t, "low", resp.Slots[0].IntensityIndex)
	assert.Equal(t, "13 Feb 00:00 GMT", resp.Slots[0].StartDisplay)
	assert.Contains(t, resp.Slots[0].CalendarURL, "dates=20250213T000000Z/20250213T040000Z")
	assert.Empty(t, resp.Message)
}

func TestRecommendationsNoneAccepted(t *testing.T) {
	srv := newTestServer(t, &fakeForecast{intervals: testForecast(12)}, &fakeVehicles{}, &fakeOracle{slots: nil, err: nil})

	// the oracle proposed nothing usable
	req := httptest.NewRequest("POST", "/api/recommendations", bytes.NewBufferString(`{"min_hours": 4}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp recommendationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotNil(t, resp.Slots)
	assert.Empty(t, resp.Slots)
	assert.Equal(t, "no recommendation available", resp.Message)
}

func TestRecommendationsTooShort(t *testing.T) {
	srv := newTestServer(t, &fakeForecast{intervals: testForecast(12)}, &fakeVehicles{}, &fakeOracle{})

	req := httptest.NewRequest("POST", "/api/recommendations", bytes.NewBufferString(`{"min_hours": 0.1}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestVehicleConfirmFallback(t *testing.T) {
	fallback := &vehicle.Specs{
		Make:            "Rivian",
		Model:           "R1T",
		BatteryCapacity: "135 kWh",
		ChargePower:     "11 kW",
		Source:          "llm",
	}
	srv := newTestServer(t,
		&fakeForecast{},
		&fakeVehicles{err: vehicle.ErrNotFound},
		&fakeOracle{specs: fallback})

	req := httptest.NewRequest("POST", "/api/vehicle/confirm", bytes.NewBufferString(`{"make":"Rivian","model":"R1T"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp vehicleConfirmResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Specs, 1)
	assert.Equal(t, "llm", resp.Source)
	require.NotNil(t, resp.ChargingHours)
	assert.InDelta(t, 12.27, *resp.ChargingHours, 0.01)
}

func TestVehicleConfirmMissingFields(t *testing.T) {
	srv := newTestServer(t, &fakeForecast{}, &fakeVehicles{}, &fakeOracle{})

	req := httptest.NewRequest("POST", "/api/vehicle/confirm", bytes.NewBufferString(`{"make":"Tesla"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCalendarExport(t *testing.T) {
	srv := newTestServer(t, &fakeForecast{}, &fakeVehicles{}, &fakeOracle{})

	req := httptest.NewRequest("GET", "/api/slots/calendar.ics?start=2025-02-13T02:00Z&end=2025-02-13T07:30Z", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/calendar")

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "BEGIN:VCALENDAR\r\n"))
	assert.Contains(t, body, "DTSTART:20250213T020000Z")
	assert.Contains(t, body, "DTEND:20250213T073000Z")
}

func TestCalendarExportBadTimestamp(t *testing.T) {
	srv := newTestServer(t, &fakeForecast{}, &fakeVehicles{}, &fakeOracle{})

	req := httptest.NewRequest("GET", "/api/slots/calendar.ics?start=not-a-time&end=2025-02-13T07:30Z", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
