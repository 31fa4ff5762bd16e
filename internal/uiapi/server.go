package uiapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/greencharge/greencharge/internal/config"
	"github.com/greencharge/greencharge/internal/engine"
	"github.com/greencharge/greencharge/internal/ics"
	"github.com/greencharge/greencharge/internal/store"
	"github.com/greencharge/greencharge/internal/timefmt"
	"github.com/greencharge/greencharge/internal/vehicle"
)

// forecastCacheAge bounds how stale a cached 48h forecast may be before
// the dashboard refetches it. The feed updates half-hourly.
const forecastCacheAge = 30 * time.Minute

// ForecastSource fetches the 48-hour carbon intensity forecast.
type ForecastSource interface {
	Forecast48h(ctx context.Context, from time.Time) ([]engine.ForecastInterval, int, error)
}

// VehicleSource looks up EV specs from the vehicle database API.
type VehicleSource interface {
	Lookup(ctx context.Context, make, model string) ([]vehicle.Specs, error)
}

// Oracle is the LLM collaborator surface the server needs. Its output is
// never trusted directly; slot proposals go through the engine validator.
type Oracle interface {
	ExtractMakeModel(ctx context.Context, userInput string) (string, string, error)
	FallbackSpecs(ctx context.Context, make, model string) (*vehicle.Specs, error)
	SuggestSlots(ctx context.Context, effectiveHours float64, forecast []engine.ForecastInterval) ([]engine.CandidateSlot, error)
}

// Server wires the recommendation pipeline behind the dashboard API.
type Server struct {
	store    *store.Store
	cfg      *config.Config
	forecast ForecastSource
	vehicles VehicleSource
	extract  Oracle // make/model extraction + spec fallback endpoint
	slots    Oracle // slot suggestion endpoint
	log      *zap.SugaredLogger
}

// NewServer creates the dashboard API server. extract and slots may be
// the same client when one endpoint serves both roles.
func NewServer(st *store.Store, cfg *config.Config, forecast ForecastSource, vehicles VehicleSource, extract, slots Oracle, log *zap.SugaredLogger) *Server {
	return &Server{
		store:    st,
		cfg:      cfg,
		forecast: forecast,
		vehicles: vehicles,
		extract:  extract,
		slots:    slots,
		log:      log,
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(150 * time.Second))

	// CORS for local development
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	// Serve static files
	r.Get("/", s.serveUI)
	r.Get("/static/*", s.serveStatic)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/intensity", s.handleGetIntensity)
		r.Post("/vehicle/lookup", s.handleVehicleLookup)
		r.Post("/vehicle/confirm", s.handleVehicleConfirm)
		r.Post("/recommendations", s.handleRecommendations)
		r.Get("/slots/calendar.ics", s.handleCalendarExport)
	})

	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"version":  "1.0.0",
		"timezone": s.cfg.Timezone,
	})
}

// intensityResponse carries the parsed feed plus how many records the
// parser had to drop, so the UI can note degraded data.
type intensityResponse struct {
	Intervals []engine.ForecastInterval `json:"intervals"`
	Dropped   int                       `json:"dropped"`
}

func (s *Server) handleGetIntensity(w http.ResponseWriter, r *http.Request) {
	intervals, dropped, err := s.fetchForecast(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, intensityResponse{Intervals: intervals, Dropped: dropped})
}

// fetchForecast returns the current 48h forecast, preferring the cache.
func (s *Server) fetchForecast(ctx context.Context) ([]engine.ForecastInterval, int, error) {
	from := timefmt.HalfHourFloor(time.Now())
	fromTS := from.Format(timefmt.FeedTime)

	if s.store != nil {
		if intervals, dropped, err := s.store.GetCachedForecast(fromTS, forecastCacheAge); err == nil {
			return intervals, dropped, nil
		}
	}

	intervals, dropped, err := s.forecast.Forecast48h(ctx, from)
	if err != nil {
		return nil, 0, err
	}
	if dropped > 0 {
		s.log.Warnw("forecast records dropped", "dropped", dropped, "from", fromTS)
	}

	if s.store != nil {
		if err := s.store.CacheForecast(fromTS, intervals, dropped); err != nil {
			s.log.Warnw("forecast cache write failed", "error", err)
		}
	}
	return intervals, dropped, nil
}

type vehicleLookupRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleVehicleLookup(w http.ResponseWriter, r *http.Request) {
	var req vehicleLookupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	make, model, err := s.extract.ExtractMakeModel(r.Context(), req.Text)
	if err != nil {
		respondError(w, http.StatusBadGateway, "could not interpret vehicle description: "+err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"make": make, "model": model})
}

type vehicleConfirmRequest struct {
	Make  string `json:"make"`
	Model string `json:"model"`
}

type vehicleConfirmResponse struct {
	Specs         []vehicle.Specs `json:"specs"`
	ChargingHours *float64        `json:"charging_hours,omitempty"`
	Source        string          `json:"source"`
}

func (s *Server) handleVehicleConfirm(w http.ResponseWriter, r *http.Request) {
	var req vehicleConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Make == "" || req.Model == "" {
		respondError(w, http.StatusBadRequest, "make and model are required")
		return
	}

	specs, err := s.lookupVehicle(r.Context(), req.Make, req.Model)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	if len(specs) == 0 {
		respondError(w, http.StatusNotFound, "no vehicle data available")
		return
	}

	resp := vehicleConfirmResponse{Specs: specs, Source: specs[0].Source}
	resp.ChargingHours = vehicle.ChargingHours(specs[0])
	respondJSON(w, http.StatusOK, resp)
}

// lookupVehicle resolves specs via cache, then the vehicle API, then the
// oracle fallback for vehicles the API does not know.
func (s *Server) lookupVehicle(ctx context.Context, make, model string) ([]vehicle.Specs, error) {
	if s.store != nil {
		if specs, err := s.store.GetCachedVehicle(make, model); err == nil && len(specs) > 0 {
			return specs, nil
		}
	}

	specs, err := s.vehicles.Lookup(ctx, make, model)
	if errors.Is(err, vehicle.ErrNotFound) {
		fallback, fbErr := s.extract.FallbackSpecs(ctx, make, model)
		if fbErr != nil {
			return nil, errors.New("no data from API and could not infer specs; try a different make/model")
		}
		specs = []vehicle.Specs{*fallback}
	} else if err != nil {
		return nil, err
	}

	if s.store != nil {
		if err := s.store.CacheVehicle(make, model, specs); err != nil {
			s.log.Warnw("vehicle cache write failed", "error", err)
		}
	}
	return specs, nil
}

type recommendationRequest struct {
	MinHours *float64 `json:"min_hours"`
	Make     string   `json:"make"`
	Model    string   `json:"model"`
}

// slotView is one accepted slot shaped for the dashboard: UTC instants
// for machine use, local display strings, and export links.
type slotView struct {
	Start          string `json:"start"`
	End            string `json:"end"`
	StartDisplay   string `json:"start_display"`
	EndDisplay     string `json:"end_display"`
	Reason         string `json:"reason"`
	IntensityIndex string `json:"intensity_index"`
	CalendarURL    string `json:"google_calendar_url,omitempty"`
}

type recommendationResponse struct {
	EffectiveHours float64    `json:"effective_hours"`
	Slots          []slotView `json:"slots"`
	Message        string     `json:"message,omitempty"`
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	var req recommendationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userHours := req.MinHours
	if userHours == nil {
		h := s.cfg.DefaultMinHours
		userHours = &h
	}

	var deviceHours *float64
	if req.Make != "" && req.Model != "" {
		if specs, err := s.lookupVehicle(r.Context(), req.Make, req.Model); err == nil && len(specs) > 0 {
			deviceHours = vehicle.ChargingHours(specs[0])
		}
	}

	effectiveHours, err := engine.EffectiveHours(userHours, deviceHours)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	forecast, _, err := s.fetchForecast(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}

	proposals, err := s.slots.SuggestSlots(r.Context(), effectiveHours, forecast)
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}

	accepted := engine.AcceptProposals(proposals, forecast, effectiveHours)
	s.log.Infow("recommendation computed",
		"effective_hours", effectiveHours,
		"proposed", len(proposals),
		"accepted", len(accepted))

	resp := recommendationResponse{
		EffectiveHours: effectiveHours,
		Slots:          make([]slotView, 0, len(accepted)),
	}
	if len(accepted) == 0 {
		resp.Message = "no recommendation available"
	}
	for _, slot := range accepted {
		resp.Slots = append(resp.Slots, s.viewSlot(slot))
	}

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) viewSlot(slot engine.CandidateSlot) slotView {
	startISO := slot.Start.Format(timefmt.FeedTime)
	endISO := slot.End.Format(timefmt.FeedTime)

	view := slotView{
		Start:          startISO,
		End:            endISO,
		StartDisplay:   timefmt.ToLocalDisplayWithDate(startISO, s.cfg.Location),
		EndDisplay:     timefmt.ToLocalDisplayWithDate(endISO, s.cfg.Location),
		Reason:         slot.Reason,
		IntensityIndex: string(slot.Index),
	}

	startCal := timefmt.CalendarTimestamp(startISO)
	endCal := timefmt.CalendarTimestamp(endISO)
	if startCal != "" && endCal != "" {
		view.CalendarURL = ics.GoogleCalendarURL(startCal, endCal,
			calendarTitle, calendarDescription, calendarLocation)
	}
	return view
}

const (
	calendarTitle       = "EV Charging (Low carbon window)"
	calendarDescription = "Best time to charge based on low carbon intensity"
	calendarLocation    = "Home"
)

func (s *Server) handleCalendarExport(w http.ResponseWriter, r *http.Request) {
	startCal := timefmt.CalendarTimestamp(r.URL.Query().Get("start"))
	endCal := timefmt.CalendarTimestamp(r.URL.Query().Get("end"))
	if startCal == "" || endCal == "" {
		respondError(w, http.StatusBadRequest, "start and end must be ISO8601 UTC instants")
		return
	}

	event := ics.NewEvent(startCal, endCal, calendarTitle, calendarDescription, calendarLocation)

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="charging-slot.ics"`)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(event.Encode()))
}

func (s *Server) serveUI(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, "web/index.html")
}

func (s *Server) serveStatic(w http.ResponseWriter, r *http.Request) {
	// Disable caching for development
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	http.StripPrefix("/static/", http.FileServer(http.Dir("web/static"))).ServeHTTP(w, r)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
