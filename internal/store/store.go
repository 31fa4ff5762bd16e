// Package store handles persistent storage using SQLite: user settings
// plus short-lived caches for forecast fetches and vehicle lookups, so
// the dashboard does not hammer the upstream APIs on every render.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/greencharge/greencharge/internal/engine"
	"github.com/greencharge/greencharge/internal/vehicle"
)

// ErrCacheMiss is returned when no fresh cached entry exists.
var ErrCacheMiss = errors.New("cache miss")

// Settings is the single persisted settings row.
type Settings struct {
	ID              string  `json:"id"`
	Timezone        string  `json:"timezone"`
	DefaultMinHours float64 `json:"default_min_hours"`
	VehicleMake     string  `json:"vehicle_make"`
	VehicleModel    string  `json:"vehicle_model"`
}

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) the database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		id TEXT PRIMARY KEY,
		timezone TEXT DEFAULT 'Europe/London',
		default_min_hours REAL DEFAULT 4.0,
		vehicle_make TEXT DEFAULT '',
		vehicle_model TEXT DEFAULT '',
		updated_at INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS forecast_cache (
		from_ts TEXT PRIMARY KEY,
		intervals TEXT NOT NULL,
		dropped INTEGER DEFAULT 0,
		fetched_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS vehicle_cache (
		make TEXT NOT NULL,
		model TEXT NOT NULL,
		source TEXT NOT NULL,
		specs TEXT NOT NULL,
		fetched_at INTEGER NOT NULL,
		PRIMARY KEY (make, model)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveSettings saves or updates the settings row.
func (s *Store) SaveSettings(st *Settings) error {
	if st.ID == "" {
		st.ID = "default"
	}

	query := `INSERT OR REPLACE INTO settings
		(id, timezone, default_min_hours, vehicle_make, vehicle_model, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	_, err := s.db.Exec(query, st.ID, st.Timezone, st.DefaultMinHours,
		st.VehicleMake, st.VehicleModel, time.Now().Unix())
	return err
}

// GetSettings retrieves the settings row by ID.
func (s *Store) GetSettings(id string) (*Settings, error) {
	query := `SELECT id, timezone, default_min_hours, vehicle_make, vehicle_model
		FROM settings WHERE id = ?`

	var st Settings
	err := s.db.QueryRow(query, id).Scan(&st.ID, &st.Timezone, &st.DefaultMinHours,
		&st.VehicleMake, &st.VehicleModel)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// CacheForecast stores a fetched forecast under its request timestamp.
func (s *Store) CacheForecast(fromTS string, intervals []engine.ForecastInterval, dropped int) error {
	intervalsJSON, err := json.Marshal(intervals)
	if err != nil {
		return err
	}

	query := `INSERT OR REPLACE INTO forecast_cache (from_ts, intervals, dropped, fetched_at)
		VALUES (?, ?, ?, ?)`

	_, err = s.db.Exec(query, fromTS, string(intervalsJSON), dropped, time.Now().Unix())
	return err
}

// GetCachedForecast retrieves a cached forecast no older than maxAge.
func (s *Store) GetCachedForecast(fromTS string, maxAge time.Duration) ([]engine.ForecastInterval, int, error) {
	query := `SELECT intervals, dropped, fetched_at FROM forecast_cache WHERE from_ts = ?`

	var intervalsJSON string
	var dropped int
	var fetchedAt int64
	err := s.db.QueryRow(query, fromTS).Scan(&intervalsJSON, &dropped, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, ErrCacheMiss
	}
	if err != nil {
		return nil, 0, err
	}
	if time.Since(time.Unix(fetchedAt, 0)) > maxAge {
		return nil, 0, ErrCacheMiss
	}

	var intervals []engine.ForecastInterval
	if err := json.Unmarshal([]byte(intervalsJSON), &intervals); err != nil {
		return nil, 0, err
	}
	return intervals, dropped, nil
}

// CacheVehicle stores lookup results for a make and model.
func (s *Store) CacheVehicle(make, model string, specs []vehicle.Specs) error {
	specsJSON, err := json.Marshal(specs)
	if err != nil {
		return err
	}

	source := "api"
	if len(specs) > 0 && specs[0].Source != "" {
		source = specs[0].Source
	}

	query := `INSERT OR REPLACE INTO vehicle_cache (make, model, source, specs, fetched_at)
		VALUES (?, ?, ?, ?, ?)`

	_, err = s.db.Exec(query, cacheKey(make), cacheKey(model), source, string(specsJSON), time.Now().Unix())
	return err
}

// GetCachedVehicle retrieves cached specs for a make and model.
func (s *Store) GetCachedVehicle(make, model string) ([]vehicle.Specs, error) {
	query := `SELECT specs FROM vehicle_cache WHERE make = ? AND model = ?`

	var specsJSON string
	err := s.db.QueryRow(query, cacheKey(make), cacheKey(model)).Scan(&specsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}

	var specs []vehicle.Specs
	if err := json.Unmarshal([]byte(specsJSON), &specs); err != nil {
		return nil, err
	}
	return specs, nil
}

func cacheKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
