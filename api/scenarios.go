/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with users and
	location history, ready for a reward batch run.

AVAILABLE SCENARIOS:

	internal-users:    N generated users, each with 3 random visited locations
	near-attractions:  One user per catalog attraction, standing next to it

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Create users with their location history already attached
 3. Leave rewards to the next batch run (scheduled or POST /api/admin/rewards/run)

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "internal-users", "users": 1000}

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Admin endpoints to run the batch afterwards
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/warp/tourguide/engine"
	"go.uber.org/zap"
)

// Scenario IDs.
const (
	ScenarioInternalUsers   = "internal-users"
	ScenarioNearAttractions = "near-attractions"
)

// DefaultScenarioUsers is the user count when a load request gives none.
const DefaultScenarioUsers = 100

// Maximum |latitude| of generated positions.
const maxGeneratedLatitude = 85.05112878

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          ScenarioInternalUsers,
		Name:        "Internal Users",
		Description: "Generated users with three random visited locations each",
	},
	{
		ID:          ScenarioNearAttractions,
		Name:        "Near Attractions",
		Description: "One user standing next to each catalog attraction",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// ErrUnknownScenario is returned for a scenario ID that is not defined.
var ErrUnknownScenario = errors.New("unknown scenario")

// LoadScenario resets the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	created, err := h.Seed(r.Context(), req.ScenarioID, req.Users)
	if errors.Is(err, ErrUnknownScenario) {
		writeError(w, http.StatusBadRequest, "Unknown scenario", err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "loaded", "scenario": req.ScenarioID, "users": created})
}

// Seed resets the store and loads scenario id with n users. n <= 0 uses
// DefaultScenarioUsers. Returns how many users were created.
func (h *Handler) Seed(ctx context.Context, id string, n int) (int, error) {
	var loader func(ctx context.Context, n int) (int, error)
	switch id {
	case ScenarioInternalUsers:
		loader = h.loadInternalUsers
	case ScenarioNearAttractions:
		loader = h.loadNearAttractions
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownScenario, id)
	}

	if err := h.Store.Reset(ctx); err != nil {
		return 0, fmt.Errorf("reset database: %w", err)
	}

	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()

	if n <= 0 {
		n = DefaultScenarioUsers
	}
	created, err := loader(ctx, n)
	if err != nil {
		return created, err
	}

	h.mu.Lock()
	h.currentScenario = id
	h.mu.Unlock()

	h.logger.Info("scenario loaded", zap.String("scenario", id), zap.Int("users", created))
	return created, nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadInternalUsers(ctx context.Context, n int) (int, error) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	now := time.Now().UTC()

	for i := 0; i < n; i++ {
		name := fmt.Sprintf("internalUser%d", i)
		u := engine.NewUser(uuid.New(), name)
		u.Phone = "000"
		u.Email = name + "@tourGuide.com"

		for j := 0; j < 3; j++ {
			u.AddVisitedLocation(engine.VisitedLocation{
				UserID:    u.ID,
				Location:  randomCoordinate(rng),
				VisitedAt: now.Add(-time.Duration(rng.Intn(30*24)) * time.Hour),
			})
		}

		if err := h.Service.AddUser(ctx, u); err != nil {
			return i, err
		}
	}
	return n, nil
}

func (h *Handler) loadNearAttractions(ctx context.Context, n int) (int, error) {
	attractions, err := h.Service.Attractions(ctx)
	if err != nil {
		return 0, err
	}
	if n > len(attractions) {
		n = len(attractions)
	}

	now := time.Now().UTC()
	for i := 0; i < n; i++ {
		a := attractions[i]
		u := engine.NewUser(uuid.New(), fmt.Sprintf("visitor%d", i))
		u.AddVisitedLocation(engine.VisitedLocation{
			UserID: u.ID,
			Location: engine.Coordinate{
				Latitude:  a.Location.Latitude + 0.01,
				Longitude: a.Location.Longitude,
			},
			VisitedAt: now,
		})

		if err := h.Service.AddUser(ctx, u); err != nil {
			return i, err
		}
	}
	return n, nil
}

func randomCoordinate(rng *rand.Rand) engine.Coordinate {
	lat := -maxGeneratedLatitude + rng.Float64()*2*maxGeneratedLatitude
	lon := -180 + rng.Float64()*360
	return engine.Coordinate{
		Latitude:  math.Round(lat*1e6) / 1e6,
		Longitude: math.Round(lon*1e6) / 1e6,
	}
}
