/*
handlers.go - HTTP API handlers for TourGuide

PURPOSE:
  Exposes the tourguide service via a thin REST API. Handles HTTP
  request/response and JSON serialization, and delegates to the service.

ENDPOINTS:
  Root:
    GET    /                               Greeting

  Users:
    GET    /api/users                      List users
    POST   /api/users                      Create user
    GET    /api/users/{name}               Get user
    GET    /api/users/{name}/location      Current location (tracks if unknown)
    POST   /api/users/{name}/locations     Record a reported location
    POST   /api/users/{name}/track         Track via the location provider
    GET    /api/users/{name}/nearby        Closest attractions (?limit=5)
    GET    /api/users/{name}/rewards       Reward records

  Attractions:
    GET    /api/attractions                Catalog (?lat=&lon= for display range)

  Admin:
    POST   /api/admin/rewards/run          Run the reward batch now
    GET    /api/admin/rewards/runs         Run history (?limit=)
    POST   /api/admin/track                Track every user once
    GET    /api/admin/proximity            Current radii
    PUT    /api/admin/proximity            Set reward radius
    POST   /api/admin/proximity/reset      Restore default reward radius

  Scenarios:
    GET    /api/scenarios                  List demo scenarios
    GET    /api/scenarios/current          Loaded scenario
    POST   /api/scenarios/load             Load a demo scenario
    POST   /api/scenarios/reset            Clear all data

ERROR HANDLING:
  Errors are returned as JSON ErrorResponse with status:
  - 400: Invalid input (bad JSON, out-of-range coordinates, empty name)
  - 404: Unknown user
  - 409: Duplicate user name
  - 502: Reward point authority failed
  - 500: Everything else

SECURITY NOTE:
  No authentication. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/warp/tourguide/engine"
	"github.com/warp/tourguide/tourguide"
	"go.uber.org/zap"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Resetter clears persisted data.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service   *tourguide.Service
	Scheduler *RewardScheduler
	Store     Resetter

	logger *zap.Logger

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler. scheduler runs manual batches; store is
// used by scenario loading and reset.
func NewHandler(svc *tourguide.Service, scheduler *RewardScheduler, store Resetter, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Service:   svc,
		Scheduler: scheduler,
		Store:     store,
		logger:    logger,
	}
}

// Index greets the caller.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Greetings from TourGuide!"})
}

// =============================================================================
// USER HANDLERS
// =============================================================================

// ListUsers returns all users.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Service.ListUsers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list users", err)
		return
	}

	dtos := make([]UserDTO, len(users))
	for i, u := range users {
		dtos[i] = toUserDTO(u)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateUser registers a user.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	u := engine.NewUser(uuid.New(), req.Name)
	u.Phone = req.Phone
	u.Email = req.Email
	if err := h.Service.AddUser(r.Context(), u); err != nil {
		writeServiceError(w, "Failed to create user", err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserDTO(u))
}

// GetUser returns one user.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, ok := h.userFromPath(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(u))
}

// GetLocation returns the user's current location.
func (h *Handler) GetLocation(w http.ResponseWriter, r *http.Request) {
	u, ok := h.userFromPath(w, r)
	if !ok {
		return
	}
	v, err := h.Service.GetUserLocation(r.Context(), u)
	if err != nil {
		writeServiceError(w, "Failed to get location", err)
		return
	}
	writeJSON(w, http.StatusOK, toLocationDTO(v))
}

// RecordLocation appends a reported location and awards rewards.
func (h *Handler) RecordLocation(w http.ResponseWriter, r *http.Request) {
	u, ok := h.userFromPath(w, r)
	if !ok {
		return
	}

	var req RecordLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		writeError(w, http.StatusBadRequest, "latitude and longitude are required", nil)
		return
	}
	var at time.Time
	if req.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid timestamp", err)
			return
		}
		at = parsed
	}

	c := engine.Coordinate{Latitude: *req.Latitude, Longitude: *req.Longitude}
	v, err := h.Service.RecordLocation(r.Context(), u, c, at)
	if err != nil {
		writeServiceError(w, "Failed to record location", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLocationDTO(v))
}

// TrackLocation asks the location provider where the user is.
func (h *Handler) TrackLocation(w http.ResponseWriter, r *http.Request) {
	u, ok := h.userFromPath(w, r)
	if !ok {
		return
	}
	v, err := h.Service.TrackUserLocation(r.Context(), u)
	if err != nil {
		writeServiceError(w, "Failed to track user", err)
		return
	}
	writeJSON(w, http.StatusOK, toLocationDTO(v))
}

// GetNearbyAttractions returns the closest attractions to the user.
func (h *Handler) GetNearbyAttractions(w http.ResponseWriter, r *http.Request) {
	u, ok := h.userFromPath(w, r)
	if !ok {
		return
	}
	limit, err := intQuery(r, "limit", tourguide.DefaultNearbyLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit", err)
		return
	}

	nearby, err := h.Service.NearbyAttractions(r.Context(), u, limit)
	if err != nil {
		writeServiceError(w, "Failed to get nearby attractions", err)
		return
	}

	dtos := make([]NearbyAttractionDTO, len(nearby))
	for i, n := range nearby {
		dtos[i] = toNearbyDTO(n)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetRewards returns the user's reward records.
func (h *Handler) GetRewards(w http.ResponseWriter, r *http.Request) {
	u, ok := h.userFromPath(w, r)
	if !ok {
		return
	}

	rewards := h.Service.GetRewards(u)
	dto := UserRewardsDTO{
		User:        u.Name,
		TotalPoints: u.TotalRewardPoints(),
		Rewards:     make([]RewardDTO, len(rewards)),
	}
	for i, rec := range rewards {
		dto.Rewards[i] = toRewardDTO(rec)
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// ATTRACTION HANDLERS
// =============================================================================

// ListAttractions returns the catalog, or the attractions within display
// range of ?lat=&lon= when both are given.
func (h *Handler) ListAttractions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	var (
		attractions []engine.Attraction
		err         error
	)
	if q.Has("lat") || q.Has("lon") {
		lat, latErr := strconv.ParseFloat(q.Get("lat"), 64)
		lon, lonErr := strconv.ParseFloat(q.Get("lon"), 64)
		if latErr != nil || lonErr != nil {
			writeError(w, http.StatusBadRequest, "lat and lon must both be numbers", errors.Join(latErr, lonErr))
			return
		}
		c := engine.Coordinate{Latitude: lat, Longitude: lon}
		if err := c.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid coordinate", err)
			return
		}
		attractions, err = h.Service.AttractionsInDisplayRange(ctx, c)
	} else {
		attractions, err = h.Service.Attractions(ctx)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list attractions", err)
		return
	}

	dtos := make([]AttractionDTO, len(attractions))
	for i, a := range attractions {
		dtos[i] = toAttractionDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// TriggerRewards runs the reward batch for every user and waits for it.
// A partial run still returns 200 with the failures listed.
func (h *Handler) TriggerRewards(w http.ResponseWriter, r *http.Request) {
	run, err := h.Scheduler.RunNow(r.Context())
	dto := toBatchResultDTO(run, err)

	var batchErr *engine.BatchError
	if err != nil && !errors.As(err, &batchErr) {
		writeError(w, http.StatusInternalServerError, "Reward run failed", err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

// ListRewardRuns returns the reward run history.
func (h *Handler) ListRewardRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", 50)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit", err)
		return
	}
	if h.Scheduler == nil || h.Scheduler.Runs == nil {
		writeJSON(w, http.StatusOK, map[string]any{"runs": []RewardRunDTO{}})
		return
	}

	runs, err := h.Scheduler.Runs.ListRewardRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get reward runs", err)
		return
	}
	dtos := make([]RewardRunDTO, 0, len(runs))
	for _, run := range runs {
		dtos = append(dtos, toRewardRunDTO(run))
	}
	resp := map[string]any{"runs": dtos}
	if next := h.Scheduler.NextRunTime(); !next.IsZero() {
		resp["next_run_at"] = next.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

// TrackAll tracks every user once.
func (h *Handler) TrackAll(w http.ResponseWriter, r *http.Request) {
	tracked, err := h.Service.TrackAllUsers(r.Context())
	resp := map[string]any{"tracked": tracked}
	if err != nil {
		resp["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetProximity returns the current radii.
func (h *Handler) GetProximity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.proximityDTO())
}

// SetProximity changes the reward radius.
func (h *Handler) SetProximity(w http.ResponseWriter, r *http.Request) {
	var req SetProximityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.RewardRadiusMiles == nil || *req.RewardRadiusMiles < 0 {
		writeError(w, http.StatusBadRequest, "reward_radius_miles must be a non-negative number", nil)
		return
	}

	h.Service.Proximity().SetRewardRadius(*req.RewardRadiusMiles)
	h.logger.Info("reward radius changed", zap.Float64("miles", *req.RewardRadiusMiles))
	writeJSON(w, http.StatusOK, h.proximityDTO())
}

// ResetProximity restores the default reward radius.
func (h *Handler) ResetProximity(w http.ResponseWriter, r *http.Request) {
	h.Service.Proximity().ResetRewardRadius()
	writeJSON(w, http.StatusOK, h.proximityDTO())
}

func (h *Handler) proximityDTO() ProximityDTO {
	p := h.Service.Proximity()
	return ProximityDTO{
		RewardRadiusMiles:  p.RewardRadius(),
		DisplayRadiusMiles: p.DisplayRadius(),
	}
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}

	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) userFromPath(w http.ResponseWriter, r *http.Request) (*engine.User, bool) {
	name := chi.URLParam(r, "name")
	u, err := h.Service.GetUser(r.Context(), name)
	if err != nil {
		writeServiceError(w, "Failed to get user", err)
		return nil, false
	}
	return u, true
}

func intQuery(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New(key + " must be positive")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeServiceError maps engine errors to HTTP status codes.
func writeServiceError(w http.ResponseWriter, message string, err error) {
	status := http.StatusInternalServerError
	code := ""
	switch {
	case engine.IsNotFound(err):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, engine.ErrDuplicateUser):
		status, code = http.StatusConflict, "duplicate_user"
	case engine.IsClientError(err):
		status, code = http.StatusBadRequest, "invalid_input"
	case engine.IsAuthorityError(err):
		status, code = http.StatusBadGateway, "authority_unavailable"
	}

	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
