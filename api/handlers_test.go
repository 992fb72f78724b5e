/*
handlers_test.go - HTTP tests for the API surface

Tests drive the real router against an in-memory SQLite store, the
built-in attraction catalog, and the simulated point authority.
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/tourguide/catalog"
	"github.com/warp/tourguide/engine"
	"github.com/warp/tourguide/metrics"
	"github.com/warp/tourguide/rewards"
	"github.com/warp/tourguide/store/sqlite"
	"github.com/warp/tourguide/tourguide"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testEnv struct {
	router    http.Handler
	store     *sqlite.Store
	handler   *Handler
	collector *metrics.Collector
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	collector, err := metrics.NewCollector(prometheus.NewRegistry())
	require.NoError(t, err)

	pool := engine.NewPool(8)
	t.Cleanup(func() { pool.Shutdown(context.Background()) })

	provider := catalog.NewStaticProvider(catalog.DefaultAttractions()).WithSeed(1)
	ledger := engine.NewRewardLedger(provider, rewards.NewSimulatedAuthority(), nil, engine.WithRecorder(collector))
	orchestrator := engine.NewOrchestrator(ledger, pool, engine.WithRecorder(collector))
	svc := tourguide.New(store, provider, orchestrator, pool)

	scheduler := NewRewardScheduler(svc, store, nil)
	h := NewHandler(svc, scheduler, store, nil)

	return testEnv{
		router:    NewRouter(h, collector.Handler(), nil),
		store:     store,
		handler:   h,
		collector: collector,
	}
}

func (e testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (e testEnv) createUser(t *testing.T, name string) UserDTO {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/users", CreateUserRequest{Name: name, Email: name + "@tourGuide.com"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[UserDTO](t, rec)
}

func disneyland(t *testing.T) engine.Attraction {
	t.Helper()
	for _, a := range catalog.DefaultAttractions() {
		if a.Name == "Disneyland" {
			return a
		}
	}
	t.Fatal("Disneyland missing from catalog")
	return engine.Attraction{}
}

func ptr(v float64) *float64 { return &v }

func mustParseUUID(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	require.NoError(t, err)
	return id
}

// =============================================================================
// USER TESTS
// =============================================================================

func TestIndex(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Greetings from TourGuide!", decode[map[string]string](t, rec)["message"])
}

func TestCreateUser(t *testing.T) {
	env := newTestEnv(t)

	u := env.createUser(t, "jon")
	assert.Equal(t, "jon", u.Name)
	assert.NotEmpty(t, u.ID)

	rec := env.do(t, http.MethodPost, "/api/users", CreateUserRequest{Name: "jon"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "duplicate_user", decode[ErrorResponse](t, rec).Code)

	rec = env.do(t, http.MethodPost, "/api/users", CreateUserRequest{Name: ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/users", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]UserDTO](t, rec), 1)
}

func TestUnknownUserIsNotFound(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{
		"/api/users/ghost",
		"/api/users/ghost/location",
		"/api/users/ghost/nearby",
		"/api/users/ghost/rewards",
	} {
		rec := env.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

// =============================================================================
// LOCATION AND REWARD TESTS
// =============================================================================

func TestRecordLocationAwardsReward(t *testing.T) {
	// GIVEN: A user and the Disneyland coordinates
	env := newTestEnv(t)
	u := env.createUser(t, "jon")
	park := disneyland(t)

	// WHEN: The user reports a position at the park
	rec := env.do(t, http.MethodPost, "/api/users/jon/locations", RecordLocationRequest{
		Latitude:  ptr(park.Location.Latitude),
		Longitude: ptr(park.Location.Longitude),
		Timestamp: "2025-07-04T10:00:00Z",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	loc := decode[LocationDTO](t, rec)
	assert.Equal(t, "2025-07-04T10:00:00Z", loc.VisitedAt)

	// THEN: The rewards endpoint lists Disneyland with the authority's points
	rec = env.do(t, http.MethodGet, "/api/users/jon/rewards", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[UserRewardsDTO](t, rec)
	require.Len(t, got.Rewards, 1)
	assert.Equal(t, "Disneyland", got.Rewards[0].AttractionName)
	assert.Equal(t, rewards.PairPoints(park.ID, mustParseUUID(t, u.ID)), got.Rewards[0].Points)
	assert.Equal(t, got.Rewards[0].Points, got.TotalPoints)

	// AND: The reward is persisted
	n, err := env.store.CountRewards(context.Background(), mustParseUUID(t, u.ID))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// AND: The current location is the reported one
	rec = env.do(t, http.MethodGet, "/api/users/jon/location", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, park.Location.Latitude, decode[LocationDTO](t, rec).Latitude)
}

func TestRecordLocationValidation(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "jon")

	tests := []struct {
		name string
		body RecordLocationRequest
	}{
		{"missing longitude", RecordLocationRequest{Latitude: ptr(10)}},
		{"latitude out of range", RecordLocationRequest{Latitude: ptr(95), Longitude: ptr(0)}},
		{"longitude out of range", RecordLocationRequest{Latitude: ptr(0), Longitude: ptr(-181)}},
		{"bad timestamp", RecordLocationRequest{Latitude: ptr(0), Longitude: ptr(0), Timestamp: "yesterday"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/users/jon/locations", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestGetLocationTracksUnknownPosition(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "jon")

	rec := env.do(t, http.MethodGet, "/api/users/jon/location", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	loc := decode[LocationDTO](t, rec)
	assert.InDelta(t, 0, loc.Latitude, 85.06)
	assert.InDelta(t, 0, loc.Longitude, 180)

	rec = env.do(t, http.MethodGet, "/api/users/jon", nil)
	assert.Equal(t, 1, decode[UserDTO](t, rec).Visits)
}

func TestNearbyAttractions(t *testing.T) {
	// GIVEN: A user at Disneyland
	env := newTestEnv(t)
	env.createUser(t, "jon")
	park := disneyland(t)
	rec := env.do(t, http.MethodPost, "/api/users/jon/locations", RecordLocationRequest{
		Latitude: ptr(park.Location.Latitude), Longitude: ptr(park.Location.Longitude),
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// WHEN
	rec = env.do(t, http.MethodGet, "/api/users/jon/nearby", nil)

	// THEN: Five attractions, Disneyland first at distance 0, ascending
	require.Equal(t, http.StatusOK, rec.Code)
	nearby := decode[[]NearbyAttractionDTO](t, rec)
	require.Len(t, nearby, 5)
	assert.Equal(t, "Disneyland", nearby[0].AttractionName)
	assert.Equal(t, 0.0, nearby[0].DistanceMiles)
	for i := 1; i < len(nearby); i++ {
		assert.GreaterOrEqual(t, nearby[i].DistanceMiles, nearby[i-1].DistanceMiles)
		assert.Positive(t, nearby[i].RewardPoints)
	}

	rec = env.do(t, http.MethodGet, "/api/users/jon/nearby?limit=2", nil)
	assert.Len(t, decode[[]NearbyAttractionDTO](t, rec), 2)

	rec = env.do(t, http.MethodGet, "/api/users/jon/nearby?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListAttractions(t *testing.T) {
	env := newTestEnv(t)
	park := disneyland(t)

	rec := env.do(t, http.MethodGet, "/api/attractions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]AttractionDTO](t, rec), 26)

	// From Anaheim the San Diego Zoo is in display range; the Bronx is not.
	rec = env.do(t, http.MethodGet, "/api/attractions?lat=33.817595&lon=-117.922008", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	inRange := decode[[]AttractionDTO](t, rec)
	names := make([]string, len(inRange))
	for i, a := range inRange {
		names[i] = a.Name
	}
	assert.Contains(t, names, park.Name)
	assert.Contains(t, names, "San Diego Zoo")
	assert.NotContains(t, names, "Bronx Zoo")

	rec = env.do(t, http.MethodGet, "/api/attractions?lat=north&lon=1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// ADMIN TESTS
// =============================================================================

func TestTriggerRewardsAfterScenario(t *testing.T) {
	// GIVEN: Three users standing next to the first three attractions
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: ScenarioNearAttractions, Users: 3})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// WHEN: The batch is run manually
	rec = env.do(t, http.MethodPost, "/api/admin/rewards/run", nil)

	// THEN: Every user earned exactly their attraction
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[BatchResultDTO](t, rec)
	assert.Equal(t, sqlite.RunCompleted, result.Status)
	assert.Equal(t, 3, result.Users)
	assert.Equal(t, 3, result.NewRewards)

	rec = env.do(t, http.MethodGet, "/api/users/visitor0/rewards", nil)
	got := decode[UserRewardsDTO](t, rec)
	require.Len(t, got.Rewards, 1)
	assert.Equal(t, "Disneyland", got.Rewards[0].AttractionName)

	// AND: The run is recorded
	rec = env.do(t, http.MethodGet, "/api/admin/rewards/runs", nil)
	runs := decode[map[string][]RewardRunDTO](t, rec)["runs"]
	require.Len(t, runs, 1)
	assert.Equal(t, TriggerManual, runs[0].Trigger)
	assert.Equal(t, 3, runs[0].NewRewards)

	// AND: Running again grants nothing new
	rec = env.do(t, http.MethodPost, "/api/admin/rewards/run", nil)
	assert.Equal(t, 0, decode[BatchResultDTO](t, rec).NewRewards)
}

func TestProximityEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/admin/proximity", nil)
	assert.Equal(t, ProximityDTO{RewardRadiusMiles: 10, DisplayRadiusMiles: 200}, decode[ProximityDTO](t, rec))

	rec = env.do(t, http.MethodPut, "/api/admin/proximity", SetProximityRequest{RewardRadiusMiles: ptr(50)})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 50.0, decode[ProximityDTO](t, rec).RewardRadiusMiles)

	rec = env.do(t, http.MethodPut, "/api/admin/proximity", SetProximityRequest{RewardRadiusMiles: ptr(-1)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/admin/proximity/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ProximityDTO{RewardRadiusMiles: 10, DisplayRadiusMiles: 200}, decode[ProximityDTO](t, rec))
}

func TestTrackAll(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "a")
	env.createUser(t, "b")

	rec := env.do(t, http.MethodPost, "/api/admin/track", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2.0, decode[map[string]any](t, rec)["tracked"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "jon")
	park := disneyland(t)
	env.do(t, http.MethodPost, "/api/users/jon/locations", RecordLocationRequest{
		Latitude: ptr(park.Location.Latitude), Longitude: ptr(park.Location.Longitude),
	})

	rec := env.do(t, http.MethodGet, "/metrics", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tourguide_rewards_awarded_total 1")
}
