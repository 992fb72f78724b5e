/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupled from the
  engine types so the wire format can evolve on its own.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Users:      UserDTO, CreateUserRequest
  Locations:  LocationDTO, RecordLocationRequest
  Nearby:     NearbyAttractionDTO, AttractionDTO
  Rewards:    RewardDTO, UserRewardsDTO
  Batch:      BatchResultDTO, RewardRunDTO
  Proximity:  ProximityDTO, SetProximityRequest
  Scenarios:  ScenarioDTO, LoadScenarioRequest

DISTANCES:
  Distances are in statute miles, rounded to 2 decimals with
  shopspring/decimal.

VALIDATION:
  Validation is done in handlers and the service, not in DTOs.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/tourguide/engine"
	"github.com/warp/tourguide/store/sqlite"
	"github.com/warp/tourguide/tourguide"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// UserDTO represents a user in API responses.
type UserDTO struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Phone        string `json:"phone,omitempty"`
	Email        string `json:"email,omitempty"`
	Visits       int    `json:"visits"`
	Rewards      int    `json:"rewards"`
	RewardPoints int    `json:"reward_points"`
}

// CreateUserRequest is the request to create a user.
type CreateUserRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

// LocationDTO is one visited location.
type LocationDTO struct {
	UserID    string  `json:"user_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	VisitedAt string  `json:"visited_at"`
}

// RecordLocationRequest reports a user's position. Timestamp is RFC3339
// and optional.
type RecordLocationRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Timestamp string   `json:"timestamp,omitempty"`
}

// AttractionDTO represents a catalog attraction.
type AttractionDTO struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	City      string  `json:"city,omitempty"`
	State     string  `json:"state,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// NearbyAttractionDTO is one of the closest attractions to a user.
type NearbyAttractionDTO struct {
	AttractionName      string  `json:"attraction_name"`
	AttractionLatitude  float64 `json:"attraction_latitude"`
	AttractionLongitude float64 `json:"attraction_longitude"`
	UserLatitude        float64 `json:"user_latitude"`
	UserLongitude       float64 `json:"user_longitude"`
	DistanceMiles       float64 `json:"distance_miles"`
	RewardPoints        int     `json:"reward_points"`
}

// RewardDTO is one reward record.
type RewardDTO struct {
	AttractionID   string  `json:"attraction_id"`
	AttractionName string  `json:"attraction_name"`
	City           string  `json:"city,omitempty"`
	State          string  `json:"state,omitempty"`
	Points         int     `json:"points"`
	VisitLatitude  float64 `json:"visit_latitude"`
	VisitLongitude float64 `json:"visit_longitude"`
	VisitedAt      string  `json:"visited_at"`
}

// UserRewardsDTO lists a user's rewards.
type UserRewardsDTO struct {
	User        string      `json:"user"`
	TotalPoints int         `json:"total_points"`
	Rewards     []RewardDTO `json:"rewards"`
}

// BatchResultDTO summarizes one reward batch run.
type BatchResultDTO struct {
	RunID       string   `json:"run_id,omitempty"`
	Status      string   `json:"status"`
	Users       int      `json:"users"`
	Processed   int      `json:"processed"`
	Failed      int      `json:"failed"`
	Skipped     int      `json:"skipped"`
	NewRewards  int      `json:"new_rewards"`
	DurationMS  int64    `json:"duration_ms"`
	FailedUsers []string `json:"failed_users,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// RewardRunDTO is a stored batch run.
type RewardRunDTO struct {
	ID          string `json:"id"`
	Trigger     string `json:"trigger"`
	Status      string `json:"status"`
	Users       int    `json:"users"`
	Processed   int    `json:"processed"`
	Failed      int    `json:"failed"`
	Skipped     int    `json:"skipped"`
	NewRewards  int    `json:"new_rewards"`
	DurationMS  int64  `json:"duration_ms"`
	Error       string `json:"error,omitempty"`
	StartedAt   string `json:"started_at"`
	CompletedAt string `json:"completed_at,omitempty"`
}

// ProximityDTO reports the radii in miles.
type ProximityDTO struct {
	RewardRadiusMiles  float64 `json:"reward_radius_miles"`
	DisplayRadiusMiles float64 `json:"display_radius_miles"`
}

// SetProximityRequest changes the reward radius.
type SetProximityRequest struct {
	RewardRadiusMiles *float64 `json:"reward_radius_miles"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest loads a scenario. Users <= 0 uses the scenario default.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
	Users      int    `json:"users,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toUserDTO(u *engine.User) UserDTO {
	return UserDTO{
		ID:           u.ID.String(),
		Name:         u.Name,
		Phone:        u.Phone,
		Email:        u.Email,
		Visits:       len(u.VisitedLocations()),
		Rewards:      len(u.Rewards()),
		RewardPoints: u.TotalRewardPoints(),
	}
}

func toLocationDTO(v engine.VisitedLocation) LocationDTO {
	return LocationDTO{
		UserID:    v.UserID.String(),
		Latitude:  v.Location.Latitude,
		Longitude: v.Location.Longitude,
		VisitedAt: v.VisitedAt.UTC().Format(time.RFC3339),
	}
}

func toAttractionDTO(a engine.Attraction) AttractionDTO {
	return AttractionDTO{
		ID:        a.ID.String(),
		Name:      a.Name,
		City:      a.City,
		State:     a.State,
		Latitude:  a.Location.Latitude,
		Longitude: a.Location.Longitude,
	}
}

func toNearbyDTO(n tourguide.NearbyAttraction) NearbyAttractionDTO {
	return NearbyAttractionDTO{
		AttractionName:      n.Attraction.Name,
		AttractionLatitude:  n.Attraction.Location.Latitude,
		AttractionLongitude: n.Attraction.Location.Longitude,
		UserLatitude:        n.UserLocation.Latitude,
		UserLongitude:       n.UserLocation.Longitude,
		DistanceMiles:       roundMiles(n.Distance),
		RewardPoints:        n.RewardPoints,
	}
}

func toRewardDTO(r engine.RewardRecord) RewardDTO {
	return RewardDTO{
		AttractionID:   r.Attraction.ID.String(),
		AttractionName: r.Attraction.Name,
		City:           r.Attraction.City,
		State:          r.Attraction.State,
		Points:         r.Points,
		VisitLatitude:  r.VisitedLocation.Location.Latitude,
		VisitLongitude: r.VisitedLocation.Location.Longitude,
		VisitedAt:      r.VisitedLocation.VisitedAt.UTC().Format(time.RFC3339),
	}
}

func toBatchResultDTO(run sqlite.RewardRun, err error) BatchResultDTO {
	dto := BatchResultDTO{
		RunID:      run.ID,
		Status:     run.Status,
		Users:      run.Users,
		Processed:  run.Processed,
		Failed:     run.Failed,
		Skipped:    run.Skipped,
		NewRewards: run.NewRewards,
		DurationMS: run.Duration.Milliseconds(),
		Error:      run.Error,
	}
	var batchErr *engine.BatchError
	if errors.As(err, &batchErr) {
		for _, id := range batchErr.FailedUsers() {
			dto.FailedUsers = append(dto.FailedUsers, id.String())
		}
		sort.Strings(dto.FailedUsers)
	}
	return dto
}

func toRewardRunDTO(run sqlite.RewardRun) RewardRunDTO {
	dto := RewardRunDTO{
		ID:         run.ID,
		Trigger:    run.Trigger,
		Status:     run.Status,
		Users:      run.Users,
		Processed:  run.Processed,
		Failed:     run.Failed,
		Skipped:    run.Skipped,
		NewRewards: run.NewRewards,
		DurationMS: run.Duration.Milliseconds(),
		Error:      run.Error,
		StartedAt:  run.StartedAt.UTC().Format(time.RFC3339),
	}
	if run.CompletedAt != nil {
		dto.CompletedAt = run.CompletedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

func roundMiles(miles float64) float64 {
	return decimal.NewFromFloat(miles).Round(2).InexactFloat64()
}
