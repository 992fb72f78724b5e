/*
Package engine provides the reward and proximity core of TourGuide.

PURPOSE:
  Decides which attractions a tracked user has earned reward credit for,
  based on how close their recorded location history came to each
  attraction in the catalog. Runs per user or across a whole user
  population on a bounded worker pool.

KEY CONCEPTS IN THIS FILE (types.go):
  - Coordinate: latitude/longitude pair in degrees
  - Attraction: a named point of interest from the location provider
  - VisitedLocation: a timestamped coordinate recorded for a user
  - RewardRecord: proof that a user was credited points for an attraction

DESIGN PRINCIPLES:
  1. Value types: Coordinate, Attraction, VisitedLocation and RewardRecord
     are copied freely and never mutated after construction
  2. Type Safety: users and attractions are keyed by uuid.UUID
  3. Ownership: only the User (user.go) carries mutable state

USAGE:
  a := engine.Attraction{ID: id, Name: "Disneyland", Location: engine.Coordinate{Latitude: 33.817595, Longitude: -117.922008}}
  v := engine.VisitedLocation{UserID: u.ID, Location: a.Location, VisitedAt: time.Now()}

SEE ALSO:
  - distance.go: Great-circle distance between coordinates
  - proximity.go: Reward and display radius predicates
  - ledger.go: Per-user reward award
  - batch.go: Multi-user orchestration
*/
package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// COORDINATE
// =============================================================================

// Coordinate is a position in degrees. Range is whatever the provider hands us.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (c Coordinate) String() string {
	return fmt.Sprintf("(%.6f, %.6f)", c.Latitude, c.Longitude)
}

// Validate checks that c is a finite position on the globe. The engine
// itself accepts any provider value; Validate guards client input.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Latitude) || c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v out of range [-90, 90]", ErrInvalidLocation, c.Latitude)
	}
	if math.IsNaN(c.Longitude) || c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v out of range [-180, 180]", ErrInvalidLocation, c.Longitude)
	}
	return nil
}

// =============================================================================
// ATTRACTION
// =============================================================================

// Attraction is a point of interest. Reward deduplication keys on Name, not ID.
type Attraction struct {
	ID       uuid.UUID  `json:"id"`
	Name     string     `json:"name"`
	City     string     `json:"city"`
	State    string     `json:"state"`
	Location Coordinate `json:"location"`
}

// =============================================================================
// VISITED LOCATION
// =============================================================================

// VisitedLocation is one entry of a user's append-only location history.
type VisitedLocation struct {
	UserID    uuid.UUID  `json:"user_id"`
	Location  Coordinate `json:"location"`
	VisitedAt time.Time  `json:"visited_at"`
}

// =============================================================================
// REWARD RECORD
// =============================================================================

// RewardRecord links the visit that triggered an award to the attraction
// awarded. Records are never modified or deleted once created.
type RewardRecord struct {
	VisitedLocation VisitedLocation `json:"visited_location"`
	Attraction      Attraction      `json:"attraction"`
	Points          int             `json:"points"`
}
