/*
provider.go - Collaborator contracts consumed by the engine

KEY INTERFACES:
  LocationProvider: attraction catalog and current user location
  PointAuthority:   opaque, possibly slow, reward point oracle
  UserStore:        user identity, location history and reward persistence

IMPLEMENTATIONS:
  - catalog.StaticProvider, catalog.CachedProvider: LocationProvider
  - rewards.SimulatedAuthority: PointAuthority
  - engine/store.Memory, store/sqlite.Store: UserStore
*/
package engine

import (
	"context"

	"github.com/google/uuid"
)

// LocationProvider supplies the attraction catalog and user locations.
// Consumed read-only.
type LocationProvider interface {
	// Attractions returns the full catalog in provider order.
	Attractions(ctx context.Context) ([]Attraction, error)

	// UserLocation reports where the user is right now.
	UserLocation(ctx context.Context, userID uuid.UUID) (VisitedLocation, error)
}

// PointAuthority returns the reward points for one attraction and user.
type PointAuthority interface {
	Points(ctx context.Context, attractionID, userID uuid.UUID) (int, error)
}

// UserStore owns user lifecycle. Lookups must return the same *User for the
// same user so that per-user locking covers every caller.
type UserStore interface {
	// AddUser registers a new user. Returns ErrDuplicateUser if the name is taken.
	AddUser(ctx context.Context, u *User) error

	// GetUser looks up a user by name. Returns ErrUserNotFound.
	GetUser(ctx context.Context, name string) (*User, error)

	// ListUsers returns every registered user.
	ListUsers(ctx context.Context) ([]*User, error)

	// AppendVisitedLocation persists a visit already added to u.
	AppendVisitedLocation(ctx context.Context, u *User, v VisitedLocation) error

	// SaveRewards persists u's reward records. Records already stored are kept.
	SaveRewards(ctx context.Context, u *User) error
}
