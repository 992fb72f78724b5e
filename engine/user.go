/*
user.go - Tracked user with guarded location history and rewards

PURPOSE:
  A User carries the two pieces of mutable state the engine touches:

    visited: append-only location history. Written by tracking logic,
             read by the engine through a copy (VisitedLocations).
    rewards: reward collection. Appended to by the engine only.

LOCKING:
  Each collection has its own lock, and both are scoped to this user.
  AddReward checks for an existing record with the same attraction name
  and appends under one critical section, so two concurrent award runs
  for the same user cannot both credit the same attraction.

  Callers must hold a *User. Copying a User copies its locks.

SEE ALSO:
  - ledger.go: Reads VisitedLocations, calls HasReward/AddReward
  - store/memory.go, store/sqlite: Own user lifecycle
*/
package engine

import (
	"sync"

	"github.com/google/uuid"
)

// User is a tracked traveller. Use NewUser; the zero value has no ID.
type User struct {
	ID    uuid.UUID
	Name  string
	Phone string
	Email string

	visitedMu sync.RWMutex
	visited   []VisitedLocation

	rewardsMu sync.Mutex
	rewards   []RewardRecord
}

func NewUser(id uuid.UUID, name string) *User {
	return &User{ID: id, Name: name}
}

// =============================================================================
// VISITED LOCATIONS
// =============================================================================

// AddVisitedLocation appends to the location history.
func (u *User) AddVisitedLocation(v VisitedLocation) {
	u.visitedMu.Lock()
	defer u.visitedMu.Unlock()
	u.visited = append(u.visited, v)
}

// VisitedLocations returns a copy of the location history. Appends made after
// the call are not visible in the returned slice.
func (u *User) VisitedLocations() []VisitedLocation {
	u.visitedMu.RLock()
	defer u.visitedMu.RUnlock()

	out := make([]VisitedLocation, len(u.visited))
	copy(out, u.visited)
	return out
}

// LastVisitedLocation returns the most recent entry, or false if none.
func (u *User) LastVisitedLocation() (VisitedLocation, bool) {
	u.visitedMu.RLock()
	defer u.visitedMu.RUnlock()

	if len(u.visited) == 0 {
		return VisitedLocation{}, false
	}
	return u.visited[len(u.visited)-1], true
}

// ClearVisitedLocations drops the in-memory history. Rewards are kept.
func (u *User) ClearVisitedLocations() {
	u.visitedMu.Lock()
	defer u.visitedMu.Unlock()
	u.visited = nil
}

// =============================================================================
// REWARDS
// =============================================================================

// Rewards returns a copy of the reward collection.
func (u *User) Rewards() []RewardRecord {
	u.rewardsMu.Lock()
	defer u.rewardsMu.Unlock()

	out := make([]RewardRecord, len(u.rewards))
	copy(out, u.rewards)
	return out
}

// HasReward reports whether an attraction with this name was already
// rewarded.
func (u *User) HasReward(attractionName string) bool {
	u.rewardsMu.Lock()
	defer u.rewardsMu.Unlock()
	return u.hasRewardLocked(attractionName)
}

// AddReward appends r unless a record for the same attraction name exists.
// Returns false when r was dropped as a duplicate.
func (u *User) AddReward(r RewardRecord) bool {
	u.rewardsMu.Lock()
	defer u.rewardsMu.Unlock()

	if u.hasRewardLocked(r.Attraction.Name) {
		return false
	}
	u.rewards = append(u.rewards, r)
	return true
}

// TotalRewardPoints sums the points of every reward record.
func (u *User) TotalRewardPoints() int {
	u.rewardsMu.Lock()
	defer u.rewardsMu.Unlock()

	total := 0
	for _, r := range u.rewards {
		total += r.Points
	}
	return total
}

func (u *User) hasRewardLocked(attractionName string) bool {
	for _, r := range u.rewards {
		if r.Attraction.Name == attractionName {
			return true
		}
	}
	return false
}
