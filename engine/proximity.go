/*
proximity.go - Reward and display radius predicates

PURPOSE:
  Answers "is this location close enough?" for two distinct purposes:

    Reward radius:  a visit within this distance earns the attraction's
                    points. Tight (10 miles by default), adjustable at
                    runtime, resettable to the default.
    Display radius: an attraction within this distance is shown to the
                    user as nearby. Loose (200 miles) and fixed.

  The two thresholds are never interchangeable.

BOUNDARIES:
  Both comparisons are inclusive: a visit exactly on the radius counts.

CONCURRENCY:
  The reward radius is stored as atomic float bits and may change while a
  batch is running. Any single comparison sees either the old or the new
  value.

SEE ALSO:
  - distance.go: Distance calculation
  - ledger.go: Uses IsWithinRewardRange
*/
package engine

import (
	"math"
	"sync/atomic"
)

const (
	// DefaultRewardRadius is the compiled-in reward radius in statute miles.
	DefaultRewardRadius = 10.0

	// DefaultDisplayRadius is the fixed nearby-display radius in statute miles.
	DefaultDisplayRadius = 200.0
)

// Proximity holds the reward and display radii.
type Proximity struct {
	rewardRadius  atomic.Uint64
	displayRadius float64
}

// NewProximity returns a policy using the default radii.
func NewProximity() *Proximity {
	p := &Proximity{displayRadius: DefaultDisplayRadius}
	p.rewardRadius.Store(math.Float64bits(DefaultRewardRadius))
	return p
}

// SetRewardRadius changes the reward radius.
func (p *Proximity) SetRewardRadius(miles float64) {
	p.rewardRadius.Store(math.Float64bits(miles))
}

// ResetRewardRadius restores DefaultRewardRadius.
func (p *Proximity) ResetRewardRadius() {
	p.SetRewardRadius(DefaultRewardRadius)
}

// RewardRadius returns the current reward radius in miles.
func (p *Proximity) RewardRadius() float64 {
	return math.Float64frombits(p.rewardRadius.Load())
}

// DisplayRadius returns the fixed display radius in miles.
func (p *Proximity) DisplayRadius() float64 {
	return p.displayRadius
}

// IsWithinRewardRange reports whether the visit is within the reward radius
// of the attraction.
func (p *Proximity) IsWithinRewardRange(a Attraction, v VisitedLocation) bool {
	return Distance(a.Location, v.Location) <= p.RewardRadius()
}

// IsWithinDisplayRange reports whether c is within the display radius of
// the attraction.
func (p *Proximity) IsWithinDisplayRange(a Attraction, c Coordinate) bool {
	return Distance(a.Location, c) <= p.displayRadius
}
