/*
ledger.go - Per-user reward award

PURPOSE:
  Credits a user for every attraction they came within the reward radius
  of, at most once per attraction name.

ALGORITHM:
  1. Snapshot the user's visited locations (a copy; later appends are
     ignored by this run)
  2. Fetch the attraction catalog once
  3. For each visited location, for each attraction:
       a. skip if the user already holds a reward with that attraction name
       b. skip if the visit is outside the reward radius
       c. ask the PointAuthority for points
       d. AddReward under the user's reward lock (re-checks the name)
  4. First qualifying visit in iteration order wins

INVARIANT:
  A user never holds two RewardRecords with the same attraction name.
  Step 3a is an early-out; step 3d is the check that holds under
  concurrency.

FAILURES:
  A PointAuthority error skips that one pair. It is logged, counted, and
  returned joined with any other pair failures after every pair was
  attempted. A catalog error aborts the run since no pair can be checked.

IDEMPOTENCE:
  Re-running with no new visits and an unchanged catalog appends nothing.

SEE ALSO:
  - user.go: HasReward / AddReward
  - proximity.go: IsWithinRewardRange
  - batch.go: Runs AwardRewards for many users
*/
package engine

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// =============================================================================
// REWARD LEDGER
// =============================================================================

// RewardLedger awards rewards to one user at a time. Safe for concurrent use.
type RewardLedger struct {
	provider  LocationProvider
	authority PointAuthority
	proximity *Proximity
	logger    *zap.Logger
	recorder  Recorder
}

// LedgerOption configures a RewardLedger.
type LedgerOption func(*RewardLedger)

// WithLogger sets the ledger logger.
func WithLogger(l *zap.Logger) LedgerOption {
	return func(rl *RewardLedger) {
		if l != nil {
			rl.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) LedgerOption {
	return func(rl *RewardLedger) {
		if r != nil {
			rl.recorder = r
		}
	}
}

// NewRewardLedger creates a ledger. A nil proximity uses the defaults.
func NewRewardLedger(provider LocationProvider, authority PointAuthority, proximity *Proximity, opts ...LedgerOption) *RewardLedger {
	if proximity == nil {
		proximity = NewProximity()
	}
	l := &RewardLedger{
		provider:  provider,
		authority: authority,
		proximity: proximity,
		logger:    zap.NewNop(),
		recorder:  nopRecorder{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Proximity returns the policy the ledger checks visits against.
func (l *RewardLedger) Proximity() *Proximity {
	return l.proximity
}

// AwardRewards appends every newly qualifying reward to u.
func (l *RewardLedger) AwardRewards(ctx context.Context, u *User) error {
	_, err := l.award(ctx, u)
	return err
}

// RewardPoints asks the authority what an attraction is worth to u,
// without recording anything.
func (l *RewardLedger) RewardPoints(ctx context.Context, a Attraction, u *User) (int, error) {
	points, err := l.authority.Points(ctx, a.ID, u.ID)
	if err != nil {
		return 0, &AuthorityError{UserID: u.ID, AttractionID: a.ID, AttractionName: a.Name, Err: err}
	}
	return points, nil
}

// award returns the number of records appended.
func (l *RewardLedger) award(ctx context.Context, u *User) (int, error) {
	ctx, span := tracer.Start(ctx, "RewardLedger.AwardRewards",
		trace.WithAttributes(attribute.String("user.id", u.ID.String())))
	defer span.End()

	visited := u.VisitedLocations()

	attractions, err := l.provider.Attractions(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch attractions")
		return 0, fmt.Errorf("fetch attractions: %w", err)
	}

	var (
		failures []error
		awarded  int
	)
	for _, v := range visited {
		for _, a := range attractions {
			if u.HasReward(a.Name) {
				continue
			}
			if !l.proximity.IsWithinRewardRange(a, v) {
				continue
			}

			points, err := l.authority.Points(ctx, a.ID, u.ID)
			if err != nil {
				failures = append(failures, &AuthorityError{
					UserID:         u.ID,
					AttractionID:   a.ID,
					AttractionName: a.Name,
					Err:            err,
				})
				l.recorder.AuthorityFailed()
				l.logger.Warn("reward point lookup failed",
					zap.String("user_id", u.ID.String()),
					zap.String("attraction", a.Name),
					zap.Error(err))
				continue
			}

			if u.AddReward(RewardRecord{VisitedLocation: v, Attraction: a, Points: points}) {
				awarded++
			}
		}
	}

	if awarded > 0 {
		l.recorder.RewardsAwarded(awarded)
		l.logger.Debug("rewards awarded",
			zap.String("user_id", u.ID.String()),
			zap.Int("count", awarded))
	}

	span.SetAttributes(
		attribute.Int("rewards.awarded", awarded),
		attribute.Int("rewards.failed", len(failures)),
	)

	err = errors.Join(failures...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reward point lookups failed")
	}
	return awarded, err
}
