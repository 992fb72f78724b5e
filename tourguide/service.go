/*
service.go - TourGuide application service

PURPOSE:
  Composes the engine with its collaborators into the operations the HTTP
  surface, the scheduler and the MQTT ingester call: track a user, record
  an externally reported location, list nearby attractions, read rewards,
  and run the reward batch for everyone.

PERSISTENCE:
  The engine mutates *User values in memory. Every operation that changes
  a user writes the change through the UserStore:
    - new visits:  AppendVisitedLocation, before the in-memory append
    - new rewards: SaveRewards (idempotent, so re-saving is harmless)

AWARD FAILURES:
  Tracking a user also awards rewards. A failed point lookup does not fail
  the tracking call: the visit is recorded, the failure is logged, and the
  pair is retried on the next run.

SEE ALSO:
  - engine/ledger.go: Per-user award
  - engine/batch.go: AwardRewardsForAll
  - api/handlers.go: HTTP routes calling this service
*/
package tourguide

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/warp/tourguide/engine"
	"go.uber.org/zap"
)

// DefaultNearbyLimit is how many attractions NearbyAttractions returns.
const DefaultNearbyLimit = 5

// NearbyAttraction is one attraction ranked by distance from the user.
type NearbyAttraction struct {
	Attraction   engine.Attraction
	UserLocation engine.Coordinate
	Distance     float64
	RewardPoints int
}

// Service implements the TourGuide operations.
type Service struct {
	store        engine.UserStore
	provider     engine.LocationProvider
	orchestrator *engine.Orchestrator
	pool         *engine.Pool
	logger       *zap.Logger
	now          func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now for recorded visits.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a service. The pool is shared with the orchestrator.
func New(store engine.UserStore, provider engine.LocationProvider, orchestrator *engine.Orchestrator, pool *engine.Pool, opts ...Option) *Service {
	s := &Service{
		store:        store,
		provider:     provider,
		orchestrator: orchestrator,
		pool:         pool,
		logger:       zap.NewNop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Proximity returns the live proximity policy.
func (s *Service) Proximity() *engine.Proximity {
	return s.orchestrator.Ledger().Proximity()
}

// =============================================================================
// USERS
// =============================================================================

// AddUser registers a new user.
func (s *Service) AddUser(ctx context.Context, u *engine.User) error {
	if u == nil || strings.TrimSpace(u.Name) == "" {
		return fmt.Errorf("%w: name is required", engine.ErrInvalidUser)
	}
	if err := s.store.AddUser(ctx, u); err != nil {
		return err
	}
	s.logger.Info("user added", zap.String("user", u.Name), zap.String("user_id", u.ID.String()))
	return nil
}

// GetUser looks up a user by name.
func (s *Service) GetUser(ctx context.Context, name string) (*engine.User, error) {
	return s.store.GetUser(ctx, name)
}

// ListUsers returns every registered user.
func (s *Service) ListUsers(ctx context.Context) ([]*engine.User, error) {
	return s.store.ListUsers(ctx)
}

// GetRewards returns a copy of the user's reward records.
func (s *Service) GetRewards(u *engine.User) []engine.RewardRecord {
	return u.Rewards()
}

// =============================================================================
// LOCATIONS
// =============================================================================

// TrackUserLocation asks the provider where u is, records it, and awards
// any rewards the new visit earns.
func (s *Service) TrackUserLocation(ctx context.Context, u *engine.User) (engine.VisitedLocation, error) {
	v, err := s.provider.UserLocation(ctx, u.ID)
	if err != nil {
		return engine.VisitedLocation{}, fmt.Errorf("locate user %s: %w", u.Name, err)
	}
	v.UserID = u.ID
	if v.VisitedAt.IsZero() {
		v.VisitedAt = s.now()
	}
	if err := s.record(ctx, u, v); err != nil {
		return engine.VisitedLocation{}, err
	}
	return v, nil
}

// RecordLocation records a location reported from outside (HTTP, MQTT) and
// awards any rewards it earns. A zero at means now.
func (s *Service) RecordLocation(ctx context.Context, u *engine.User, c engine.Coordinate, at time.Time) (engine.VisitedLocation, error) {
	if err := c.Validate(); err != nil {
		return engine.VisitedLocation{}, err
	}
	if at.IsZero() {
		at = s.now()
	}
	v := engine.VisitedLocation{UserID: u.ID, Location: c, VisitedAt: at}
	if err := s.record(ctx, u, v); err != nil {
		return engine.VisitedLocation{}, err
	}
	return v, nil
}

func (s *Service) record(ctx context.Context, u *engine.User, v engine.VisitedLocation) error {
	if err := s.store.AppendVisitedLocation(ctx, u, v); err != nil {
		return fmt.Errorf("save visited location: %w", err)
	}
	u.AddVisitedLocation(v)

	if err := s.orchestrator.Ledger().AwardRewards(ctx, u); err != nil {
		if !engine.IsAuthorityError(err) {
			return fmt.Errorf("award rewards: %w", err)
		}
		s.logger.Warn("some rewards deferred to the next run",
			zap.String("user", u.Name),
			zap.Error(err))
	}

	if err := s.store.SaveRewards(ctx, u); err != nil {
		return fmt.Errorf("save rewards: %w", err)
	}
	return nil
}

// GetUserLocation returns u's latest visit, tracking the user first if no
// location is known yet.
func (s *Service) GetUserLocation(ctx context.Context, u *engine.User) (engine.VisitedLocation, error) {
	if v, ok := u.LastVisitedLocation(); ok {
		return v, nil
	}
	return s.TrackUserLocation(ctx, u)
}

// =============================================================================
// ATTRACTIONS
// =============================================================================

// NearbyAttractions returns the limit closest attractions to u's current
// location, each with its distance and the points it is worth to u.
// limit <= 0 uses DefaultNearbyLimit.
func (s *Service) NearbyAttractions(ctx context.Context, u *engine.User, limit int) ([]NearbyAttraction, error) {
	if limit <= 0 {
		limit = DefaultNearbyLimit
	}

	v, err := s.GetUserLocation(ctx, u)
	if err != nil {
		return nil, err
	}
	attractions, err := s.provider.Attractions(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch attractions: %w", err)
	}

	nearby := make([]NearbyAttraction, len(attractions))
	for i, a := range attractions {
		nearby[i] = NearbyAttraction{
			Attraction:   a,
			UserLocation: v.Location,
			Distance:     engine.Distance(a.Location, v.Location),
		}
	}
	sort.SliceStable(nearby, func(i, j int) bool {
		return nearby[i].Distance < nearby[j].Distance
	})
	if len(nearby) > limit {
		nearby = nearby[:limit]
	}

	ledger := s.orchestrator.Ledger()
	for i := range nearby {
		points, err := ledger.RewardPoints(ctx, nearby[i].Attraction, u)
		if err != nil {
			return nil, err
		}
		nearby[i].RewardPoints = points
	}
	return nearby, nil
}

// Attractions returns the full catalog.
func (s *Service) Attractions(ctx context.Context) ([]engine.Attraction, error) {
	attractions, err := s.provider.Attractions(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch attractions: %w", err)
	}
	return attractions, nil
}

// AttractionsInDisplayRange returns the attractions within the display
// radius of c, in catalog order.
func (s *Service) AttractionsInDisplayRange(ctx context.Context, c engine.Coordinate) ([]engine.Attraction, error) {
	attractions, err := s.provider.Attractions(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch attractions: %w", err)
	}

	proximity := s.Proximity()
	var inRange []engine.Attraction
	for _, a := range attractions {
		if proximity.IsWithinDisplayRange(a, c) {
			inRange = append(inRange, a)
		}
	}
	return inRange, nil
}

// =============================================================================
// BATCH OPERATIONS
// =============================================================================

// RewardAllUsers runs the reward batch for every registered user and
// persists the rewards of every user, including those of a partial run.
func (s *Service) RewardAllUsers(ctx context.Context) (engine.BatchResult, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return engine.BatchResult{}, fmt.Errorf("list users: %w", err)
	}

	result, batchErr := s.orchestrator.AwardRewardsForAll(ctx, users)

	// Persist even if the batch was cancelled so awarded rewards survive.
	saveCtx := context.WithoutCancel(ctx)
	var saveErrs []error
	for _, u := range users {
		if err := s.store.SaveRewards(saveCtx, u); err != nil {
			saveErrs = append(saveErrs, fmt.Errorf("save rewards for %s: %w", u.Name, err))
		}
	}

	return result, errors.Join(batchErr, errors.Join(saveErrs...))
}

// TrackAllUsers tracks every user once on the shared pool and returns how
// many were tracked. Users not started before ctx is done are not tracked.
func (s *Service) TrackAllUsers(ctx context.Context) (int, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}

	taskCtx := context.WithoutCancel(ctx)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		tracked int
		errs    []error
	)
	for _, u := range users {
		wg.Add(1)
		err := s.pool.Go(ctx, func() {
			defer wg.Done()
			_, err := s.TrackUserLocation(taskCtx, u)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			tracked++
		})
		if err != nil {
			wg.Done()
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
			break
		}
	}
	wg.Wait()

	s.logger.Info("tracked users",
		zap.Int("users", len(users)),
		zap.Int("tracked", tracked))
	return tracked, errors.Join(errs...)
}
