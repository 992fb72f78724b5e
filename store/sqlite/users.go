package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/warp/tourguide/engine"
)

var _ engine.UserStore = (*Store)(nil)

// =============================================================================
// USERS
// =============================================================================

// AddUser inserts u and registers it in the identity map.
func (s *Store) AddUser(ctx context.Context, u *engine.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (id, name, phone, email, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, u.ID.String(), u.Name, nullString(u.Phone), nullString(u.Email), formatTime(time.Now()))
	if err != nil {
		if isUniqueConstraintError(err) {
			return engine.ErrDuplicateUser
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}

	// Persist anything the caller attached before registering.
	for _, v := range u.VisitedLocations() {
		if err := insertVisit(ctx, tx, u.ID, v); err != nil {
			return err
		}
	}
	if err := insertRewards(ctx, tx, u); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit user: %w", err)
	}

	s.users[u.Name] = u
	return nil
}

// GetUser returns the shared *User for name, loading it on first access.
func (s *Store) GetUser(ctx context.Context, name string) (*engine.User, error) {
	s.mu.RLock()
	u, ok := s.users[name]
	s.mu.RUnlock()
	if ok {
		return u, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hydrateLocked(ctx, name)
}

// ListUsers returns every user ordered by name.
func (s *Store) ListUsers(ctx context.Context) ([]*engine.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT name FROM users ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, err
		}
		names = append(names, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	users := make([]*engine.User, 0, len(names))
	for _, name := range names {
		u, err := s.hydrateLocked(ctx, name)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

// AppendVisitedLocation persists one visit.
func (s *Store) AppendVisitedLocation(ctx context.Context, u *engine.User, v engine.VisitedLocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertVisit(ctx, s.db, u.ID, v)
}

// SaveRewards writes u's reward records in one transaction. Records that
// already exist for the attraction name are left untouched.
func (s *Store) SaveRewards(ctx context.Context, u *engine.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := insertRewards(ctx, tx, u); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// CountRewards returns the number of stored reward rows for a user.
func (s *Store) CountRewards(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rewards WHERE user_id = ?`, userID.String()).Scan(&n)
	return n, err
}

// =============================================================================
// WRITES
// =============================================================================

func insertVisit(ctx context.Context, db execer, userID uuid.UUID, v engine.VisitedLocation) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO visited_locations (user_id, latitude, longitude, visited_at)
		VALUES (?, ?, ?, ?)
	`, userID.String(), formatCoord(v.Location.Latitude), formatCoord(v.Location.Longitude), formatTime(v.VisitedAt))
	if err != nil {
		if isForeignKeyError(err) {
			return engine.ErrUserNotFound
		}
		return fmt.Errorf("failed to append visited location: %w", err)
	}
	return nil
}

func insertRewards(ctx context.Context, db execer, u *engine.User) error {
	now := formatTime(time.Now())
	for _, r := range u.Rewards() {
		_, err := db.ExecContext(ctx, `
			INSERT OR IGNORE INTO rewards
			(user_id, attraction_id, attraction_name, attraction_city, attraction_state,
			 attraction_latitude, attraction_longitude, visit_latitude, visit_longitude,
			 visited_at, points, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			u.ID.String(),
			r.Attraction.ID.String(),
			r.Attraction.Name,
			nullString(r.Attraction.City),
			nullString(r.Attraction.State),
			formatCoord(r.Attraction.Location.Latitude),
			formatCoord(r.Attraction.Location.Longitude),
			formatCoord(r.VisitedLocation.Location.Latitude),
			formatCoord(r.VisitedLocation.Location.Longitude),
			formatTime(r.VisitedLocation.VisitedAt),
			r.Points,
			now,
		)
		if err != nil {
			if isForeignKeyError(err) {
				return engine.ErrUserNotFound
			}
			return fmt.Errorf("failed to save reward %q: %w", r.Attraction.Name, err)
		}
	}
	return nil
}

// =============================================================================
// HYDRATION
// =============================================================================

// hydrateLocked returns the cached user or loads it. Caller holds mu.
func (s *Store) hydrateLocked(ctx context.Context, name string) (*engine.User, error) {
	if u, ok := s.users[name]; ok {
		return u, nil
	}

	var (
		id           string
		phone, email sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, phone, email FROM users WHERE name = ?`, name,
	).Scan(&id, &phone, &email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	userID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("bad user id %q: %w", id, err)
	}
	u := engine.NewUser(userID, name)
	u.Phone = phone.String
	u.Email = email.String

	if err := s.loadVisits(ctx, u); err != nil {
		return nil, err
	}
	if err := s.loadRewards(ctx, u); err != nil {
		return nil, err
	}

	s.users[name] = u
	return u, nil
}

func (s *Store) loadVisits(ctx context.Context, u *engine.User) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT latitude, longitude, visited_at
		FROM visited_locations
		WHERE user_id = ?
		ORDER BY id
	`, u.ID.String())
	if err != nil {
		return fmt.Errorf("failed to load visited locations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var lat, lon, at string
		if err := rows.Scan(&lat, &lon, &at); err != nil {
			return err
		}
		loc, err := parseCoordinate(lat, lon)
		if err != nil {
			return err
		}
		u.AddVisitedLocation(engine.VisitedLocation{UserID: u.ID, Location: loc, VisitedAt: parseTime(at)})
	}
	return rows.Err()
}

func (s *Store) loadRewards(ctx context.Context, u *engine.User) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT attraction_id, attraction_name, attraction_city, attraction_state,
			attraction_latitude, attraction_longitude, visit_latitude, visit_longitude,
			visited_at, points
		FROM rewards
		WHERE user_id = ?
		ORDER BY id
	`, u.ID.String())
	if err != nil {
		return fmt.Errorf("failed to load rewards: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			attractionID, name           string
			city, state                  sql.NullString
			aLat, aLon, vLat, vLon, when string
			points                       int
		)
		if err := rows.Scan(&attractionID, &name, &city, &state, &aLat, &aLon, &vLat, &vLon, &when, &points); err != nil {
			return err
		}

		aID, err := uuid.Parse(attractionID)
		if err != nil {
			return fmt.Errorf("bad attraction id %q: %w", attractionID, err)
		}
		aLoc, err := parseCoordinate(aLat, aLon)
		if err != nil {
			return err
		}
		vLoc, err := parseCoordinate(vLat, vLon)
		if err != nil {
			return err
		}

		u.AddReward(engine.RewardRecord{
			VisitedLocation: engine.VisitedLocation{UserID: u.ID, Location: vLoc, VisitedAt: parseTime(when)},
			Attraction: engine.Attraction{
				ID:       aID,
				Name:     name,
				City:     city.String,
				State:    state.String,
				Location: aLoc,
			},
			Points: points,
		})
	}
	return rows.Err()
}

func parseCoordinate(lat, lon string) (engine.Coordinate, error) {
	la, err := parseCoord(lat)
	if err != nil {
		return engine.Coordinate{}, err
	}
	lo, err := parseCoord(lon)
	if err != nil {
		return engine.Coordinate{}, err
	}
	return engine.Coordinate{Latitude: la, Longitude: lo}, nil
}
