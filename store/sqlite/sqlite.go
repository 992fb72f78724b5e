/*
Package sqlite provides a SQLite-backed engine.UserStore.

PURPOSE:
  Persists users, their location history, their reward records, and the
  history of reward batch runs. The engine works on in-memory *User
  values; this store hydrates them once and keeps them in an identity
  map so every caller shares the same *User (and its locks).

DRIVERS:
  "sqlite3": github.com/mattn/go-sqlite3 (cgo, default)
  "sqlite":  modernc.org/sqlite (pure Go, for CGO_ENABLED=0 builds)

KEY TABLES:
  users:             Identity (id, unique name, contact fields)
  visited_locations: Append-only location history
  rewards:           Reward records, never updated or deleted
  reward_runs:       One row per batch run (scheduler or manual)

INDEXES:
  - idx_unique_reward_attraction: (user_id, attraction_name) UNIQUE.
    Backs the one-reward-per-attraction-name rule at the database level;
    SaveRewards uses INSERT OR IGNORE against it.
  - idx_visited_locations_user: history in insertion order

COORDINATES:
  Stored as decimal text (shopspring/decimal) so values read back are the
  exact floats that were written.

CONCURRENCY:
  One open connection (SQLite serializes writers anyway, and ":memory:"
  databases are per connection). The identity map is guarded by mu.

MIGRATION:
  Versioned goose migrations embedded from migrations/*.sql, applied on Open.

USAGE:
  store, err := sqlite.New("./data/tourguide.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - engine/provider.go: UserStore interface
  - engine/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"
	"github.com/warp/tourguide/engine"
	_ "modernc.org/sqlite"
)

const (
	// DriverCGO is the mattn/go-sqlite3 driver name.
	DriverCGO = "sqlite3"

	// DriverPureGo is the modernc.org/sqlite driver name.
	DriverPureGo = "sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// goose keeps its configuration in package globals.
var gooseMu sync.Mutex

// Store implements engine.UserStore using SQLite.
type Store struct {
	db *sql.DB

	mu    sync.RWMutex
	users map[string]*engine.User
}

// New opens a store with the default cgo driver.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	return Open(context.Background(), DriverCGO, dbPath)
}

// Open opens dbPath with the named driver and applies migrations.
func Open(ctx context.Context, driver, dbPath string) (*Store, error) {
	if driver == "" {
		driver = DriverCGO
	}
	if driver != DriverCGO && driver != DriverPureGo {
		return nil, fmt.Errorf("unsupported sqlite driver %q", driver)
	}

	db, err := sql.Open(driver, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		rows, err := db.QueryContext(ctx, p)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("executing %s: %w", p, err)
		}
		rows.Close()
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db, users: make(map[string]*engine.User)}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func migrate(db *sql.DB) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// Reset deletes every row and forgets hydrated users. Demo use only.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"rewards", "visited_locations", "reward_runs", "users"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	s.users = make(map[string]*engine.User)
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatCoord(v float64) string {
	return decimal.NewFromFloat(v).String()
}

func parseCoord(s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("bad coordinate %q: %w", s, err)
	}
	f, _ := d.Float64()
	return f, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
