package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// =============================================================================
// REWARD RUNS
// =============================================================================

// Run statuses.
const (
	RunCompleted = "completed"
	RunPartial   = "partial"
	RunFailed    = "failed"
)

// RewardRun is the audit record of one reward batch.
type RewardRun struct {
	ID          string
	Trigger     string // scheduler, manual
	Status      string
	Users       int
	Processed   int
	Failed      int
	Skipped     int
	NewRewards  int
	Duration    time.Duration
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
}

// SaveRewardRun inserts or updates a run.
func (s *Store) SaveRewardRun(ctx context.Context, r RewardRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var completedAt *string
	if r.CompletedAt != nil {
		c := formatTime(*r.CompletedAt)
		completedAt = &c
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reward_runs (id, run_trigger, status, users, processed, failed, skipped,
			new_rewards, duration_ms, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			users = excluded.users,
			processed = excluded.processed,
			failed = excluded.failed,
			skipped = excluded.skipped,
			new_rewards = excluded.new_rewards,
			duration_ms = excluded.duration_ms,
			error = excluded.error,
			completed_at = excluded.completed_at
	`,
		r.ID, r.Trigger, r.Status, r.Users, r.Processed, r.Failed, r.Skipped,
		r.NewRewards, r.Duration.Milliseconds(), nullString(r.Error),
		formatTime(r.StartedAt), completedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save reward run: %w", err)
	}
	return nil
}

// ListRewardRuns returns the most recent runs first. limit <= 0 returns all.
func (s *Store) ListRewardRuns(ctx context.Context, limit int) ([]RewardRun, error) {
	query := `
		SELECT id, run_trigger, status, users, processed, failed, skipped,
			new_rewards, duration_ms, error, started_at, completed_at
		FROM reward_runs
		ORDER BY started_at DESC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reward runs: %w", err)
	}
	defer rows.Close()

	var runs []RewardRun
	for rows.Next() {
		var (
			r           RewardRun
			durationMS  int64
			errText     sql.NullString
			startedAt   string
			completedAt sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Trigger, &r.Status, &r.Users, &r.Processed, &r.Failed,
			&r.Skipped, &r.NewRewards, &durationMS, &errText, &startedAt, &completedAt); err != nil {
			return nil, err
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		r.Error = errText.String
		r.StartedAt = parseTime(startedAt)
		if completedAt.Valid {
			t := parseTime(completedAt.String)
			r.CompletedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
