/*
batch.go - Multi-user reward orchestration

PURPOSE:
  Runs RewardLedger award for every user in a batch on the shared Pool and
  blocks until all of them are done.

CONTRACT:
  - One task per user. Tasks touch only their own user, so the only lock
    involved is the per-user reward lock inside User.
  - Submit all, then await all. AwardRewardsForAll never returns while a
    submitted task is still running.
  - A failing user does not cancel any other user. Failures are collected
    into a BatchError keyed by user ID after the batch drains.
  - Cancelling ctx stops submission. Users already running finish their
    whole award run; users not yet started are reported as Skipped.

ORDERING:
  None across users. Within one user, iteration order is fixed by the
  snapshot and catalog (see ledger.go).

SEE ALSO:
  - pool.go: Bounded worker pool
  - ledger.go: Per-user award
  - errors.go: BatchError
*/
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// BatchResult summarizes one AwardRewardsForAll call.
type BatchResult struct {
	Users      int           `json:"users"`
	Processed  int           `json:"processed"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	NewRewards int           `json:"new_rewards"`
	Duration   time.Duration `json:"duration"`
}

// Orchestrator fans reward awards out across users.
type Orchestrator struct {
	ledger   *RewardLedger
	pool     *Pool
	logger   *zap.Logger
	recorder Recorder
}

// NewOrchestrator creates an orchestrator that runs ledger on pool.
// Logger and recorder options are shared with RewardLedger.
func NewOrchestrator(ledger *RewardLedger, pool *Pool, opts ...LedgerOption) *Orchestrator {
	cfg := RewardLedger{logger: zap.NewNop(), recorder: nopRecorder{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Orchestrator{
		ledger:   ledger,
		pool:     pool,
		logger:   cfg.logger,
		recorder: cfg.recorder,
	}
}

// Ledger returns the per-user ledger the orchestrator runs.
func (o *Orchestrator) Ledger() *RewardLedger {
	return o.ledger
}

// AwardRewardsForAll awards rewards to every user and waits for all of them.
// The error is nil or a *BatchError.
func (o *Orchestrator) AwardRewardsForAll(ctx context.Context, users []*User) (BatchResult, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "Orchestrator.AwardRewardsForAll")
	defer span.End()

	// Running users are not interrupted by batch cancellation.
	taskCtx := context.WithoutCancel(ctx)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures = make(map[uuid.UUID]error)
		result   = BatchResult{Users: len(users)}
		skipped  []uuid.UUID
		cause    error
	)

	for i, u := range users {
		if err := ctx.Err(); err != nil {
			cause = err
			skipped = userIDs(users[i:])
			break
		}

		wg.Add(1)
		err := o.pool.Go(ctx, func() {
			defer wg.Done()
			n, err := o.ledger.award(taskCtx, u)

			mu.Lock()
			defer mu.Unlock()
			result.Processed++
			result.NewRewards += n
			if err != nil {
				failures[u.ID] = err
			}
		})
		if err != nil {
			wg.Done()
			cause = err
			skipped = userIDs(users[i:])
			break
		}
	}

	wg.Wait()

	result.Failed = len(failures)
	result.Skipped = len(skipped)
	result.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int("batch.users", result.Users),
		attribute.Int("batch.failed", result.Failed),
		attribute.Int("batch.skipped", result.Skipped),
		attribute.Int("batch.new_rewards", result.NewRewards),
	)

	var err error
	if len(failures) > 0 || len(skipped) > 0 {
		err = &BatchError{Failures: failures, Skipped: skipped, Cause: cause}
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch incomplete")
		o.logger.Warn("reward batch incomplete",
			zap.Int("users", result.Users),
			zap.Int("failed", result.Failed),
			zap.Int("skipped", result.Skipped),
			zap.Error(err))
	} else {
		o.logger.Info("reward batch completed",
			zap.Int("users", result.Users),
			zap.Int("new_rewards", result.NewRewards),
			zap.Duration("duration", result.Duration))
	}

	o.recorder.BatchCompleted(result, err)
	return result, err
}

func userIDs(users []*User) []uuid.UUID {
	ids := make([]uuid.UUID, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	return ids
}
