/*
scheduler.go - Periodic reward batch scheduler

PURPOSE:
  Runs the reward batch for every user on a fixed interval so rewards for
  visits recorded while the point authority was unavailable are granted
  eventually, and records every run (scheduled or manual) for audit.

DESIGN:
  - Background goroutine driven by a ticker, first run on start
  - Runs are serialized: a manual run waits for a scheduled one to finish
  - Stop cancels the running batch. Users already being processed finish;
    the rest are reported as skipped in the run record.

CONFIGURATION:
  - Interval: How often to run (default: 5 minutes)
  - Enabled:  Whether the scheduler is active (default: true)

USAGE:
  scheduler := NewRewardScheduler(svc, store, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerRewards endpoint (manual run)
  - tourguide/service.go: RewardAllUsers
*/
package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/tourguide/engine"
	"github.com/warp/tourguide/store/sqlite"
	"github.com/warp/tourguide/tourguide"
	"go.uber.org/zap"
)

// DefaultSchedulerInterval is how often scheduled runs happen.
const DefaultSchedulerInterval = 5 * time.Minute

// Run triggers.
const (
	TriggerScheduler = "scheduler"
	TriggerManual    = "manual"
)

// RunLog stores reward run records.
type RunLog interface {
	SaveRewardRun(ctx context.Context, r sqlite.RewardRun) error
	ListRewardRuns(ctx context.Context, limit int) ([]sqlite.RewardRun, error)
}

// RewardScheduler runs the reward batch periodically and on demand.
type RewardScheduler struct {
	Service  *tourguide.Service
	Runs     RunLog
	Interval time.Duration
	Enabled  bool

	logger *zap.Logger

	ticker *time.Ticker
	stop   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex

	runMu sync.Mutex

	nextMu  sync.Mutex
	nextRun time.Time
}

// NewRewardScheduler creates a scheduler. runs may be nil.
func NewRewardScheduler(svc *tourguide.Service, runs RunLog, logger *zap.Logger) *RewardScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RewardScheduler{
		Service:  svc,
		Runs:     runs,
		Interval: DefaultSchedulerInterval,
		Enabled:  true,
		logger:   logger.Named("scheduler"),
	}
}

// Start begins the scheduler.
func (rs *RewardScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.logger.Info("disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	rs.cancel = cancel
	rs.stop = make(chan struct{})
	rs.ticker = time.NewTicker(rs.Interval)
	rs.setNextRun(time.Now().Add(rs.Interval))
	rs.wg.Add(1)

	go rs.loop(ctx)

	rs.logger.Info("started", zap.Duration("interval", rs.Interval))
}

// Stop stops the scheduler and waits for the current run to end.
func (rs *RewardScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker == nil {
		return
	}
	rs.ticker.Stop()
	rs.cancel()
	close(rs.stop)
	rs.wg.Wait()
	rs.ticker = nil
	rs.setNextRun(time.Time{})
	rs.logger.Info("stopped")
}

func (rs *RewardScheduler) loop(ctx context.Context) {
	defer rs.wg.Done()

	rs.Run(ctx, TriggerScheduler)

	for {
		select {
		case tick := <-rs.ticker.C:
			rs.setNextRun(tick.Add(rs.Interval))
			rs.Run(ctx, TriggerScheduler)
		case <-rs.stop:
			return
		}
	}
}

// RunNow triggers an immediate manual run.
func (rs *RewardScheduler) RunNow(ctx context.Context) (sqlite.RewardRun, error) {
	return rs.Run(ctx, TriggerManual)
}

// Run executes one reward batch and records it. The returned error is the
// batch error; failing to record the run is only logged.
func (rs *RewardScheduler) Run(ctx context.Context, trigger string) (sqlite.RewardRun, error) {
	rs.runMu.Lock()
	defer rs.runMu.Unlock()

	run := sqlite.RewardRun{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		Status:    "running",
		StartedAt: time.Now(),
	}
	rs.save(ctx, run)

	result, err := rs.Service.RewardAllUsers(ctx)

	completed := time.Now()
	run.Status = runStatus(err)
	run.Users = result.Users
	run.Processed = result.Processed
	run.Failed = result.Failed
	run.Skipped = result.Skipped
	run.NewRewards = result.NewRewards
	run.Duration = completed.Sub(run.StartedAt)
	run.CompletedAt = &completed
	if err != nil {
		run.Error = err.Error()
	}
	rs.save(context.WithoutCancel(ctx), run)

	if err != nil {
		rs.logger.Warn("reward run incomplete",
			zap.String("run_id", run.ID),
			zap.String("trigger", trigger),
			zap.String("status", run.Status),
			zap.Error(err))
	} else {
		rs.logger.Info("reward run completed",
			zap.String("run_id", run.ID),
			zap.String("trigger", trigger),
			zap.Int("users", run.Users),
			zap.Int("new_rewards", run.NewRewards),
			zap.Duration("duration", run.Duration))
	}
	return run, err
}

// NextRunTime returns when the next scheduled run will occur, or the zero
// time when the scheduler is not running.
func (rs *RewardScheduler) NextRunTime() time.Time {
	rs.nextMu.Lock()
	defer rs.nextMu.Unlock()
	return rs.nextRun
}

func (rs *RewardScheduler) setNextRun(t time.Time) {
	rs.nextMu.Lock()
	rs.nextRun = t
	rs.nextMu.Unlock()
}

func (rs *RewardScheduler) save(ctx context.Context, run sqlite.RewardRun) {
	if rs.Runs == nil {
		return
	}
	if err := rs.Runs.SaveRewardRun(ctx, run); err != nil {
		rs.logger.Error("failed to save run record", zap.String("run_id", run.ID), zap.Error(err))
	}
}

func runStatus(err error) string {
	var batchErr *engine.BatchError
	switch {
	case err == nil:
		return sqlite.RunCompleted
	case errors.As(err, &batchErr):
		return sqlite.RunPartial
	default:
		return sqlite.RunFailed
	}
}
