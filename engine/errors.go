/*
errors.go - Error types for the reward engine

PURPOSE:
  All engine error types in one place. Callers match with errors.Is /
  errors.As; the API layer maps them to HTTP status codes.

ERROR CATEGORIES:
  1. Store errors     - Missing or duplicate users
  2. Authority errors - Reward point lookup failed for one (visit, attraction) pair
  3. Batch errors     - Some users in a batch failed or were never started
  4. Pool errors      - Work submitted after shutdown

  Non-finite distances cannot happen (see Distance) and have no error type.

USAGE:
  result, err := orchestrator.AwardRewardsForAll(ctx, users)
  var batchErr *engine.BatchError
  if errors.As(err, &batchErr) {
      for _, id := range batchErr.FailedUsers() { ... }
  }

SEE ALSO:
  - ledger.go: Produces AuthorityError
  - batch.go: Produces BatchError
*/
package engine

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrUserNotFound is returned when a user lookup has no match.
	ErrUserNotFound = errors.New("user not found")

	// ErrDuplicateUser is returned when a user name is already registered.
	ErrDuplicateUser = errors.New("user already exists")

	// ErrNoVisitedLocation is returned when a user has no location history yet.
	ErrNoVisitedLocation = errors.New("user has no visited location")

	// ErrAuthorityUnavailable is returned by point authorities that cannot
	// answer at all (simulated outages, closed connections).
	ErrAuthorityUnavailable = errors.New("reward point authority unavailable")

	// ErrPoolClosed is returned when work is submitted after Shutdown.
	ErrPoolClosed = errors.New("worker pool is shut down")

	// ErrInvalidUser is returned when a user has no name.
	ErrInvalidUser = errors.New("invalid user")

	// ErrInvalidLocation is returned for coordinates outside the valid ranges.
	ErrInvalidLocation = errors.New("invalid location")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// AuthorityError reports a failed point lookup. Only the one pair is skipped;
// the rest of the user's pairs are still attempted.
type AuthorityError struct {
	UserID         uuid.UUID
	AttractionID   uuid.UUID
	AttractionName string
	Err            error
}

func (e *AuthorityError) Error() string {
	return fmt.Sprintf("reward points for %q (user %s): %v", e.AttractionName, e.UserID, e.Err)
}

func (e *AuthorityError) Unwrap() error {
	return e.Err
}

// BatchError reports the users a batch could not fully process.
// Failures holds users whose award run returned an error; Skipped holds
// users never started because the batch was cancelled or the pool closed.
type BatchError struct {
	Failures map[uuid.UUID]error
	Skipped  []uuid.UUID
	Cause    error
}

func (e *BatchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "reward batch: %d user(s) failed", len(e.Failures))
	if len(e.Skipped) > 0 {
		fmt.Fprintf(&b, ", %d skipped", len(e.Skipped))
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap exposes every per-user error plus the cause, so errors.Is can find
// an AuthorityError or context.Canceled inside the batch.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures)+1)
	for _, id := range e.FailedUsers() {
		errs = append(errs, e.Failures[id])
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// FailedUsers returns the IDs of failed users in a stable order.
func (e *BatchError) FailedUsers() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(e.Failures))
	for id := range e.Failures {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing user.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound)
}

// IsAuthorityError returns true if any wrapped error is an AuthorityError.
func IsAuthorityError(err error) bool {
	var ae *AuthorityError
	return errors.As(err, &ae)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrDuplicateUser) ||
		errors.Is(err, ErrNoVisitedLocation) ||
		errors.Is(err, ErrInvalidUser) ||
		errors.Is(err, ErrInvalidLocation)
}
