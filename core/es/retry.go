package es

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// RetryPolicy decides whether a conflicted command execution should run
// again. attempt is the number of executions so far (1 after the first
// failure), lastErr the most recent conflict. The policy is pure: it sees
// only the command and the attempt state, never the storage layer.
type RetryPolicy func(cmd Command, attempt int, lastErr error) bool

// DefaultRetryPolicy retries while fewer than maxAttempts executions have
// happened and the command is marked retry-eligible.
func DefaultRetryPolicy() RetryPolicy { return MaxAttemptsPolicy(3) }

func MaxAttemptsPolicy(maxAttempts int) RetryPolicy {
	return func(cmd Command, attempt int, _ error) bool {
		if attempt >= maxAttempts {
			return false
		}
		r, ok := cmd.(Retryable)
		return ok && r.CanRetry()
	}
}

// ConflictExhaustedError is the composed failure raised when the retry
// policy gives up. Attempts holds every execution's conflict, most recent
// first, so no failure information is discarded.
type ConflictExhaustedError struct {
	CommandKind string
	Attempts    []error
}

func (e *ConflictExhaustedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "command %s exhausted after %d conflicted attempts", e.CommandKind, len(e.Attempts))
	for i, err := range e.Attempts {
		fmt.Fprintf(&b, "\n  attempt[-%d]: %v", i, err)
	}
	return b.String()
}

// Unwrap exposes every attempt's cause, so errors.Is(err,
// ErrConcurrencyConflict) still holds on the composed failure.
func (e *ConflictExhaustedError) Unwrap() []error { return e.Attempts }

// RetryHandler wraps a base handler with the optimistic-locking retry
// policy. Only ErrConcurrencyConflict is suppressed and re-attempted: each
// retry is a full re-execution with a fresh unit of work and a freshly
// reloaded aggregate, since the conflict means the previous in-memory state
// was stale. Every other failure propagates immediately.
type RetryHandler struct {
	inner  CommandHandler
	policy RetryPolicy
}

func WithRetry(h CommandHandler, policy RetryPolicy) *RetryHandler {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	return &RetryHandler{inner: h, policy: policy}
}

// Handle executes a single attempt. The retry loop lives in dispatch, which
// owns the unit-of-work lifecycle.
func (r *RetryHandler) Handle(ctx context.Context, uow *UnitOfWork, cmd Command) error {
	return r.inner.Handle(ctx, uow, cmd)
}

func (r *RetryHandler) dispatch(ctx context.Context, d *Dispatcher, cmd Command) error {
	var attempts []error

	for attempt := 1; ; attempt++ {
		err := d.run(ctx, r.inner, cmd)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConcurrencyConflict) {
			return err
		}

		// most recent first
		attempts = append([]error{err}, attempts...)

		if !r.policy(cmd, attempt, err) {
			return &ConflictExhaustedError{
				CommandKind: cmd.CommandKind(),
				Attempts:    attempts,
			}
		}

		d.metrics.CommandRetry(cmd.CommandKind())
		d.log.Debug(
			"retrying after conflict",
			slog.String("kind", cmd.CommandKind()),
			slog.Int("attempt", attempt),
		)
	}
}

var _ CommandHandler = (*RetryHandler)(nil)
