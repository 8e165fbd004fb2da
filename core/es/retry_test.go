package es

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

type testCmd struct {
	id        string
	kind      string
	retryable bool
}

func (c *testCmd) AggregateID() string { return c.id }
func (c *testCmd) CommandKind() string { return c.kind }

type retryableCmd struct{ testCmd }

func (c *retryableCmd) CanRetry() bool { return c.retryable }

func TestMaxAttemptsPolicy(t *testing.T) {
	conflict := fmt.Errorf("%w: expected version 1, got 2", ErrConcurrencyConflict)

	t.Run("retries until max attempts", func(t *testing.T) {
		policy := MaxAttemptsPolicy(3)
		cmd := &retryableCmd{testCmd{kind: "x", retryable: true}}

		require.True(t, policy(cmd, 1, conflict))
		require.True(t, policy(cmd, 2, conflict))
		require.False(t, policy(cmd, 3, conflict))
		require.False(t, policy(cmd, 4, conflict))
	})

	t.Run("refuses commands without retry marker", func(t *testing.T) {
		policy := MaxAttemptsPolicy(3)
		require.False(t, policy(&testCmd{kind: "x"}, 1, conflict))
	})

	t.Run("refuses commands that opt out", func(t *testing.T) {
		policy := MaxAttemptsPolicy(3)
		cmd := &retryableCmd{testCmd{kind: "x", retryable: false}}
		require.False(t, policy(cmd, 1, conflict))
	})
}

func TestConflictExhaustedError(t *testing.T) {
	var (
		first  = fmt.Errorf("%w: expected version 1, got 2", ErrConcurrencyConflict)
		second = fmt.Errorf("%w: expected version 2, got 3", ErrConcurrencyConflict)
	)

	err := &ConflictExhaustedError{
		CommandKind: "assign_ticket",
		Attempts:    []error{second, first}, // most recent first
	}

	require.ErrorIs(t, err, ErrConcurrencyConflict)
	require.Contains(t, err.Error(), "assign_ticket")
	require.Contains(t, err.Error(), "2 conflicted attempts")

	var exhausted *ConflictExhaustedError
	require.True(t, errors.As(fmt.Errorf("dispatch: %w", err), &exhausted))
	require.Same(t, err, exhausted)
}
