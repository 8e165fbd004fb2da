package es

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// === Helpers ===

type TestingEnv struct {
	*Env
	t *testing.T

	// Pub is the in-memory publisher backing the env, for subscribing to
	// committed summaries in tests.
	Pub *InMemoryPublisher
}

// StartTestEnv creates an Env backed by in-memory store, snapshotter and
// publisher. Pass opts to override any of them or to register aggregates,
// events and handlers.
func StartTestEnv(
	t *testing.T,
	opts ...EnvOption,
) *TestingEnv {
	pub := NewInMemoryPublisher()
	e, err := NewEnv(
		WithSnapshotter(NewInMemorySnapshotter()),
		WithStore(NewInMemoryStore()),
		WithPublisher(pub),
		WithEnvOpts(opts...),
	)
	require.NoError(t, err)
	return &TestingEnv{
		t:   t,
		Env: e,
		Pub: pub,
	}
}

// MustDispatch dispatches cmd and fails the test on error.
func (e *TestingEnv) MustDispatch(ctx context.Context, cmd Command) {
	require.NoError(e.t, e.Dispatch(ctx, cmd))
}
