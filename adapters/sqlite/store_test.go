package sqlite

import (
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/stretchr/testify/require"

	"github.com/codewandler/evsrc-go/core/es"
)

func newEnvelope(aggID string, v es.Version) es.Envelope {
	return es.Envelope{
		ID:            gonanoid.Must(),
		AggregateType: "ticket",
		AggregateID:   aggID,
		Version:       v,
		Type:          "ticket_opened",
		OccurredAt:    time.Now(),
		Data:          json.RawMessage(`{"title":"hello"}`),
	}
}

func TestOpen_requiresPath(t *testing.T) {
	_, err := Open(Config{})
	require.Error(t, err)
}

func TestEventStore_persistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")

	store, err := Open(Config{Path: path, Log: slog.Default()})
	require.NoError(t, err)

	res, err := store.Append(t.Context(), "ticket", "t-1", 0, []es.Envelope{
		newEnvelope("t-1", 1),
		newEnvelope("t-1", 2),
	})
	require.NoError(t, err)
	require.EqualValues(t, 2, res.LastSeq)
	require.NoError(t, store.Close())

	reopened, err := Open(Config{Path: path, Log: slog.Default()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	loaded, err := reopened.Load(t.Context(), "ticket", "t-1")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	require.EqualValues(t, 1, loaded[0].Version)
	require.EqualValues(t, 2, loaded[1].Version)
	require.Equal(t, "ticket", loaded[0].AggregateType)
	require.Equal(t, "t-1", loaded[0].AggregateID)
	require.JSONEq(t, `{"title":"hello"}`, string(loaded[0].Data))
	require.False(t, loaded[0].OccurredAt.IsZero())
}

func TestEventStore_uniqueVersionIsTheLock(t *testing.T) {
	store, err := Open(Config{Path: ":memory:", Log: slog.Default()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	_, err = store.Append(t.Context(), "ticket", "t-1", 0, []es.Envelope{newEnvelope("t-1", 1)})
	require.NoError(t, err)

	_, err = store.Append(t.Context(), "ticket", "t-1", 0, []es.Envelope{newEnvelope("t-1", 1)})
	require.ErrorIs(t, err, es.ErrConcurrencyConflict)

	// same version on a different stream is fine
	_, err = store.Append(t.Context(), "ticket", "t-2", 0, []es.Envelope{newEnvelope("t-2", 1)})
	require.NoError(t, err)
}

func TestEventStore_loadUnknownStream(t *testing.T) {
	store, err := Open(Config{Path: ":memory:", Log: slog.Default()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	_, err = store.Load(t.Context(), "ticket", "missing")
	require.ErrorIs(t, err, es.ErrAggregateNotFound)
}
