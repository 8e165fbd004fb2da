package estests

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/evsrc-go/core/es"
	"github.com/codewandler/evsrc-go/core/es/estests/domain"
)

func TestRepository_notFound(t *testing.T) {
	te := es.StartTestEnv(t, es.WithAggregates(new(domain.Ticket)))
	a := domain.NewTicket("t-404")
	require.ErrorIs(t, te.Repository().Load(t.Context(), a), es.ErrAggregateNotFound)
}

func TestRepository_Typed_notFound(t *testing.T) {
	te := es.StartTestEnv(t, es.WithAggregates(new(domain.Ticket)))
	r := es.NewTypedRepositoryFrom[*domain.Ticket](slog.Default(), te.Repository())
	_, err := r.GetByID(t.Context(), "t-404")
	require.ErrorIs(t, err, es.ErrAggregateNotFound)
}

func TestRepository_Typed(t *testing.T) {
	var (
		te   = es.StartTestEnv(t, es.WithAggregates(new(domain.Ticket)))
		repo = es.NewTypedRepositoryFrom[*domain.Ticket](slog.Default(), te.Repository())
	)

	const aggID = "t-1"

	require.Equal(t, "ticket", repo.GetAggType())

	a, err := repo.Create(t.Context(), aggID)
	require.NoError(t, err)
	require.NotNil(t, a)
	require.Equal(t, aggID, a.GetID())
	require.EqualValues(t, es.Version(1), a.GetVersion())
	require.True(t, a.IsCreated())

	// stage + save
	require.NoError(t, a.Open("printer on fire"))
	require.NoError(t, a.Assign("alice"))
	summaries, err := repo.Save(t.Context(), a)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	require.Equal(t, "ticket_opened", summaries[0].EventType)
	require.EqualValues(t, 2, summaries[0].Version)
	require.EqualValues(t, 3, summaries[1].Version)
	require.EqualValues(t, 3, a.GetVersion())
	require.Empty(t, a.Uncommitted())

	t.Run("replay equals incremental state", func(t *testing.T) {
		loaded, err := repo.GetByID(t.Context(), aggID)
		require.NoError(t, err)
		require.Equal(t, aggID, loaded.GetID())
		require.EqualValues(t, 3, loaded.GetVersion())
		require.Equal(t, "printer on fire", loaded.Title)
		require.Equal(t, "alice", loaded.Assignee)
		require.True(t, loaded.IsOpen())
		require.Equal(t, 2, loaded.NumEvents)
	})

	t.Run("save without staged events is a no-op", func(t *testing.T) {
		loaded, err := repo.GetByID(t.Context(), aggID)
		require.NoError(t, err)
		summaries, err := repo.Save(t.Context(), loaded)
		require.NoError(t, err)
		require.Empty(t, summaries)
		require.EqualValues(t, 3, loaded.GetVersion())
	})

	t.Run("get or create loads existing", func(t *testing.T) {
		loaded, err := repo.GetOrCreate(t.Context(), aggID)
		require.NoError(t, err)
		require.EqualValues(t, 3, loaded.GetVersion())
	})

	t.Run("get or create creates missing", func(t *testing.T) {
		created, err := repo.GetOrCreate(t.Context(), "t-2")
		require.NoError(t, err)
		require.EqualValues(t, 1, created.GetVersion())
	})
}

func TestRepository_staleSaveConflicts(t *testing.T) {
	var (
		te   = es.StartTestEnv(t, es.WithAggregates(new(domain.Ticket)))
		repo = es.NewTypedRepositoryFrom[*domain.Ticket](slog.Default(), te.Repository())
	)

	_, err := repo.Create(t.Context(), "t-1")
	require.NoError(t, err)

	// two sessions load the same version
	first, err := repo.GetByID(t.Context(), "t-1")
	require.NoError(t, err)
	second, err := repo.GetByID(t.Context(), "t-1")
	require.NoError(t, err)

	require.NoError(t, first.Open("a"))
	_, err = repo.Save(t.Context(), first)
	require.NoError(t, err)

	require.NoError(t, second.Open("b"))
	_, err = repo.Save(t.Context(), second)
	require.ErrorIs(t, err, es.ErrConcurrencyConflict)

	// the loser's write left no trace
	loaded, err := repo.GetByID(t.Context(), "t-1")
	require.NoError(t, err)
	require.Equal(t, "a", loaded.Title)
	require.EqualValues(t, 2, loaded.GetVersion())
}

func TestRepository_dirtyLoadRejected(t *testing.T) {
	te := es.StartTestEnv(t, es.WithAggregates(new(domain.Ticket)))

	a := domain.NewTicket("t-1")
	require.NoError(t, a.Create("t-1"))
	require.Error(t, te.Repository().Load(t.Context(), a))
}

func TestRepository_snapshot(t *testing.T) {
	var (
		te   = es.StartTestEnv(t, es.WithAggregates(new(domain.Ticket)))
		repo = es.NewTypedRepositoryFrom[*domain.Ticket](slog.Default(), te.Repository())
	)

	a, err := repo.Create(t.Context(), "t-1")
	require.NoError(t, err)
	require.NoError(t, a.Open("snapshot me"))
	require.NoError(t, a.Assign("bob"))
	_, err = repo.Save(t.Context(), a, es.WithSnapshot(true))
	require.NoError(t, err)

	t.Run("snapshot at stream head", func(t *testing.T) {
		loaded, err := repo.GetByID(t.Context(), "t-1", es.WithSnapshot(true))
		require.NoError(t, err)
		require.EqualValues(t, 3, loaded.GetVersion())
		require.Equal(t, "snapshot me", loaded.Title)
		require.Equal(t, "bob", loaded.Assignee)
	})

	t.Run("snapshot plus tail replay", func(t *testing.T) {
		require.NoError(t, a.Close("done"))
		_, err = repo.Save(t.Context(), a)
		require.NoError(t, err)

		loaded, err := repo.GetByID(t.Context(), "t-1", es.WithSnapshot(true))
		require.NoError(t, err)
		require.EqualValues(t, 4, loaded.GetVersion())
		require.True(t, loaded.IsClosed())
		require.Equal(t, "done", loaded.Reason)
	})
}
