package estests

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/evsrc-go/core/es"
	"github.com/codewandler/evsrc-go/core/es/estests/domain"
)

// Full command round trip, against every store backend.
func TestTicketFlow_All(t *testing.T) {
	t.Run("open assign close", eachStore(func(t *testing.T, tef Tef) {
		envOpts := make([]es.EnvOption, 0)
		for _, h := range domain.Handlers(es.DefaultRetryPolicy()) {
			envOpts = append(envOpts, h)
		}
		te := tef(envOpts...)

		sub := te.Pub.Subscribe(t.Context(), "ticket")

		te.MustDispatch(t.Context(), &domain.OpenTicket{ID: "flow-1", Title: "printer on fire"})
		te.MustDispatch(t.Context(), &domain.AssignTicket{ID: "flow-1", Assignee: "alice"})
		te.MustDispatch(t.Context(), &domain.RenameTicket{ID: "flow-1", Title: "printer smoking"})
		te.MustDispatch(t.Context(), &domain.CloseTicket{ID: "flow-1", Reason: "fixed"})

		summaries := collectSummaries(t, sub, 5)
		for i, s := range summaries {
			require.EqualValues(t, i+1, s.Version, "summaries arrive in stream order")
			require.Equal(t, "flow-1", s.AggregateID)
		}
		require.Equal(t, "ticket_closed", summaries[4].EventType)

		repo := es.NewTypedRepositoryFrom[*domain.Ticket](slog.Default(), te.Repository())
		loaded, err := repo.GetByID(t.Context(), "flow-1")
		require.NoError(t, err)
		require.EqualValues(t, 5, loaded.GetVersion())
		require.True(t, loaded.IsClosed())
		require.Equal(t, "printer smoking", loaded.Title)
		require.Equal(t, "alice", loaded.Assignee)
		require.Equal(t, "fixed", loaded.Reason)
		require.Equal(t, 4, loaded.NumEvents)
	}))
}
