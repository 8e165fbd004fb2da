package estests

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/evsrc-go/core/es"
	"github.com/codewandler/evsrc-go/core/es/estests/domain"
)

func ticketEnv(t *testing.T, opts ...es.EnvOption) *es.TestingEnv {
	all := []es.EnvOption{es.WithAggregates(new(domain.Ticket))}
	for _, h := range domain.Handlers(es.DefaultRetryPolicy()) {
		all = append(all, h)
	}
	all = append(all, opts...)
	return es.StartTestEnv(t, all...)
}

func collectSummaries(t *testing.T, sub es.SummarySubscription, n int) []es.EventSummary {
	t.Helper()
	out := make([]es.EventSummary, 0, n)
	for len(out) < n {
		select {
		case s := <-sub.Chan():
			out = append(out, s)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for summaries, got %d of %d", len(out), n)
		}
	}
	return out
}

func requireNoSummary(t *testing.T, sub es.SummarySubscription) {
	t.Helper()
	select {
	case s := <-sub.Chan():
		t.Fatalf("unexpected summary: %+v", s)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDispatch_openTicket(t *testing.T) {
	te := ticketEnv(t)
	sub := te.Pub.Subscribe(t.Context(), "ticket")

	te.MustDispatch(t.Context(), &domain.OpenTicket{ID: "t-1", Title: "printer on fire"})

	// creation + opening, committed as one batch and published after commit
	summaries := collectSummaries(t, sub, 2)
	require.EqualValues(t, 1, summaries[0].Version)
	require.EqualValues(t, 2, summaries[1].Version)
	require.Equal(t, "ticket_opened", summaries[1].EventType)
	require.Equal(t, "t-1", summaries[1].AggregateID)

	repo := es.NewTypedRepositoryFrom[*domain.Ticket](slog.Default(), te.Repository())
	loaded, err := repo.GetByID(t.Context(), "t-1")
	require.NoError(t, err)
	require.Equal(t, "printer on fire", loaded.Title)
	require.True(t, loaded.IsOpen())
}

func TestDispatch_missingHandler(t *testing.T) {
	te := es.StartTestEnv(t, es.WithAggregates(new(domain.Ticket)))
	err := te.Dispatch(t.Context(), &domain.OpenTicket{ID: "t-1", Title: "x"})
	require.ErrorIs(t, err, es.ErrMissingCommandHandler)
}

func TestDispatch_validationFailureStagesNothing(t *testing.T) {
	te := ticketEnv(t)
	te.MustDispatch(t.Context(), &domain.OpenTicket{ID: "t-1", Title: "a"})
	te.MustDispatch(t.Context(), &domain.CloseTicket{ID: "t-1"})

	sub := te.Pub.Subscribe(t.Context(), "ticket")

	// closing twice violates the open-ticket invariant
	err := te.Dispatch(t.Context(), &domain.CloseTicket{ID: "t-1"})
	require.ErrorIs(t, err, es.ErrInvalidOperation)
	requireNoSummary(t, sub)

	repo := es.NewTypedRepositoryFrom[*domain.Ticket](slog.Default(), te.Repository())
	loaded, err := repo.GetByID(t.Context(), "t-1")
	require.NoError(t, err)
	require.EqualValues(t, 3, loaded.GetVersion(), "rejected command must not advance the stream")
}

func TestDispatch_handlerErrorRollsBack(t *testing.T) {
	te := ticketEnv(t)
	sub := te.Pub.Subscribe(t.Context(), "ticket")

	err := te.Dispatch(t.Context(), &domain.AssignTicket{ID: "t-404", Assignee: "alice"})
	require.ErrorIs(t, err, es.ErrAggregateNotFound)
	requireNoSummary(t, sub)

	_, err = te.Store().Load(t.Context(), "ticket", "t-404")
	require.ErrorIs(t, err, es.ErrAggregateNotFound)
}

// conflictingHandler injects a competing write between load and save for the
// first n attempts, so each of those attempts loses the optimistic lock.
func conflictingHandler(te *es.TestingEnv, n int32, attempts *atomic.Int32) es.CommandHandler {
	return es.CommandHandlerFunc(func(ctx context.Context, uow *es.UnitOfWork, cmd es.Command) error {
		c := cmd.(*domain.AssignTicket)
		a := domain.NewTicket(c.ID)
		if err := uow.Repo().Load(ctx, a); err != nil {
			return err
		}

		if attempts.Add(1) <= n {
			repo := es.NewTypedRepositoryFrom[*domain.Ticket](slog.Default(), te.Repository())
			other, err := repo.GetByID(ctx, c.ID)
			if err != nil {
				return err
			}
			if err := other.Rename("renamed concurrently"); err != nil {
				return err
			}
			if _, err := repo.Save(ctx, other); err != nil {
				return err
			}
		}

		if err := a.Assign(c.Assignee); err != nil {
			return err
		}
		_, err := uow.Repo().Save(ctx, a)
		return err
	})
}

func TestDispatch_retryAfterConflict(t *testing.T) {
	var attempts atomic.Int32
	var te *es.TestingEnv
	te = ticketEnv(t, es.WithHandler(
		domain.KindAssignTicket,
		es.WithRetry(es.CommandHandlerFunc(func(ctx context.Context, uow *es.UnitOfWork, cmd es.Command) error {
			return conflictingHandler(te, 1, &attempts).Handle(ctx, uow, cmd)
		}), es.DefaultRetryPolicy()),
	))

	te.MustDispatch(t.Context(), &domain.OpenTicket{ID: "t-1", Title: "a"})

	sub := te.Pub.Subscribe(t.Context(), "ticket")
	te.MustDispatch(t.Context(), &domain.AssignTicket{ID: "t-1", Assignee: "alice"})
	require.EqualValues(t, 2, attempts.Load(), "first attempt conflicts, second wins")

	// only the winning attempt's summary reaches subscribers
	summaries := collectSummaries(t, sub, 1)
	require.Equal(t, "ticket_assigned", summaries[0].EventType)
	requireNoSummary(t, sub)

	repo := es.NewTypedRepositoryFrom[*domain.Ticket](slog.Default(), te.Repository())
	loaded, err := repo.GetByID(t.Context(), "t-1")
	require.NoError(t, err)
	require.Equal(t, "alice", loaded.Assignee)
	require.Equal(t, "renamed concurrently", loaded.Title, "retry re-reads the competing write")
	require.EqualValues(t, 4, loaded.GetVersion())
}

func TestDispatch_retryExhaustion(t *testing.T) {
	var attempts atomic.Int32
	var te *es.TestingEnv
	te = ticketEnv(t, es.WithHandler(
		domain.KindAssignTicket,
		es.WithRetry(es.CommandHandlerFunc(func(ctx context.Context, uow *es.UnitOfWork, cmd es.Command) error {
			return conflictingHandler(te, 100, &attempts).Handle(ctx, uow, cmd)
		}), es.MaxAttemptsPolicy(3)),
	))

	te.MustDispatch(t.Context(), &domain.OpenTicket{ID: "t-1", Title: "a"})

	sub := te.Pub.Subscribe(t.Context(), "ticket")
	err := te.Dispatch(t.Context(), &domain.AssignTicket{ID: "t-1", Assignee: "alice"})
	require.Error(t, err)
	require.EqualValues(t, 3, attempts.Load())
	requireNoSummary(t, sub)

	var exhausted *es.ConflictExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, domain.KindAssignTicket, exhausted.CommandKind)
	require.Len(t, exhausted.Attempts, 3)
	require.ErrorIs(t, err, es.ErrConcurrencyConflict)

	// every attempt failed on a later stream version than the one before:
	// most recent first, no cause discarded
	require.Contains(t, exhausted.Attempts[0].Error(), "expected version 4")
	require.Contains(t, exhausted.Attempts[2].Error(), "expected version 2")
}

func TestDispatch_nonRetryableIsNotRetried(t *testing.T) {
	var attempts atomic.Int32

	// OpenTicket carries no retry marker, the policy must refuse immediately
	h := es.CommandHandlerFunc(func(context.Context, *es.UnitOfWork, es.Command) error {
		attempts.Add(1)
		return es.ErrConcurrencyConflict
	})
	te := ticketEnv(t, es.WithHandler(domain.KindOpenTicket, es.WithRetry(h, es.DefaultRetryPolicy())))

	err := te.Dispatch(t.Context(), &domain.OpenTicket{ID: "t-1", Title: "a"})
	require.ErrorIs(t, err, es.ErrConcurrencyConflict)
	require.EqualValues(t, 1, attempts.Load())

	var exhausted *es.ConflictExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Len(t, exhausted.Attempts, 1)
}

type failingPublisher struct{ err error }

func (f *failingPublisher) Publish(context.Context, []es.EventSummary) error { return f.err }

func TestDispatch_publicationFailureDoesNotFailCommit(t *testing.T) {
	te := ticketEnv(t, es.WithPublisher(&failingPublisher{err: errors.New("broker down")}))

	err := te.Dispatch(t.Context(), &domain.OpenTicket{ID: "t-1", Title: "a"})
	require.ErrorIs(t, err, es.ErrPublicationFailed)

	// the events are durable regardless
	repo := es.NewTypedRepositoryFrom[*domain.Ticket](slog.Default(), te.Repository())
	loaded, errLoad := repo.GetByID(t.Context(), "t-1")
	require.NoError(t, errLoad)
	require.EqualValues(t, 2, loaded.GetVersion())
	require.True(t, loaded.IsOpen())
}
