// Package es implements an event-sourced aggregate and command-processing engine.
//
// # Overview
//
// State changes enter the system as commands. A command is routed to exactly
// one handler, which loads an aggregate by replaying its event history,
// invokes behavior operations that stage new events, and saves those events
// back through the repository. Persistence happens inside a unit of work so
// that "event persisted" and "event published" stay cleanly separated:
// subscribers only ever see summaries of durably committed events.
//
// # Core Components
//
// Aggregate: the domain object that encapsulates business rules and raises
// events. Embed [BaseAggregate] to get version tracking and the uncommitted
// event list:
//
//	type Ticket struct {
//	    es.BaseAggregate
//	    Subject string
//	    Status  string
//	}
//
//	func (t *Ticket) Rename(subject string) error {
//	    if subject == "" {
//	        return fmt.Errorf("%w: subject is empty", es.ErrInvalidOperation)
//	    }
//	    return es.RaiseAndApply(t, &TicketRenamed{Subject: subject})
//	}
//
// EventStore: the append-only log of envelopes keyed by (aggregate stream,
// version). Appending with a stale expected version fails with
// [ErrConcurrencyConflict]; that is the sole serialization point between concurrent
// commands targeting the same aggregate. Use [NewInMemoryStore] for tests or
// the adapters/sqlite implementation for durable storage.
//
// Repository: loads aggregates by replay and persists staged events,
// assigning contiguous versions starting at the aggregate's pre-command
// version plus one. Save returns one [EventSummary] per appended event; the
// repository itself never publishes. Use [NewTypedRepository] for type-safe
// access:
//
//	repo := es.NewTypedRepository[*Ticket](log, store, registry)
//	ticket, err := repo.GetByID(ctx, "T-1")
//
// UnitOfWork: scopes one command execution. Begin → handler → Commit hands
// the accumulated summaries to the publisher; Rollback discards them. The
// unit of work is passed explicitly through dispatch, never held in ambient
// state, so concurrent executions stay isolated.
//
// Dispatcher: the single inbound entry point. It resolves the handler for a
// command kind, runs it inside a fresh unit of work and, when the handler is
// wrapped with [WithRetry], re-executes conflicted commands under the
// configured [RetryPolicy]:
//
//	d := es.NewDispatcher(log, repo, publisher)
//	d.Register("ticket.rename", es.WithRetry(handler, es.DefaultRetryPolicy()))
//	err := d.Dispatch(ctx, RenameTicket{ID: "T-1", Subject: "hello"})
//
// SummaryPublisher: the outbound feed of committed [EventSummary] values.
// Delivery is at-least-once and strictly after durable commit; consumers must
// be idempotent. The adapters/nats package publishes summaries to NATS
// subjects.
//
// # Event Registration
//
// Events must be registered with an [EventRegistry] before history can be
// decoded during replay:
//
//	registry := es.NewRegistry()
//	es.RegisterEvents(registry, es.Event[TicketOpened](), es.Event[TicketRenamed]())
//
// An event type missing from an aggregate's Apply switch is a data or
// versioning bug and surfaces as [ErrUnknownEventType], never as a silently
// skipped event.
//
// # Snapshots
//
// Aggregates with long histories can be restored from a snapshot before
// replaying the tail. Implement [Snapshottable] for custom encoding or rely
// on the JSON fallback:
//
//	ticket, err := repo.GetByID(ctx, "T-1", es.WithSnapshot(true))
//
// # Environment
//
// [Env] wires store, registry, repository, publisher and dispatcher from
// shared configuration:
//
//	env, err := es.NewEnv(
//	    es.WithLog(logger),
//	    es.WithStore(store),
//	    es.WithAggregates(&Ticket{}),
//	    es.WithHandler("ticket.open", openHandler),
//	)
//	err = env.Dispatcher().Dispatch(ctx, OpenTicket{ID: "T-1"})
package es
