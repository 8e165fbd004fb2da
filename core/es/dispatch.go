package es

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	// ErrMissingCommandHandler is a routing configuration error: no handler
	// is registered for the command's kind. Fatal, never retried.
	ErrMissingCommandHandler = errors.New("missing command handler")
)

// Command is a request to change state, routed to exactly one handler.
// Commands are immutable once created and consumed exactly once.
type Command interface {
	// AggregateID returns the id of the aggregate the command targets.
	AggregateID() string
	// CommandKind returns the routing key used for handler lookup.
	CommandKind() string
}

// Retryable marks commands that may safely be re-executed after a
// concurrency conflict. Commands without the marker are never retried.
type Retryable interface {
	CanRetry() bool
}

// CommandHandler executes one command inside the given unit of work. The
// handler loads aggregates through uow.Repo(), invokes behavior operations
// and saves; it never publishes and never commits, the dispatcher does.
type CommandHandler interface {
	Handle(ctx context.Context, uow *UnitOfWork, cmd Command) error
}

type CommandHandlerFunc func(ctx context.Context, uow *UnitOfWork, cmd Command) error

func (f CommandHandlerFunc) Handle(ctx context.Context, uow *UnitOfWork, cmd Command) error {
	return f(ctx, uow, cmd)
}

type (
	dispatcherOptions struct {
		metrics Metrics
	}

	DispatcherOption interface{ applyToDispatcher(*dispatcherOptions) }
)

// Dispatcher is the single inbound entry point for state mutation. It
// resolves exactly one handler per command kind and runs it inside a fresh
// unit of work: begin → handle → commit, with rollback on any handler
// failure. Handlers wrapped with WithRetry are re-executed on concurrency
// conflicts according to their policy.
type Dispatcher struct {
	log       *slog.Logger
	repo      Repository
	publisher SummaryPublisher
	metrics   Metrics

	mu       sync.RWMutex
	handlers map[string]CommandHandler
}

func NewDispatcher(
	log *slog.Logger,
	repo Repository,
	publisher SummaryPublisher,
	opts ...DispatcherOption,
) *Dispatcher {
	options := dispatcherOptions{metrics: NopMetrics()}
	for _, opt := range opts {
		opt.applyToDispatcher(&options)
	}
	if publisher == nil {
		publisher = NopPublisher()
	}
	return &Dispatcher{
		log:       log.With(slog.String("component", "dispatcher")),
		repo:      repo,
		publisher: publisher,
		metrics:   options.metrics,
		handlers:  map[string]CommandHandler{},
	}
}

// Register binds a handler to a command kind. Registering a kind twice
// replaces the previous handler; wiring code owns the one-handler-per-kind
// guarantee.
func (d *Dispatcher) Register(kind string, h CommandHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[kind] = h
	d.log.Debug("registered handler", slog.String("kind", kind), slog.String("handler", fmt.Sprintf("%T", h)))
}

// Dispatch routes cmd to its handler and executes it transactionally. All
// failures surface synchronously; only the retry wrapper suppresses and
// re-attempts, and only for concurrency conflicts.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) error {
	kind := cmd.CommandKind()

	d.mu.RLock()
	h, ok := d.handlers[kind]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingCommandHandler, kind)
	}

	if rh, isRetry := h.(*RetryHandler); isRetry {
		return rh.dispatch(ctx, d, cmd)
	}
	return d.run(ctx, h, cmd)
}

// run is one full command execution: fresh unit of work, handler, commit.
func (d *Dispatcher) run(ctx context.Context, h CommandHandler, cmd Command) (err error) {
	kind := cmd.CommandKind()
	defer d.metrics.DispatchDuration(kind).ObserveDuration()

	log := d.log.With(
		slog.Group(
			"cmd",
			slog.String("kind", kind),
			slog.String("aggregate_id", cmd.AggregateID()),
		),
	)

	uow := NewUnitOfWork(d.log, d.repo, d.publisher)
	uow.metrics = d.metrics
	if err = uow.Begin(); err != nil {
		return err
	}
	defer uow.Done()

	if err = h.Handle(ctx, uow, cmd); err != nil {
		if rbErr := uow.Rollback(); rbErr != nil {
			log.Error("rollback failed", slog.Any("error", rbErr))
		}
		d.metrics.CommandFailed(kind)
		log.Debug("command failed", slog.Any("error", err))
		return err
	}

	if err = uow.Commit(ctx); err != nil {
		if errors.Is(err, ErrPublicationFailed) {
			// events are durable, report the publication failure separately
			d.metrics.PublicationFailed()
			log.Error("committed, publication failed", slog.Any("error", err))
			return err
		}
		d.metrics.CommandFailed(kind)
		return err
	}

	log.Debug("dispatched")
	return nil
}
