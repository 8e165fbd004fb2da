package es

import (
	"context"
	"fmt"
	"log/slog"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Env wires store, registry, repository, publisher and dispatcher from
// shared configuration. It is a factory for configured instances, not a
// runtime container: aggregates stay per-execution, only the store and
// publisher are shared.
type Env struct {
	id          string
	log         *slog.Logger
	store       EventStore
	snapshotter Snapshotter
	publisher   SummaryPublisher
	registry    *EventRegistry
	repo        Repository
	dispatcher  *Dispatcher
}

func (e *Env) Store() EventStore           { return e.store }
func (e *Env) Snapshotter() Snapshotter    { return e.snapshotter }
func (e *Env) Publisher() SummaryPublisher { return e.publisher }
func (e *Env) Registry() *EventRegistry    { return e.registry }
func (e *Env) Repository() Repository      { return e.repo }
func (e *Env) Dispatcher() *Dispatcher     { return e.dispatcher }

// Dispatch forwards to the environment's dispatcher, the only inbound
// entry point for state mutation.
func (e *Env) Dispatch(ctx context.Context, cmd Command) error {
	return e.dispatcher.Dispatch(ctx, cmd)
}

func NewEnv(opts ...EnvOption) (e *Env, err error) {
	var (
		id      = gonanoid.Must(6)
		options = newEnvOptions(opts...)
	)

	// log
	log := options.log
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("env", id))

	publisher := options.publisher
	if publisher == nil {
		publisher = NopPublisher()
	}

	e = &Env{
		id:          id,
		log:         log,
		store:       options.store,
		snapshotter: options.snapshotter,
		publisher:   publisher,
		registry:    NewRegistry(),
	}

	for _, agg := range options.aggregates {
		agg.Register(e.registry)
		e.log.Debug("registered aggregate", "type", fmt.Sprintf("%T", agg))
	}

	// register events
	RegisterEventFor[AggregateCreatedEvent](e.registry)
	for _, s := range options.events {
		e.registry.Register(s.t, s.ctor)
		e.log.Debug("registered event", "type", s.t)
	}

	// create repository
	e.repo = NewRepository(
		e.log,
		e.store,
		e.registry,
		WithSnapshotter(e.snapshotter),
		WithMetrics(options.metrics),
	)

	// create dispatcher
	e.dispatcher = NewDispatcher(e.log, e.repo, e.publisher, WithMetrics(options.metrics))
	for _, h := range options.handlers {
		e.dispatcher.Register(h.kind, h.h)
	}

	return e, nil
}
