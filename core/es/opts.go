package es

import (
	"log/slog"

	"github.com/codewandler/evsrc-go/internal/reflector"
)

type (
	valueOption[T any]  struct{ v T }
	StoreOption         valueOption[EventStore]
	PublisherOption     valueOption[SummaryPublisher]
	MemoryOption        struct{}
	EventRegisterOption struct {
		t    string
		ctor func() any
	}
	LogOption struct {
		l *slog.Logger
	}
	AggregateOption struct {
		aggregates []Aggregate
	}
	HandlerOption struct {
		kind string
		h    CommandHandler
	}
	MultiOption[T any] struct{ opts []T }
	EnvOpts            MultiOption[EnvOption]
)

// WithInMemory wires memory-backed store, publisher and snapshotter.
func WithInMemory() MemoryOption { return MemoryOption{} }

func WithStore(s EventStore) StoreOption               { return StoreOption{v: s} }
func WithPublisher(p SummaryPublisher) PublisherOption { return PublisherOption{v: p} }
func WithEvent[T any]() EventRegisterOption {
	t := reflector.TypeInfoFor[T]().Name
	return EventRegisterOption{t: t, ctor: func() any { return any(new(T)) }}
}
func WithLog(l *slog.Logger) LogOption              { return LogOption{l: l} }
func WithAggregates(a ...Aggregate) AggregateOption { return AggregateOption{aggregates: a} }

// WithHandler binds a command kind to its single handler. Wrap the handler
// with WithRetry to make it conflict-retryable.
func WithHandler(kind string, h CommandHandler) HandlerOption {
	return HandlerOption{kind: kind, h: h}
}

func WithEnvOpts(opts ...EnvOption) EnvOpts { return EnvOpts{opts: opts} }

type (
	envOptions struct {
		log         *slog.Logger
		store       EventStore
		snapshotter Snapshotter
		publisher   SummaryPublisher
		metrics     Metrics
		events      []EventRegisterOption
		aggregates  []Aggregate
		handlers    []HandlerOption
	}

	EnvOption interface {
		applyToEnv(*envOptions)
	}
)

func newEnvOptions(opts ...EnvOption) envOptions {
	options := envOptions{
		store:   NewInMemoryStore(),
		metrics: NopMetrics(),
	}
	for _, opt := range opts {
		opt.applyToEnv(&options)
	}
	return options
}

func (o StoreOption) applyToEnv(e *envOptions)       { e.store = o.v }
func (o PublisherOption) applyToEnv(e *envOptions)   { e.publisher = o.v }
func (o SnapshotterOption) applyToEnv(e *envOptions) { e.snapshotter = o.v }
func (o MemoryOption) applyToEnv(e *envOptions) {
	e.store = NewInMemoryStore()
	e.publisher = NewInMemoryPublisher()
	e.snapshotter = NewInMemorySnapshotter()
}
func (o EventRegisterOption) applyToEnv(e *envOptions) {
	e.events = append(e.events, o)
}
func (o LogOption) applyToEnv(e *envOptions) {
	e.log = o.l
}
func (o AggregateOption) applyToEnv(e *envOptions) {
	e.aggregates = append(e.aggregates, o.aggregates...)
}
func (o HandlerOption) applyToEnv(e *envOptions) {
	e.handlers = append(e.handlers, o)
}
func (o EnvOpts) applyToEnv(e *envOptions) {
	for _, opt := range o.opts {
		opt.applyToEnv(e)
	}
}
