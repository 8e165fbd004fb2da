package es

import (
	"context"
	"log/slog"
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// EventSummary is the externally published message for a committed event.
// It deliberately excludes the event payload: the publication channel stays
// lightweight and decoupled from the store schema. Consumers that need the
// payload load it from the store by (aggregate stream, version).
type EventSummary struct {
	AggregateID   string  `json:"aggregate_id"`
	AggregateType string  `json:"aggregate_type"`
	Version       Version `json:"version"`
	EventType     string  `json:"event_type"`
}

func (s EventSummary) SlogAttr() slog.Attr {
	return slog.Group(
		"summary",
		slog.String("aggregate_id", s.AggregateID),
		slog.String("aggregate_type", s.AggregateType),
		s.Version.SlogAttr(),
		slog.String("event_type", s.EventType),
	)
}

// SummaryPublisher delivers committed event summaries to external
// subscribers. Publish is called by the unit of work after, and only after,
// durable commit. Delivery is at-least-once: a publisher retry may deliver a
// summary twice and consumers must be idempotent.
type SummaryPublisher interface {
	Publish(ctx context.Context, summaries []EventSummary) error
}

// SummarySubscription is a cancelable feed of published summaries.
type SummarySubscription interface {
	Cancel()
	Chan() <-chan EventSummary
}

// === In-Memory Publisher ===

// InMemoryPublisher fans committed summaries out to in-process subscribers.
type InMemoryPublisher struct {
	mu   sync.Mutex
	log  *slog.Logger
	subs map[string]*inMemorySummarySubscription
}

func NewInMemoryPublisher() *InMemoryPublisher {
	return &InMemoryPublisher{
		log:  slog.Default().With(slog.String("publisher", "memory")),
		subs: map[string]*inMemorySummarySubscription{},
	}
}

func (p *InMemoryPublisher) Publish(_ context.Context, summaries []EventSummary) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.subs) == 0 {
		return nil
	}

	p.log.Debug(
		"publishing summaries",
		slog.Int("summaries", len(summaries)),
		slog.Int("subscriptions", len(p.subs)),
	)

	for _, s := range summaries {
		for _, sub := range p.subs {
			if sub.aggType != "" && sub.aggType != s.AggregateType {
				continue
			}
			sub.ch <- s
		}
	}
	return nil
}

// Subscribe registers a subscriber. aggType filters by aggregate kind; an
// empty string subscribes to everything. The subscription is canceled when
// ctx ends.
func (p *InMemoryPublisher) Subscribe(ctx context.Context, aggType string) SummarySubscription {
	p.mu.Lock()
	defer p.mu.Unlock()

	subID := gonanoid.Must()
	sub := &inMemorySummarySubscription{
		aggType: aggType,
		ch:      make(chan EventSummary, 64),
		cancel: func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			delete(p.subs, subID)
		},
	}
	p.subs[subID] = sub

	context.AfterFunc(ctx, func() {
		sub.Cancel()
	})

	return sub
}

type inMemorySummarySubscription struct {
	aggType string
	ch      chan EventSummary
	cancel  func()
}

func (i *inMemorySummarySubscription) Chan() <-chan EventSummary { return i.ch }
func (i *inMemorySummarySubscription) Cancel()                   { i.cancel() }

var _ SummaryPublisher = (*InMemoryPublisher)(nil)

// === Nop Publisher ===

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, []EventSummary) error { return nil }

// NopPublisher returns a publisher that drops all summaries. Useful when the
// engine runs without external subscribers.
func NopPublisher() SummaryPublisher { return nopPublisher{} }
