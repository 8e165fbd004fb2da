package es

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// InMemoryStore is a simple, correct (optimistic) store for tests/dev.
// The mutex around append is the in-process equivalent of the uniqueness
// constraint a durable store enforces on (aggregate stream, version).
type InMemoryStore struct {
	mu      sync.Mutex
	log     *slog.Logger
	seq     atomic.Uint64
	streams map[string][]Envelope
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		log:     slog.Default().With(slog.String("store", "memory")),
		streams: map[string][]Envelope{},
	}
}

func (s *InMemoryStore) streamKey(aggType, aggID string) string {
	return fmt.Sprintf("%s-%s", aggType, aggID)
}

func (s *InMemoryStore) Load(
	_ context.Context,
	aggType,
	aggID string,
	opts ...StoreLoadOption,
) ([]Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// init load options
	loadOpts := &eventStoreLoadOptions{}
	for _, opt := range opts {
		opt.ApplyToStoreLoadOptions(loadOpts)
	}

	// get stream
	sk := s.streamKey(aggType, aggID)
	events, ok := s.streams[sk]
	if !ok {
		return nil, ErrAggregateNotFound
	}

	out := make([]Envelope, 0)
	for _, e := range events {
		if e.Version < loadOpts.startVersion {
			continue
		}
		if e.Seq < loadOpts.startSeq {
			continue
		}
		out = append(out, e)
	}

	return out, nil
}

func (s *InMemoryStore) Append(
	_ context.Context,
	aggType string,
	aggID string,
	expectVersion Version,
	events []Envelope,
) (*StoreAppendResult, error) {
	if len(events) == 0 {
		return nil, ErrStoreNoEvents
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		sk         = s.streamKey(aggType, aggID)
		curStream  = s.streams[sk]
		curVersion Version
	)

	if len(curStream) > 0 {
		curVersion = curStream[len(curStream)-1].Version
	}
	if curVersion != expectVersion {
		return nil, fmt.Errorf(
			"%w: expected version %d, got %d (agg_type=%s agg_id=%s)",
			ErrConcurrencyConflict,
			expectVersion,
			curVersion,
			aggType,
			aggID,
		)
	}

	// validate the whole batch before touching the stream so the append
	// stays all-or-nothing
	next := expectVersion
	for _, e := range events {
		if err := e.Validate(); err != nil {
			return nil, err
		}
		next++
		if e.Version != next {
			return nil, fmt.Errorf("non-contiguous version %d, want %d", e.Version, next)
		}
	}

	var (
		lastSeq   uint64
		allEvents = make([]Envelope, 0, len(events))
	)
	for _, e := range events {
		lastSeq = s.seq.Add(1)
		e.Seq = lastSeq
		allEvents = append(allEvents, e)
	}
	s.streams[sk] = append(curStream, allEvents...)
	s.log.Debug(
		"append",
		slog.Uint64("last_seq", lastSeq),
		slog.Int("num_events", len(allEvents)),
	)

	return &StoreAppendResult{LastSeq: lastSeq}, nil
}

var _ EventStore = (*InMemoryStore)(nil)
