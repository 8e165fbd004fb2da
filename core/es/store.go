package es

import (
	"context"
	"errors"
)

var (
	ErrStoreNoEvents = errors.New("no events to store")

	// ErrStorageUnavailable marks transport or infrastructure failures of a
	// store implementation. It is surfaced up unchanged and never triggers
	// the conflict retry policy.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

type (
	startVersionOption valueOption[Version]
	StartSeqOption     valueOption[uint64]

	eventStoreLoadOptions struct {
		startVersion Version
		startSeq     uint64
	}

	storeLoadOptionsReceiver interface {
		SetStartVersion(Version)
		SetStartSeq(uint64)
	}

	StoreLoadOption interface {
		ApplyToStoreLoadOptions(storeLoadOptionsReceiver)
	}
)

func (e *eventStoreLoadOptions) SetStartVersion(v Version) { e.startVersion = v }
func (e *eventStoreLoadOptions) SetStartSeq(seq uint64)    { e.startSeq = seq }
func WithStartAtVersion(startVersion Version) StoreLoadOption {
	return startVersionOption{startVersion}
}
func WithStartAtSeq(startSeq uint64) StartSeqOption { return StartSeqOption{startSeq} }
func (o startVersionOption) ApplyToStoreLoadOptions(receiver storeLoadOptionsReceiver) {
	receiver.SetStartVersion(o.v)
}
func (o StartSeqOption) ApplyToStoreLoadOptions(receiver storeLoadOptionsReceiver) {
	receiver.SetStartSeq(o.v)
}

type (
	StoreAppendResult struct {
		LastSeq uint64
	}

	// EventStore stores and loads envelopes per aggregate stream.
	//
	// Load returns the full (or version-bounded) history of one stream in
	// version order, never a partial batch. Append inserts the given
	// envelopes atomically: the batch fully commits or fully fails. The
	// store does not assign versions, the repository computes them from
	// the aggregate's pre-command version. The store only enforces uniqueness of
	// (aggregate stream, version). A duplicate fails the whole batch with
	// ErrConcurrencyConflict; infrastructure failures are reported as
	// ErrStorageUnavailable so callers can tell the two apart.
	EventStore interface {
		Load(ctx context.Context, aggType string, aggID string, opts ...StoreLoadOption) ([]Envelope, error)
		Append(ctx context.Context, aggType string, aggID string, expectedVersion Version, events []Envelope) (*StoreAppendResult, error)
	}
)
