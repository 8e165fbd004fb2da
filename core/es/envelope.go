package es

import (
	"encoding/json"
	"fmt"
	"time"
)

// Envelope wraps an event with metadata for persistence. It is the unit of
// storage in the EventStore: one row per (aggregate stream, version).
type Envelope struct {
	// ID is the unique identifier of this event envelope.
	ID string `json:"id"`
	// Seq is the global sequence number assigned by the store at append
	// time. It provides total ordering across all events in the store.
	Seq uint64 `json:"seq"`
	// Version is the per-aggregate stream version (1, 2, 3, ...), assigned
	// by the repository at save time. Used for optimistic concurrency
	// control: the store rejects duplicates of (aggregate stream, version).
	Version Version `json:"version"`
	// AggregateType identifies the type of aggregate this event belongs to.
	AggregateType string `json:"aggregate"`
	// AggregateID identifies the specific aggregate instance.
	AggregateID string `json:"aggregate_id"`
	// Type is the event type name for deserialization routing.
	Type string `json:"type"`
	// OccurredAt is when the event was created.
	OccurredAt time.Time `json:"occurred_at"`
	// Data contains the JSON-encoded event payload.
	Data json.RawMessage `json:"data"`
}

func (e Envelope) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("envelope id is empty")
	}
	if e.OccurredAt.IsZero() {
		return fmt.Errorf("envelope occurred at is zero")
	}
	if e.AggregateID == "" {
		return fmt.Errorf("envelope aggregate id is empty")
	}
	if e.AggregateType == "" {
		return fmt.Errorf("envelope aggregate type is empty")
	}
	if e.Type == "" {
		return fmt.Errorf("envelope type is empty")
	}
	if e.Version == 0 {
		return fmt.Errorf("envelope version is zero")
	}
	return nil
}

// Summary strips the payload from the envelope, leaving the lightweight
// notification that is published after commit.
func (e Envelope) Summary() EventSummary {
	return EventSummary{
		AggregateID:   e.AggregateID,
		AggregateType: e.AggregateType,
		Version:       e.Version,
		EventType:     e.Type,
	}
}
