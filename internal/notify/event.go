// Package notify carries warehouse events to external observers. Delivery is
// best effort: nothing in the core waits on, or rolls back for, a publish.
package notify

import (
	"context"
	"time"
)

// Kind enumerates emitted event kinds.
type Kind string

const (
	KindScanOccurred      Kind = "scan.occurred"
	KindInventoryChanged  Kind = "inventory.changed"
	KindWorkflowCompleted Kind = "workflow.completed"
)

// Event is a flat record describing what happened and the resulting state.
type Event struct {
	Kind        Kind      `json:"kind"`
	ActorID     int64     `json:"actor_id"`
	SubjectType string    `json:"subject_type"`
	SubjectID   int64     `json:"subject_id,omitempty"`
	ProductID   int64     `json:"product_id,omitempty"`
	LocationID  int64     `json:"location_id,omitempty"`
	Quantity    int       `json:"quantity,omitempty"`
	State       string    `json:"state,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Publisher is a one-way sink for events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Emitter is what domain services depend on. Emit must not block.
type Emitter interface {
	Emit(event Event)
}

// NopPublisher discards events.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// NopEmitter discards events without queueing them.
type NopEmitter struct{}

// Emit implements Emitter.
func (NopEmitter) Emit(Event) {}
