package memstore

import (
	"sync"

	"github.com/odyssey-erp/odyssey-wms/internal/notify"
)

// Events is a notify.Emitter that keeps every event.
type Events struct {
	mu     sync.Mutex
	events []notify.Event
}

// Emit implements notify.Emitter.
func (e *Events) Emit(event notify.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

// Kinds lists the kinds emitted so far, in order.
func (e *Events) Kinds() []notify.Kind {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]notify.Kind, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Kind)
	}
	return out
}

// All returns a copy of the emitted events.
func (e *Events) All() []notify.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]notify.Event(nil), e.events...)
}
