package events

import "lendnet/core/types"

// Event represents a structured state change emitted by the ledger.
type Event interface {
	EventType() string
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. indexers, logs).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events. It
// is the default sink for engines whose caller does not care about events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Recorder buffers emitted events in order. The node uses one recorder per
// entry point so events from a failed call can be dropped together with the
// discarded state.
type Recorder struct {
	events []*types.Event
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) {
	if r == nil || evt == nil {
		return
	}
	payload := evt.Event()
	if payload == nil {
		return
	}
	r.events = append(r.events, payload)
}

// Events returns the buffered events in emission order.
func (r *Recorder) Events() []*types.Event {
	if r == nil {
		return nil
	}
	return r.events
}

// Reset drops all buffered events.
func (r *Recorder) Reset() {
	if r == nil {
		return
	}
	r.events = nil
}
