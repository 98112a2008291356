package events

import "leverlend/core/types"

// Event represents a structured state change emitted by the protocol core.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events. It
// is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Recorder collects emitted events in order. It backs tests and the RPC
// event feed.
type Recorder struct {
	events []*types.Event
}

// NewRecorder returns an empty event recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) {
	if r == nil || evt == nil {
		return
	}
	type payloader interface {
		Event() *types.Event
	}
	if p, ok := evt.(payloader); ok {
		if converted := p.Event(); converted != nil {
			r.events = append(r.events, converted)
		}
		return
	}
	r.events = append(r.events, &types.Event{Type: evt.EventType()})
}

// Events returns the recorded events in emission order.
func (r *Recorder) Events() []*types.Event {
	if r == nil {
		return nil
	}
	out := make([]*types.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Reset discards all recorded events.
func (r *Recorder) Reset() {
	if r != nil {
		r.events = nil
	}
}
