package events

import "sync"

// Event is the canonical notification payload published after every
// state-changing escrow operation. Attributes hold the per-event tuple as
// stringified key/value pairs so sinks can forward them without knowing the
// concrete schema.
type Event struct {
	Type       string
	Attributes map[string]string
}

// Emitter receives events emitted by the escrow engine. Emission is
// fire-and-forget: implementations must not fail the originating operation.
type Emitter interface {
	Emit(*Event)
}

// NoopEmitter discards every event.
type NoopEmitter struct{}

func (NoopEmitter) Emit(*Event) {}

// MemoryEmitter retains emitted events in order. Intended for tests and for
// in-process subscribers that drain the buffer themselves.
type MemoryEmitter struct {
	mu     sync.Mutex
	events []*Event
}

func (m *MemoryEmitter) Emit(evt *Event) {
	if evt == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
}

// Events returns a snapshot of everything emitted so far.
func (m *MemoryEmitter) Events() []*Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Event, len(m.events))
	copy(out, m.events)
	return out
}

// Reset drops any buffered events.
func (m *MemoryEmitter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}
