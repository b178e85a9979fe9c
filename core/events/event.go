package events

// Event is a structured state change committed by one of the engines. The
// node assigns each emitted event a sequence number after commit.
type Event interface {
	EventType() string
}

// Emitter receives events as an operation runs. The node installs a buffer
// here so nothing is published for aborted transactions.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards all events. Engines fall back to it when no emitter
// is configured so emit sites never nil-check.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}
