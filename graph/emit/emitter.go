// Package emit provides observability sinks for workflow execution events.
package emit

// Emitter receives and processes observability events from workflow execution.
//
// Emitters enable pluggable observability backends:
//   - Logging: structured slog output
//   - Distributed tracing: OpenTelemetry
//   - Inspection: in-memory buffers for tests and debugging
//
// Implementations should be:
//   - Non-blocking: Avoid slowing down a conversation turn
//   - Thread-safe: Turns for different threads run concurrently
//   - Resilient: Handle failures gracefully (never fail the turn)
type Emitter interface {
	// Emit sends an observability event to the configured backend.
	//
	// Emit should not panic. Errors should be handled internally.
	Emit(event Event)
}

// Multi fans every event out to each of emitters in order.
func Multi(emitters ...Emitter) Emitter {
	flat := make(multiEmitter, 0, len(emitters))
	for _, e := range emitters {
		if e != nil {
			flat = append(flat, e)
		}
	}
	return flat
}

type multiEmitter []Emitter

func (m multiEmitter) Emit(event Event) {
	for _, e := range m {
		e.Emit(event)
	}
}
