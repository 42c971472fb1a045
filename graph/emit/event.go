package emit

// Event represents an observability event emitted during workflow execution.
//
// The engine emits, per executed node:
//   - "node_start" before the node runs
//   - "node_end" after its update was merged (Meta: latency_ms, status)
//   - "node_error" when the node reported an error (Meta: error)
//   - "suspend" or "terminal" when the run stops at that node
type Event struct {
	// ThreadID identifies the conversation whose turn emitted this event.
	ThreadID string

	// Step is the sequential step number within the turn (1-indexed).
	Step int

	// NodeID identifies which node emitted this event.
	NodeID string

	// Msg is the event name.
	Msg string

	// Meta contains additional structured data specific to this event.
	// Common keys:
	//   - "latency_ms": Node execution duration in milliseconds (int64)
	//   - "status": success, error or timeout
	//   - "error": Error details
	Meta map[string]interface{}
}
