package graph

// Reducer merges a node's partial update into the previous state.
//
// Reducers own the merge semantics of every field: which fields append,
// which replace, and which only accept non-empty values. They must be
// deterministic and must not mutate prev in place when prev shares backing
// arrays with a persisted checkpoint; return a new value instead.
//
// Example:
//
//	reduce := func(prev State, u Update) State {
//	    prev.Messages = append(append([]Message(nil), prev.Messages...), u.Append...)
//	    if u.Topic != nil {
//	        prev.Topic = *u.Topic
//	    }
//	    return prev
//	}
type Reducer[S, U any] func(prev S, update U) S
