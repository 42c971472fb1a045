// Package graph provides the core execution engine for dialogue workflows.
package graph

// Route describes the outgoing transition of a node in the workflow graph.
//
// Routes are looked up in a static table keyed by node name. They can be:
//   - Fixed: Always traverse to one node (see Fixed)
//   - Conditional: Pick one of the declared Targets from the state (see Branch)
//
// A node without a Route is terminal: when it completes, the run ends.
//
// Targets lists every node the route may return. The engine validates all of
// them against the registry at construction time, and rejects a run-time
// decision that names a node outside the list.
//
// Type parameter S is the state type used for the routing decision.
type Route[S any] struct {
	// Targets enumerates every possible destination.
	Targets []string

	// Next chooses the destination for the given state.
	// It must be a pure function of the state.
	Next Selector[S]
}

// Selector is a function that inspects state to pick the next node.
//
// Selectors should be pure functions (deterministic, no side effects)
// so that routing is reproducible from a persisted checkpoint.
type Selector[S any] func(state S) string

// Fixed returns a Route that always continues at node to.
func Fixed[S any](to string) Route[S] {
	return Route[S]{
		Targets: []string{to},
		Next:    func(S) string { return to },
	}
}

// Branch returns a conditional Route choosing among targets with sel.
//
// Example:
//
//	byScore := graph.Branch(func(s State) string {
//	    if s.Score > 0.8 {
//	        return "accept"
//	    }
//	    return "review"
//	}, "accept", "review")
func Branch[S any](sel Selector[S], targets ...string) Route[S] {
	return Route[S]{Targets: targets, Next: sel}
}

// allows reports whether to is one of the declared targets.
func (r Route[S]) allows(to string) bool {
	for _, t := range r.Targets {
		if t == to {
			return true
		}
	}
	return false
}
