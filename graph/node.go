package graph

import "context"

// Node represents a processing unit in the workflow graph.
// It receives the current state of type S, performs computation, and returns
// a NodeResult carrying a sparse update of type U.
//
// Nodes are the fundamental building blocks of a dialogue workflow.
// Each node can:
//   - Read the current state
//   - Call collaborators (extraction models, action handlers)
//   - Return state modifications via Update
//   - Ask the engine to halt via Suspend
//
// Nodes do not choose their successor. Routing is owned by the Route table
// registered alongside them, so the graph topology stays static and can be
// validated before the first turn is served.
//
// Type parameter S is the state type shared across the workflow and U is the
// update type merged into it by the Reducer.
type Node[S, U any] interface {
	// Run executes the node's logic with the given context and state.
	Run(ctx context.Context, state S) NodeResult[U]
}

// NodeResult represents the output of a node execution.
//
// It contains all information the engine needs to continue:
//   - Update: Partial state update merged via the reducer
//   - Suspend: Halt the run and persist the cursor at this node
//   - Err: Node-level error
type NodeResult[U any] struct {
	// Update is the partial state update produced by this node.
	// It is merged with the current state using the configured reducer.
	Update U

	// Suspend halts execution after the update is applied. The engine
	// reports this node as the cursor so the next inbound turn re-enters here.
	Suspend bool

	// Err reports a programming or configuration fault. Collaborator
	// failures must be absorbed by the node and never surface here.
	// A non-nil Err aborts the run and nothing is persisted.
	Err error
}

// Continue returns a NodeResult that applies u and lets routing proceed.
func Continue[U any](u U) NodeResult[U] {
	return NodeResult[U]{Update: u}
}

// Halt returns a NodeResult that applies u and suspends the run.
func Halt[U any](u U) NodeResult[U] {
	return NodeResult[U]{Update: u, Suspend: true}
}

// Fail returns a NodeResult carrying err.
func Fail[U any](err error) NodeResult[U] {
	return NodeResult[U]{Err: err}
}

// NodeFunc is a function adapter that implements the Node interface.
// It allows using plain functions as nodes without creating custom types.
//
// Example:
//
//	greet := NodeFunc[State, Update](func(ctx context.Context, s State) NodeResult[Update] {
//	    return Continue(Update{Reply: "hello"})
//	})
type NodeFunc[S, U any] func(ctx context.Context, state S) NodeResult[U]

// Run implements the Node interface for NodeFunc.
func (f NodeFunc[S, U]) Run(ctx context.Context, state S) NodeResult[U] {
	return f(ctx, state)
}
