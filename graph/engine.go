package graph

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dshills/dialoggraph/graph/emit"
)

// Status describes how a run stopped.
type Status string

const (
	// StatusSuspended means a node asked to wait for external input.
	// Outcome.Cursor names that node.
	StatusSuspended Status = "suspended"

	// StatusTerminal means a node without a route completed.
	// Outcome.Cursor is empty.
	StatusTerminal Status = "terminal"
)

// Outcome is the result of a single Run.
type Outcome[S any] struct {
	// State is the state after the last executed node's update was merged.
	State S

	// Cursor is the node to re-enter on the next run, or "" after a terminal node.
	Cursor string

	// Status reports whether the run suspended or terminated.
	Status Status

	// Path lists the executed nodes in order.
	Path []string
}

// Engine executes a validated Graph incrementally.
//
// The Engine is the runtime that:
//   - Starts at the entry node, or resumes at a persisted cursor
//   - Runs nodes one after another, merging updates via the reducer
//   - Follows the routing table until a node suspends or a terminal node completes
//   - Emits observability events and records metrics
//   - Enforces MaxSteps and per-node timeouts
//
// The Engine holds no per-thread state and performs no persistence. Callers
// load a checkpoint, call Run, and save the returned Outcome, which keeps a
// turn all-or-nothing: if Run returns an error nothing should be written.
//
// Type parameter S is the state type and U the update type.
//
// Example:
//
//	engine, err := graph.New(g, reduce, graph.WithMaxSteps(64))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	out, err := engine.Run(ctx, "thread-1", checkpoint.Cursor, checkpoint.State)
type Engine[S, U any] struct {
	graph   Graph[S, U]
	reducer Reducer[S, U]
	opts    Options
	logger  *slog.Logger
	emitter emit.Emitter
}

// New validates g and returns an Engine for it.
//
// Returns an error wrapping ErrInvalidGraph if the registry and routing table
// disagree, an EngineError with code "MISSING_REDUCER" if reducer is nil, or
// the first error returned by an Option.
func New[S, U any](g Graph[S, U], reducer Reducer[S, U], options ...Option) (*Engine[S, U], error) {
	if reducer == nil {
		return nil, &EngineError{
			Message: "reducer is required",
			Code:    "MISSING_REDUCER",
		}
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}

	cfg := &engineConfig{}
	for _, opt := range options {
		if err := opt(cfg); err != nil {
			return nil, &EngineError{
				Message: "invalid option: " + err.Error(),
				Code:    "INVALID_OPTION",
				Cause:   err,
			}
		}
	}

	e := &Engine[S, U]{
		graph:   g,
		reducer: reducer,
		opts:    cfg.opts,
		logger:  cfg.opts.Logger,
		emitter: cfg.opts.Emitter,
	}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}
	if e.emitter == nil {
		e.emitter = emit.NewNullEmitter()
	}
	return e, nil
}

// Graph returns the graph the engine was built from.
func (e *Engine[S, U]) Graph() Graph[S, U] {
	return e.graph
}

// Run executes nodes starting at cursor (or the entry node when cursor is
// empty) until a node suspends or a terminal node completes.
//
// Execution semantics:
//  1. Execute the current node under its timeout
//  2. Merge its update into the state via the reducer
//  3. If the node suspended, stop with Cursor set to that node
//  4. If the node has no route, stop with StatusTerminal and an empty Cursor
//  5. Otherwise evaluate the route and continue with the selected node
//
// Parameters:
//   - ctx: Cancellation for the whole run
//   - threadID: Identifier attached to events and logs
//   - cursor: Node to resume at, or "" to start at the entry node
//   - state: State loaded from the last checkpoint
//
// Returns an error (and a zero Outcome) if:
//   - cursor names an unknown node (wraps ErrUnknownCursor)
//   - a node reports Err (code "NODE_ERROR")
//   - a route selects an undeclared target (code "NO_ROUTE")
//   - MaxSteps is exceeded (wraps ErrMaxStepsExceeded)
//   - ctx is cancelled (returns ctx.Err())
func (e *Engine[S, U]) Run(ctx context.Context, threadID, cursor string, state S) (Outcome[S], error) {
	var zero Outcome[S]

	current := cursor
	if current == "" {
		current = e.graph.Entry
	}
	if !e.graph.Has(current) {
		return zero, &EngineError{
			Message: "cannot resume at " + current,
			Code:    "UNKNOWN_CURSOR",
			Cause:   ErrUnknownCursor,
		}
	}

	if m := e.opts.Metrics; m != nil {
		m.UpdateInflightRuns(1)
		defer m.UpdateInflightRuns(-1)
	}

	path := make([]string, 0, 8)
	for step := 1; ; step++ {
		if e.opts.MaxSteps > 0 && step > e.opts.MaxSteps {
			return zero, &EngineError{
				Message: "run exceeded MaxSteps limit at node " + current,
				Code:    "MAX_STEPS_EXCEEDED",
				Cause:   ErrMaxStepsExceeded,
			}
		}

		if err := ctx.Err(); err != nil {
			return zero, err
		}

		node := e.graph.Nodes[current]
		var policy *NodePolicy
		if p, ok := e.graph.Policies[current]; ok {
			policy = &p
		}

		e.emit(threadID, step, current, "node_start", nil)
		started := time.Now()
		result, timedOut := executeNodeWithTimeout(ctx, node, state, policy, e.opts.DefaultNodeTimeout)
		elapsed := time.Since(started)

		status := "success"
		switch {
		case result.Err != nil:
			status = "error"
		case timedOut:
			status = "timeout"
		}
		if m := e.opts.Metrics; m != nil {
			m.RecordStepLatency(current, elapsed, status)
		}

		if result.Err != nil {
			e.emit(threadID, step, current, "node_error", map[string]interface{}{"error": result.Err.Error()})
			return zero, &EngineError{
				Message: "node " + current + " failed: " + result.Err.Error(),
				Code:    "NODE_ERROR",
				Cause:   result.Err,
			}
		}

		// The caller gave up while the node ran; its update must not be kept.
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		state = e.reducer(state, result.Update)
		path = append(path, current)
		e.emit(threadID, step, current, "node_end", map[string]interface{}{
			"latency_ms": elapsed.Milliseconds(),
			"status":     status,
		})
		e.logger.Debug("node completed",
			"thread_id", threadID,
			"node", current,
			"step", step,
			"status", status,
			"suspend", result.Suspend,
		)

		if result.Suspend {
			if m := e.opts.Metrics; m != nil {
				m.IncrementRunOutcome(current, StatusSuspended)
			}
			e.emit(threadID, step, current, "suspend", nil)
			return Outcome[S]{State: state, Cursor: current, Status: StatusSuspended, Path: path}, nil
		}

		route, routed := e.graph.Routes[current]
		if !routed {
			if m := e.opts.Metrics; m != nil {
				m.IncrementRunOutcome(current, StatusTerminal)
			}
			e.emit(threadID, step, current, "terminal", nil)
			return Outcome[S]{State: state, Cursor: "", Status: StatusTerminal, Path: path}, nil
		}

		next := route.Next(state)
		if !route.allows(next) {
			return zero, &EngineError{
				Message: "no valid route from node " + current + " to " + quoteOrEmpty(next),
				Code:    "NO_ROUTE",
			}
		}
		current = next
	}
}

func (e *Engine[S, U]) emit(threadID string, step int, nodeID, msg string, meta map[string]interface{}) {
	e.emitter.Emit(emit.Event{
		ThreadID: threadID,
		Step:     step,
		NodeID:   nodeID,
		Msg:      msg,
		Meta:     meta,
	})
}

func quoteOrEmpty(s string) string {
	if s == "" {
		return "<empty>"
	}
	return s
}

// EngineError represents an error from Engine operations.
type EngineError struct {
	Message string
	Code    string
	Cause   error
}

func (e *EngineError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// Unwrap returns the underlying cause for errors.Is and errors.As.
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// IsCode reports whether err is an EngineError with the given code.
func IsCode(err error, code string) bool {
	var ee *EngineError
	return errors.As(err, &ee) && ee.Code == code
}
