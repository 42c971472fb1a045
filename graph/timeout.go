package graph

import (
	"context"
	"errors"
	"time"
)

// getNodeTimeout determines the timeout duration for a node based on precedence:
// 1. NodePolicy.Timeout (per-node override)
// 2. defaultTimeout (engine-wide default)
// 3. 0 (no timeout, unlimited execution)
func getNodeTimeout(policy *NodePolicy, defaultTimeout time.Duration) time.Duration {
	if policy != nil && policy.Timeout > 0 {
		return policy.Timeout
	}
	if defaultTimeout > 0 {
		return defaultTimeout
	}
	return 0
}

// executeNodeWithTimeout runs node under the timeout selected by getNodeTimeout.
//
// Nodes are expected to observe ctx and degrade on their own when their
// collaborators are cut short, so the node's result is always returned.
// The timedOut flag reports whether the node's deadline fired while it ran,
// which the engine uses for metrics and events only.
//
// A deadline inherited from the parent context is not counted as a node
// timeout; the engine checks the parent separately.
func executeNodeWithTimeout[S, U any](
	ctx context.Context,
	node Node[S, U],
	state S,
	policy *NodePolicy,
	defaultTimeout time.Duration,
) (result NodeResult[U], timedOut bool) {
	timeout := getNodeTimeout(policy, defaultTimeout)
	if timeout == 0 {
		return node.Run(ctx, state), false
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result = node.Run(timeoutCtx, state)

	if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return result, true
	}
	return result, false
}
