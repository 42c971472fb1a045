package graph

import "time"

// NodePolicy configures the execution behavior for a specific node.
//
// Policies are attached to nodes through Graph.Policies. If not specified,
// the engine-wide defaults from Options are used.
type NodePolicy struct {
	// Timeout is the maximum execution time allowed for this node.
	// If zero, Options.DefaultNodeTimeout is used.
	Timeout time.Duration
}
