// Package graph provides the core execution engine for dialogue workflows.
package graph

import "errors"

// ErrMaxStepsExceeded indicates that a single run reached the maximum
// allowed step count without suspending or terminating. This guards against
// routing cycles that never reach a wait node.
var ErrMaxStepsExceeded = errors.New("execution exceeded maximum steps limit")

// ErrInvalidGraph indicates that the node registry and routing table are
// inconsistent (unknown entry, dangling route, undeclared target).
var ErrInvalidGraph = errors.New("invalid workflow graph")

// ErrUnknownCursor indicates that a run was asked to resume at a node that
// is not registered. This happens when a checkpoint written by a different
// workflow version is loaded.
var ErrUnknownCursor = errors.New("cursor does not name a registered node")
