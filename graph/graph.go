package graph

import (
	"fmt"
	"sort"
)

// Graph is the static description of a workflow: a node registry, a routing
// table and an entry node.
//
// Graphs are plain data. They are assembled once at startup, validated by
// New, and never mutated afterwards, which keeps the engine free of locks
// on the hot path.
//
// Example:
//
//	g := graph.Graph[State, Update]{
//	    Entry: "classify",
//	    Nodes: map[string]graph.Node[State, Update]{
//	        "classify": classifyNode,
//	        "ask":      askNode,
//	        "wait":     waitNode,
//	        "act":      actNode,
//	    },
//	    Routes: map[string]graph.Route[State]{
//	        "classify": graph.Branch(pick, "ask", "act"),
//	        "ask":      graph.Fixed[State]("wait"),
//	        "wait":     graph.Fixed[State]("classify"),
//	    },
//	}
type Graph[S, U any] struct {
	// Entry is the node executed when a run starts without a cursor.
	Entry string

	// Nodes maps node names to implementations.
	Nodes map[string]Node[S, U]

	// Routes maps node names to their outgoing transition.
	// Nodes absent from this map are terminal.
	Routes map[string]Route[S]

	// Policies optionally overrides execution policy per node.
	Policies map[string]NodePolicy
}

// Validate checks that the graph is internally consistent:
//   - the entry node is registered
//   - no registered node is nil
//   - every routed node is registered and declares at least one target
//   - every declared target is registered
//
// Errors wrap ErrInvalidGraph.
func (g Graph[S, U]) Validate() error {
	if g.Entry == "" {
		return fmt.Errorf("%w: entry node not set", ErrInvalidGraph)
	}
	if _, ok := g.Nodes[g.Entry]; !ok {
		return fmt.Errorf("%w: entry node %q is not registered", ErrInvalidGraph, g.Entry)
	}

	for _, name := range sortedKeys(g.Nodes) {
		if name == "" {
			return fmt.Errorf("%w: empty node name", ErrInvalidGraph)
		}
		if g.Nodes[name] == nil {
			return fmt.Errorf("%w: node %q is nil", ErrInvalidGraph, name)
		}
	}

	for _, from := range sortedKeys(g.Routes) {
		route := g.Routes[from]
		if _, ok := g.Nodes[from]; !ok {
			return fmt.Errorf("%w: route from unregistered node %q", ErrInvalidGraph, from)
		}
		if route.Next == nil || len(route.Targets) == 0 {
			return fmt.Errorf("%w: route from %q has no targets", ErrInvalidGraph, from)
		}
		for _, to := range route.Targets {
			if _, ok := g.Nodes[to]; !ok {
				return fmt.Errorf("%w: route %q -> %q targets an unregistered node", ErrInvalidGraph, from, to)
			}
		}
	}

	for name := range g.Policies {
		if _, ok := g.Nodes[name]; !ok {
			return fmt.Errorf("%w: policy for unregistered node %q", ErrInvalidGraph, name)
		}
	}

	return nil
}

// Has reports whether name is a registered node.
func (g Graph[S, U]) Has(name string) bool {
	_, ok := g.Nodes[name]
	return ok
}

// Terminal reports whether name is a registered node without a route.
func (g Graph[S, U]) Terminal(name string) bool {
	if !g.Has(name) {
		return false
	}
	_, routed := g.Routes[name]
	return !routed
}

// Names returns the registered node names in lexical order.
func (g Graph[S, U]) Names() []string {
	return sortedKeys(g.Nodes)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
