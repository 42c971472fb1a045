package graph

import (
	"fmt"
	"strings"
)

// Shape selects how a node is drawn by Mermaid.
type Shape int

const (
	// ShapeBox is a plain rectangle.
	ShapeBox Shape = iota
	// ShapeDecision is a rhombus, for nodes whose route branches on their output.
	ShapeDecision
	// ShapeInput is a parallelogram, for nodes that speak to the user.
	ShapeInput
	// ShapeSubroutine is a double-bordered box, for side-effecting nodes.
	ShapeSubroutine
	// ShapeWait is a stadium, for nodes that suspend the run.
	ShapeWait
)

// Overlay highlights runtime information on a rendered graph.
type Overlay struct {
	// Visited lists nodes executed so far, for example Outcome.Path.
	Visited []string
	// Current is the node a thread is suspended at.
	Current string
}

// Mermaid renders the graph as a Mermaid flowchart.
//
// Fixed routes are drawn as solid arrows and conditional routes as dotted
// arrows. The entry node is a circle and terminal nodes are drawn with a
// double border regardless of shape. shape may be nil, in which case every
// other node is a box. Output is deterministic: nodes and edges appear in
// lexical order.
func (g Graph[S, U]) Mermaid(shape func(name string) Shape, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, name := range g.Names() {
		id := mermaidID(name)
		opener, closer := "[", "]"
		switch {
		case name == g.Entry:
			opener, closer = "((", "))"
		case g.Terminal(name):
			opener, closer = "[[", "]]"
		case shape != nil:
			opener, closer = shapeDelims(shape(name))
		}
		label := name
		if p, ok := g.Policies[name]; ok && p.Timeout > 0 {
			label = fmt.Sprintf("%s<br/>timeout %s", name, p.Timeout)
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", id, opener, label, closer)
	}

	for _, from := range sortedKeys(g.Routes) {
		route := g.Routes[from]
		arrow := "-->"
		if len(route.Targets) > 1 {
			arrow = "-.->"
		}
		for _, to := range route.Targets {
			fmt.Fprintf(&sb, "    %s %s %s\n", mermaidID(from), arrow, mermaidID(to))
		}
	}

	if overlay != nil {
		sb.WriteString("\n    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
		seen := make(map[string]bool)
		for _, name := range overlay.Visited {
			if seen[name] || !g.Has(name) {
				continue
			}
			seen[name] = true
			fmt.Fprintf(&sb, "    class %s visited;\n", mermaidID(name))
		}
		if g.Has(overlay.Current) {
			fmt.Fprintf(&sb, "    class %s current;\n", mermaidID(overlay.Current))
		}
	}

	return sb.String()
}

func shapeDelims(s Shape) (string, string) {
	switch s {
	case ShapeDecision:
		return "{", "}"
	case ShapeInput:
		return "[/", "/]"
	case ShapeSubroutine:
		return "[[", "]]"
	case ShapeWait:
		return "([", "])"
	}
	return "[", "]"
}

func mermaidID(name string) string {
	return strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", " ", "_").Replace(name)
}
