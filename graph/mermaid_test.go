package graph

import (
	"strings"
	"testing"
	"time"
)

func TestMermaid(t *testing.T) {
	g := loopGraph()
	g.Policies = map[string]NodePolicy{"done": {Timeout: 2 * time.Second}}

	shape := func(name string) Shape {
		if name == "wait" {
			return ShapeWait
		}
		return ShapeBox
	}
	out := g.Mermaid(shape, nil)

	for _, want := range []string{
		"graph TD\n",
		`inc(("inc"))`,
		`wait(["wait"])`,
		`done[["done<br/>timeout 2s"]]`,
		"inc -.-> wait",
		"inc -.-> done",
		"wait --> inc",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "classDef") {
		t.Error("overlay styles rendered without an overlay")
	}

	if again := g.Mermaid(shape, nil); again != out {
		t.Error("output is not deterministic")
	}
}

func TestMermaid_Overlay(t *testing.T) {
	g := loopGraph()
	out := g.Mermaid(nil, &Overlay{
		Visited: []string{"inc", "wait", "inc", "missing"},
		Current: "wait",
	})

	if n := strings.Count(out, "class inc visited;"); n != 1 {
		t.Errorf("inc styled %d times, want 1", n)
	}
	if strings.Contains(out, "missing") {
		t.Error("unknown node styled")
	}
	if !strings.Contains(out, "class wait current;") {
		t.Errorf("current node not styled:\n%s", out)
	}
	if !strings.Contains(out, `wait["wait"]`) {
		t.Errorf("nil shape should draw boxes:\n%s", out)
	}
}
