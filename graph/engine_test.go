package graph

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dshills/dialoggraph/graph/emit"
)

// counterState is a small state used across engine tests.
type counterState struct {
	Count int
	Log   []string
	Input string
}

type counterUpdate struct {
	Add     int
	Note    string
	Consume bool
}

func reduceCounter(prev counterState, u counterUpdate) counterState {
	prev.Count += u.Add
	if u.Note != "" {
		prev.Log = append(append([]string(nil), prev.Log...), u.Note)
	}
	if u.Consume {
		prev.Input = ""
	}
	return prev
}

func add(n int, note string) Node[counterState, counterUpdate] {
	return NodeFunc[counterState, counterUpdate](func(ctx context.Context, s counterState) NodeResult[counterUpdate] {
		return Continue(counterUpdate{Add: n, Note: note})
	})
}

// waitNode suspends until Input is set, then consumes it.
var waitNode = NodeFunc[counterState, counterUpdate](func(ctx context.Context, s counterState) NodeResult[counterUpdate] {
	if s.Input == "" {
		return Halt(counterUpdate{Note: "waiting"})
	}
	return Continue(counterUpdate{Note: "got " + s.Input, Consume: true})
})

func loopGraph() Graph[counterState, counterUpdate] {
	return Graph[counterState, counterUpdate]{
		Entry: "inc",
		Nodes: map[string]Node[counterState, counterUpdate]{
			"inc":  add(1, "inc"),
			"wait": waitNode,
			"done": add(100, "done"),
		},
		Routes: map[string]Route[counterState]{
			"inc": Branch(func(s counterState) string {
				if s.Count >= 3 {
					return "done"
				}
				return "wait"
			}, "wait", "done"),
			"wait": Fixed[counterState]("inc"),
		},
	}
}

func TestEngine_SuspendAndResume(t *testing.T) {
	ctx := context.Background()
	engine, err := New(loopGraph(), reduceCounter)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out, err := engine.Run(ctx, "t-1", "", counterState{})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if out.Status != StatusSuspended || out.Cursor != "wait" {
		t.Fatalf("first run stopped with %s at %q, want suspended at wait", out.Status, out.Cursor)
	}
	if out.State.Count != 1 {
		t.Errorf("count = %d, want 1", out.State.Count)
	}
	if got := strings.Join(out.Path, ","); got != "inc,wait" {
		t.Errorf("path = %s", got)
	}

	// Resume twice more; the third inc reaches the terminal node.
	state := out.State
	cursor := out.Cursor
	for i := 0; i < 2; i++ {
		state.Input = "msg"
		out, err = engine.Run(ctx, "t-1", cursor, state)
		if err != nil {
			t.Fatalf("resume %d: %v", i, err)
		}
		state, cursor = out.State, out.Cursor
	}

	if out.Status != StatusTerminal {
		t.Fatalf("status = %s, want terminal", out.Status)
	}
	if out.Cursor != "" {
		t.Errorf("terminal cursor = %q, want empty", out.Cursor)
	}
	if out.State.Count != 103 {
		t.Errorf("count = %d, want 103", out.State.Count)
	}
	if got := strings.Join(out.Path, ","); got != "wait,inc,done" {
		t.Errorf("final path = %s", got)
	}
}

func TestEngine_ResumeAtUnknownCursor(t *testing.T) {
	engine, err := New(loopGraph(), reduceCounter)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = engine.Run(context.Background(), "t", "gone", counterState{})
	if !errors.Is(err, ErrUnknownCursor) {
		t.Fatalf("err = %v, want ErrUnknownCursor", err)
	}
	if !IsCode(err, "UNKNOWN_CURSOR") {
		t.Errorf("err code mismatch: %v", err)
	}
}

func TestEngine_MaxSteps(t *testing.T) {
	g := Graph[counterState, counterUpdate]{
		Entry: "a",
		Nodes: map[string]Node[counterState, counterUpdate]{
			"a": add(1, ""),
			"b": add(1, ""),
		},
		Routes: map[string]Route[counterState]{
			"a": Fixed[counterState]("b"),
			"b": Fixed[counterState]("a"),
		},
	}
	engine, err := New(g, reduceCounter, WithMaxSteps(10))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = engine.Run(context.Background(), "t", "", counterState{})
	if !errors.Is(err, ErrMaxStepsExceeded) {
		t.Fatalf("err = %v, want ErrMaxStepsExceeded", err)
	}
}

func TestEngine_NoRoute(t *testing.T) {
	g := Graph[counterState, counterUpdate]{
		Entry: "a",
		Nodes: map[string]Node[counterState, counterUpdate]{
			"a": add(1, ""),
			"b": add(1, ""),
		},
		Routes: map[string]Route[counterState]{
			"a": Branch(func(counterState) string { return "nowhere" }, "b"),
		},
	}
	engine, err := New(g, reduceCounter)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = engine.Run(context.Background(), "t", "", counterState{})
	if !IsCode(err, "NO_ROUTE") {
		t.Fatalf("err = %v, want NO_ROUTE", err)
	}
}

func TestEngine_NodeErrorAborts(t *testing.T) {
	boom := errors.New("boom")
	g := Graph[counterState, counterUpdate]{
		Entry: "a",
		Nodes: map[string]Node[counterState, counterUpdate]{
			"a": NodeFunc[counterState, counterUpdate](func(context.Context, counterState) NodeResult[counterUpdate] {
				return Fail[counterUpdate](boom)
			}),
		},
	}
	buf := emit.NewBufferedEmitter()
	engine, err := New(g, reduceCounter, WithEmitter(buf))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = engine.Run(context.Background(), "t", "", counterState{})
	if !errors.Is(err, boom) || !IsCode(err, "NODE_ERROR") {
		t.Fatalf("err = %v, want wrapped boom with NODE_ERROR", err)
	}
	if n := len(buf.GetHistoryWithFilter("t", emit.HistoryFilter{Msg: "node_error"})); n != 1 {
		t.Errorf("node_error events = %d, want 1", n)
	}
}

func TestEngine_CancelledContextPersistsNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g := Graph[counterState, counterUpdate]{
		Entry: "a",
		Nodes: map[string]Node[counterState, counterUpdate]{
			"a": NodeFunc[counterState, counterUpdate](func(context.Context, counterState) NodeResult[counterUpdate] {
				cancel()
				return Continue(counterUpdate{Add: 1})
			}),
		},
	}
	engine, err := New(g, reduceCounter)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out, err := engine.Run(ctx, "t", "", counterState{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if out.State.Count != 0 || out.Cursor != "" {
		t.Errorf("cancelled run returned partial outcome %+v", out)
	}
}

func TestEngine_NodeTimeoutIsObservedNotFatal(t *testing.T) {
	slow := NodeFunc[counterState, counterUpdate](func(ctx context.Context, s counterState) NodeResult[counterUpdate] {
		<-ctx.Done()
		return Continue(counterUpdate{Note: "degraded"})
	})
	g := Graph[counterState, counterUpdate]{
		Entry:    "slow",
		Nodes:    map[string]Node[counterState, counterUpdate]{"slow": slow},
		Policies: map[string]NodePolicy{"slow": {Timeout: 10 * time.Millisecond}},
	}

	registry := prometheus.NewRegistry()
	metrics := NewPrometheusMetrics(registry)
	buf := emit.NewBufferedEmitter()
	engine, err := New(g, reduceCounter, WithMetrics(metrics), WithEmitter(buf), WithDefaultNodeTimeout(time.Hour))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out, err := engine.Run(context.Background(), "t", "", counterState{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Status != StatusTerminal || len(out.State.Log) != 1 || out.State.Log[0] != "degraded" {
		t.Fatalf("unexpected outcome %+v", out)
	}

	ends := buf.GetHistoryWithFilter("t", emit.HistoryFilter{Msg: "node_end"})
	if len(ends) != 1 || ends[0].Meta["status"] != "timeout" {
		t.Errorf("node_end events = %+v, want one with status timeout", ends)
	}
	if got := testutil.ToFloat64(metrics.runOutcomes.WithLabelValues("slow", "terminal")); got != 1 {
		t.Errorf("run_outcomes_total{slow,terminal} = %v, want 1", got)
	}
}

func TestEngine_EmitsLifecycleEvents(t *testing.T) {
	buf := emit.NewBufferedEmitter()
	engine, err := New(loopGraph(), reduceCounter, WithEmitter(buf))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := engine.Run(context.Background(), "t-ev", "", counterState{}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var msgs []string
	for _, ev := range buf.GetHistory("t-ev") {
		msgs = append(msgs, ev.NodeID+":"+ev.Msg)
	}
	want := "inc:node_start,inc:node_end,wait:node_start,wait:node_end,wait:suspend"
	if got := strings.Join(msgs, ","); got != want {
		t.Errorf("events = %s\nwant     %s", got, want)
	}

	for _, ev := range buf.GetHistoryWithFilter("t-ev", emit.HistoryFilter{Msg: "node_end"}) {
		if _, ok := ev.Meta["latency_ms"].(int64); !ok {
			t.Errorf("%s latency_ms = %T, want int64 milliseconds", ev.NodeID, ev.Meta["latency_ms"])
		}
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name  string
		graph Graph[counterState, counterUpdate]
	}{
		{
			name:  "missing entry",
			graph: Graph[counterState, counterUpdate]{Nodes: map[string]Node[counterState, counterUpdate]{"a": add(1, "")}},
		},
		{
			name:  "unregistered entry",
			graph: Graph[counterState, counterUpdate]{Entry: "x", Nodes: map[string]Node[counterState, counterUpdate]{"a": add(1, "")}},
		},
		{
			name: "nil node",
			graph: Graph[counterState, counterUpdate]{
				Entry: "a",
				Nodes: map[string]Node[counterState, counterUpdate]{"a": add(1, ""), "b": nil},
			},
		},
		{
			name: "route from unknown node",
			graph: Graph[counterState, counterUpdate]{
				Entry:  "a",
				Nodes:  map[string]Node[counterState, counterUpdate]{"a": add(1, "")},
				Routes: map[string]Route[counterState]{"ghost": Fixed[counterState]("a")},
			},
		},
		{
			name: "route to unknown node",
			graph: Graph[counterState, counterUpdate]{
				Entry:  "a",
				Nodes:  map[string]Node[counterState, counterUpdate]{"a": add(1, "")},
				Routes: map[string]Route[counterState]{"a": Fixed[counterState]("ghost")},
			},
		},
		{
			name: "route without targets",
			graph: Graph[counterState, counterUpdate]{
				Entry:  "a",
				Nodes:  map[string]Node[counterState, counterUpdate]{"a": add(1, "")},
				Routes: map[string]Route[counterState]{"a": Branch[counterState](func(counterState) string { return "a" })},
			},
		},
		{
			name: "policy for unknown node",
			graph: Graph[counterState, counterUpdate]{
				Entry:    "a",
				Nodes:    map[string]Node[counterState, counterUpdate]{"a": add(1, "")},
				Policies: map[string]NodePolicy{"ghost": {Timeout: time.Second}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.graph, reduceCounter)
			if !errors.Is(err, ErrInvalidGraph) {
				t.Fatalf("err = %v, want ErrInvalidGraph", err)
			}
		})
	}
}

func TestNew_RequiresReducer(t *testing.T) {
	_, err := New[counterState, counterUpdate](loopGraph(), nil)
	if !IsCode(err, "MISSING_REDUCER") {
		t.Fatalf("err = %v, want MISSING_REDUCER", err)
	}
}

func TestNew_RejectsInvalidOption(t *testing.T) {
	_, err := New(loopGraph(), reduceCounter, WithMaxSteps(-1))
	if !IsCode(err, "INVALID_OPTION") {
		t.Fatalf("err = %v, want INVALID_OPTION", err)
	}
}

func TestGraph_Terminal(t *testing.T) {
	g := loopGraph()
	if !g.Terminal("done") {
		t.Error("done should be terminal")
	}
	if g.Terminal("inc") || g.Terminal("ghost") {
		t.Error("routed or unknown nodes reported terminal")
	}
	if got := strings.Join(g.Names(), ","); got != "done,inc,wait" {
		t.Errorf("Names = %s", got)
	}
}

func TestGetNodeTimeout(t *testing.T) {
	if got := getNodeTimeout(nil, 0); got != 0 {
		t.Errorf("no policy, no default = %v", got)
	}
	if got := getNodeTimeout(nil, time.Second); got != time.Second {
		t.Errorf("default = %v", got)
	}
	if got := getNodeTimeout(&NodePolicy{Timeout: time.Minute}, time.Second); got != time.Minute {
		t.Errorf("policy override = %v", got)
	}
}
