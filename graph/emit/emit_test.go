package emit

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestBufferedEmitter_HistoryPerThread(t *testing.T) {
	b := NewBufferedEmitter()
	b.Emit(Event{ThreadID: "t-1", Step: 1, NodeID: "classify", Msg: "node_start"})
	b.Emit(Event{ThreadID: "t-1", Step: 1, NodeID: "classify", Msg: "node_end"})
	b.Emit(Event{ThreadID: "t-2", Step: 1, NodeID: "wait", Msg: "suspend"})

	if got := len(b.GetHistory("t-1")); got != 2 {
		t.Fatalf("t-1 history = %d events, want 2", got)
	}
	if got := b.GetHistory("missing"); got == nil || len(got) != 0 {
		t.Fatalf("missing thread history = %#v, want empty non-nil slice", got)
	}

	ends := b.GetHistoryWithFilter("t-1", HistoryFilter{Msg: "node_end"})
	if len(ends) != 1 || ends[0].NodeID != "classify" {
		t.Errorf("filtered history = %+v", ends)
	}

	b.Clear("t-1")
	if got := len(b.GetHistory("t-1")); got != 0 {
		t.Errorf("after Clear(t-1) history = %d, want 0", got)
	}
	if got := len(b.GetHistory("t-2")); got != 1 {
		t.Errorf("Clear(t-1) removed t-2 events: %d left", got)
	}

	b.Clear("")
	if got := len(b.GetHistory("t-2")); got != 0 {
		t.Errorf("after Clear(\"\") history = %d, want 0", got)
	}
}

func TestBufferedEmitter_ReturnsCopy(t *testing.T) {
	b := NewBufferedEmitter()
	b.Emit(Event{ThreadID: "t", NodeID: "a"})

	h := b.GetHistory("t")
	h[0].NodeID = "mutated"

	if b.GetHistory("t")[0].NodeID != "a" {
		t.Error("GetHistory exposed internal storage")
	}
}

func TestLogEmitter_WritesStructuredRecord(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	NewLogEmitter(logger).Emit(Event{
		ThreadID: "t-9",
		Step:     3,
		NodeID:   "ask_for_invoice_details",
		Msg:      "node_end",
		Meta:     map[string]interface{}{"status": "success", "latency_ms": int64(5)},
	})

	out := buf.String()
	for _, want := range []string{
		"msg=node_end",
		"thread_id=t-9",
		"step=3",
		"node=ask_for_invoice_details",
		"status=success",
		"latency_ms=5",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestLogEmitter_ErrorsAtWarn(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	e := NewLogEmitter(logger)

	e.Emit(Event{ThreadID: "t", Msg: "node_start"})
	if buf.Len() != 0 {
		t.Fatalf("debug event written at warn level: %q", buf.String())
	}

	e.Emit(Event{ThreadID: "t", Msg: "node_error", Meta: map[string]interface{}{"error": "boom"}})
	if !strings.Contains(buf.String(), "level=WARN") {
		t.Errorf("node_error not logged at warn: %q", buf.String())
	}
}

func TestMulti_FansOutAndSkipsNil(t *testing.T) {
	a, b := NewBufferedEmitter(), NewBufferedEmitter()
	m := Multi(a, nil, b)

	m.Emit(Event{ThreadID: "t", Msg: "suspend"})

	if len(a.GetHistory("t")) != 1 || len(b.GetHistory("t")) != 1 {
		t.Error("Multi did not deliver to every emitter")
	}
}

func TestNullEmitter_Discards(t *testing.T) {
	NewNullEmitter().Emit(Event{ThreadID: "t"})
}

func TestOTelEmitter_Emit(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	emitter := NewOTelEmitter(tp.Tracer("test"))
	emitter.Emit(Event{
		ThreadID: "t-1",
		Step:     2,
		NodeID:   "generate_invoice",
		Msg:      "node_end",
		Meta: map[string]interface{}{
			"latency_ms": int64(1500),
			"status":     "success",
		},
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != "node_end" {
		t.Errorf("span name = %q, want node_end", span.Name)
	}

	attrs := attributeMap(span.Attributes)
	if got := attrs["dialoggraph.thread_id"]; got != "t-1" {
		t.Errorf("thread_id = %v", got)
	}
	if got := attrs["dialoggraph.step"]; got != int64(2) {
		t.Errorf("step = %v", got)
	}
	if got := attrs["dialoggraph.node.latency_ms"]; got != int64(1500) {
		t.Errorf("latency = %v", got)
	}
	if got := attrs["dialoggraph.status"]; got != "success" {
		t.Errorf("status = %v", got)
	}
}

func TestOTelEmitter_ErrorStatus(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	emitter := NewOTelEmitter(tp.Tracer("test"))
	if err := emitter.EmitBatch(context.Background(), []Event{
		{ThreadID: "t", Msg: "node_start"},
		{ThreadID: "t", Msg: "node_error", Meta: map[string]interface{}{"error": "extraction failed"}},
	}); err != nil {
		t.Fatalf("EmitBatch: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[1].Status.Code != codes.Error {
		t.Errorf("status = %v, want Error", spans[1].Status.Code)
	}
	if spans[0].Status.Code == codes.Error {
		t.Error("non-error event marked as error")
	}
}

func attributeMap(attrs []attribute.KeyValue) map[string]interface{} {
	m := make(map[string]interface{}, len(attrs))
	for _, kv := range attrs {
		m[string(kv.Key)] = kv.Value.AsInterface()
	}
	return m
}
