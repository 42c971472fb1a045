package emit

import (
	"context"
	"log/slog"
	"sort"
)

// LogEmitter implements Emitter by writing each event as a structured slog
// record.
//
// Events are logged at Debug level, except "node_error" which is logged at
// Warn. Meta entries become attributes in key order, so output is stable.
//
// Example text output:
//
//	level=DEBUG msg=node_end thread_id=t-1 step=2 node=check_invoice_details latency_ms=812 status=success
//
// Usage:
//
//	emitter := emit.NewLogEmitter(logger)
type LogEmitter struct {
	logger *slog.Logger
}

// NewLogEmitter creates a LogEmitter writing to logger. A nil logger falls
// back to slog.Default().
func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{logger: logger}
}

// Emit writes event to the logger.
func (l *LogEmitter) Emit(event Event) {
	level := slog.LevelDebug
	if event.Msg == "node_error" {
		level = slog.LevelWarn
	}

	ctx := context.Background()
	if !l.logger.Enabled(ctx, level) {
		return
	}

	attrs := make([]slog.Attr, 0, 3+len(event.Meta))
	attrs = append(attrs,
		slog.String("thread_id", event.ThreadID),
		slog.Int("step", event.Step),
		slog.String("node", event.NodeID),
	)

	keys := make([]string, 0, len(event.Meta))
	for k := range event.Meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, event.Meta[k]))
	}

	l.logger.LogAttrs(ctx, level, event.Msg, attrs...)
}
