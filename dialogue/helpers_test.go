package dialogue

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dshills/dialoggraph/action"
	"github.com/dshills/dialoggraph/extract"
	"github.com/dshills/dialoggraph/graph/model"
	"github.com/dshills/dialoggraph/graph/store"
)

// scriptedExtractor returns queued results per schema. The last result of
// a queue repeats; an empty queue yields all-nil fields.
type scriptedExtractor struct {
	mu     sync.Mutex
	script map[string][]extract.Fields
	errs   map[string]error
	calls  map[string]int
	last   map[string][]model.Message
}

func newScriptedExtractor() *scriptedExtractor {
	return &scriptedExtractor{
		script: make(map[string][]extract.Fields),
		errs:   make(map[string]error),
		calls:  make(map[string]int),
		last:   make(map[string][]model.Message),
	}
}

func (e *scriptedExtractor) on(schema string, fields ...extract.Fields) *scriptedExtractor {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.script[schema] = append(e.script[schema], fields...)
	return e
}

func (e *scriptedExtractor) fail(schema string, err error) *scriptedExtractor {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errs[schema] = err
	return e
}

func (e *scriptedExtractor) count(schema string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[schema]
}

func (e *scriptedExtractor) Extract(_ context.Context, schema string, msgs []model.Message) (extract.Fields, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls[schema]++
	e.last[schema] = msgs
	if err := e.errs[schema]; err != nil {
		return nil, err
	}
	q := e.script[schema]
	if len(q) == 0 {
		return extract.Fields{}, nil
	}
	if len(q) > 1 {
		e.script[schema] = q[1:]
	}
	return q[0], nil
}

type actionCall struct {
	Name  string
	Slots map[string]any
}

// recordingActions succeeds for every action unless err is set.
type recordingActions struct {
	mu    sync.Mutex
	calls []actionCall
	err   error
}

func (a *recordingActions) Execute(_ context.Context, name string, slots map[string]any) (action.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, actionCall{Name: name, Slots: slots})
	if a.err != nil {
		return action.Result{}, a.err
	}
	return action.Result{
		Action:  name,
		Success: true,
		Detail:  name + " done",
		Payload: map[string]any{"ok": true},
	}, nil
}

func (a *recordingActions) names() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var names []string
	for _, c := range a.calls {
		names = append(names, c.Name)
	}
	return names
}

func newTestService(t *testing.T, ex extract.Extractor, act action.Handler, opts ...Option) (*Service, *store.MemStore[State]) {
	t.Helper()
	st := store.NewMemStore[State]()
	svc, err := NewService(st, ex, act, opts...)
	require.NoError(t, err)
	return svc, st
}

func strp(s string) *string { return &s }

func floatp(f float64) *float64 { return &f }

func boolp(b bool) *bool { return &b }
