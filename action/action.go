// Package action runs the side effects that finish a dialogue task:
// generating an invoice, sending an email and scheduling a meeting.
package action

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Action names understood by the dialogue workflow.
const (
	GenerateInvoice = "generate_invoice"
	SendEmail       = "send_email"
	ScheduleMeeting = "schedule_meeting"
)

// Handler executes one named action with the collected slot values.
//
// Slots are keyed by slot name (for example "item_cost") and hold the
// decoded values, never nil for required slots. Implementations must honour
// ctx cancellation. A returned error means the side effect did not happen;
// callers report it to the user and do not retry.
//
// Example implementation:
//
//	type Logger struct{}
//
//	func (Logger) Execute(ctx context.Context, name string, slots map[string]any) (action.Result, error) {
//	    log.Printf("%s: %v", name, slots)
//	    return action.Result{Action: name, Success: true, Detail: "logged"}, nil
//	}
type Handler interface {
	Execute(ctx context.Context, name string, slots map[string]any) (Result, error)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, name string, slots map[string]any) (Result, error)

// Execute implements Handler.
func (f HandlerFunc) Execute(ctx context.Context, name string, slots map[string]any) (Result, error) {
	return f(ctx, name, slots)
}

// Result describes a finished action. It is stored in the conversation
// state and returned to the client.
type Result struct {
	Action  string         `json:"action"`
	Success bool           `json:"success"`
	Detail  string         `json:"detail,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

var (
	// ErrUnknownAction is returned by Mux for names without a handler.
	ErrUnknownAction = errors.New("unknown action")

	// ErrMissingSlot is returned when a required slot is absent or empty.
	ErrMissingSlot = errors.New("required slot missing")
)

// Mux dispatches actions to the handler registered for their name.
// It is safe for concurrent use.
type Mux struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewMux returns an empty Mux.
func NewMux() *Mux {
	return &Mux{handlers: make(map[string]Handler)}
}

// Handle registers h for name, replacing any previous handler.
func (m *Mux) Handle(name string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[name] = h
}

// Names returns the registered action names in sorted order.
func (m *Mux) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.handlers))
	for name := range m.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute implements Handler.
func (m *Mux) Execute(ctx context.Context, name string, slots map[string]any) (Result, error) {
	m.mu.RLock()
	h, ok := m.handlers[name]
	m.mu.RUnlock()
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownAction, name)
	}
	return h.Execute(ctx, name, slots)
}

// decodeSlots copies slots into out (a pointer to a struct tagged with slot
// names). Strings convert to numbers and RFC 3339 strings to time.Time.
func decodeSlots(slots map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "slot",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeHookFunc(time.RFC3339),
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(slots); err != nil {
		return fmt.Errorf("decode slots: %w", err)
	}
	return nil
}

// requireSlots reports ErrMissingSlot for the first empty string among fields.
func requireSlots(fields ...[2]string) error {
	for _, f := range fields {
		if f[1] == "" {
			return fmt.Errorf("%w: %s", ErrMissingSlot, f[0])
		}
	}
	return nil
}
