package action

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func invoiceSlots() map[string]any {
	return map[string]any{
		"name":      "John",
		"phone":     "0400 000 000",
		"address":   "1 George St, Sydney",
		"item_name": "mouse",
		"item_cost": 50.0,
	}
}

type recordingSink struct {
	got []Invoice
	err error
}

func (s *recordingSink) Deliver(_ context.Context, inv Invoice) error {
	s.got = append(s.got, inv)
	return s.err
}

func TestInvoiceHandler(t *testing.T) {
	sink := &recordingSink{}
	h := NewInvoiceHandler(sink)
	h.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }

	res, err := h.Execute(context.Background(), GenerateInvoice, invoiceSlots())
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, GenerateInvoice, res.Action)
	assert.Contains(t, res.Detail, "John")
	assert.Regexp(t, `^INV-[0-9A-F]{8}$`, res.Payload["number"])
	assert.Equal(t, "2025-01-02T03:04:05Z", res.Payload["issued_at"])

	require.Len(t, sink.got, 1)
	assert.Equal(t, 50.0, sink.got[0].ItemCost)
	assert.Equal(t, res.Payload["number"], sink.got[0].Number)
}

func TestInvoiceHandler_Errors(t *testing.T) {
	t.Run("missing slot", func(t *testing.T) {
		slots := invoiceSlots()
		delete(slots, "phone")
		_, err := NewInvoiceHandler(nil).Execute(context.Background(), GenerateInvoice, slots)
		assert.ErrorIs(t, err, ErrMissingSlot)
	})

	t.Run("numeric string cost", func(t *testing.T) {
		slots := invoiceSlots()
		slots["item_cost"] = "12.5"
		res, err := NewInvoiceHandler(nil).Execute(context.Background(), GenerateInvoice, slots)
		require.NoError(t, err)
		assert.Equal(t, 12.5, res.Payload["item_cost"])
	})

	t.Run("sink failure", func(t *testing.T) {
		sink := &recordingSink{err: errors.New("down")}
		_, err := NewInvoiceHandler(sink).Execute(context.Background(), GenerateInvoice, invoiceSlots())
		assert.Error(t, err)
	})
}

func TestMux(t *testing.T) {
	mux := NewMux()
	mux.Handle(SendEmail, HandlerFunc(func(_ context.Context, name string, _ map[string]any) (Result, error) {
		return Result{Action: name, Success: true}, nil
	}))
	mux.Handle(GenerateInvoice, NewInvoiceHandler(nil))

	res, err := mux.Execute(context.Background(), SendEmail, nil)
	require.NoError(t, err)
	assert.Equal(t, SendEmail, res.Action)

	_, err = mux.Execute(context.Background(), "order_pizza", nil)
	assert.ErrorIs(t, err, ErrUnknownAction)

	assert.Equal(t, []string{GenerateInvoice, SendEmail}, mux.Names())
}
