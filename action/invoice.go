package action

import (
	"context"
	"fmt"
	"time"
)

// Invoice is the document produced by InvoiceHandler.
type Invoice struct {
	Number   string    `json:"number"`
	IssuedAt time.Time `json:"issued_at"`
	Name     string    `json:"name" slot:"name"`
	Phone    string    `json:"phone" slot:"phone"`
	Address  string    `json:"address" slot:"address"`
	ItemName string    `json:"item_name" slot:"item_name"`
	ItemCost float64   `json:"item_cost" slot:"item_cost"`
}

// InvoiceSink receives generated invoices, for example to deliver or
// archive them. A nil sink only generates.
type InvoiceSink interface {
	Deliver(ctx context.Context, inv Invoice) error
}

// InvoiceHandler generates invoices from the invoice slots.
type InvoiceHandler struct {
	sink InvoiceSink
	now  func() time.Time
}

// NewInvoiceHandler returns an InvoiceHandler delivering to sink, which may be nil.
func NewInvoiceHandler(sink InvoiceSink) *InvoiceHandler {
	return &InvoiceHandler{sink: sink, now: time.Now}
}

// Execute implements Handler.
func (h *InvoiceHandler) Execute(ctx context.Context, name string, slots map[string]any) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	var inv Invoice
	if err := decodeSlots(slots, &inv); err != nil {
		return Result{}, err
	}
	if err := requireSlots(
		[2]string{"name", inv.Name},
		[2]string{"phone", inv.Phone},
		[2]string{"address", inv.Address},
		[2]string{"item_name", inv.ItemName},
	); err != nil {
		return Result{}, err
	}
	if inv.ItemCost < 0 {
		return Result{}, fmt.Errorf("invalid item_cost %v", inv.ItemCost)
	}

	inv.Number = invoiceNumber(ctx)
	inv.IssuedAt = h.now().UTC()

	if h.sink != nil {
		if err := h.sink.Deliver(ctx, inv); err != nil {
			return Result{}, fmt.Errorf("deliver invoice %s: %w", inv.Number, err)
		}
	}

	return Result{
		Action:  name,
		Success: true,
		Detail:  fmt.Sprintf("Invoice %s for %s (%s, %.2f) has been generated.", inv.Number, inv.Name, inv.ItemName, inv.ItemCost),
		Payload: map[string]any{
			"number":    inv.Number,
			"issued_at": inv.IssuedAt.Format(time.RFC3339),
			"name":      inv.Name,
			"phone":     inv.Phone,
			"address":   inv.Address,
			"item_name": inv.ItemName,
			"item_cost": inv.ItemCost,
		},
	}, nil
}
