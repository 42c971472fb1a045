package dialogue

import "time"

// Slot names as they appear in prompts, extraction schemas and action calls.
const (
	SlotName           = "name"
	SlotPhone          = "phone"
	SlotAddress        = "address"
	SlotItemName       = "item_name"
	SlotItemCost       = "item_cost"
	SlotRecipient      = "recipient"
	SlotSubject        = "subject"
	SlotBody           = "body"
	SlotTitle          = "title"
	SlotRecipientEmail = "recipient_email"
	SlotStartTime      = "start_time"
)

// keep implements the slot merge rule: a non-nil new value wins, otherwise
// the old value is kept. A nil update never clears a known value.
func keep[T any](prev, next *T) *T {
	if next != nil {
		return next
	}
	return prev
}

// Merge returns s with the non-nil fields of u applied.
func (s InvoiceSlots) Merge(u InvoiceSlots) InvoiceSlots {
	return InvoiceSlots{
		Name:     keep(s.Name, u.Name),
		Phone:    keep(s.Phone, u.Phone),
		Address:  keep(s.Address, u.Address),
		ItemName: keep(s.ItemName, u.ItemName),
		ItemCost: keep(s.ItemCost, u.ItemCost),
	}
}

// Missing lists the unknown required invoice slots in prompt order.
func (s InvoiceSlots) Missing() []string {
	var missing []string
	if s.Name == nil {
		missing = append(missing, SlotName)
	}
	if s.Phone == nil {
		missing = append(missing, SlotPhone)
	}
	if s.Address == nil {
		missing = append(missing, SlotAddress)
	}
	if s.ItemName == nil {
		missing = append(missing, SlotItemName)
	}
	if s.ItemCost == nil {
		missing = append(missing, SlotItemCost)
	}
	return missing
}

// Values returns the slots as the map passed to action handlers.
func (s InvoiceSlots) Values() map[string]any {
	return map[string]any{
		SlotName:     deref(s.Name),
		SlotPhone:    deref(s.Phone),
		SlotAddress:  deref(s.Address),
		SlotItemName: deref(s.ItemName),
		SlotItemCost: deref(s.ItemCost),
	}
}

// Merge returns s with the non-nil fields of u applied. Satisfied is not
// merged; it is replaced per turn by the reducer.
func (s EmailSlots) Merge(u EmailSlots) EmailSlots {
	return EmailSlots{
		Recipient: keep(s.Recipient, u.Recipient),
		Subject:   keep(s.Subject, u.Subject),
		Body:      keep(s.Body, u.Body),
		Satisfied: s.Satisfied,
	}
}

// Missing lists the unknown required email slots. Subject and body are
// drafted, so only the recipient is required from the user.
func (s EmailSlots) Missing() []string {
	if s.Recipient == nil {
		return []string{SlotRecipient}
	}
	return nil
}

// HasDraft reports whether both subject and body are known.
func (s EmailSlots) HasDraft() bool {
	return s.Subject != nil && s.Body != nil
}

// Values returns the slots as the map passed to action handlers.
func (s EmailSlots) Values() map[string]any {
	return map[string]any{
		SlotRecipient: deref(s.Recipient),
		SlotSubject:   deref(s.Subject),
		SlotBody:      deref(s.Body),
	}
}

// Merge returns s with the non-nil fields of u applied.
func (s MeetingSlots) Merge(u MeetingSlots) MeetingSlots {
	return MeetingSlots{
		Title:          keep(s.Title, u.Title),
		RecipientEmail: keep(s.RecipientEmail, u.RecipientEmail),
		StartTime:      keep(s.StartTime, u.StartTime),
	}
}

// Missing lists the unknown required meeting slots in prompt order.
func (s MeetingSlots) Missing() []string {
	var missing []string
	if s.Title == nil {
		missing = append(missing, SlotTitle)
	}
	if s.RecipientEmail == nil {
		missing = append(missing, SlotRecipientEmail)
	}
	if s.StartTime == nil {
		missing = append(missing, SlotStartTime)
	}
	return missing
}

// Values returns the slots as the map passed to action handlers.
func (s MeetingSlots) Values() map[string]any {
	values := map[string]any{
		SlotTitle:          deref(s.Title),
		SlotRecipientEmail: deref(s.RecipientEmail),
		SlotStartTime:      nil,
	}
	if s.StartTime != nil {
		values[SlotStartTime] = s.StartTime.Format(time.RFC3339)
	}
	return values
}

// Missing returns the required-but-unknown slots of the state's intent.
func (s State) Missing() []string {
	switch s.Intent {
	case IntentGenerateInvoice:
		return s.Invoice.Missing()
	case IntentSendEmail:
		return s.Email.Missing()
	case IntentScheduleMeeting:
		return s.Meeting.Missing()
	}
	return nil
}

func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
