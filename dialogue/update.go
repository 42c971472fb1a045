package dialogue

import (
	"github.com/dshills/dialoggraph/action"
)

// Update is the sparse change a node makes to State. Zero fields change
// nothing.
type Update struct {
	// Append adds messages to the end of the conversation.
	Append []Message

	// Intent replaces the classified intent.
	Intent *Intent

	// Slot updates merge field by field: non-nil values win.
	Invoice InvoiceSlots
	Email   EmailSlots
	Meeting MeetingSlots

	// Draft replaces the email subject and body and clears the previous
	// satisfaction verdict.
	Draft *Draft

	// Satisfied replaces the verdict on the current draft.
	Satisfied *bool

	// ConsumeInput clears State.Input after a wait node appended it.
	ConsumeInput bool

	// Result records the outcome of a terminal action.
	Result *action.Result

	// ResetTask clears intent, slots, result and draft count before the
	// rest of the update is applied. Messages are kept.
	ResetTask bool
}

// Draft is a generated email.
type Draft struct {
	Subject string
	Body    string
}

// Reduce merges u into prev. It never mutates prev's slices, so states held
// by callers stay valid.
func Reduce(prev State, u Update) State {
	next := prev

	if u.ResetTask {
		next.Intent = IntentNone
		next.Invoice = InvoiceSlots{}
		next.Email = EmailSlots{}
		next.Meeting = MeetingSlots{}
		next.Result = nil
		next.DraftCount = 0
	}

	if len(u.Append) > 0 {
		msgs := make([]Message, 0, len(prev.Messages)+len(u.Append))
		msgs = append(msgs, prev.Messages...)
		next.Messages = append(msgs, u.Append...)
	}

	if u.Intent != nil {
		next.Intent = *u.Intent
	}

	next.Invoice = next.Invoice.Merge(u.Invoice)
	next.Email = next.Email.Merge(u.Email)
	next.Meeting = next.Meeting.Merge(u.Meeting)

	if u.Draft != nil {
		subject, body := u.Draft.Subject, u.Draft.Body
		next.Email.Subject = &subject
		next.Email.Body = &body
		next.Email.Satisfied = nil
		next.DraftCount++
	}
	if u.Satisfied != nil {
		v := *u.Satisfied
		next.Email.Satisfied = &v
	}

	if u.ConsumeInput {
		next.Input = ""
	}
	if u.Result != nil {
		next.Result = u.Result
	}
	return next
}

func say(content string) []Message {
	return []Message{{Role: RoleAssistant, Content: content}}
}
