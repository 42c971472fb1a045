// Package dialogue implements the task-oriented conversation workflow:
// intent classification, multi-turn slot filling and the terminal actions
// that generate an invoice, send an email or schedule a meeting.
package dialogue

import (
	"time"

	"github.com/dshills/dialoggraph/action"
	"github.com/dshills/dialoggraph/graph/model"
)

// Intent is the task the user asked for.
type Intent string

const (
	// IntentNone means no intent has been classified for the current task.
	IntentNone Intent = ""

	IntentGenerateInvoice Intent = "generateInvoice"
	IntentSendEmail       Intent = "sendEmail"
	IntentScheduleMeeting Intent = "scheduleMeeting"

	// IntentUnknown means classification ran and matched nothing supported.
	IntentUnknown Intent = "unknown"
)

// ParseIntent maps a classifier value to an Intent. Only exact literals of
// the supported intents are recognised; anything else is IntentUnknown.
func ParseIntent(v any) Intent {
	s, _ := v.(string)
	switch Intent(s) {
	case IntentGenerateInvoice, IntentSendEmail, IntentScheduleMeeting:
		return Intent(s)
	}
	return IntentUnknown
}

// Role tags a message with its author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of the conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// State is the durable conversation state of one thread.
//
// Messages only ever grow. Slot values are pointers; nil means not yet
// known. The resume cursor is not part of State: it travels next to it in
// the store.Checkpoint envelope.
type State struct {
	ThreadID string    `json:"thread_id"`
	Messages []Message `json:"messages"`
	Intent   Intent    `json:"intent,omitempty"`

	Invoice InvoiceSlots `json:"invoice"`
	Email   EmailSlots   `json:"email"`
	Meeting MeetingSlots `json:"meeting"`

	// Input is user text delivered by the current turn and not yet consumed
	// by a wait node.
	Input string `json:"input,omitempty"`

	// Result is the outcome of the last finished task.
	Result *action.Result `json:"result,omitempty"`

	// DraftCount counts email drafts produced for the current task.
	DraftCount int `json:"draft_count,omitempty"`
}

// InvoiceSlots are the fields needed to generate an invoice.
type InvoiceSlots struct {
	Name     *string  `json:"name,omitempty"`
	Phone    *string  `json:"phone,omitempty"`
	Address  *string  `json:"address,omitempty"`
	ItemName *string  `json:"item_name,omitempty"`
	ItemCost *float64 `json:"item_cost,omitempty"`
}

// EmailSlots are the fields of an outgoing email. Only Recipient comes
// from the user; Subject and Body are drafted, and Satisfied records the
// user's verdict on the latest draft.
type EmailSlots struct {
	Recipient *string `json:"recipient,omitempty"`
	Subject   *string `json:"subject,omitempty"`
	Body      *string `json:"body,omitempty"`
	Satisfied *bool   `json:"satisfied,omitempty"`
}

// MeetingSlots are the fields needed to schedule a meeting.
type MeetingSlots struct {
	Title          *string    `json:"title,omitempty"`
	RecipientEmail *string    `json:"recipient_email,omitempty"`
	StartTime      *time.Time `json:"start_time,omitempty"`
}

// LastUserMessage returns the content of the most recent user message.
func (s State) LastUserMessage() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleUser {
			return s.Messages[i].Content
		}
	}
	return ""
}

// LastAssistantMessage returns the content of the most recent assistant message.
func (s State) LastAssistantMessage() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleAssistant {
			return s.Messages[i].Content
		}
	}
	return ""
}

// Recent returns the last n messages (all of them when n <= 0) in the form
// the extraction collaborator expects.
func (s State) Recent(n int) []model.Message {
	msgs := s.Messages
	if n > 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	out := make([]model.Message, len(msgs))
	for i, m := range msgs {
		role := model.RoleUser
		if m.Role == RoleAssistant {
			role = model.RoleAssistant
		}
		out[i] = model.Message{Role: role, Content: m.Content}
	}
	return out
}
