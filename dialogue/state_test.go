package dialogue

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/dialoggraph/action"
)

func TestParseIntent(t *testing.T) {
	tests := []struct {
		in   any
		want Intent
	}{
		{"generateInvoice", IntentGenerateInvoice},
		{"sendEmail", IntentSendEmail},
		{"scheduleMeeting", IntentScheduleMeeting},
		{"SendEmail", IntentUnknown},
		{" sendEmail", IntentUnknown},
		{"unknown", IntentUnknown},
		{nil, IntentUnknown},
		{42.0, IntentUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseIntent(tt.in), "input %v", tt.in)
	}
}

func TestJoinFields(t *testing.T) {
	assert.Equal(t, "", JoinFields(nil))
	assert.Equal(t, "phone.", JoinFields([]string{"phone"}))
	assert.Equal(t, "phone and address.", JoinFields([]string{"phone", "address"}))
	assert.Equal(t, "phone, address, item_name and item_cost.",
		JoinFields([]string{"phone", "address", "item_name", "item_cost"}))
}

func TestAskMissingPhrasing(t *testing.T) {
	s := State{Intent: IntentGenerateInvoice, Invoice: InvoiceSlots{Name: strp("John")}}
	missing := s.Missing()
	assert.Equal(t, []string{SlotPhone, SlotAddress, SlotItemName, SlotItemCost}, missing)

	msg := EnglishPrompter{}.AskMissing(s.Intent, missing)
	assert.Equal(t, "To generate the invoice, please provide the following details: phone, address, item_name and item_cost.", msg)

	single := EnglishPrompter{}.AskMissing(IntentScheduleMeeting, []string{SlotStartTime})
	assert.Equal(t, "To schedule the meeting, please provide the following detail: start_time.", single)
}

func TestMissingPerIntent(t *testing.T) {
	now := time.Now()
	assert.Equal(t, []string{SlotRecipient}, State{Intent: IntentSendEmail}.Missing())
	assert.Empty(t, State{Intent: IntentSendEmail, Email: EmailSlots{Recipient: strp("a@b.c")}}.Missing())
	assert.Equal(t, []string{SlotTitle, SlotRecipientEmail, SlotStartTime}, State{Intent: IntentScheduleMeeting}.Missing())
	assert.Empty(t, State{Intent: IntentScheduleMeeting, Meeting: MeetingSlots{
		Title: strp("x"), RecipientEmail: strp("a@b.c"), StartTime: &now,
	}}.Missing())
	assert.Nil(t, State{Intent: IntentUnknown}.Missing())
}

// randomInvoice returns slots where each field is nil with probability 1/2.
func randomInvoice(rng *rand.Rand) InvoiceSlots {
	pick := func() *string {
		if rng.Intn(2) == 0 {
			return nil
		}
		return strp(string(rune('a' + rng.Intn(26))))
	}
	var cost *float64
	if rng.Intn(2) == 1 {
		cost = floatp(float64(rng.Intn(1000)))
	}
	return InvoiceSlots{Name: pick(), Phone: pick(), Address: pick(), ItemName: pick(), ItemCost: cost}
}

func TestSlotMergeMonotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for run := 0; run < 200; run++ {
		var s State
		for step := 0; step < 10; step++ {
			u := randomInvoice(rng)
			next := Reduce(s, Update{Invoice: u})

			check := func(field string, prev, got, upd any, prevNil, gotNil, updNil bool) {
				if !prevNil {
					assert.False(t, gotNil, "%s cleared by a nil extraction", field)
				}
				if !updNil {
					assert.Equal(t, upd, got, "%s: new non-nil value must win", field)
				} else if !prevNil {
					assert.Equal(t, prev, got, "%s: old value must be kept", field)
				}
			}
			check("name", deref(s.Invoice.Name), deref(next.Invoice.Name), deref(u.Name),
				s.Invoice.Name == nil, next.Invoice.Name == nil, u.Name == nil)
			check("phone", deref(s.Invoice.Phone), deref(next.Invoice.Phone), deref(u.Phone),
				s.Invoice.Phone == nil, next.Invoice.Phone == nil, u.Phone == nil)
			check("item_cost", deref(s.Invoice.ItemCost), deref(next.Invoice.ItemCost), deref(u.ItemCost),
				s.Invoice.ItemCost == nil, next.Invoice.ItemCost == nil, u.ItemCost == nil)
			s = next
		}
	}
}

func TestReduce(t *testing.T) {
	base := State{
		ThreadID: "T",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
		Intent:   IntentSendEmail,
		Email:    EmailSlots{Recipient: strp("bob@example.com"), Satisfied: boolp(false)},
		Input:    "pending",
		Result:   &action.Result{Action: "x"},
	}

	t.Run("append does not alias", func(t *testing.T) {
		prev := base
		prev.Messages = make([]Message, 1, 8)
		prev.Messages[0] = base.Messages[0]

		a := Reduce(prev, Update{Append: say("one")})
		b := Reduce(prev, Update{Append: say("two")})
		assert.Equal(t, "one", a.Messages[1].Content)
		assert.Equal(t, "two", b.Messages[1].Content)
		assert.Len(t, prev.Messages, 1)
	})

	t.Run("draft resets verdict", func(t *testing.T) {
		next := Reduce(base, Update{Draft: &Draft{Subject: "S", Body: "B"}})
		assert.Equal(t, "S", *next.Email.Subject)
		assert.Nil(t, next.Email.Satisfied)
		assert.Equal(t, 1, next.DraftCount)
		assert.Equal(t, "bob@example.com", *next.Email.Recipient)
	})

	t.Run("satisfied replaces", func(t *testing.T) {
		next := Reduce(base, Update{Satisfied: boolp(true)})
		assert.True(t, *next.Email.Satisfied)
		next = Reduce(next, Update{Satisfied: boolp(false)})
		assert.False(t, *next.Email.Satisfied)
	})

	t.Run("consume input", func(t *testing.T) {
		assert.Equal(t, "pending", Reduce(base, Update{}).Input)
		assert.Equal(t, "", Reduce(base, Update{ConsumeInput: true}).Input)
	})

	t.Run("reset task keeps messages", func(t *testing.T) {
		next := Reduce(base, Update{ResetTask: true, Append: []Message{{Role: RoleUser, Content: "new"}}})
		assert.Equal(t, IntentNone, next.Intent)
		assert.Nil(t, next.Email.Recipient)
		assert.Nil(t, next.Result)
		require.Len(t, next.Messages, 2)
		assert.Equal(t, "new", next.Messages[1].Content)
	})
}

func TestStateHelpers(t *testing.T) {
	s := State{Messages: []Message{
		{Role: RoleUser, Content: "u1"},
		{Role: RoleAssistant, Content: "a1"},
		{Role: RoleUser, Content: "u2"},
	}}
	assert.Equal(t, "u2", s.LastUserMessage())
	assert.Equal(t, "a1", s.LastAssistantMessage())

	recent := s.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "a1", recent[0].Content)
	assert.Equal(t, "assistant", recent[0].Role)
	assert.Len(t, s.Recent(0), 3)
}
