package dialogue

import (
	"time"

	"github.com/dshills/dialoggraph/action"
	"github.com/dshills/dialoggraph/extract"
	"github.com/dshills/dialoggraph/graph"
)

// Node names of the dialogue workflow.
const (
	DetermineUserIntent        = "determine_user_intent"
	PromptForCorrectUserIntent = "prompt_for_correct_user_intent"

	CheckInvoiceDetails  = "check_invoice_details"
	AskForInvoiceDetails = "ask_for_invoice_details"
	GenerateInvoice      = "generate_invoice"

	CheckEmailDetails      = "check_email_details"
	AskForEmailDetails     = "ask_for_email_details"
	DraftEmail             = "draft_email"
	PresentEmailDraft      = "present_email_draft"
	WaitForEmailFeedback   = "wait_for_email_feedback"
	CheckEmailSatisfaction = "check_email_satisfaction"
	SendEmail              = "send_email"

	CheckMeetingDetails  = "check_meeting_details"
	AskForMeetingDetails = "ask_for_meeting_details"
	ScheduleMeeting      = "schedule_meeting"

	WaitForUserInput = "wait_for_user_input"
)

// Node kinds, used for diagrams and logs.
const (
	KindClassifier = "classifier"
	KindSlotCheck  = "slot-check"
	KindPrompt     = "prompt"
	KindGenerator  = "generator"
	KindAction     = "action"
	KindWait       = "wait"
)

var nodeKinds = map[string]string{
	DetermineUserIntent:        KindClassifier,
	CheckEmailSatisfaction:     KindClassifier,
	CheckInvoiceDetails:        KindSlotCheck,
	CheckEmailDetails:          KindSlotCheck,
	CheckMeetingDetails:        KindSlotCheck,
	AskForInvoiceDetails:       KindPrompt,
	AskForEmailDetails:         KindPrompt,
	AskForMeetingDetails:       KindPrompt,
	PromptForCorrectUserIntent: KindPrompt,
	PresentEmailDraft:          KindPrompt,
	DraftEmail:                 KindGenerator,
	GenerateInvoice:            KindAction,
	SendEmail:                  KindAction,
	ScheduleMeeting:            KindAction,
	WaitForUserInput:           KindWait,
	WaitForEmailFeedback:       KindWait,
}

// NodeKind returns the category of a workflow node, or "" if unknown.
func NodeKind(name string) string {
	return nodeKinds[name]
}

// newGraph assembles the node registry and routing table. The result is
// validated by graph.New.
func newGraph(n *nodes, actionTimeout time.Duration) graph.Graph[State, Update] {
	registry := map[string]graph.Node[State, Update]{
		DetermineUserIntent:        graph.NodeFunc[State, Update](n.classify),
		PromptForCorrectUserIntent: graph.NodeFunc[State, Update](n.unsupported),

		CheckInvoiceDetails: checkSlots(n, extract.SchemaInvoice, func(v InvoiceSlots) Update {
			return Update{Invoice: v}
		}),
		AskForInvoiceDetails: graph.NodeFunc[State, Update](n.ask),
		GenerateInvoice: n.act(action.GenerateInvoice, func(s State) map[string]any {
			return s.Invoice.Values()
		}),

		CheckEmailDetails: checkSlots(n, extract.SchemaEmail, func(v EmailSlots) Update {
			return Update{Email: v}
		}),
		AskForEmailDetails:     graph.NodeFunc[State, Update](n.ask),
		DraftEmail:             graph.NodeFunc[State, Update](n.draftEmail),
		PresentEmailDraft:      graph.NodeFunc[State, Update](n.presentDraft),
		WaitForEmailFeedback:   graph.NodeFunc[State, Update](wait),
		CheckEmailSatisfaction: graph.NodeFunc[State, Update](n.checkSatisfaction),
		SendEmail: n.act(action.SendEmail, func(s State) map[string]any {
			return s.Email.Values()
		}),

		CheckMeetingDetails: checkSlots(n, extract.SchemaMeeting, func(v MeetingSlots) Update {
			return Update{Meeting: v}
		}),
		AskForMeetingDetails: graph.NodeFunc[State, Update](n.ask),
		ScheduleMeeting: n.act(action.ScheduleMeeting, func(s State) map[string]any {
			return s.Meeting.Values()
		}),

		WaitForUserInput: graph.NodeFunc[State, Update](wait),
	}

	var policies map[string]graph.NodePolicy
	if actionTimeout > 0 {
		policies = map[string]graph.NodePolicy{
			GenerateInvoice: {Timeout: actionTimeout},
			SendEmail:       {Timeout: actionTimeout},
			ScheduleMeeting: {Timeout: actionTimeout},
		}
	}

	return graph.Graph[State, Update]{
		Entry:    DetermineUserIntent,
		Nodes:    registry,
		Routes:   routes(),
		Policies: policies,
	}
}

// Shape maps a node to its Mermaid shape by kind.
func Shape(name string) graph.Shape {
	switch NodeKind(name) {
	case KindClassifier, KindSlotCheck:
		return graph.ShapeDecision
	case KindPrompt:
		return graph.ShapeInput
	case KindAction, KindGenerator:
		return graph.ShapeSubroutine
	case KindWait:
		return graph.ShapeWait
	}
	return graph.ShapeBox
}
