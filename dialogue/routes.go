package dialogue

import "github.com/dshills/dialoggraph/graph"

// routeIntent sends a classified conversation to its slot check; anything
// outside the supported intents gets the unsupported-intent message.
func routeIntent(s State) string {
	switch s.Intent {
	case IntentGenerateInvoice:
		return CheckInvoiceDetails
	case IntentSendEmail:
		return CheckEmailDetails
	case IntentScheduleMeeting:
		return CheckMeetingDetails
	}
	return PromptForCorrectUserIntent
}

// routeResume runs after the wait node consumed a new message. A task with
// a committed intent goes straight back to its slot check.
func routeResume(s State) string {
	if s.Intent == IntentNone || s.Intent == IntentUnknown {
		return DetermineUserIntent
	}
	return routeIntent(s)
}

// completeness returns a router choosing ask when any required slot of
// the intent is missing and done otherwise.
func completeness(ask, done string) graph.Selector[State] {
	return func(s State) string {
		if len(s.Missing()) > 0 {
			return ask
		}
		return done
	}
}

// routeSatisfaction sends an approved draft; anything else is redrafted.
func routeSatisfaction(s State) string {
	if s.Email.Satisfied != nil && *s.Email.Satisfied && s.Email.HasDraft() {
		return SendEmail
	}
	return DraftEmail
}

// routes is the routing table. Action nodes have no entry: they end the task.
func routes() map[string]graph.Route[State] {
	return map[string]graph.Route[State]{
		DetermineUserIntent: graph.Branch(routeIntent,
			CheckInvoiceDetails, CheckEmailDetails, CheckMeetingDetails, PromptForCorrectUserIntent),
		WaitForUserInput: graph.Branch(routeResume,
			DetermineUserIntent, CheckInvoiceDetails, CheckEmailDetails, CheckMeetingDetails, PromptForCorrectUserIntent),

		CheckInvoiceDetails: graph.Branch(completeness(AskForInvoiceDetails, GenerateInvoice),
			AskForInvoiceDetails, GenerateInvoice),
		CheckEmailDetails: graph.Branch(completeness(AskForEmailDetails, DraftEmail),
			AskForEmailDetails, DraftEmail),
		CheckMeetingDetails: graph.Branch(completeness(AskForMeetingDetails, ScheduleMeeting),
			AskForMeetingDetails, ScheduleMeeting),

		AskForInvoiceDetails:       graph.Fixed[State](WaitForUserInput),
		AskForEmailDetails:         graph.Fixed[State](WaitForUserInput),
		AskForMeetingDetails:       graph.Fixed[State](WaitForUserInput),
		PromptForCorrectUserIntent: graph.Fixed[State](WaitForUserInput),

		DraftEmail:             graph.Fixed[State](PresentEmailDraft),
		PresentEmailDraft:      graph.Fixed[State](WaitForEmailFeedback),
		WaitForEmailFeedback:   graph.Fixed[State](CheckEmailSatisfaction),
		CheckEmailSatisfaction: graph.Branch(routeSatisfaction, SendEmail, DraftEmail),
	}
}
