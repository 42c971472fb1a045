package dialogue

import (
	"fmt"
	"strings"

	"github.com/dshills/dialoggraph/action"
)

// Prompter renders the assistant messages appended by prompt and action
// nodes. The workflow decides when to speak; a Prompter decides the words.
type Prompter interface {
	// AskMissing asks for the required slots of intent that are still
	// unknown. missing is never empty.
	AskMissing(intent Intent, missing []string) string

	// Unsupported explains which tasks are supported.
	Unsupported() string

	// PresentDraft shows an email draft and asks for approval.
	PresentDraft(recipient, subject, body string) string

	// DraftUnavailable is used when no draft could be generated.
	DraftUnavailable() string

	// ActionSucceeded confirms a finished action.
	ActionSucceeded(res action.Result) string

	// ActionFailed reports that an action could not be completed.
	ActionFailed(name string, err error) string
}

// EnglishPrompter is the default Prompter.
type EnglishPrompter struct{}

var taskNames = map[Intent]string{
	IntentGenerateInvoice: "generate the invoice",
	IntentSendEmail:       "send the email",
	IntentScheduleMeeting: "schedule the meeting",
}

var actionNames = map[string]string{
	action.GenerateInvoice: "generate the invoice",
	action.SendEmail:       "send the email",
	action.ScheduleMeeting: "schedule the meeting",
}

// AskMissing implements Prompter.
func (EnglishPrompter) AskMissing(intent Intent, missing []string) string {
	task, ok := taskNames[intent]
	if !ok {
		task = "continue"
	}
	noun := "details"
	if len(missing) == 1 {
		noun = "detail"
	}
	return fmt.Sprintf("To %s, please provide the following %s: %s", task, noun, JoinFields(missing))
}

// Unsupported implements Prompter.
func (EnglishPrompter) Unsupported() string {
	return "Sorry, I can't help with that. I can help you with:\n" +
		"1. Generating an invoice\n" +
		"2. Drafting and sending an email\n" +
		"3. Scheduling a meeting\n" +
		"What would you like to do?"
}

// PresentDraft implements Prompter.
func (EnglishPrompter) PresentDraft(recipient, subject, body string) string {
	return fmt.Sprintf("Here is the draft email to %s:\n\nSubject: %s\n\n%s\n\nShall I send it?", recipient, subject, body)
}

// DraftUnavailable implements Prompter.
func (EnglishPrompter) DraftUnavailable() string {
	return "I couldn't draft the email just now. Could you tell me a bit more about what it should say?"
}

// ActionSucceeded implements Prompter.
func (EnglishPrompter) ActionSucceeded(res action.Result) string {
	if res.Detail != "" {
		return res.Detail
	}
	return "Done."
}

// ActionFailed implements Prompter.
func (EnglishPrompter) ActionFailed(name string, _ error) string {
	task, ok := actionNames[name]
	if !ok {
		task = "complete your request"
	}
	return fmt.Sprintf("Sorry, I was unable to %s. Please try again later.", task)
}

// JoinFields renders field names as a sentence fragment ending in a
// period: "phone." for one, "phone, address and item_name." for several.
func JoinFields(fields []string) string {
	switch len(fields) {
	case 0:
		return ""
	case 1:
		return fields[0] + "."
	}
	return strings.Join(fields[:len(fields)-1], ", ") + " and " + fields[len(fields)-1] + "."
}
