package dialogue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dshills/dialoggraph/action"
	"github.com/dshills/dialoggraph/extract"
	"github.com/dshills/dialoggraph/graph"
)

// Number of trailing messages sent to extraction: the user's latest
// message and the assistant turn it answers.
const slotWindow = 2

// nodes holds the collaborators shared by all node handlers.
type nodes struct {
	extractor      extract.Extractor
	actions        action.Handler
	prompter       Prompter
	logger         *slog.Logger
	metrics        *Metrics
	extractTimeout time.Duration
}

type nodeResult = graph.NodeResult[Update]

// extractFields calls the extractor under the extraction timeout. Failures are
// logged and reported as an empty result, which reads as all fields nil.
func (n *nodes) extractFields(ctx context.Context, s State, schema string, window int) extract.Fields {
	if n.extractTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.extractTimeout)
		defer cancel()
	}

	fields, err := n.extractor.Extract(ctx, schema, s.Recent(window))
	if err != nil {
		n.logger.Warn("extraction failed, treating as no information",
			"thread_id", s.ThreadID,
			"schema", schema,
			"err", err,
		)
		n.metrics.extractionFailed(schema)
		return extract.Fields{}
	}
	return fields
}

// classify writes the intent of the latest user message.
func (n *nodes) classify(ctx context.Context, s State) nodeResult {
	fields := n.extractFields(ctx, s, extract.SchemaIntent, slotWindow)
	intent := ParseIntent(fields["intent"])
	n.logger.Debug("classified intent", "thread_id", s.ThreadID, "intent", intent)
	return graph.Continue(Update{Intent: &intent})
}

// checkSlots builds a slot-check node that extracts schema and wraps the
// decoded slots into an update.
func checkSlots[T any](n *nodes, schema string, wrap func(T) Update) graph.NodeFunc[State, Update] {
	return func(ctx context.Context, s State) nodeResult {
		fields := n.extractFields(ctx, s, schema, slotWindow)

		var slots T
		if err := extract.Decode(fields, &slots); err != nil {
			n.logger.Warn("discarding undecodable extraction",
				"thread_id", s.ThreadID,
				"schema", schema,
				"err", err,
			)
			n.metrics.extractionFailed(schema)
			return graph.Continue(Update{})
		}
		return graph.Continue(wrap(slots))
	}
}

// ask requests the missing slots of the active intent.
func (n *nodes) ask(_ context.Context, s State) nodeResult {
	return graph.Continue(Update{Append: say(n.prompter.AskMissing(s.Intent, s.Missing()))})
}

// unsupported explains what the assistant can do.
func (n *nodes) unsupported(_ context.Context, _ State) nodeResult {
	return graph.Continue(Update{Append: say(n.prompter.Unsupported())})
}

// wait suspends until the turn carries user input, then appends it once.
func wait(_ context.Context, s State) nodeResult {
	if s.Input == "" {
		return graph.Halt(Update{})
	}
	return graph.Continue(Update{
		Append:       []Message{{Role: RoleUser, Content: s.Input}},
		ConsumeInput: true,
	})
}

// draftEmail generates subject and body from the whole conversation. On
// failure the previous draft, if any, is kept.
func (n *nodes) draftEmail(ctx context.Context, s State) nodeResult {
	fields := n.extractFields(ctx, s, extract.SchemaEmailDraft, 0)
	subject, _ := fields["subject"].(string)
	body, _ := fields["body"].(string)
	if subject == "" || body == "" {
		return graph.Continue(Update{})
	}
	return graph.Continue(Update{Draft: &Draft{Subject: subject, Body: body}})
}

func (n *nodes) presentDraft(_ context.Context, s State) nodeResult {
	if !s.Email.HasDraft() || s.Email.Recipient == nil {
		return graph.Continue(Update{Append: say(n.prompter.DraftUnavailable())})
	}
	msg := n.prompter.PresentDraft(*s.Email.Recipient, *s.Email.Subject, *s.Email.Body)
	return graph.Continue(Update{Append: say(msg)})
}

// checkSatisfaction reads the user's verdict on the draft. Anything but a
// clear approval counts as dissatisfied.
func (n *nodes) checkSatisfaction(ctx context.Context, s State) nodeResult {
	fields := n.extractFields(ctx, s, extract.SchemaEmailSatisfaction, slotWindow)
	satisfied, _ := fields["satisfied"].(bool)
	return graph.Continue(Update{Satisfied: &satisfied})
}

// act builds a terminal action node. Handler failures become a failure
// message and a failed Result; they never fail the run.
func (n *nodes) act(name string, values func(State) map[string]any) graph.NodeFunc[State, Update] {
	return func(ctx context.Context, s State) nodeResult {
		res, err := n.actions.Execute(ctx, name, values(s))
		if err == nil && !res.Success {
			err = errors.New("handler reported failure: " + res.Detail)
		}
		if err != nil {
			n.logger.Warn("action failed",
				"thread_id", s.ThreadID,
				"action", name,
				"err", err,
			)
			n.metrics.actionOutcome(name, false)
			msg := n.prompter.ActionFailed(name, err)
			return graph.Continue(Update{
				Append: say(msg),
				Result: &action.Result{Action: name, Success: false, Detail: msg},
			})
		}

		if res.Action == "" {
			res.Action = name
		}
		n.logger.Info("action completed", "thread_id", s.ThreadID, "action", name)
		n.metrics.actionOutcome(name, true)
		return graph.Continue(Update{
			Append: say(n.prompter.ActionSucceeded(res)),
			Result: &res,
		})
	}
}
