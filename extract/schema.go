package extract

import (
	"fmt"
	"sort"

	"github.com/xeipuuv/gojsonschema"
)

// Schema names registered by DefaultRegistry.
const (
	SchemaIntent            = "intent"
	SchemaInvoice           = "invoice"
	SchemaEmail             = "email"
	SchemaMeeting           = "meeting"
	SchemaEmailDraft        = "email_draft"
	SchemaEmailSatisfaction = "email_satisfaction"
)

// Schema describes one extraction request: the instruction given to the
// model, the fields it must return and the JSON Schema each reply is
// validated against.
type Schema struct {
	Name        string
	Instruction string
	Fields      []string
	JSON        string

	compiled *gojsonschema.Schema
}

// Registry maps schema names to compiled schemas. It is read-only after
// construction and safe for concurrent use.
type Registry struct {
	schemas map[string]*Schema
}

// NewRegistry compiles schemas and returns a registry holding them.
func NewRegistry(schemas ...Schema) (*Registry, error) {
	r := &Registry{schemas: make(map[string]*Schema, len(schemas))}
	for i := range schemas {
		s := schemas[i]
		if s.Name == "" || len(s.Fields) == 0 {
			return nil, fmt.Errorf("schema %q: name and fields are required", s.Name)
		}
		if _, dup := r.schemas[s.Name]; dup {
			return nil, fmt.Errorf("schema %q registered twice", s.Name)
		}
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s.JSON))
		if err != nil {
			return nil, fmt.Errorf("schema %q: %w", s.Name, err)
		}
		s.compiled = compiled
		r.schemas[s.Name] = &s
	}
	return r, nil
}

// Lookup returns the schema called name.
func (r *Registry) Lookup(name string) (*Schema, error) {
	s, ok := r.schemas[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSchema, name)
	}
	return s, nil
}

// Names returns the registered schema names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry returns the schemas used by the dialogue workflow.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(defaultSchemas...)
	if err != nil {
		panic("extract: invalid built-in schema: " + err.Error())
	}
	return r
}

var defaultSchemas = []Schema{
	{
		Name: SchemaIntent,
		Instruction: "You are an expert at classifying a user's intent when they provide instructions. " +
			"Classify the intent strictly as one of the following: " +
			"'generateInvoice' if the user wants to create or generate an invoice, " +
			"'sendEmail' if the user wants to draft or send an email, " +
			"'scheduleMeeting' if the user wants to arrange, book or plan a meeting. " +
			"Use null if the intent matches none of these.",
		Fields: []string{"intent"},
		JSON: `{
			"type": "object",
			"properties": {
				"intent": {"enum": ["generateInvoice", "sendEmail", "scheduleMeeting", null]}
			}
		}`,
	},
	{
		Name: SchemaInvoice,
		Instruction: "Extract the invoice details mentioned by the user: " +
			"name (the person or company the invoice is for), phone (their phone number), " +
			"address (their address), item_name (the item or service being invoiced) " +
			"and item_cost (its cost as a number).",
		Fields: []string{"name", "phone", "address", "item_name", "item_cost"},
		JSON: `{
			"type": "object",
			"properties": {
				"name":      {"type": ["string", "null"], "minLength": 1},
				"phone":     {"type": ["string", "null"], "minLength": 1},
				"address":   {"type": ["string", "null"], "minLength": 1},
				"item_name": {"type": ["string", "null"], "minLength": 1},
				"item_cost": {
					"type": ["number", "string", "null"],
					"minimum": 0,
					"pattern": "^[0-9]+(\\.[0-9]+)?$"
				}
			}
		}`,
	},
	{
		Name: SchemaEmail,
		Instruction: "Extract the email details mentioned by the user: " +
			"recipient (the recipient's email address), subject and body " +
			"(only if the user dictated them).",
		Fields: []string{"recipient", "subject", "body"},
		JSON: `{
			"type": "object",
			"properties": {
				"recipient": {"type": ["string", "null"], "format": "email"},
				"subject":   {"type": ["string", "null"], "minLength": 1},
				"body":      {"type": ["string", "null"], "minLength": 1}
			}
		}`,
	},
	{
		Name: SchemaMeeting,
		Instruction: "Extract the meeting details mentioned by the user: " +
			"title (what the meeting is about), recipient_email (the invitee's email address) " +
			"and start_time (an RFC 3339 timestamp including the timezone offset).",
		Fields: []string{"title", "recipient_email", "start_time"},
		JSON: `{
			"type": "object",
			"properties": {
				"title":           {"type": ["string", "null"], "minLength": 1},
				"recipient_email": {"type": ["string", "null"], "format": "email"},
				"start_time":      {"type": ["string", "null"], "format": "date-time"}
			}
		}`,
	},
	{
		Name: SchemaEmailDraft,
		Instruction: "You write short, friendly emails on behalf of the user. " +
			"Read the conversation and draft the email the user asked for. " +
			"Do not use a template and do not make things up. " +
			"Return subject (the email title) and body (the email text).",
		Fields: []string{"subject", "body"},
		JSON: `{
			"type": "object",
			"properties": {
				"subject": {"type": ["string", "null"], "minLength": 1},
				"body":    {"type": ["string", "null"], "minLength": 1}
			}
		}`,
	},
	{
		Name: SchemaEmailSatisfaction,
		Instruction: "The assistant showed the user an email draft. " +
			"Decide whether the user's latest reply approves sending it as is. " +
			"Return satisfied as true only for a clear approval.",
		Fields: []string{"satisfied"},
		JSON: `{
			"type": "object",
			"properties": {
				"satisfied": {"type": ["boolean", "null"]}
			}
		}`,
	},
}
