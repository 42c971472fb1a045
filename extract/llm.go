package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/dshills/dialoggraph/graph/model"
)

// LLMExtractor implements Extractor on top of a model.ChatModel.
//
// Each call sends the schema's instruction as a system message followed by
// the supplied conversation. The reply must be a JSON object; it is
// validated against the schema and every field that fails validation is
// replaced by nil, so one bad value never discards the others.
type LLMExtractor struct {
	model    model.ChatModel
	registry *Registry
	logger   *slog.Logger
}

// LLMOption configures an LLMExtractor.
type LLMOption func(*LLMExtractor)

// WithRegistry replaces the default schema registry.
func WithRegistry(r *Registry) LLMOption {
	return func(e *LLMExtractor) {
		e.registry = r
	}
}

// WithLogger sets the logger used to report discarded fields.
func WithLogger(logger *slog.Logger) LLMOption {
	return func(e *LLMExtractor) {
		e.logger = logger
	}
}

// NewLLMExtractor returns an extractor backed by m.
func NewLLMExtractor(m model.ChatModel, opts ...LLMOption) *LLMExtractor {
	e := &LLMExtractor{model: m}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		e.registry = DefaultRegistry()
	}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}
	return e
}

// Extract implements Extractor.
func (e *LLMExtractor) Extract(ctx context.Context, schema string, messages []model.Message) (Fields, error) {
	s, err := e.registry.Lookup(schema)
	if err != nil {
		return nil, err
	}

	prompt := make([]model.Message, 0, len(messages)+1)
	prompt = append(prompt, model.Message{Role: model.RoleSystem, Content: systemPrompt(s)})
	for _, msg := range messages {
		if msg.Role == model.RoleSystem {
			continue
		}
		prompt = append(prompt, msg)
	}

	out, err := e.model.Chat(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", schema, err)
	}

	raw := trimCodeFence(out.Text)
	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil || doc == nil {
		return nil, fmt.Errorf("extract %s: %w", schema, ErrMalformedOutput)
	}

	result, err := s.compiled.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("extract %s: validate: %w", schema, err)
	}

	fields := make(Fields, len(s.Fields))
	for _, name := range s.Fields {
		fields[name] = doc[name]
	}
	for _, verr := range result.Errors() {
		name := fieldOf(verr)
		if _, known := fields[name]; !known {
			continue
		}
		if fields[name] != nil {
			e.logger.Debug("discarding invalid extracted field",
				"schema", schema,
				"field", name,
				"reason", verr.Description(),
			)
		}
		fields[name] = nil
	}
	return fields, nil
}

func systemPrompt(s *Schema) string {
	var sb strings.Builder
	sb.WriteString(s.Instruction)
	sb.WriteString("\n\nRespond with a single JSON object with exactly these keys: ")
	sb.WriteString(strings.Join(s.Fields, ", "))
	sb.WriteString(". Use null for any value the conversation does not state. Do not guess.")
	return sb.String()
}

// fieldOf returns the top-level property a validation error refers to.
func fieldOf(verr gojsonschema.ResultError) string {
	field := verr.Field()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[:i]
	}
	return field
}

// trimCodeFence removes a surrounding Markdown code fence, which some
// models add even in JSON mode.
func trimCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
