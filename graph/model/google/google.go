// Package google provides a ChatModel adapter for the Google Gemini API.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/dshills/dialoggraph/graph/model"
)

// DefaultModel is used when no model name is configured.
const DefaultModel = "gemini-1.5-flash"

// ChatModel implements model.ChatModel for Google's Gemini API.
//
// System messages become the model's system instruction. All other messages
// except the last form the chat history; the last one is sent as the prompt.
// In JSON mode the response MIME type is set to application/json.
//
// Example usage:
//
//	m := google.NewChatModel(os.Getenv("GEMINI_API_KEY"), "gemini-1.5-flash", google.WithJSONMode())
//	out, err := m.Chat(ctx, messages)
//	var safetyErr *google.SafetyFilterError
//	if errors.As(err, &safetyErr) {
//	    log.Printf("blocked: %s", safetyErr.Reason())
//	}
type ChatModel struct {
	modelName string
	jsonMode  bool
	client    generator
}

// request is the provider-shaped form of a Chat call.
type request struct {
	System   string
	History  []*genai.Content
	Prompt   string
	JSONMode bool
}

// generator performs one Gemini call. It is the seam used by tests.
type generator interface {
	generate(ctx context.Context, req request) (model.ChatOut, error)
}

// Option configures a ChatModel.
type Option func(*ChatModel)

// WithJSONMode asks Gemini to answer with application/json.
func WithJSONMode() Option {
	return func(m *ChatModel) {
		m.jsonMode = true
	}
}

// NewChatModel creates a Gemini-backed ChatModel. An empty modelName uses
// DefaultModel.
func NewChatModel(apiKey, modelName string, opts ...Option) *ChatModel {
	if modelName == "" {
		modelName = DefaultModel
	}
	m := &ChatModel{
		modelName: modelName,
		client:    &defaultClient{apiKey: apiKey, modelName: modelName},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message) (model.ChatOut, error) {
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}

	req, err := buildRequest(messages)
	if err != nil {
		return model.ChatOut{}, err
	}
	req.JSONMode = m.jsonMode

	out, err := m.client.generate(ctx, req)
	if err != nil {
		return model.ChatOut{}, err
	}
	if out.Text == "" {
		return model.ChatOut{}, model.ErrEmptyResponse
	}
	return out, nil
}

// buildRequest converts messages to the Gemini chat layout.
func buildRequest(messages []model.Message) (request, error) {
	system, conversation := model.SplitSystem(messages)
	if len(conversation) == 0 {
		return request{}, errors.New("google: at least one non-system message is required")
	}

	req := request{System: system}
	last := len(conversation) - 1
	for _, msg := range conversation[:last] {
		role := "user"
		if msg.Role == model.RoleAssistant {
			role = "model"
		}
		req.History = append(req.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}
	req.Prompt = conversation[last].Content
	return req, nil
}

// defaultClient wraps the official Gemini SDK client.
type defaultClient struct {
	apiKey    string
	modelName string
}

func (c *defaultClient) generate(ctx context.Context, req request) (model.ChatOut, error) {
	if c.apiKey == "" {
		return model.ChatOut{}, fmt.Errorf("google: %w: API key is required", model.ErrUnauthorized)
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("google: failed to create client: %w", err)
	}
	defer func() { _ = client.Close() }()

	gm := client.GenerativeModel(c.modelName)
	if req.System != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	if req.JSONMode {
		gm.ResponseMIMEType = "application/json"
	}

	cs := gm.StartChat()
	cs.History = req.History
	resp, err := cs.SendMessage(ctx, genai.Text(req.Prompt))
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			return model.ChatOut{}, &SafetyFilterError{reason: blocked.Error()}
		}
		return model.ChatOut{}, fmt.Errorf("google: %w", err)
	}
	return convertResponse(resp), nil
}

// convertResponse joins the text parts of the first candidate.
func convertResponse(resp *genai.GenerateContentResponse) model.ChatOut {
	var out model.ChatOut
	if resp == nil {
		return out
	}
	if resp.UsageMetadata != nil {
		out.InputTokens = int64(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	out.Text = sb.String()
	return out
}

// SafetyFilterError reports that Gemini blocked the prompt or the reply.
//
// Use errors.As to check for this error type:
//
//	var safetyErr *google.SafetyFilterError
//	if errors.As(err, &safetyErr) {
//	    log.Printf("Content blocked: %s", safetyErr.Reason())
//	}
type SafetyFilterError struct {
	reason string
}

// Error implements the error interface.
func (e *SafetyFilterError) Error() string {
	return "google: content blocked by safety filter: " + e.reason
}

// Reason returns why the content was blocked.
func (e *SafetyFilterError) Reason() string {
	return e.reason
}
