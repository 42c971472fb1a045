// Package openai adapts OpenAI's Chat Completions API to model.ChatModel.
package openai

import (
	"context"
	"errors"
	"fmt"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/dshills/dialoggraph/graph/model"
)

// DefaultModel is used when no model name is configured.
const DefaultModel = "gpt-4o-mini"

// ChatModel implements model.ChatModel for OpenAI chat completions.
//
// In JSON mode (see WithJSONMode) the request asks for a JSON object
// response format, which is what field extraction relies on.
//
// Example usage:
//
//	m := openai.NewChatModel(os.Getenv("OPENAI_API_KEY"), "gpt-4o-mini", openai.WithJSONMode())
//	out, err := m.Chat(ctx, messages)
type ChatModel struct {
	client    sdk.Client
	modelName string
	jsonMode  bool
}

// Option configures a ChatModel.
type Option func(*settings)

type settings struct {
	jsonMode   bool
	clientOpts []option.RequestOption
}

// WithJSONMode requests a JSON object response format.
func WithJSONMode() Option {
	return func(s *settings) {
		s.jsonMode = true
	}
}

// WithRequestOptions passes SDK request options through, for example
// option.WithBaseURL in tests or option.WithMaxRetries.
func WithRequestOptions(opts ...option.RequestOption) Option {
	return func(s *settings) {
		s.clientOpts = append(s.clientOpts, opts...)
	}
}

// NewChatModel creates an OpenAI-backed ChatModel. An empty modelName uses
// DefaultModel.
func NewChatModel(apiKey, modelName string, opts ...Option) *ChatModel {
	if modelName == "" {
		modelName = DefaultModel
	}
	var s settings
	for _, opt := range opts {
		opt(&s)
	}

	clientOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, s.clientOpts...)
	return &ChatModel{
		client:    sdk.NewClient(clientOpts...),
		modelName: modelName,
		jsonMode:  s.jsonMode,
	}
}

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message) (model.ChatOut, error) {
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}

	params := sdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(m.modelName),
		Messages: make([]sdk.ChatCompletionMessageParamUnion, 0, len(messages)),
	}
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			params.Messages = append(params.Messages, sdk.SystemMessage(msg.Content))
		case model.RoleAssistant:
			params.Messages = append(params.Messages, sdk.AssistantMessage(msg.Content))
		default:
			params.Messages = append(params.Messages, sdk.UserMessage(msg.Content))
		}
	}
	if m.jsonMode {
		params.ResponseFormat = sdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: sdk.Ptr(shared.NewResponseFormatJSONObjectParam()),
		}
	}

	completion, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return model.ChatOut{}, translateError(err)
	}
	if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == "" {
		return model.ChatOut{}, model.ErrEmptyResponse
	}

	return model.ChatOut{
		Text:         completion.Choices[0].Message.Content,
		InputTokens:  completion.Usage.PromptTokens,
		OutputTokens: completion.Usage.CompletionTokens,
	}, nil
}

// translateError wraps SDK API errors with the model sentinels.
func translateError(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		if sentinel := model.ClassifyStatus(apiErr.StatusCode); sentinel != nil {
			return fmt.Errorf("openai: %w: %w", sentinel, err)
		}
	}
	return fmt.Errorf("openai: %w", err)
}
