// Package anthropic adapts Anthropic's Claude Messages API to model.ChatModel.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/dshills/dialoggraph/graph/model"
)

// DefaultModel is used when no model name is configured.
const DefaultModel = "claude-3-5-haiku-latest"

// ChatModel implements model.ChatModel for Anthropic's Claude API.
//
// System messages are sent through the dedicated system parameter; user and
// assistant messages keep their order. Errors with HTTP status 401/403/429
// wrap model.ErrUnauthorized / model.ErrRateLimited.
//
// Example usage:
//
//	m := anthropic.NewChatModel(os.Getenv("ANTHROPIC_API_KEY"), "claude-3-5-haiku-latest")
//	out, err := m.Chat(ctx, messages)
type ChatModel struct {
	client    sdk.Client
	modelName string
	maxTokens int64
}

// Option configures a ChatModel.
type Option func(*settings)

type settings struct {
	maxTokens  int64
	clientOpts []option.RequestOption
}

// WithMaxTokens caps the reply length. Default 1024.
func WithMaxTokens(n int64) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxTokens = n
		}
	}
}

// WithRequestOptions passes SDK request options through, for example
// option.WithBaseURL in tests or option.WithMaxRetries.
func WithRequestOptions(opts ...option.RequestOption) Option {
	return func(s *settings) {
		s.clientOpts = append(s.clientOpts, opts...)
	}
}

// NewChatModel creates a Claude-backed ChatModel. An empty modelName uses
// DefaultModel.
func NewChatModel(apiKey, modelName string, opts ...Option) *ChatModel {
	if modelName == "" {
		modelName = DefaultModel
	}
	s := settings{maxTokens: 1024}
	for _, opt := range opts {
		opt(&s)
	}

	clientOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, s.clientOpts...)
	return &ChatModel{
		client:    sdk.NewClient(clientOpts...),
		modelName: modelName,
		maxTokens: s.maxTokens,
	}
}

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message) (model.ChatOut, error) {
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}

	system, conversation := model.SplitSystem(messages)
	params := sdk.MessageNewParams{
		Model:     sdk.Model(m.modelName),
		MaxTokens: m.maxTokens,
		Messages:  make([]sdk.MessageParam, 0, len(conversation)),
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}
	for _, msg := range conversation {
		block := sdk.NewTextBlock(msg.Content)
		if msg.Role == model.RoleAssistant {
			params.Messages = append(params.Messages, sdk.NewAssistantMessage(block))
		} else {
			params.Messages = append(params.Messages, sdk.NewUserMessage(block))
		}
	}

	message, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return model.ChatOut{}, translateError(err)
	}

	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return model.ChatOut{}, model.ErrEmptyResponse
	}

	return model.ChatOut{
		Text:         sb.String(),
		InputTokens:  message.Usage.InputTokens,
		OutputTokens: message.Usage.OutputTokens,
	}, nil
}

// translateError wraps SDK API errors with the model sentinels.
func translateError(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		if sentinel := model.ClassifyStatus(apiErr.StatusCode); sentinel != nil {
			return fmt.Errorf("anthropic: %w: %w", sentinel, err)
		}
	}
	return fmt.Errorf("anthropic: %w", err)
}
