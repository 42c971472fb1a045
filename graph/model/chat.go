// Package model provides the chat-model abstraction used to back field
// extraction, with adapters for Anthropic, OpenAI and Google Gemini.
package model

import (
	"context"
	"errors"
)

// ChatModel is the provider-neutral interface to a hosted language model.
//
// Implementations translate Messages to the provider's wire format, call the
// API, and return the text of the first completion. They must honour ctx
// cancellation and must be safe for concurrent use.
//
// Example usage:
//
//	out, err := m.Chat(ctx, []model.Message{
//	    {Role: model.RoleSystem, Content: "Reply with JSON only."},
//	    {Role: model.RoleUser, Content: "Send an email to bob@example.com"},
//	})
type ChatModel interface {
	Chat(ctx context.Context, messages []Message) (ChatOut, error)
}

// Message is one conversation turn sent to a ChatModel.
type Message struct {
	// Role is one of RoleSystem, RoleUser or RoleAssistant.
	Role string

	// Content is the plain text of the turn.
	Content string
}

const (
	// RoleSystem carries instructions. Providers with a dedicated system
	// parameter receive these concatenated.
	RoleSystem = "system"

	// RoleUser marks text written by the end user.
	RoleUser = "user"

	// RoleAssistant marks text produced by the model or the application.
	RoleAssistant = "assistant"
)

// ChatOut is the model's reply.
type ChatOut struct {
	// Text is the concatenated text content of the reply.
	Text string

	// InputTokens and OutputTokens report usage when the provider returns it.
	InputTokens  int64
	OutputTokens int64
}

// ErrRateLimited is returned (wrapped) when the provider throttled the call.
var ErrRateLimited = errors.New("model provider rate limited the request")

// ErrUnauthorized is returned (wrapped) when the provider rejected the credentials.
var ErrUnauthorized = errors.New("model provider rejected the credentials")

// ErrEmptyResponse is returned when the provider answered without any text.
var ErrEmptyResponse = errors.New("model returned no content")

// SplitSystem separates system messages from the conversation. Multiple
// system messages are joined with a blank line.
func SplitSystem(messages []Message) (system string, conversation []Message) {
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content
			continue
		}
		conversation = append(conversation, msg)
	}
	return system, conversation
}

// ClassifyStatus maps an HTTP status code from a provider error to one of
// the sentinel errors, or returns nil when no sentinel applies.
func ClassifyStatus(status int) error {
	switch status {
	case 401, 403:
		return ErrUnauthorized
	case 429:
		return ErrRateLimited
	}
	return nil
}
