package google

import (
	"context"
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/dialoggraph/graph/model"
)

type fakeGenerator struct {
	got request
	out model.ChatOut
	err error
}

func (f *fakeGenerator) generate(_ context.Context, req request) (model.ChatOut, error) {
	f.got = req
	return f.out, f.err
}

func TestChatModel_BuildsChatLayout(t *testing.T) {
	fake := &fakeGenerator{out: model.ChatOut{Text: `{"intent":"sendEmail"}`}}
	m := NewChatModel("key", "", WithJSONMode())
	m.client = fake

	out, err := m.Chat(context.Background(), []model.Message{
		{Role: model.RoleSystem, Content: "Classify."},
		{Role: model.RoleUser, Content: "hello"},
		{Role: model.RoleAssistant, Content: "How can I help?"},
		{Role: model.RoleUser, Content: "email bob"},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"intent":"sendEmail"}`, out.Text)

	assert.Equal(t, "Classify.", fake.got.System)
	assert.True(t, fake.got.JSONMode)
	assert.Equal(t, "email bob", fake.got.Prompt)
	require.Len(t, fake.got.History, 2)
	assert.Equal(t, "user", fake.got.History[0].Role)
	assert.Equal(t, "model", fake.got.History[1].Role)
	assert.Equal(t, genai.Text("How can I help?"), fake.got.History[1].Parts[0])
}

func TestChatModel_Errors(t *testing.T) {
	t.Run("only system messages", func(t *testing.T) {
		m := NewChatModel("key", "gemini-test")
		m.client = &fakeGenerator{}
		_, err := m.Chat(context.Background(), []model.Message{{Role: model.RoleSystem, Content: "x"}})
		assert.Error(t, err)
	})

	t.Run("empty reply", func(t *testing.T) {
		m := NewChatModel("key", "gemini-test")
		m.client = &fakeGenerator{}
		_, err := m.Chat(context.Background(), []model.Message{{Role: model.RoleUser, Content: "x"}})
		assert.ErrorIs(t, err, model.ErrEmptyResponse)
	})

	t.Run("safety block passes through", func(t *testing.T) {
		m := NewChatModel("key", "gemini-test")
		m.client = &fakeGenerator{err: &SafetyFilterError{reason: "SAFETY"}}
		_, err := m.Chat(context.Background(), []model.Message{{Role: model.RoleUser, Content: "x"}})
		var safetyErr *SafetyFilterError
		require.True(t, errors.As(err, &safetyErr))
		assert.Equal(t, "SAFETY", safetyErr.Reason())
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		m := NewChatModel("key", "gemini-test")
		m.client = &fakeGenerator{}
		_, err := m.Chat(ctx, []model.Message{{Role: model.RoleUser, Content: "x"}})
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("missing api key", func(t *testing.T) {
		m := NewChatModel("", "gemini-test")
		_, err := m.Chat(context.Background(), []model.Message{{Role: model.RoleUser, Content: "x"}})
		assert.ErrorIs(t, err, model.ErrUnauthorized)
	})
}

func TestConvertResponse(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text(`{"a":`), genai.Text(`1}`)}},
		}},
		UsageMetadata: &genai.UsageMetadata{PromptTokenCount: 7, CandidatesTokenCount: 3},
	}
	out := convertResponse(resp)
	assert.Equal(t, `{"a":1}`, out.Text)
	assert.Equal(t, int64(7), out.InputTokens)
	assert.Equal(t, int64(3), out.OutputTokens)

	assert.Equal(t, "", convertResponse(nil).Text)
}
