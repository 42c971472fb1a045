package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/dialoggraph/graph/model"
)

func newTestModel(t *testing.T, handler http.HandlerFunc, opts ...Option) *ChatModel {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	opts = append(opts, WithRequestOptions(option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0)))
	return NewChatModel("test-key", "gpt-test", opts...)
}

func TestChatModel_JSONMode(t *testing.T) {
	var body map[string]any
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-test",
			"choices": [{
				"index": 0,
				"finish_reason": "stop",
				"message": {"role": "assistant", "content": "{\"satisfied\":true}"}
			}],
			"usage": {"prompt_tokens": 20, "completion_tokens": 4, "total_tokens": 24}
		}`))
	}, WithJSONMode())

	out, err := m.Chat(context.Background(), []model.Message{
		{Role: model.RoleSystem, Content: "JSON only"},
		{Role: model.RoleUser, Content: "looks good"},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"satisfied":true}`, out.Text)
	assert.Equal(t, int64(20), out.InputTokens)

	assert.Equal(t, "gpt-test", body["model"])
	assert.Equal(t, "json_object", body["response_format"].(map[string]any)["type"])
	msgs := body["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "user", msgs[1].(map[string]any)["role"])
}

func TestChatModel_Unauthorized(t *testing.T) {
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	})

	_, err := m.Chat(context.Background(), []model.Message{{Role: model.RoleUser, Content: "hi"}})
	assert.ErrorIs(t, err, model.ErrUnauthorized)
}

func TestChatModel_NoChoices(t *testing.T) {
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","created":1,"model":"gpt-test","choices":[]}`))
	})

	_, err := m.Chat(context.Background(), []model.Message{{Role: model.RoleUser, Content: "hi"}})
	assert.ErrorIs(t, err, model.ErrEmptyResponse)
}
