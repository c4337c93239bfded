package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/greenscore/internal/llm"
	"github.com/sells-group/greenscore/internal/resilience"
	"github.com/sells-group/greenscore/pkg/anthropic"
	anthropicmocks "github.com/sells-group/greenscore/pkg/anthropic/mocks"
	"github.com/sells-group/greenscore/pkg/gemini"
	geminimocks "github.com/sells-group/greenscore/pkg/gemini/mocks"
	"github.com/sells-group/greenscore/pkg/openai"
	openaimocks "github.com/sells-group/greenscore/pkg/openai/mocks"
)

func scoringRequest() llm.Request {
	temp := 0.3
	return llm.Request{
		Model:       "test-model",
		MaxTokens:   512,
		Temperature: &temp,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "Score the project."},
			{Role: llm.RoleUser, Parts: []string{"Page 1:\nSolar farm", "Page 2:\nBudget"}},
		},
	}
}

func TestRequestSystem(t *testing.T) {
	t.Parallel()

	req := llm.Request{Messages: []llm.Message{
		{Role: llm.RoleSystem, Content: "a"},
		{Role: llm.RoleUser, Content: "ignored"},
		{Role: llm.RoleSystem, Content: "b"},
	}}
	assert.Equal(t, "a\n\nb", req.System())
	assert.Empty(t, llm.Request{}.System())
}

func TestOpenAIComplete(t *testing.T) {
	t.Parallel()

	client := openaimocks.NewMockClient(t)
	client.On("CreateChatCompletion", mock.Anything, mock.MatchedBy(func(req openai.ChatRequest) bool {
		return req.Model == "test-model" &&
			req.MaxTokens == 512 &&
			len(req.Messages) == 2 &&
			req.Messages[0].Role == llm.RoleSystem &&
			len(req.Messages[1].Parts) == 2
	})).Return(&openai.ChatResponse{
		Text:  `[{"green_score": 80}]`,
		Usage: openai.TokenUsage{PromptTokens: 120, CompletionTokens: 30},
	}, nil)

	resp, err := llm.NewOpenAI(client).Complete(context.Background(), scoringRequest())
	require.NoError(t, err)
	assert.Equal(t, `[{"green_score": 80}]`, resp.Text)
	assert.Equal(t, int64(120), resp.Usage.InputTokens)
	assert.Equal(t, int64(30), resp.Usage.OutputTokens)
}

func TestOpenAIComplete_MarksTransientStatus(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"error": map[string]any{"message": "rate limited", "type": "rate_limit"},
		})
	}))
	defer ts.Close()

	_, err := llm.NewOpenAI(openai.NewClient("key", ts.URL)).Complete(context.Background(), scoringRequest())
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))

	var te *resilience.TransientError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusTooManyRequests, te.StatusCode)
}

func TestOpenAIComplete_PermanentStatus(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"error": map[string]any{"message": "bad key", "type": "invalid_request_error"},
		})
	}))
	defer ts.Close()

	_, err := llm.NewOpenAI(openai.NewClient("key", ts.URL)).Complete(context.Background(), scoringRequest())
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
}

func TestAnthropicComplete_SystemBecomesPrompt(t *testing.T) {
	t.Parallel()

	client := anthropicmocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.System == "Score the project." &&
			len(req.Messages) == 1 &&
			req.Messages[0].Role == llm.RoleUser &&
			len(req.Messages[0].Parts) == 2 &&
			req.Temperature != nil
	})).Return(&anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: "[]"}},
		Usage:   anthropic.TokenUsage{InputTokens: 10, OutputTokens: 2},
	}, nil)

	resp, err := llm.NewAnthropic(client).Complete(context.Background(), scoringRequest())
	require.NoError(t, err)
	assert.Equal(t, "[]", resp.Text)
	assert.Equal(t, int64(10), resp.Usage.InputTokens)
	assert.Equal(t, int64(2), resp.Usage.OutputTokens)
}

func TestAnthropicComplete_MarksOverloaded(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(529)
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"type":  "error",
			"error": map[string]any{"type": "overloaded_error", "message": "Overloaded"},
		})
	}))
	defer ts.Close()

	_, err := llm.NewAnthropic(anthropic.NewClient("key", ts.URL)).Complete(context.Background(), scoringRequest())
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestGeminiComplete_FlattensParts(t *testing.T) {
	t.Parallel()

	client := geminimocks.NewMockClient(t)
	client.On("GenerateContent", mock.Anything, mock.MatchedBy(func(req gemini.GenerateRequest) bool {
		return req.System == "Score the project." &&
			len(req.Parts) == 2 &&
			req.Parts[1] == "Page 2:\nBudget" &&
			req.MaxTokens == 512 &&
			req.Temperature != nil && *req.Temperature > 0.29 && *req.Temperature < 0.31
	})).Return(&gemini.GenerateResponse{
		Text:  `{"green_score": 55}`,
		Usage: gemini.TokenUsage{PromptTokens: 40, CandidateTokens: 8},
	}, nil)

	resp, err := llm.NewGemini(client).Complete(context.Background(), scoringRequest())
	require.NoError(t, err)
	assert.Equal(t, `{"green_score": 55}`, resp.Text)
	assert.Equal(t, int64(40), resp.Usage.InputTokens)
	assert.Equal(t, int64(8), resp.Usage.OutputTokens)
}

func TestGeminiComplete_Error(t *testing.T) {
	t.Parallel()

	client := geminimocks.NewMockClient(t)
	client.On("GenerateContent", mock.Anything, mock.Anything).
		Return(nil, errors.New("rpc error: code = Unavailable desc = try later"))

	_, err := llm.NewGemini(client).Complete(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}
