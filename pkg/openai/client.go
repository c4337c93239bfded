// Package openai wraps the OpenAI chat completions API. Groq serves the same
// API, so this client also backs the groq provider via a custom base URL.
package openai

import (
	"context"

	sdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/rotisserie/eris"
)

// GroqBaseURL is Groq's OpenAI-compatible endpoint.
const GroqBaseURL = "https://api.groq.com/openai/v1/"

// Client defines the chat completion operations used by the analyzer.
type Client interface {
	CreateChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ChatRequest is our own request type for CreateChatCompletion.
type ChatRequest struct {
	Model       string
	MaxTokens   int64
	Temperature *float64
	Messages    []Message
}

// Message is a single chat message. When Parts is set on a user message,
// each part is sent as its own text content part and Content is ignored.
type Message struct {
	Role    string // "system", "user" or "assistant"
	Content string
	Parts   []string
}

// ChatResponse is our own response type from CreateChatCompletion.
type ChatResponse struct {
	ID           string
	Model        string
	Text         string
	FinishReason string
	Usage        TokenUsage
}

// TokenUsage tracks token consumption.
type TokenUsage struct {
	PromptTokens     int64
	CompletionTokens int64
}

// sdkClient implements Client using the official openai-go SDK.
type sdkClient struct {
	client sdk.Client
}

// NewClient creates a chat client. An empty baseURL uses api.openai.com.
func NewClient(apiKey, baseURL string) Client {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// Retries are handled by the caller.
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &sdkClient{client: sdk.NewClient(opts...)}
}

func (c *sdkClient) CreateChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(req.Model),
		Messages: toSDKMessages(req.Messages),
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = sdk.Int(req.MaxTokens)
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, eris.Wrap(err, "openai: create chat completion")
	}

	return fromSDKCompletion(completion)
}

// --- SDK type conversion helpers ---

func toSDKMessages(msgs []Message) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "system":
			out = append(out, sdk.SystemMessage(m.Content))
		case "assistant":
			out = append(out, sdk.AssistantMessage(m.Content))
		default:
			if len(m.Parts) == 0 {
				out = append(out, sdk.UserMessage(m.Content))
				continue
			}
			parts := make([]sdk.ChatCompletionContentPartUnionParam, len(m.Parts))
			for i, p := range m.Parts {
				parts[i] = sdk.TextContentPart(p)
			}
			out = append(out, sdk.UserMessage(parts))
		}
	}
	return out
}

func fromSDKCompletion(c *sdk.ChatCompletion) (*ChatResponse, error) {
	if len(c.Choices) == 0 {
		return nil, eris.Errorf("openai: completion %s has no choices", c.ID)
	}
	choice := c.Choices[0]
	return &ChatResponse{
		ID:           c.ID,
		Model:        c.Model,
		Text:         choice.Message.Content,
		FinishReason: choice.FinishReason,
		Usage: TokenUsage{
			PromptTokens:     c.Usage.PromptTokens,
			CompletionTokens: c.Usage.CompletionTokens,
		},
	}, nil
}
