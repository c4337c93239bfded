package llm

import (
	"context"
	"errors"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	openaisdk "github.com/openai/openai-go/v3"

	"github.com/sells-group/greenscore/internal/model"
	"github.com/sells-group/greenscore/internal/resilience"
	"github.com/sells-group/greenscore/pkg/anthropic"
	"github.com/sells-group/greenscore/pkg/gemini"
	"github.com/sells-group/greenscore/pkg/openai"
)

// OpenAI adapts an OpenAI-compatible chat client (OpenAI or Groq).
type OpenAI struct {
	client openai.Client
}

// NewOpenAI wraps client as a Capability.
func NewOpenAI(client openai.Client) *OpenAI {
	return &OpenAI{client: client}
}

// Complete implements Capability.
func (o *OpenAI) Complete(ctx context.Context, req Request) (*Response, error) {
	msgs := make([]openai.Message, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = openai.Message{Role: m.Role, Content: m.Content, Parts: m.Parts}
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Messages:    msgs,
	})
	if err != nil {
		var apiErr *openaisdk.Error
		if errors.As(err, &apiErr) {
			return nil, resilience.MarkStatus(err, apiErr.StatusCode)
		}
		return nil, err
	}

	return &Response{
		Text: resp.Text,
		Usage: model.TokenUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

// Anthropic adapts the Anthropic messages client.
type Anthropic struct {
	client anthropic.Client
}

// NewAnthropic wraps client as a Capability.
func NewAnthropic(client anthropic.Client) *Anthropic {
	return &Anthropic{client: client}
}

// Complete implements Capability. System messages become the system prompt.
func (a *Anthropic) Complete(ctx context.Context, req Request) (*Response, error) {
	var msgs []anthropic.Message
	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			continue
		}
		msgs = append(msgs, anthropic.Message{Role: m.Role, Content: m.Content, Parts: m.Parts})
	}

	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		System:      req.System(),
		Messages:    msgs,
		Temperature: req.Temperature,
	})
	if err != nil {
		var apiErr *anthropicsdk.Error
		if errors.As(err, &apiErr) {
			return nil, resilience.MarkStatus(err, apiErr.StatusCode)
		}
		return nil, err
	}

	return &Response{
		Text: resp.Text(),
		Usage: model.TokenUsage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}, nil
}

// Gemini adapts the Gemini generative client.
type Gemini struct {
	client gemini.Client
}

// NewGemini wraps client as a Capability.
func NewGemini(client gemini.Client) *Gemini {
	return &Gemini{client: client}
}

// Complete implements Capability. All user message parts are sent as one turn.
func (g *Gemini) Complete(ctx context.Context, req Request) (*Response, error) {
	var parts []string
	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			continue
		}
		if len(m.Parts) > 0 {
			parts = append(parts, m.Parts...)
		} else {
			parts = append(parts, m.Content)
		}
	}

	greq := gemini.GenerateRequest{
		Model:     req.Model,
		System:    req.System(),
		Parts:     parts,
		MaxTokens: int32(req.MaxTokens),
	}
	if req.Temperature != nil {
		t := float32(*req.Temperature)
		greq.Temperature = &t
	}

	resp, err := g.client.GenerateContent(ctx, greq)
	if err != nil {
		return nil, err
	}

	return &Response{
		Text: resp.Text,
		Usage: model.TokenUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CandidateTokens,
		},
	}, nil
}
