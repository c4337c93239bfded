// Package gemini wraps the Google Gemini generative API.
package gemini

import (
	"context"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rotisserie/eris"
	"google.golang.org/api/option"
)

// Client defines the Gemini operations used by the analyzer.
type Client interface {
	GenerateContent(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// GenerateRequest is our own request type for GenerateContent. Each entry
// of Parts is sent as a separate text part of one user turn.
type GenerateRequest struct {
	Model       string
	System      string
	Parts       []string
	MaxTokens   int32
	Temperature *float32
}

// GenerateResponse is our own response type from GenerateContent.
type GenerateResponse struct {
	Text         string
	FinishReason string
	Usage        TokenUsage
}

// TokenUsage tracks token consumption.
type TokenUsage struct {
	PromptTokens    int64
	CandidateTokens int64
}

type sdkClient struct {
	apiKey string
}

// NewClient creates a Gemini client. A connection is opened per call and
// closed when the call returns.
func NewClient(apiKey string) Client {
	return &sdkClient{apiKey: apiKey}
}

func (c *sdkClient) GenerateContent(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	cl, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return nil, eris.Wrap(err, "gemini: new client")
	}
	defer cl.Close() //nolint:errcheck

	m := cl.GenerativeModel(strings.TrimSpace(req.Model))
	configureModel(m, req)

	resp, err := m.GenerateContent(ctx, toParts(req.Parts)...)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: generate content")
	}

	return fromResponse(resp), nil
}

// --- SDK type conversion helpers ---

func configureModel(m *genai.GenerativeModel, req GenerateRequest) {
	m.GenerationConfig = genai.GenerationConfig{
		Temperature: req.Temperature,
	}
	if req.MaxTokens > 0 {
		maxTokens := req.MaxTokens
		m.GenerationConfig.MaxOutputTokens = &maxTokens
	}
	if req.System != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.System)},
		}
	}
}

func toParts(texts []string) []genai.Part {
	parts := make([]genai.Part, len(texts))
	for i, t := range texts {
		parts[i] = genai.Text(t)
	}
	return parts
}

// fromResponse takes the text of the first candidate that has content.
func fromResponse(resp *genai.GenerateContentResponse) *GenerateResponse {
	out := &GenerateResponse{}
	if resp == nil {
		return out
	}
	if resp.UsageMetadata != nil {
		out.Usage = TokenUsage{
			PromptTokens:    int64(resp.UsageMetadata.PromptTokenCount),
			CandidateTokens: int64(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		var b strings.Builder
		for _, p := range cand.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		out.Text = b.String()
		out.FinishReason = cand.FinishReason.String()
		break
	}
	return out
}
