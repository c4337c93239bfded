// Package llm defines the language model capability the analysis pipeline
// calls, with adapters for each supported provider.
package llm

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/greenscore/internal/model"
)

// Message roles.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Capability sends one prompt to a language model and returns its reply.
type Capability interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Request is a single model call.
type Request struct {
	Model       string
	MaxTokens   int64
	Temperature *float64
	Messages    []Message
}

// Message is one prompt message. When Parts is non-empty each part is sent
// as a separate text block and Content is ignored.
type Message struct {
	Role    string
	Content string
	Parts   []string
}

// Response is the model's reply text and token usage.
type Response struct {
	Text  string
	Usage model.TokenUsage
}

// System returns the concatenated content of the system messages.
func (r Request) System() string {
	var out string
	for _, m := range r.Messages {
		if m.Role != RoleSystem {
			continue
		}
		if out != "" {
			out += "\n\n"
		}
		out += m.Content
	}
	return out
}

// Sentinel errors returned by Resilient. Match with errors.Is.
var (
	ErrModelCallFailed = eris.New("model call failed")
	ErrModelTimeout    = eris.New("model call timed out")
)

// callError tags a provider error with one of the sentinels while keeping
// the cause in the chain.
type callError struct {
	kind  error
	cause error
}

func (e *callError) Error() string {
	return e.kind.Error() + ": " + e.cause.Error()
}

func (e *callError) Is(target error) bool {
	return target == e.kind
}

func (e *callError) Unwrap() error {
	return e.cause
}
