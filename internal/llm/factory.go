package llm

import (
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/greenscore/internal/config"
	"github.com/sells-group/greenscore/internal/resilience"
	"github.com/sells-group/greenscore/pkg/anthropic"
	"github.com/sells-group/greenscore/pkg/gemini"
	"github.com/sells-group/greenscore/pkg/openai"
)

// New builds the configured provider's Capability wrapped in Resilient.
func New(cfg *config.Config) (*Resilient, error) {
	base, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}

	mc := cfg.Model
	policy := resilience.NewRetryPolicy(mc.MaxRetries, mc.InitialBackoffMs, mc.MaxBackoffMs)
	policy.OnRetry = resilience.LogRetry(mc.Provider, mc.Name)

	breaker := resilience.NewBreaker(
		mc.CircuitFailureThreshold,
		time.Duration(mc.CircuitResetSecs)*time.Second,
		func(from, to resilience.BreakerState) {
			zap.L().Warn("model circuit breaker state change",
				zap.String("provider", mc.Provider),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
	)

	return NewResilient(base,
		WithTimeout(time.Duration(mc.TimeoutSecs)*time.Second),
		WithRetryPolicy(policy),
		WithRateLimit(mc.RateLimitRPS),
		WithBreaker(breaker),
	), nil
}

func newProvider(cfg *config.Config) (Capability, error) {
	switch cfg.Model.Provider {
	case config.ProviderGroq:
		baseURL := cfg.Groq.BaseURL
		if baseURL == "" {
			baseURL = openai.GroqBaseURL
		}
		return NewOpenAI(openai.NewClient(cfg.Groq.Key, baseURL)), nil
	case config.ProviderOpenAI:
		return NewOpenAI(openai.NewClient(cfg.OpenAI.Key, cfg.OpenAI.BaseURL)), nil
	case config.ProviderAnthropic:
		return NewAnthropic(anthropic.NewClient(cfg.Anthropic.Key, cfg.Anthropic.BaseURL)), nil
	case config.ProviderGemini:
		return NewGemini(gemini.NewClient(cfg.Gemini.Key)), nil
	default:
		return nil, eris.Errorf("llm: unknown provider %q", cfg.Model.Provider)
	}
}
