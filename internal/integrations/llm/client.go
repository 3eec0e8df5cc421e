// Package llm talks to chat-completion providers. Every client makes exactly
// one request per Complete call; callers own fallback behaviour.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"contextanalyzer/internal/config"
	"contextanalyzer/internal/httpx"
)

const (
	ProviderAnthropic   = "anthropic"
	ProviderOpenAI      = "openai"
	ProviderAzureOpenAI = "azure_openai"

	defaultAnthropicModel = "claude-sonnet-4-5-20250929"
	defaultOpenAIModel    = "gpt-4o-mini"
	defaultMaxTokens      = 1024
)

// ChatClient sends one system+user exchange and returns the model's text.
type ChatClient interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, Usage, error)
	Provider() string
	Model() string
}

type Usage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

func (u Usage) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheCreationInputTokens += other.CacheCreationInputTokens
	u.CacheReadInputTokens += other.CacheReadInputTokens
}

// NewFromConfig builds the client selected by cfg.LLMProvider. All clients
// share one limiter sized by llm_rate_limit_per_second.
func NewFromConfig(cfg config.Config, logger *zap.Logger) (ChatClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	limiter := newLimiter(cfg.LLMRateLimit)
	hc := httpx.NewClient(cfg.LLMTimeoutSeconds)

	switch strings.ToLower(strings.TrimSpace(cfg.LLMProvider)) {
	case ProviderAnthropic:
		c, err := NewAnthropicClient(cfg.AnthropicAPIKey, cfg.LLMModel, hc, limiter, logger)
		if err != nil {
			return nil, err
		}
		return ready(c, logger), nil
	case ProviderOpenAI:
		c, err := NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.LLMModel, hc, limiter, logger)
		if err != nil {
			return nil, err
		}
		return ready(c, logger), nil
	case ProviderAzureOpenAI, "":
		c, err := NewAzureOpenAIClient(AzureOptions{
			Endpoint:   cfg.AzureOpenAIEndpoint,
			APIKey:     cfg.AzureOpenAIAPIKey,
			Deployment: cfg.AzureOpenAIDeployment,
			APIVersion: cfg.AzureOpenAIAPIVersion,
		}, hc, limiter, logger)
		if err != nil {
			return nil, err
		}
		return ready(c, logger), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.LLMProvider)
	}
}

func ready(c ChatClient, logger *zap.Logger) ChatClient {
	logger.Info("llm client ready", zap.String("provider", c.Provider()), zap.String("model", c.Model()))
	return c
}

func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

func waitLimiter(ctx context.Context, limiter *rate.Limiter) error {
	if limiter == nil {
		return nil
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

func defaultHTTPClient(hc *http.Client) *http.Client {
	if hc != nil {
		return hc
	}
	return &http.Client{Timeout: 60 * time.Second}
}

// StripCodeFence removes a surrounding ```json ... ``` block, if any.
func StripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```JSON")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// truncate keeps error messages that embed model output readable.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + fmt.Sprintf("... [truncated, total_length=%d]", len(s))
}
