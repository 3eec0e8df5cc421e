package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type AnthropicClient struct {
	client  anthropic.Client
	model   string
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewAnthropicClient(apiKey, model string, hc *http.Client, limiter *rate.Limiter, logger *zap.Logger) (*AnthropicClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("anthropic API key required")
	}
	if model == "" {
		model = defaultAnthropicModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnthropicClient{
		client: anthropic.NewClient(
			option.WithAPIKey(apiKey),
			option.WithHTTPClient(defaultHTTPClient(hc)),
			option.WithMaxRetries(0),
		),
		model:   model,
		limiter: limiter,
		logger:  logger,
	}, nil
}

func (c *AnthropicClient) Provider() string { return ProviderAnthropic }
func (c *AnthropicClient) Model() string    { return c.model }

func (c *AnthropicClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, Usage, error) {
	if err := waitLimiter(ctx, c.limiter); err != nil {
		return "", Usage{}, err
	}

	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: defaultMaxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt, CacheControl: anthropic.NewCacheControlEphemeralParam()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		c.logger.Warn("anthropic request failed", zap.Error(err))
		return "", Usage{}, fmt.Errorf("anthropic API error: %w", err)
	}
	usage := Usage{
		InputTokens:              message.Usage.InputTokens,
		OutputTokens:             message.Usage.OutputTokens,
		CacheCreationInputTokens: message.Usage.CacheCreationInputTokens,
		CacheReadInputTokens:     message.Usage.CacheReadInputTokens,
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			c.logger.Debug("anthropic response",
				zap.String("model", c.model),
				zap.Int("size", len(block.Text)),
				zap.Int64("tokens_in", usage.InputTokens),
				zap.Int64("tokens_out", usage.OutputTokens),
			)
			return block.Text, usage, nil
		}
	}
	return "", usage, fmt.Errorf("no text content in anthropic response")
}
