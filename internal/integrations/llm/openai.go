package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

type openAIRequest struct {
	Model          string          `json:"model,omitempty"`
	Messages       []openAIMessage `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// chatEndpoint is the shared transport for OpenAI and Azure OpenAI, which
// differ only in URL shape and auth header.
type chatEndpoint struct {
	provider   string
	url        string
	model      string
	sendModel  bool
	authHeader string
	authValue  string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

type OpenAIClient struct{ chatEndpoint }

func NewOpenAIClient(apiKey, baseURL, model string, hc *http.Client, limiter *rate.Limiter, logger *zap.Logger) (*OpenAIClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("openai API key required")
	}
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIClient{chatEndpoint{
		provider:   ProviderOpenAI,
		url:        strings.TrimRight(baseURL, "/") + "/chat/completions",
		model:      model,
		sendModel:  true,
		authHeader: "Authorization",
		authValue:  "Bearer " + apiKey,
		httpClient: defaultHTTPClient(hc),
		limiter:    limiter,
		logger:     logger,
	}}, nil
}

type AzureOptions struct {
	Endpoint   string
	APIKey     string
	Deployment string
	APIVersion string
}

type AzureOpenAIClient struct{ chatEndpoint }

func NewAzureOpenAIClient(opts AzureOptions, hc *http.Client, limiter *rate.Limiter, logger *zap.Logger) (*AzureOpenAIClient, error) {
	if opts.Endpoint == "" || opts.APIKey == "" || opts.Deployment == "" {
		return nil, fmt.Errorf("azure openai endpoint, api key and deployment required")
	}
	if opts.APIVersion == "" {
		opts.APIVersion = "2024-06-01"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	u := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		strings.TrimRight(opts.Endpoint, "/"), url.PathEscape(opts.Deployment), url.QueryEscape(opts.APIVersion))
	return &AzureOpenAIClient{chatEndpoint{
		provider:   ProviderAzureOpenAI,
		url:        u,
		model:      opts.Deployment,
		authHeader: "api-key",
		authValue:  opts.APIKey,
		httpClient: defaultHTTPClient(hc),
		limiter:    limiter,
		logger:     logger,
	}}, nil
}

func (c *chatEndpoint) Provider() string { return c.provider }
func (c *chatEndpoint) Model() string    { return c.model }

func (c *chatEndpoint) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, Usage, error) {
	if err := waitLimiter(ctx, c.limiter); err != nil {
		return "", Usage{}, err
	}

	reqBody := openAIRequest{
		Messages: []openAIMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature:    0.1,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
	if c.sendModel {
		reqBody.Model = c.model
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", Usage{}, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", Usage{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(c.authHeader, c.authValue)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("chat completion request failed", zap.String("provider", c.provider), zap.Error(err))
		return "", Usage{}, fmt.Errorf("%s API error: %w", c.provider, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", Usage{}, fmt.Errorf("reading response: %w", err)
	}

	var parsed openAIResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", Usage{}, fmt.Errorf("parsing %s response (status %d): %w", c.provider, resp.StatusCode, err)
	}
	if parsed.Error != nil {
		return "", Usage{}, fmt.Errorf("%s API error: %s", c.provider, parsed.Error.Message)
	}
	if resp.StatusCode >= 300 {
		return "", Usage{}, fmt.Errorf("%s API status %d: %s", c.provider, resp.StatusCode, truncate(string(respBody), 256))
	}
	if len(parsed.Choices) == 0 {
		return "", Usage{}, fmt.Errorf("no choices in %s response", c.provider)
	}

	usage := Usage{}
	if parsed.Usage != nil {
		usage.InputTokens = parsed.Usage.PromptTokens
		usage.OutputTokens = parsed.Usage.CompletionTokens
	}
	content := parsed.Choices[0].Message.Content
	c.logger.Debug("chat completion response",
		zap.String("provider", c.provider),
		zap.String("model", c.model),
		zap.Int("size", len(content)),
		zap.Int64("tokens_in", usage.InputTokens),
		zap.Int64("tokens_out", usage.OutputTokens),
	)
	return content, usage, nil
}
