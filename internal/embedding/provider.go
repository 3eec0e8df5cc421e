package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"contextanalyzer/internal/config"
	"contextanalyzer/internal/httpx"
)

var (
	ErrEmptyText         = errors.New("text cannot be empty")
	ErrDimensionMismatch = errors.New("vector dimensions do not match")
	ErrEmbeddingFailed   = errors.New("embedding generation failed")
	ErrInvalidConfig     = errors.New("invalid embedding configuration")
)

// Provider turns one text into one vector.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// OpenAIProvider calls an OpenAI-compatible /embeddings endpoint. With
// AzureAPIVersion set it speaks the Azure OpenAI deployment dialect instead.
type OpenAIProvider struct {
	endpoint   string
	model      string
	authHeader string
	authValue  string
	client     *http.Client
}

type ProviderConfig struct {
	BaseURL         string
	APIKey          string
	Model           string
	AzureAPIVersion string
	TimeoutSeconds  int
}

func NewOpenAIProvider(cfg ProviderConfig) (*OpenAIProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	p := &OpenAIProvider{
		model:  cfg.Model,
		client: httpx.NewClient(cfg.TimeoutSeconds),
	}
	if cfg.AzureAPIVersion != "" {
		p.endpoint = fmt.Sprintf("%s/openai/deployments/%s/embeddings?api-version=%s",
			base, url.PathEscape(cfg.Model), url.QueryEscape(cfg.AzureAPIVersion))
		p.authHeader, p.authValue = "api-key", cfg.APIKey
	} else {
		p.endpoint = base + "/embeddings"
		if cfg.APIKey != "" {
			p.authHeader, p.authValue = "Authorization", "Bearer "+cfg.APIKey
		}
	}
	return p, nil
}

// ProviderConfigFrom derives the embedding endpoint from cfg. An explicit
// embedding_base_url wins; otherwise the LLM provider's endpoint and key are
// reused.
func ProviderConfigFrom(cfg config.Config) ProviderConfig {
	pc := ProviderConfig{
		BaseURL:        cfg.EmbeddingBaseURL,
		APIKey:         cfg.EmbeddingAPIKey,
		Model:          cfg.EmbeddingModel,
		TimeoutSeconds: cfg.EmbeddingTimeoutSeconds,
	}
	if pc.BaseURL != "" {
		return pc
	}
	if cfg.LLMProvider == "azure_openai" {
		pc.BaseURL = cfg.AzureOpenAIEndpoint
		pc.AzureAPIVersion = cfg.AzureOpenAIAPIVersion
		if pc.APIKey == "" {
			pc.APIKey = cfg.AzureOpenAIAPIKey
		}
		return pc
	}
	pc.BaseURL = cfg.OpenAIBaseURL
	if pc.APIKey == "" {
		pc.APIKey = cfg.OpenAIAPIKey
	}
	return pc
}

type embeddingRequest struct {
	Model string `json:"model,omitempty"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: p.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.authHeader != "" {
		req.Header.Set(p.authHeader, p.authValue)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrEmbeddingFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrEmbeddingFailed, resp.StatusCode, string(respBody))
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrEmbeddingFailed, err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("%w: %s", ErrEmbeddingFailed, parsed.Error.Message)
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrEmbeddingFailed)
	}
	return parsed.Data[0].Embedding, nil
}
