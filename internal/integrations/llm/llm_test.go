package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"contextanalyzer/internal/config"
)

func TestStripCodeFence(t *testing.T) {
	tests := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n{\"a\":1}```":       `{"a":1}`,
		`  {"a":1}  `:             `{"a":1}`,
	}
	for in, want := range tests {
		if got := StripCodeFence(in); got != want {
			t.Fatalf("StripCodeFence(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOpenAIClientComplete(t *testing.T) {
	var gotReq openAIRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing bearer token")
		}
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"ok\":true}"}}],"usage":{"prompt_tokens":10,"completion_tokens":5}}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient("sk-test", srv.URL+"/v1", "", srv.Client(), nil, nil)
	if err != nil {
		t.Fatalf("NewOpenAIClient: %v", err)
	}
	text, usage, err := c.Complete(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != `{"ok":true}` || usage.TotalTokens() != 15 {
		t.Fatalf("unexpected result text=%q usage=%+v", text, usage)
	}
	if gotReq.Model != defaultOpenAIModel || gotReq.ResponseFormat == nil || gotReq.ResponseFormat.Type != "json_object" {
		t.Fatalf("unexpected request: %+v", gotReq)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" {
		t.Fatalf("unexpected messages: %+v", gotReq.Messages)
	}
}

func TestAzureOpenAIClientComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/openai/deployments/gpt4o/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("api-version") != "2024-06-01" {
			t.Errorf("missing api-version")
		}
		if r.Header.Get("api-key") != "azure-key" {
			t.Errorf("missing api-key header")
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"hi"}}]}`))
	}))
	defer srv.Close()

	c, err := NewAzureOpenAIClient(AzureOptions{Endpoint: srv.URL + "/", APIKey: "azure-key", Deployment: "gpt4o"}, srv.Client(), nil, nil)
	if err != nil {
		t.Fatalf("NewAzureOpenAIClient: %v", err)
	}
	if text, _, err := c.Complete(context.Background(), "s", "u"); err != nil || text != "hi" {
		t.Fatalf("Complete: text=%q err=%v", text, err)
	}
	if c.Provider() != ProviderAzureOpenAI || c.Model() != "gpt4o" {
		t.Fatalf("unexpected provider/model %s/%s", c.Provider(), c.Model())
	}
}

func TestChatEndpointErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer srv.Close()

	c, _ := NewOpenAIClient("sk", srv.URL, "m", srv.Client(), nil, nil)
	_, _, err := c.Complete(context.Background(), "s", "u")
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("expected api error, got %v", err)
	}
}

func TestNewFromConfig(t *testing.T) {
	if _, err := NewFromConfig(config.Config{LLMProvider: "anthropic", AnthropicAPIKey: "k"}, nil); err != nil {
		t.Fatalf("anthropic: %v", err)
	}
	c, err := NewFromConfig(config.Config{LLMProvider: "openai", OpenAIAPIKey: "k", LLMRateLimit: 2}, nil)
	if err != nil || c.Provider() != ProviderOpenAI {
		t.Fatalf("openai: %v", err)
	}
	if _, err := NewFromConfig(config.Config{LLMProvider: "azure_openai"}, nil); err == nil {
		t.Fatal("expected azure config error")
	}
	if _, err := NewFromConfig(config.Config{LLMProvider: "cohere"}, nil); err == nil {
		t.Fatal("expected unsupported provider error")
	}
}
