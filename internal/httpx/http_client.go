package httpx

import (
	"net/http"
	"time"
)

const defaultExternalHTTPTimeout = 30 * time.Second

var externalHTTPClient = &http.Client{
	Timeout: defaultExternalHTTPTimeout,
}

// ExternalHTTPClient is shared by every outbound call that has no tighter
// timeout of its own (LLM chat completions, Slack).
func ExternalHTTPClient() *http.Client {
	return externalHTTPClient
}

func ConfigureExternalHTTPClient(timeoutSeconds int) time.Duration {
	timeout := defaultExternalHTTPTimeout
	if timeoutSeconds > 0 {
		timeout = time.Duration(timeoutSeconds) * time.Second
	}
	externalHTTPClient.Timeout = timeout
	return timeout
}

// NewClient returns a dedicated client, used where a call has its own fixed
// timeout such as the 10s embedding requests.
func NewClient(timeoutSeconds int) *http.Client {
	timeout := defaultExternalHTTPTimeout
	if timeoutSeconds > 0 {
		timeout = time.Duration(timeoutSeconds) * time.Second
	}
	return &http.Client{Timeout: timeout}
}
