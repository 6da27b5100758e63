package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Model    string        `json:"model"`
	System   string        `json:"system"`
	Prompt   string        `json:"prompt"`
	Messages []chatMessage `json:"messages"`
}

func TestOpenAIInterpret(t *testing.T) {
	var got recordedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("{\"choices\":[{\"message\":{\"content\":\"```bash\\n$ kubectl get pods -n payments\\n```\"}}]}"))
	}))
	defer server.Close()

	c := New(Config{Provider: ProviderOpenAI, Endpoint: server.URL, APIKey: "sk-test-key", Timeout: 2 * time.Second}, nil)
	cmd, err := c.Interpret(context.Background(), "show pods", &ClusterContext{Context: "staging", Namespace: "payments"})
	require.NoError(t, err)
	assert.Equal(t, "kubectl get pods -n payments", cmd)

	assert.Equal(t, "gpt-3.5-turbo", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, interpretSystem, got.Messages[0].Content)
	assert.True(t, strings.HasPrefix(got.Messages[1].Content, "Translate this to a kubectl command: show pods"))
	assert.Contains(t, got.Messages[1].Content, "kubeContext=staging")
}

func TestAnthropicSuggest(t *testing.T) {
	var got recordedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant-test", r.Header.Get("x-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"Create the namespace first."}]}`))
	}))
	defer server.Close()

	c := New(Config{Provider: ProviderAnthropic, Endpoint: server.URL, APIKey: "sk-ant-test", Timeout: 2 * time.Second}, nil)
	res, err := c.Suggest(context.Background(), "kubectl get pods -n nope", "namespace not found")
	require.NoError(t, err)
	assert.Equal(t, "Create the namespace first.", res)
	assert.Equal(t, suggestSystem, got.System)
	require.Len(t, got.Messages, 1)
	assert.Contains(t, got.Messages[0].Content, "Command: kubectl get pods -n nope\nError: namespace not found")
}

func TestAzureExplain(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/openai/deployments/gpt4/chat/completions")
		assert.Equal(t, "azure-super-key", r.Header.Get("api-key"))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"azure-ok"}}]}`))
	}))
	defer server.Close()

	c := New(Config{Provider: ProviderAzureOpenAI, Endpoint: server.URL, APIKey: "azure-super-key", AzureDeployment: "gpt4", Timeout: 2 * time.Second}, nil)
	res, err := c.Explain(context.Background(), "NAME READY\napi 0/1")
	require.NoError(t, err)
	assert.Equal(t, "azure-ok", res)
}

func TestOllamaAndCustomProviders(t *testing.T) {
	ollama := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		_, _ = w.Write([]byte(`{"message":{"content":"ollama-ok"}}`))
	}))
	defer ollama.Close()
	custom := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req recordedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, explainSystem, req.System)
		_, _ = w.Write([]byte(`{"result":"custom-ok"}`))
	}))
	defer custom.Close()

	tests := []struct {
		cfg  Config
		want string
	}{
		{cfg: Config{Provider: ProviderOllama, Endpoint: ollama.URL}, want: "ollama-ok"},
		{cfg: Config{Provider: ProviderCustom, Endpoint: custom.URL}, want: "custom-ok"},
	}
	for _, tt := range tests {
		t.Run(tt.cfg.Provider, func(t *testing.T) {
			c := New(tt.cfg, nil)
			require.True(t, c.Enabled())
			got, err := c.Explain(context.Background(), "output")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProviderErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := New(Config{Provider: ProviderOpenAI, Endpoint: server.URL, APIKey: "sk-test"}, nil)
	_, err := c.Suggest(context.Background(), "kubectl get pods", "boom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "(429)")
}

func TestTimeout(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	c := New(Config{Provider: ProviderOllama, Endpoint: server.URL, Timeout: 100 * time.Millisecond}, nil)
	_, err := c.Explain(context.Background(), "output")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout), "got %v", err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDisabledAndInvalid(t *testing.T) {
	var nilClient *Client
	_, err := nilClient.Explain(context.Background(), "x")
	assert.ErrorIs(t, err, ErrDisabled)
	assert.ErrorIs(t, nilClient.Err(), ErrDisabled)

	c := New(Config{}, nil)
	assert.False(t, c.Enabled())
	assert.Error(t, c.Err())
	assert.Equal(t, "disabled", c.ProviderName())
	_, err = c.Suggest(context.Background(), "a", "b")
	assert.ErrorIs(t, err, ErrDisabled)

	bad := New(Config{Provider: ProviderOpenAI, APIKey: "bad-key"}, nil)
	assert.False(t, bad.Enabled())
	assert.ErrorContains(t, bad.Err(), "must start with sk-")

	good := New(Config{Provider: ProviderOllama, Endpoint: "http://127.0.0.1:11434"}, nil)
	assert.True(t, good.Enabled())
	assert.NoError(t, good.Err())
	_, err = bad.Explain(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must start with sk-")

	_, err = NewProvider(Config{Provider: "watson"})
	assert.ErrorContains(t, err, "unsupported AI provider")
}

type stubProvider struct {
	reply string
	err   error
}

func (s stubProvider) Name() string    { return "stub" }
func (s stubProvider) Validate() error { return nil }
func (s stubProvider) Complete(context.Context, string, string) (string, error) {
	return s.reply, s.err
}

func TestInterpretEmptyReply(t *testing.T) {
	c := NewWithProvider(stubProvider{reply: "```\n```"}, Config{}, nil)
	_, err := c.Interpret(context.Background(), "list pods", nil)
	require.Error(t, err)

	_, err = c.Interpret(context.Background(), "   ", nil)
	assert.ErrorContains(t, err, "nothing to interpret")
}

func TestRequiresAPIKey(t *testing.T) {
	assert.True(t, RequiresAPIKey("openai"))
	assert.True(t, RequiresAPIKey(" Anthropic "))
	assert.True(t, RequiresAPIKey(ProviderAzureOpenAI))
	assert.False(t, RequiresAPIKey(ProviderOllama))
	assert.False(t, RequiresAPIKey(ProviderCustom))
	assert.True(t, Supported("OLLAMA"))
	assert.False(t, Supported("watson"))
}
