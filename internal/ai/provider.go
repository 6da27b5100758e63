package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	ProviderOpenAI      = "openai"
	ProviderAnthropic   = "anthropic"
	ProviderAzureOpenAI = "azure-openai"
	ProviderOllama      = "ollama"
	ProviderCustom      = "custom"
)

const DefaultTimeout = 30 * time.Second

// Providers lists the supported provider names.
func Providers() []string {
	return []string{ProviderOpenAI, ProviderAnthropic, ProviderAzureOpenAI, ProviderOllama, ProviderCustom}
}

func Supported(provider string) bool {
	provider = strings.ToLower(strings.TrimSpace(provider))
	for _, p := range Providers() {
		if p == provider {
			return true
		}
	}
	return false
}

// RequiresAPIKey reports whether provider cannot be reached without a key.
func RequiresAPIKey(provider string) bool {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case ProviderOpenAI, ProviderAnthropic, ProviderAzureOpenAI:
		return true
	default:
		return false
	}
}

type Config struct {
	Provider        string
	Endpoint        string
	APIKey          string
	Model           string
	Timeout         time.Duration
	AzureDeployment string
	AzureAPIVersion string
}

// Provider sends one system/user exchange to a model and returns its reply.
type Provider interface {
	Name() string
	Validate() error
	Complete(ctx context.Context, system, user string) (string, error)
}

type chatProvider struct {
	name       string
	validateFn func() error
	completeFn func(ctx context.Context, system, user string) (string, error)
}

func (p *chatProvider) Name() string { return p.name }

func (p *chatProvider) Validate() error {
	if p.validateFn == nil {
		return nil
	}
	return p.validateFn()
}

func (p *chatProvider) Complete(ctx context.Context, system, user string) (string, error) {
	return p.completeFn(ctx, system, user)
}

// NewProvider builds the provider named in cfg. An empty provider name
// returns nil, nil. The returned provider is non-nil even when validation
// fails so callers can still report its name.
func NewProvider(cfg Config) (Provider, error) {
	cfg = cfg.normalized()
	if cfg.Provider == "" {
		return nil, nil
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}
	var p *chatProvider
	switch cfg.Provider {
	case ProviderOpenAI:
		p = newOpenAIProvider(cfg, httpClient)
	case ProviderAnthropic:
		p = newAnthropicProvider(cfg, httpClient)
	case ProviderAzureOpenAI:
		p = newAzureOpenAIProvider(cfg, httpClient)
	case ProviderOllama:
		p = newOllamaProvider(cfg, httpClient)
	case ProviderCustom:
		p = newCustomProvider(cfg, httpClient)
	default:
		return nil, fmt.Errorf("unsupported AI provider %q", cfg.Provider)
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

func (c Config) normalized() Config {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	c.Endpoint = strings.TrimSpace(c.Endpoint)
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.Model = strings.TrimSpace(c.Model)
	c.AzureDeployment = strings.TrimSpace(c.AzureDeployment)
	c.AzureAPIVersion = strings.TrimSpace(c.AzureAPIVersion)
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	switch c.Provider {
	case ProviderOpenAI:
		if c.Endpoint == "" {
			c.Endpoint = "https://api.openai.com"
		}
		if c.Model == "" {
			c.Model = "gpt-3.5-turbo"
		}
	case ProviderAnthropic:
		if c.Endpoint == "" {
			c.Endpoint = "https://api.anthropic.com"
		}
		if c.Model == "" {
			c.Model = "claude-3-5-sonnet-latest"
		}
	case ProviderAzureOpenAI:
		if c.Model == "" {
			c.Model = "gpt-4o-mini"
		}
		if c.AzureAPIVersion == "" {
			c.AzureAPIVersion = "2024-02-15-preview"
		}
	case ProviderOllama:
		if c.Endpoint == "" {
			c.Endpoint = "http://localhost:11434"
		}
		if c.Model == "" {
			c.Model = "llama3.1"
		}
	}
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletion struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func messages(system, user string) []chatMessage {
	return []chatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
}

func newOpenAIProvider(cfg Config, httpClient *http.Client) *chatProvider {
	endpoint := strings.TrimSuffix(cfg.Endpoint, "/") + "/v1/chat/completions"
	return &chatProvider{
		name:       ProviderOpenAI,
		validateFn: func() error { return validateOpenAIKey(cfg.APIKey) },
		completeFn: func(ctx context.Context, system, user string) (string, error) {
			payload := map[string]any{
				"model":    cfg.Model,
				"messages": messages(system, user),
			}
			var out chatCompletion
			if err := postJSON(ctx, httpClient, endpoint, payload, map[string]string{
				"Authorization": "Bearer " + cfg.APIKey,
			}, &out); err != nil {
				return "", err
			}
			if len(out.Choices) == 0 {
				return "", fmt.Errorf("openai: empty choices")
			}
			return strings.TrimSpace(out.Choices[0].Message.Content), nil
		},
	}
}

func newAnthropicProvider(cfg Config, httpClient *http.Client) *chatProvider {
	endpoint := strings.TrimSuffix(cfg.Endpoint, "/") + "/v1/messages"
	return &chatProvider{
		name:       ProviderAnthropic,
		validateFn: func() error { return validateAnthropicKey(cfg.APIKey) },
		completeFn: func(ctx context.Context, system, user string) (string, error) {
			payload := map[string]any{
				"model":      cfg.Model,
				"max_tokens": 1024,
				"system":     system,
				"messages":   []chatMessage{{Role: "user", Content: user}},
			}
			var out struct {
				Content []struct {
					Type string `json:"type"`
					Text string `json:"text"`
				} `json:"content"`
			}
			if err := postJSON(ctx, httpClient, endpoint, payload, map[string]string{
				"x-api-key":         cfg.APIKey,
				"anthropic-version": "2023-06-01",
			}, &out); err != nil {
				return "", err
			}
			for _, c := range out.Content {
				if strings.TrimSpace(c.Text) != "" {
					return strings.TrimSpace(c.Text), nil
				}
			}
			return "", fmt.Errorf("anthropic: empty content")
		},
	}
}

func newAzureOpenAIProvider(cfg Config, httpClient *http.Client) *chatProvider {
	endpoint := strings.TrimSuffix(cfg.Endpoint, "/") + "/openai/deployments/" + cfg.AzureDeployment + "/chat/completions?api-version=" + cfg.AzureAPIVersion
	return &chatProvider{
		name: ProviderAzureOpenAI,
		validateFn: func() error {
			if cfg.Endpoint == "" {
				return fmt.Errorf("azure-openai endpoint is required (ai.endpoint)")
			}
			if cfg.AzureDeployment == "" {
				return fmt.Errorf("azure-openai deployment is required (ai.azure_deployment)")
			}
			return validateGenericAPIKey(ProviderAzureOpenAI, cfg.APIKey)
		},
		completeFn: func(ctx context.Context, system, user string) (string, error) {
			payload := map[string]any{"messages": messages(system, user)}
			var out chatCompletion
			if err := postJSON(ctx, httpClient, endpoint, payload, map[string]string{
				"api-key": cfg.APIKey,
			}, &out); err != nil {
				return "", err
			}
			if len(out.Choices) == 0 {
				return "", fmt.Errorf("azure-openai: empty choices")
			}
			return strings.TrimSpace(out.Choices[0].Message.Content), nil
		},
	}
}

func newOllamaProvider(cfg Config, httpClient *http.Client) *chatProvider {
	endpoint := strings.TrimSuffix(cfg.Endpoint, "/") + "/api/chat"
	return &chatProvider{
		name: ProviderOllama,
		completeFn: func(ctx context.Context, system, user string) (string, error) {
			payload := map[string]any{
				"model":    cfg.Model,
				"stream":   false,
				"messages": messages(system, user),
			}
			var out struct {
				Message chatMessage `json:"message"`
			}
			if err := postJSON(ctx, httpClient, endpoint, payload, nil, &out); err != nil {
				return "", err
			}
			if strings.TrimSpace(out.Message.Content) == "" {
				return "", fmt.Errorf("ollama: empty message content")
			}
			return strings.TrimSpace(out.Message.Content), nil
		},
	}
}

// newCustomProvider posts {"system","prompt"} to an arbitrary endpoint and
// accepts either {"result": "..."} or an OpenAI-shaped reply.
func newCustomProvider(cfg Config, httpClient *http.Client) *chatProvider {
	endpoint := cfg.Endpoint
	return &chatProvider{
		name: ProviderCustom,
		validateFn: func() error {
			if endpoint == "" {
				return fmt.Errorf("custom endpoint is required (ai.endpoint)")
			}
			return nil
		},
		completeFn: func(ctx context.Context, system, user string) (string, error) {
			payload := map[string]any{
				"model":  cfg.Model,
				"system": system,
				"prompt": user,
			}
			var out struct {
				Result string `json:"result"`
				chatCompletion
			}
			headers := map[string]string{}
			if cfg.APIKey != "" {
				headers["Authorization"] = "Bearer " + cfg.APIKey
			}
			if err := postJSON(ctx, httpClient, endpoint, payload, headers, &out); err != nil {
				return "", err
			}
			if v := strings.TrimSpace(out.Result); v != "" {
				return v, nil
			}
			if len(out.Choices) > 0 {
				return strings.TrimSpace(out.Choices[0].Message.Content), nil
			}
			return "", fmt.Errorf("custom: empty result")
		},
	}
}

func postJSON(ctx context.Context, httpClient *http.Client, url string, payload any, headers map[string]string, out any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		if strings.TrimSpace(v) != "" {
			req.Header.Set(k, v)
		}
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 240 {
			msg = msg[:240]
		}
		return fmt.Errorf("ai provider request failed (%d): %s", resp.StatusCode, msg)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("ai provider response parse error: %w", err)
	}
	return nil
}

func validateOpenAIKey(apiKey string) error {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return fmt.Errorf("openai API key is required (OPENAI_API_KEY or AICLI_AI_API_KEY)")
	}
	if !strings.HasPrefix(apiKey, "sk-") {
		return fmt.Errorf("openai API key must start with sk-")
	}
	return nil
}

func validateAnthropicKey(apiKey string) error {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return fmt.Errorf("anthropic API key is required (ANTHROPIC_API_KEY or AICLI_AI_API_KEY)")
	}
	if !strings.HasPrefix(apiKey, "sk-ant-") {
		return fmt.Errorf("anthropic API key must start with sk-ant-")
	}
	return nil
}

func validateGenericAPIKey(provider, apiKey string) error {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return fmt.Errorf("%s API key is required", provider)
	}
	if len(apiKey) < 10 {
		return fmt.Errorf("%s API key is too short", provider)
	}
	return nil
}
