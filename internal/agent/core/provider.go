package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/healthtwin-labs/healthtwin/config"
)

// NewLLMProvider creates the completion provider from configuration. The
// first configured provider of a supported type wins.
func NewLLMProvider(cfg config.LLMConfig) (LLMProvider, error) {
	for name, provider := range cfg.Providers {
		switch provider.Type {
		case "openai":
			return NewOpenAIProvider(provider), nil
		default:
			return nil, fmt.Errorf("unsupported LLM provider type %q for %s", provider.Type, name)
		}
	}
	return nil, fmt.Errorf("no LLM providers configured")
}

// OpenAIProvider implements LLMProvider against the OpenAI chat completions
// API. Photo turns use the multimodal content-part form of the same endpoint.
type OpenAIProvider struct {
	config config.LLMProvider
	models map[string]config.LLMModel
	client *http.Client
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(cfg config.LLMProvider) *OpenAIProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIProvider{
		config: cfg,
		models: cfg.Models,
		client: &http.Client{Timeout: timeout},
	}
}

type chatContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url,omitempty"`
}

type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// Invoke sends one chat completion request. Transient failures are retried
// up to the configured count with a short linear backoff.
func (p *OpenAIProvider) Invoke(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	apiKey := p.config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return CompletionResult{}, fmt.Errorf("OpenAI API key not configured")
	}

	m, ok := p.models[req.Model]
	if !ok {
		return CompletionResult{}, fmt.Errorf("model %s not configured", req.Model)
	}
	if req.ImageB64 != "" && !m.Multimodal {
		return CompletionResult{}, fmt.Errorf("model %s does not accept images", req.Model)
	}
	apiModel := m.APIName
	if apiModel == "" {
		apiModel = m.Name
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 || maxTokens > m.MaxTokens {
		maxTokens = m.MaxTokens
	}

	var messages []chatMessage
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	for _, h := range req.History {
		messages = append(messages, chatMessage{Role: h.Role, Content: h.Content})
	}
	if req.ImageB64 != "" {
		img := &struct {
			URL string `json:"url"`
		}{URL: imageDataURL(req.ImageB64)}
		messages = append(messages, chatMessage{Role: "user", Content: []chatContentPart{
			{Type: "text", Text: req.UserPrompt},
			{Type: "image_url", ImageURL: img},
		}})
	} else {
		messages = append(messages, chatMessage{Role: "user", Content: req.UserPrompt})
	}

	body, err := json.Marshal(chatRequest{
		Model:       apiModel,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return CompletionResult{}, fmt.Errorf("marshal: %w", err)
	}

	baseURL := p.config.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	retries := p.config.MaxRetries
	if retries < 0 {
		retries = 0
	}
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return CompletionResult{}, ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}
		res, err := p.doRequest(ctx, baseURL, apiKey, body)
		if err == nil {
			res.ModelUsed = req.Model
			return res, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return CompletionResult{}, ctx.Err()
		}
	}
	return CompletionResult{}, lastErr
}

func (p *OpenAIProvider) doRequest(ctx context.Context, baseURL, apiKey string, body []byte) (CompletionResult, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", baseURL+"/chat/completions", bytes.NewBuffer(body))
	if err != nil {
		return CompletionResult{}, fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return CompletionResult{}, fmt.Errorf("OpenAI status %d", resp.StatusCode)
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return CompletionResult{}, fmt.Errorf("decode: %w", err)
	}
	if len(out.Choices) == 0 {
		return CompletionResult{}, fmt.Errorf("no choices")
	}
	return CompletionResult{
		Text:         out.Choices[0].Message.Content,
		InputTokens:  int64(out.Usage.PromptTokens),
		OutputTokens: int64(out.Usage.CompletionTokens),
	}, nil
}

// CalculateCost calculates the cost for a given number of tokens
func (p *OpenAIProvider) CalculateCost(inputTokens, outputTokens int64, model string) float64 {
	m, ok := p.models[model]
	if !ok {
		return 0.0
	}
	inputCost := float64(inputTokens) / 1000.0 * m.CostPer1K
	outputCost := float64(outputTokens) / 1000.0 * m.CostPer1KOutput
	return inputCost + outputCost
}

func imageDataURL(b64 string) string {
	if strings.HasPrefix(b64, "data:") {
		return b64
	}
	return "data:image/jpeg;base64," + b64
}
