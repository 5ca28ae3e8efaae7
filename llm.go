package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aktagon/llmkit/anthropic"
	"github.com/aktagon/llmkit/anthropic/types"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// Supported generative-text providers
const (
	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"

	openRouterBaseURL = "https://openrouter.ai/api/v1"
)

// Fence markers delimiting the JSON object in a structured response
const (
	jsonFenceOpen  = "```json"
	jsonFenceClose = "```"
)

// ErrServiceUnavailable is returned when the generative-text service does not
// produce a usable response
var ErrServiceUnavailable = errors.New("generative-text service error")

// GenerateRequest is one prompt sent to a Generator
type GenerateRequest struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
}

// GenerateResponse is the raw completion plus token usage when reported
type GenerateResponse struct {
	Text         string
	PromptTokens int
}

// Generator is the narrow contract every generative-text backend satisfies
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// OpenAIGenerator talks to any OpenAI-compatible chat completion endpoint
// (OpenRouter by default)
type OpenAIGenerator struct {
	client *openai.Client
}

// NewOpenAIGenerator creates a generator for an OpenAI-compatible endpoint
func NewOpenAIGenerator(apiKey, baseURL string, httpClient *http.Client) *OpenAIGenerator {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return &OpenAIGenerator{client: openai.NewClientWithConfig(cfg)}
}

// Generate sends a system+user chat completion request
func (g *OpenAIGenerator) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	messages := []openai.ChatCompletionMessage{}
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.UserPrompt,
	})

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response: %w", ErrServiceUnavailable)
	}

	return &GenerateResponse{
		Text:         resp.Choices[0].Message.Content,
		PromptTokens: resp.Usage.PromptTokens,
	}, nil
}

// AnthropicGenerator uses the Anthropic Messages API through llmkit
type AnthropicGenerator struct {
	apiKey string
}

// NewAnthropicGenerator creates a generator backed by Anthropic
func NewAnthropicGenerator(apiKey string) *AnthropicGenerator {
	return &AnthropicGenerator{apiKey: apiKey}
}

// Generate sends the prompt through llmkit. llmkit takes no context, so the
// call is abandoned (not cancelled) when ctx expires.
func (g *AnthropicGenerator) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)

	go func() {
		settings := types.RequestSettings{
			Model:       req.Model,
			MaxTokens:   req.MaxTokens,
			Temperature: req.Temperature,
		}
		response, err := anthropic.PromptWithSettings(req.SystemPrompt, req.UserPrompt, "", g.apiKey, settings)
		if err != nil {
			done <- result{err: fmt.Errorf("anthropic prompt: %w", err)}
			return
		}
		if len(response.Content) == 0 {
			done <- result{err: fmt.Errorf("no content in response: %w", ErrServiceUnavailable)}
			return
		}
		done <- result{text: response.Content[0].Text}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		return &GenerateResponse{Text: r.text}, nil
	}
}

// NewGenerator builds the backend named by the LLM settings
func NewGenerator(settings LLMSettings, apiKey string, httpClient *http.Client) (Generator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key required for provider %q", settings.Provider)
	}

	switch settings.Provider {
	case ProviderOpenRouter, "":
		baseURL := settings.BaseURL
		if baseURL == "" {
			baseURL = openRouterBaseURL
		}
		return NewOpenAIGenerator(apiKey, baseURL, httpClient), nil
	case ProviderOpenAI:
		return NewOpenAIGenerator(apiKey, settings.BaseURL, httpClient), nil
	case ProviderAnthropic:
		return NewAnthropicGenerator(apiKey), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", settings.Provider)
	}
}

// TextClient issues prompts for one model, paces them, and records every
// exchange in the PromptLog
type TextClient struct {
	generator    Generator
	model        string
	systemPrompt string
	maxTokens    int
	temperature  float64
	timeout      time.Duration
	limiter      *rate.Limiter
	promptLog    *PromptLog
	logger       *slog.Logger
}

// TextClientOptions configures a TextClient
type TextClientOptions struct {
	Model        string
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
	Timeout      time.Duration
	Limiter      *rate.Limiter // shared across clients; nil means unpaced
	PromptLog    *PromptLog
	Logger       *slog.Logger
}

// NewTextClient creates a client for a single model and system prompt
func NewTextClient(generator Generator, opts TextClientOptions) *TextClient {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &TextClient{
		generator:    generator,
		model:        opts.Model,
		systemPrompt: opts.SystemPrompt,
		maxTokens:    opts.MaxTokens,
		temperature:  opts.Temperature,
		timeout:      opts.Timeout,
		limiter:      opts.Limiter,
		promptLog:    opts.PromptLog,
		logger:       opts.Logger,
	}
}

// newRateLimiter converts a requests-per-minute budget into a limiter
func newRateLimiter(requestsPerMinute int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1)
}

// Request sends prompt to the service and returns the raw response text
func (c *TextClient) Request(ctx context.Context, prompt string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.generator.Generate(ctx, GenerateRequest{
		Model:        c.model,
		SystemPrompt: c.systemPrompt,
		UserPrompt:   prompt,
		MaxTokens:    c.maxTokens,
		Temperature:  c.temperature,
	})
	if err != nil {
		c.logger.Error("llm.request.failed", "model", c.model, "error", err)
		return "", fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}

	if strings.TrimSpace(resp.Text) == "" {
		c.logger.Warn("llm.request.empty_response", "model", c.model)
		return "", fmt.Errorf("empty response from %s: %w", c.model, ErrServiceUnavailable)
	}

	tokens := resp.PromptTokens
	if tokens <= 0 {
		tokens = estimateTokens(prompt)
	}
	entry := c.promptLog.Append(c.model, prompt, resp.Text, tokens)
	c.logger.Info("llm.request.ok",
		"model", c.model,
		"tokens", tokens,
		"cost_usd", entry.CostUSD,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	return resp.Text, nil
}

// estimateTokens approximates token count (4 chars ≈ 1 token)
func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// ParseStructured extracts the JSON object between the first opening fence and
// the next closing fence. Missing fences or invalid JSON yield nil; malformed
// output is expected and never an error.
func ParseStructured(raw string, logger *slog.Logger) ExtractionResult {
	if logger == nil {
		logger = slog.Default()
	}

	start := strings.Index(raw, jsonFenceOpen)
	if start == -1 {
		return nil
	}
	bodyStart := start + len(jsonFenceOpen)
	end := strings.Index(raw[bodyStart:], jsonFenceClose)
	if end == -1 {
		return nil
	}
	body := strings.TrimSpace(raw[bodyStart : bodyStart+end])

	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		logger.Warn("llm.parse.invalid_json", "error", err, "text", body)
		return nil
	}
	if fields == nil {
		return nil
	}

	result := make(ExtractionResult, len(fields))
	for k, v := range fields {
		switch t := v.(type) {
		case nil:
			continue
		case string:
			result[k] = t
		default:
			result[k] = fmt.Sprint(t)
		}
	}
	return result
}
