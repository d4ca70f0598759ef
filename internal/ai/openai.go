package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const (
	defaultOpenAIBaseURL     = "https://api.openai.com/v1"
	defaultDeepSeekBaseURL   = "https://api.deepseek.com/v1"
	defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
)

type openAIConfig struct {
	APIKey      string            `json:"api_key"`
	BaseURL     string            `json:"base_url"`
	Headers     map[string]string `json:"headers"`
	HTTPReferer string            `json:"http_referer"`
	XTitle      string            `json:"x_title"`
	Temperature *float32          `json:"temperature"`
	MaxTokens   int               `json:"max_tokens"`
}

// openAIProvider talks to any OpenAI compatible chat completion endpoint.
type openAIProvider struct {
	name        string
	apiKey      string
	client      *openai.Client
	temperature *float32
	maxTokens   int
}

func (p *openAIProvider) Name() string {
	return p.name
}

func (p *openAIProvider) request(model string, messages []Message, stream bool) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:     model,
		Messages:  make([]openai.ChatCompletionMessage, 0, len(messages)),
		Stream:    stream,
		MaxTokens: p.maxTokens,
	}
	if p.temperature != nil {
		req.Temperature = *p.temperature
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return req
}

func (p *openAIProvider) Complete(ctx context.Context, model string, messages []Message) (string, error) {
	if p.apiKey == "" {
		return "", ErrUnavailable
	}
	resp, err := p.client.CreateChatCompletion(ctx, p.request(model, messages, false))
	if err != nil {
		return "", fmt.Errorf("%s chat completion: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s response has no choices", p.name)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (p *openAIProvider) Stream(ctx context.Context, model string, messages []Message, emit EmitFunc) error {
	if p.apiKey == "" {
		return ErrUnavailable
	}
	stream, err := p.client.CreateChatCompletionStream(ctx, p.request(model, messages, true))
	if err != nil {
		return fmt.Errorf("%s chat stream: %w", p.name, err)
	}
	defer stream.Close()
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s chat stream: %w", p.name, err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		fragment := resp.Choices[0].Delta.Content
		if fragment == "" {
			continue
		}
		if err := emit(fragment); err != nil {
			return err
		}
	}
}

type headerTransport struct {
	headers map[string]string
	next    http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.next.RoundTrip(req)
}

func newOpenAICompatible(name, defaultBaseURL string, args interface{}) (IChatProvider, error) {
	cfg := &openAIConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	clientCfg := openai.DefaultConfig(apiKey)
	clientCfg.BaseURL = strings.TrimRight(baseURL, "/")

	headers := map[string]string{}
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	if v := strings.TrimSpace(cfg.HTTPReferer); v != "" {
		headers["HTTP-Referer"] = v
	}
	if v := strings.TrimSpace(cfg.XTitle); v != "" {
		headers["X-Title"] = v
	}
	if len(headers) > 0 {
		clientCfg.HTTPClient = &http.Client{Transport: &headerTransport{headers: headers, next: http.DefaultTransport}}
	}
	return &openAIProvider{
		name:        name,
		apiKey:      apiKey,
		client:      openai.NewClientWithConfig(clientCfg),
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

func init() {
	Register("openai", func(args interface{}) (IChatProvider, error) {
		return newOpenAICompatible("openai", defaultOpenAIBaseURL, args)
	})
	Register("deepseek", func(args interface{}) (IChatProvider, error) {
		return newOpenAICompatible("deepseek", defaultDeepSeekBaseURL, args)
	})
	Register("openrouter", func(args interface{}) (IChatProvider, error) {
		return newOpenAICompatible("openrouter", defaultOpenRouterBaseURL, args)
	})
}
