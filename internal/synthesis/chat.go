package synthesis

import (
	"context"
	"errors"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
)

// ChatSynthesizer answers questions through an OpenAI-compatible chat
// completion API. Use NewAzureSynthesizer or NewOpenAISynthesizer to build
// one for the respective backend.
type ChatSynthesizer struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	logger      *zap.Logger
}

// ChatOption configures a ChatSynthesizer.
type ChatOption func(*ChatSynthesizer)

// WithLogger sets a logger for synthesis events.
func WithLogger(l *zap.Logger) ChatOption {
	return func(s *ChatSynthesizer) { s.logger = l }
}

// NewAzureSynthesizer builds a synthesizer over an Azure OpenAI chat
// deployment. The API key and endpoint are read from the configured
// environment variables.
func NewAzureSynthesizer(cfg *config.SynthesisConfig, opts ...ChatOption) (*ChatSynthesizer, error) {
	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("environment variable %s not set", cfg.APIKeyEnv)
	}
	endpoint := os.Getenv(cfg.EndpointEnv)
	if endpoint == "" {
		return nil, fmt.Errorf("environment variable %s not set", cfg.EndpointEnv)
	}
	if cfg.Deployment == "" {
		return nil, errors.New("synthesis deployment is required")
	}

	clientCfg := openai.DefaultAzureConfig(apiKey, endpoint)
	if cfg.APIVersion != "" {
		clientCfg.APIVersion = cfg.APIVersion
	}
	return newChatSynthesizer(clientCfg, cfg.Deployment, cfg, opts), nil
}

// NewOpenAISynthesizer builds a synthesizer over the plain OpenAI chat API,
// or any OpenAI-compatible server when the endpoint environment variable is
// set. The model comes from the model config key, falling back to
// deployment.
func NewOpenAISynthesizer(cfg *config.SynthesisConfig, opts ...ChatOption) (*ChatSynthesizer, error) {
	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("environment variable %s not set", cfg.APIKeyEnv)
	}
	model := cfg.Model
	if model == "" {
		model = cfg.Deployment
	}
	if model == "" {
		return nil, errors.New("synthesis model is required")
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.EndpointEnv != "" {
		if baseURL := os.Getenv(cfg.EndpointEnv); baseURL != "" {
			clientCfg.BaseURL = baseURL
		}
	}
	return newChatSynthesizer(clientCfg, model, cfg, opts), nil
}

func newChatSynthesizer(clientCfg openai.ClientConfig, model string, cfg *config.SynthesisConfig, opts []ChatOption) *ChatSynthesizer {
	s := &ChatSynthesizer{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       model,
		maxTokens:   cfg.MaxTokens,
		temperature: float32(cfg.Temperature),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synthesize answers the question from the request's context blocks. Each
// block fits the model's input budget; with more than one block the
// partial answers are merged in a final round.
func (s *ChatSynthesizer) Synthesize(ctx context.Context, req Request) (string, error) {
	if len(req.Blocks) == 0 {
		return s.complete(ctx, buildPrompt(req, ""))
	}

	partials := make([]string, 0, len(req.Blocks))
	for _, block := range req.Blocks {
		if block.Oversize && s.logger != nil {
			s.logger.Warn("context block exceeds the configured bound, sending as-is",
				zap.Int("chars", len(block.Text)))
		}
		answer, err := s.complete(ctx, buildPrompt(req, block.Text))
		if err != nil {
			return "", err
		}
		partials = append(partials, answer)
	}
	if len(partials) == 1 {
		return partials[0], nil
	}
	return s.complete(ctx, combinePrompt(req.Question, partials))
}

func (s *ChatSynthesizer) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
		TopP:        1.0,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
