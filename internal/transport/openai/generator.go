package openai

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragstream/internal/domain"
	"github.com/kailas-cloud/ragstream/internal/metrics"
)

const defaultSystemPrompt = "You are a helpful assistant. Answer strictly from the provided context and cite sources by their numbers."

// Generator streams chat completions from an OpenAI-compatible API.
type Generator struct {
	client       *openai.Client
	model        string
	provider     string
	systemPrompt string
	maxTokens    int
	logger       *zap.Logger
}

// GeneratorConfig holds the generation provider settings.
type GeneratorConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	Provider     string
	SystemPrompt string
	MaxTokens    int
	Logger       *zap.Logger
}

// NewGenerator creates an OpenAI-compatible streaming generator.
func NewGenerator(cfg *GeneratorConfig) *Generator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Generator{
		client:       openai.NewClientWithConfig(clientCfg),
		model:        cfg.Model,
		provider:     cfg.Provider,
		systemPrompt: systemPrompt,
		maxTokens:    cfg.MaxTokens,
		logger:       logger,
	}
}

// Stream sends the prompt and forwards each delta to emit in arrival order.
// An emit error aborts the stream and propagates.
func (g *Generator) Stream(ctx context.Context, prompt string, emit func(token string) error) error {
	req := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: g.systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Stream: true,
	}
	if g.maxTokens > 0 {
		req.MaxTokens = g.maxTokens
	}

	stream, err := g.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return fmt.Errorf("open completion stream: %v: %w", err, domain.ErrGenerationFailed)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("receive completion chunk: %v: %w", err, domain.ErrGenerationFailed)
		}
		if len(resp.Choices) == 0 {
			continue
		}

		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		if err := emit(delta); err != nil {
			return fmt.Errorf("emit token: %w", err)
		}
		metrics.GenerationTokensTotal.WithLabelValues(g.provider, g.model).Inc()
	}
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (g *Generator) HealthCheck(ctx context.Context) error {
	if _, err := g.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}
