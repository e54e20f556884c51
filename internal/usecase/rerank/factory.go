package rerank

import (
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragstream/internal/domain"
)

// Reranking approaches.
const (
	ApproachML    = "ml"
	ApproachLLM   = "llm"
	ApproachChain = "chain"
)

// Providers for the ml approach.
const (
	ProviderLocal = "local"
	ProviderJina  = "jina"
)

// Config selects and configures a reranker. An empty Approach disables
// reranking.
type Config struct {
	Approach   string
	Provider   string
	Model      string
	ModelPath  string
	APIKey     string
	BaseURL    string
	TimeoutSec int
	Stages     []Config
}

// New builds the configured reranker. A nil, nil return means reranking is
// disabled: either explicitly, or because an optional credential is missing.
// An invalid approach/provider combination is a configuration error.
func New(cfg Config, logger *zap.Logger) (Reranker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Approach {
	case "":
		return nil, nil

	case ApproachML:
		return newML(cfg, logger)

	case ApproachLLM:
		if cfg.APIKey == "" {
			logger.Warn("llm reranker disabled: no api key configured")
			return nil, nil
		}
		clientCfg := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = cfg.BaseURL
		}
		client := openai.NewClientWithConfig(clientCfg)
		return NewLLM(client, cfg.Model, secs(cfg.TimeoutSec), logger), nil

	case ApproachChain:
		stages := make([]Reranker, 0, len(cfg.Stages))
		for i, stageCfg := range cfg.Stages {
			stage, err := New(stageCfg, logger)
			if err != nil {
				return nil, fmt.Errorf("chain stage %d: %w", i, err)
			}
			stages = append(stages, stage)
		}
		chain := NewChain(stages...)
		if chain.Len() == 0 {
			logger.Warn("chain reranker disabled: no stage configured")
			return nil, nil
		}
		return chain, nil

	default:
		return nil, fmt.Errorf("unknown rerank approach %q: %w", cfg.Approach, domain.ErrInvalidConfig)
	}
}

func newML(cfg Config, logger *zap.Logger) (Reranker, error) {
	switch cfg.Provider {
	case ProviderLocal:
		if cfg.ModelPath == "" {
			logger.Warn("local reranker disabled: no model path configured")
			return nil, nil
		}
		local, err := NewLocal(cfg.ModelPath, cfg.Model, logger)
		if err != nil {
			return nil, fmt.Errorf("load local reranker: %w", err)
		}
		return local, nil

	case ProviderJina:
		if cfg.APIKey == "" {
			logger.Warn("jina reranker disabled: no api key configured")
			return nil, nil
		}
		return NewJina(JinaConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
			Timeout: secs(cfg.TimeoutSec),
		}, logger), nil

	default:
		return nil, fmt.Errorf("unknown ml rerank provider %q: %w", cfg.Provider, domain.ErrInvalidConfig)
	}
}

func secs(n int) time.Duration {
	return time.Duration(n) * time.Second
}
