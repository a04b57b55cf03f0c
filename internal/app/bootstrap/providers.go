package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	openai "github.com/sashabaranov/go-openai"

	appconfig "github.com/wolfman30/wellness-companion/internal/config"
	"github.com/wolfman30/wellness-companion/internal/llm"
	"github.com/wolfman30/wellness-companion/pkg/logging"
)

// BuildLLMClient wires the primary generative provider and, when configured, a
// fallback behind it.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (llm.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	loader := &awsLoader{cfg: cfg}

	primary, err := buildProvider(ctx, cfg.LLMProvider, cfg, loader)
	if err != nil {
		return nil, err
	}
	fallbackName := strings.TrimSpace(cfg.FallbackLLMProvider)
	if fallbackName == "" || fallbackName == cfg.LLMProvider {
		logger.Info("llm provider configured", "provider", cfg.LLMProvider)
		return primary, nil
	}
	fallback, err := buildProvider(ctx, fallbackName, cfg, loader)
	if err != nil {
		logger.Warn("fallback llm provider unavailable; using primary alone", "provider", fallbackName, "error", err)
		return primary, nil
	}
	logger.Info("llm provider configured", "provider", cfg.LLMProvider, "fallback", fallbackName)
	return llm.NewFallbackClient(primary, fallback, logger), nil
}

func buildProvider(ctx context.Context, name string, cfg *appconfig.Config, loader *awsLoader) (llm.Client, error) {
	switch name {
	case "bedrock":
		if strings.TrimSpace(cfg.BedrockModelID) == "" {
			return nil, fmt.Errorf("bootstrap: BEDROCK_MODEL_ID is required for the bedrock provider")
		}
		awsCfg, err := loader.get(ctx)
		if err != nil {
			return nil, err
		}
		return llm.NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID), nil
	case "openai":
		client, err := llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		return client, nil
	case "gemini":
		client, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown llm provider %q", name)
	}
}

// BuildEmbedder wires the embedding provider used for research retrieval. The
// same provider must have produced the stored paper vectors.
func BuildEmbedder(ctx context.Context, cfg *appconfig.Config) (llm.Embedder, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	switch cfg.EmbeddingProvider {
	case "bedrock":
		awsCfg, err := LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return llm.NewBedrockEmbedder(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockEmbeddingID), nil
	case "openai":
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return nil, fmt.Errorf("bootstrap: OPENAI_API_KEY is required for openai embeddings")
		}
		return llm.NewOpenAIEmbedder(openai.DefaultConfig(cfg.OpenAIAPIKey), cfg.OpenAIEmbeddingModel), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown embedding provider %q", cfg.EmbeddingProvider)
	}
}
