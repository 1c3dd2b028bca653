package bootstrap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/oncotrack-ai/platform/internal/config"
	"github.com/oncotrack-ai/platform/internal/extraction"
	"github.com/oncotrack-ai/platform/internal/observability/metrics"
	"github.com/oncotrack-ai/platform/pkg/logging"
)

// BuildExtractionGateway wires the LLM extraction pipeline from config:
// Bedrock as primary, Gemini as fallback, and an optional Redis result cache.
// At least one of BEDROCK_MODEL_ID and GEMINI_API_KEY must be set.
func BuildExtractionGateway(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, redisClient *redis.Client, m *metrics.ExtractionMetrics, logger *logging.Logger) (*extraction.Extractor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var primary, fallback extraction.LLMClient

	if cfg.BedrockModelID != "" {
		primary = extraction.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg))
		logger.Info("bedrock extraction client initialized", "model", cfg.BedrockModelID)
	}

	if cfg.GeminiAPIKey != "" {
		gemini, err := extraction.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: gemini client: %w", err)
		}
		if primary == nil {
			primary = gemini
			logger.Info("gemini extraction client initialized as primary", "model", cfg.GeminiModelID)
		} else {
			fallback = gemini
			logger.Info("gemini extraction client initialized as fallback", "model", cfg.GeminiModelID)
		}
	}

	if primary == nil {
		return nil, fmt.Errorf("bootstrap: no LLM configured; set BEDROCK_MODEL_ID or GEMINI_API_KEY")
	}

	client := primary
	if fallback != nil {
		client = extraction.NewFallbackLLMClient(primary, fallback, logger.Logger)
	}

	var cache *extraction.Cache
	if redisClient != nil {
		cache = extraction.NewCache(redisClient, cfg.ExtractionCacheTTL)
		logger.Info("extraction cache enabled", "ttl", cfg.ExtractionCacheTTL.String())
	}

	extractorCfg := extraction.Config{
		Model:       cfg.BedrockModelID,
		MaxRetries:  cfg.ExtractionMaxRetries,
		RetryDelay:  cfg.ExtractionRetryDelay,
		MaxTokens:   int32(cfg.ExtractionMaxTokens),
		Temperature: float32(cfg.Temperature),
	}
	if extractorCfg.Model == "" {
		extractorCfg.Model = cfg.GeminiModelID
	}

	return extraction.NewExtractor(client, extractorCfg, cache, m, logger), nil
}
