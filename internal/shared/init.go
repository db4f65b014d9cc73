// Package shared provides common initialization utilities used by the
// server, worker, and CLI entry points. Adapters and LLM clients are
// built here once so every mode wires them the same way.
package shared

import (
	"time"

	"go.uber.org/zap"

	"github.com/reviewhub/reviewhub/internal/config"
	"github.com/reviewhub/reviewhub/internal/llm"
	"github.com/reviewhub/reviewhub/internal/platform"
	"github.com/reviewhub/reviewhub/pkg/logger"

	// Register platform adapters
	_ "github.com/reviewhub/reviewhub/internal/platform/gitea"
	_ "github.com/reviewhub/reviewhub/internal/platform/github"
	_ "github.com/reviewhub/reviewhub/internal/platform/gitlab"

	// Register LLM clients
	_ "github.com/reviewhub/reviewhub/internal/llm/anthropic"
	_ "github.com/reviewhub/reviewhub/internal/llm/mock"
	_ "github.com/reviewhub/reviewhub/internal/llm/openai"
)

// InitAdapters initializes platform adapters from configuration.
// Returns a map of platform type -> adapter instance. A platform that
// fails to initialize is skipped; the rest keep working.
func InitAdapters(cfg *config.Config) map[string]platform.Adapter {
	adapters := make(map[string]platform.Adapter)

	for _, pc := range cfg.Platforms {
		opts := &platform.Options{
			Token:              pc.Token,
			BaseURL:            pc.URL,
			WebhookSecret:      pc.WebhookSecret,
			SkipVerification:   pc.SkipVerification,
			InsecureSkipVerify: pc.InsecureSkipVerify,
			CommentPacing:      cfg.Review.CommentPacing(),
		}

		adapter, err := platform.Create(pc.Type, opts)
		if err != nil {
			logger.Warn("Failed to create platform adapter",
				zap.String("type", pc.Type),
				zap.Error(err),
			)
			continue
		}
		adapters[pc.Type] = adapter
		logger.Info("Initialized platform adapter",
			zap.String("type", pc.Type),
			zap.String("url", pc.URL),
			zap.Bool("skip_verification", pc.SkipVerification),
		)
	}

	if len(adapters) == 0 {
		logger.Warn("No platform adapters configured")
	}

	return adapters
}

// InitLLMClient initializes the configured LLM client. The same client
// serves chat completions for reviews and embeddings for indexing.
func InitLLMClient(cfg *config.Config) (llm.Client, error) {
	lc := cfg.LLM

	clientConfig := llm.NewClientConfig(lc.Provider)
	clientConfig.BaseURL = lc.BaseURL
	clientConfig.APIKey = lc.ResolveAPIKey()
	clientConfig.KeySource = lc.ResolveAPIKey
	clientConfig.DefaultModel = lc.Model
	clientConfig.EmbeddingModel = lc.Embedding.Model
	clientConfig.EmbeddingDimensions = lc.Embedding.Dimension
	if lc.MaxTokens > 0 {
		clientConfig.MaxTokens = lc.MaxTokens
	}
	if lc.Timeout > 0 {
		clientConfig.DefaultTimeout = time.Duration(lc.Timeout) * time.Second
	}
	if lc.Embedding.BatchSize > 0 {
		clientConfig.EmbedBatchSize = lc.Embedding.BatchSize
	}

	client, err := llm.Create(lc.Provider, clientConfig)
	if err != nil {
		return nil, err
	}

	logger.Info("Initialized LLM client",
		zap.String("provider", lc.Provider),
		zap.String("model", lc.Model),
		zap.String("embedding_model", lc.Embedding.Model),
		zap.Bool("available", client.Available()),
	)
	return client, nil
}
