package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"studyguider/internal/config"
	"studyguider/internal/embedding"
	"studyguider/internal/ingest"
	"studyguider/internal/knowledge"
	"studyguider/internal/llm"
	"studyguider/internal/observability"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:          "studyguider",
		Short:        "Study abroad assistant backed by a knowledge base and live search",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config.json (default $"+config.EnvConfigPath+" or ./config.json)")
	root.AddCommand(newServeCommand(&cfgPath), newIngestCommand(&cfgPath))
	return root
}

// runtimeEnv bundles what both subcommands need.
type runtimeEnv struct {
	cfg      *config.Config
	logger   *zap.Logger
	genai    *genai.Client
	embedder *embedding.Client
	store    *knowledge.Store
	pipeline *ingest.Pipeline
}

func setup(ctx context.Context, cfgPath string) (*runtimeEnv, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.BasicConfig.LogLevel)
	if err != nil {
		return nil, err
	}

	client, err := llm.NewGenAIClient(ctx, cfg.ProviderKey("gemini"))
	if err != nil {
		return nil, fmt.Errorf("embeddings need GOOGLE_API_KEY: %w", err)
	}
	embedder, err := embedding.NewClient(client, cfg.Embedding.Model, cfg.Embedding.BatchSize)
	if err != nil {
		return nil, err
	}
	store, err := knowledge.Open(cfg.Knowledge.Path, cfg.Knowledge.Collection, embedding.Func(embedder, embedding.ModeQuery))
	if err != nil {
		return nil, err
	}
	pipeline, err := ingest.NewPipeline(ctx, embedder, store, ingest.Options{
		ChunkSize:    cfg.Knowledge.ChunkSize,
		ChunkOverlap: cfg.Knowledge.ChunkOverlap,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("knowledge store ready",
		zap.String("path", store.Path()),
		zap.String("collection", cfg.Knowledge.Collection),
		zap.Int("chunks", store.Count()))

	return &runtimeEnv{
		cfg:      cfg,
		logger:   logger,
		genai:    client,
		embedder: embedder,
		store:    store,
		pipeline: pipeline,
	}, nil
}
