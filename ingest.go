package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"studyguider/internal/ingest"
)

func newIngestCommand(cfgPath *string) *cobra.Command {
	var (
		watchDir string
		debounce time.Duration
	)
	cmd := &cobra.Command{
		Use:   "ingest [paths...]",
		Short: "Load .docx, .txt and .md files into the knowledge store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && watchDir == "" {
				return errors.New("nothing to ingest: pass file paths or --watch")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			env, err := setup(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer env.logger.Sync()
			return runIngest(ctx, env, args, watchDir, debounce)
		},
	}
	cmd.Flags().StringVarP(&watchDir, "watch", "w", "", "ingest a directory and keep re-ingesting files as they change")
	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "quiet period before a changed file is re-ingested")
	return cmd
}

func runIngest(ctx context.Context, env *runtimeEnv, paths []string, watchDir string, debounce time.Duration) error {
	var failed int
	for _, path := range paths {
		n, err := env.pipeline.IngestFile(ctx, path)
		if err != nil {
			env.logger.Error("ingest failed", zap.String("file", path), zap.Error(err))
			failed++
			continue
		}
		env.logger.Info("ingested", zap.String("file", path), zap.Int("chunks", n))
	}
	if watchDir == "" {
		env.logger.Info("ingestion finished",
			zap.Int("files", len(paths)),
			zap.Int("failed", failed),
			zap.Int("chunks_total", env.store.Count()))
		if failed > 0 {
			return errors.New("some files could not be ingested")
		}
		return nil
	}

	watcher := ingest.NewWatcher(env.pipeline, debounce)
	n, err := watcher.IngestDir(ctx, watchDir)
	if err != nil {
		return err
	}
	env.logger.Info("watching directory", zap.String("dir", watchDir), zap.Int("chunks", n))
	return watcher.Watch(ctx, watchDir, func(path string, chunks int) {
		env.logger.Info("re-ingested", zap.String("file", path), zap.Int("chunks", chunks))
	})
}
