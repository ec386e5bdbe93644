package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"studyguider/internal/agent"
	"studyguider/internal/api"
	"studyguider/internal/chat"
	"studyguider/internal/knowledge"
	"studyguider/internal/llm"
	"studyguider/internal/redis"
	"studyguider/internal/search"
	"studyguider/internal/session"
	"studyguider/internal/storage"
	"studyguider/internal/worker"
)

const (
	shutdownTimeout = 10 * time.Second
	janitorInterval = 5 * time.Minute
)

func newServeCommand(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the chat API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			env, err := setup(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer env.logger.Sync()
			return serve(ctx, env)
		},
	}
}

func serve(ctx context.Context, env *runtimeEnv) error {
	cfg, logger := env.cfg, env.logger

	searcher, err := search.New(ctx, cfg, env.genai)
	if err != nil {
		return fmt.Errorf("init live search: %w", err)
	}
	chatModel, err := llm.NewChatModel(ctx, cfg, env.genai)
	if err != nil {
		return fmt.Errorf("init chat model: %w", err)
	}
	retriever := knowledge.NewRetriever(env.embedder, env.store, cfg.Agent.TopK)
	answerAgent, err := agent.New(ctx, chatModel, retriever, searcher, agent.Options{MaxRounds: cfg.Agent.MaxRounds})
	if err != nil {
		return fmt.Errorf("init agent: %w", err)
	}

	store, closeStore, err := openSessionStore(ctx, env)
	if err != nil {
		return err
	}
	defer closeStore()

	dispatcher := worker.NewDispatcher(worker.Config{
		MinWorkers:  cfg.Worker.MinWorkers,
		MaxWorkers:  cfg.Worker.MaxWorkers,
		QueueSize:   cfg.Worker.QueueSize,
		IdleTimeout: time.Duration(cfg.Worker.IdleTimeout) * time.Second,
	})
	defer dispatcher.Close()

	opts := chat.Options{
		Dispatcher:        dispatcher,
		RollbackOnFailure: cfg.Session.RollbackOnFailure,
	}
	if cfg.Archive.Driver != "" {
		db, err := openArchive(cfg.Archive.Driver, cfg.Archive.DSN)
		if err != nil {
			return err
		}
		defer db.Close()
		opts.Archive = storage.NewArchive(db)
		logger.Info("transcript archive enabled", zap.String("driver", cfg.Archive.Driver))
	}
	chatService := chat.NewService(store, answerAgent, opts)

	gin.SetMode(gin.ReleaseMode)
	handler := api.NewHandler(chatService, api.Options{
		AdminToken: cfg.BasicConfig.AdminToken,
		Knowledge:  env.store,
		Ingester:   env.pipeline,
	})
	server := &http.Server{
		Addr:         cfg.BasicConfig.ServerAddress,
		Handler:      api.NewRouter(handler, logger),
		ReadTimeout:  time.Duration(cfg.BasicConfig.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.BasicConfig.WriteTimeout) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.String("addr", server.Addr),
			zap.String("agent_provider", cfg.Agent.Provider),
			zap.String("agent_model", cfg.Agent.Model),
			zap.String("search_provider", cfg.Search.Provider),
			zap.Bool("admin_routes", cfg.BasicConfig.AdminToken != ""))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openSessionStore(ctx context.Context, env *runtimeEnv) (session.Store, func(), error) {
	cfg, logger := env.cfg, env.logger
	switch cfg.Session.Backend {
	case "redis":
		rdb, err := redis.NewRedisClient(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("create redis client: %w", err)
		}
		logger.Info("redis session store", zap.String("host", cfg.Redis.Host), zap.Int("port", cfg.Redis.Port))
		return session.NewRedisStore(rdb, cfg.SessionTTL()), func() { _ = rdb.Close() }, nil
	default:
		mem := session.NewMemoryStore(cfg.Session.MaxSessions, cfg.SessionTTL())
		mem.StartJanitor(ctx, janitorInterval, func(n int) {
			logger.Info("expired sessions purged", zap.Int("count", n), zap.Int("remaining", mem.Count()))
		})
		return mem, func() {}, nil
	}
}

func openArchive(driver, dsn string) (*sql.DB, error) {
	db, err := storage.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if err := storage.Migrate(db, driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate archive: %w", err)
	}
	return db, nil
}
