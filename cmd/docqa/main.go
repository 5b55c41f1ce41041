package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/ai"
	"github.com/xxxsen/docqa/internal/config"
	"github.com/xxxsen/docqa/internal/embedcache"
	"github.com/xxxsen/docqa/internal/extractor"
	"github.com/xxxsen/docqa/internal/filestore"
	"github.com/xxxsen/docqa/internal/handler"
	"github.com/xxxsen/docqa/internal/job"
	"github.com/xxxsen/docqa/internal/middleware"
	"github.com/xxxsen/docqa/internal/repo"
	"github.com/xxxsen/docqa/internal/schedule"
	"github.com/xxxsen/docqa/internal/service"
	"github.com/xxxsen/docqa/internal/vectorstore"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "docqa",
		Short: "document question answering server",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run docqa server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger.Init(
				cfg.LogConfig.File,
				cfg.LogConfig.Level,
				int(cfg.LogConfig.FileCount),
				int(cfg.LogConfig.FileSize),
				int(cfg.LogConfig.KeepDays),
				cfg.LogConfig.Console,
			)
			logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

			db, err := repo.Open(cfg.DBDSN)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			if err := repo.ApplyMigrations(db, cfg.MigrationsDir); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			return runServer(cfg, db)
		},
	}

	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func buildGenerator(cfg config.AIConfig) (ai.IGenerator, error) {
	entries := make([]ai.GeneratorEntry, 0, len(cfg.Chat))
	for _, item := range cfg.Chat {
		provider, err := ai.NewChatProvider(item.Provider, item.Args)
		if err != nil {
			return nil, fmt.Errorf("init chat provider %s: %w", item.Provider, err)
		}
		entries = append(entries, ai.GeneratorEntry{
			Name:      item.Provider + "/" + item.Model,
			Generator: ai.NewGenerator(provider, item.Model),
		})
	}
	return ai.NewGroupGenerator(entries), nil
}

func buildEmbedder(cfg config.AIConfig, cache config.EmbedCacheConfig) (ai.IEmbedder, error) {
	entries := make([]ai.EmbedderEntry, 0, len(cfg.Embed))
	for _, item := range cfg.Embed {
		provider, err := ai.NewEmbedProvider(item.Provider, item.Args)
		if err != nil {
			return nil, fmt.Errorf("init embed provider %s: %w", item.Provider, err)
		}
		entries = append(entries, ai.EmbedderEntry{
			Name:     item.Provider + "/" + item.Model,
			Embedder: ai.NewEmbedder(provider, item.Model),
		})
	}
	embedder := ai.NewGroupEmbedder(entries)
	if cache.Size > 0 {
		embedder = embedcache.WrapLruCacheToEmbedder(embedder, cache.Size, time.Duration(cache.TTLMinutes)*time.Minute)
	}
	return embedder, nil
}

func runServer(cfg *config.Config, db *sqlx.DB) error {
	rootCtx := context.Background()
	logutil.GetLogger(rootCtx).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("vector_store", cfg.VectorStore.Type),
		zap.String("file_store", cfg.FileStore.Type),
	)

	docRepo := repo.NewDocumentRepo(db)
	jobRepo := repo.NewIngestJobRepo(db)

	storeCfg := cfg.VectorStore
	if storeCfg.Data == nil && storeCfg.Type == "pgvector" {
		storeCfg.Data = map[string]interface{}{"dsn": cfg.DBDSN}
	}
	store, err := vectorstore.New(storeCfg)
	if err != nil {
		return fmt.Errorf("init vector store: %w", err)
	}
	if err := store.Init(rootCtx, cfg.VectorStore.Dimension); err != nil {
		return fmt.Errorf("init vector index: %w", err)
	}

	files, err := filestore.New(cfg.FileStore)
	if err != nil {
		return fmt.Errorf("init file store: %w", err)
	}

	generator, err := buildGenerator(cfg.AI)
	if err != nil {
		return err
	}
	embedder, err := buildEmbedder(cfg.AI, cfg.EmbedCache)
	if err != nil {
		return err
	}

	selector := extractor.NewSelector(
		extractor.NewStructural(),
		extractor.NewSemantic(cfg.Extract.Semantic),
	)

	ingestService := service.NewIngestService(selector, embedder, store, docRepo, jobRepo, files, service.IngestServiceConfig{
		ChunkSize:     cfg.Chunk.Size,
		ChunkOverlap:  cfg.Chunk.Overlap,
		RetryAttempts: cfg.AI.RetryAttempts,
		AllowFallback: cfg.Extract.AllowFallbackDefault(),
	})
	composer := service.NewComposer(generator, cfg.AI.MaxInputChars)
	queryService := service.NewQueryService(embedder, store, composer, service.QueryServiceConfig{
		Timeout:       time.Duration(cfg.Query.TimeoutSeconds) * time.Second,
		DefaultTopK:   cfg.Query.DefaultTopK,
		MaxTopK:       cfg.Query.MaxTopK,
		RetryAttempts: cfg.AI.RetryAttempts,
	})
	authService := service.NewAuthService(cfg.APIKeyHash, []byte(cfg.JWTSecret), time.Hour*time.Duration(cfg.JWTTTLHours))

	deps := handler.RouterDeps{
		Auth:            handler.NewAuthHandler(authService),
		Documents:       handler.NewDocumentHandler(ingestService),
		Query:           handler.NewQueryHandler(queryService),
		JWTSecret:       []byte(cfg.JWTSecret),
		RateLimitWindow: time.Duration(cfg.RateLimitSeconds) * time.Second,
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(nil),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(rootCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	cleanup := job.NewIngestCleanupJob(jobRepo, time.Duration(cfg.Jobs.IngestJobMaxAgeHrs)*time.Hour)
	if err := scheduler.AddJob(cleanup, cfg.Jobs.CleanupSpec); err != nil {
		return fmt.Errorf("schedule cleanup: %w", err)
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	logutil.GetLogger(rootCtx).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))
	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(rootCtx).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(rootCtx).Info("server stopping...")
	return nil
}
