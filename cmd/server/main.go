package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/0xcro3dile/ragtutor/internal/adapters/crawler"
	"github.com/0xcro3dile/ragtutor/internal/adapters/filewatcher"
	"github.com/0xcro3dile/ragtutor/internal/adapters/llm"
	"github.com/0xcro3dile/ragtutor/internal/adapters/loader"
	"github.com/0xcro3dile/ragtutor/internal/adapters/vectordb"
	"github.com/0xcro3dile/ragtutor/internal/config"
	"github.com/0xcro3dile/ragtutor/internal/domain/ports"
	"github.com/0xcro3dile/ragtutor/internal/domain/usecases"
	httpserver "github.com/0xcro3dile/ragtutor/internal/infrastructure/http"
	"github.com/0xcro3dile/ragtutor/internal/infrastructure/metrics"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "ragtutor:", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadDotEnv(os.Getenv("ENV_FILE")); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Knowledge store
	storeOpts := []vectordb.Option{
		vectordb.WithLogger(logger.Named("knowledge")),
		vectordb.WithWebCapacity(cfg.KnowledgeWebCapacity),
	}
	if cfg.KnowledgeDBPath != "" {
		db, err := vectordb.NewSQLiteStore(cfg.KnowledgeDBPath)
		if err != nil {
			return fmt.Errorf("opening knowledge db: %w", err)
		}
		defer db.Close()
		persisted, err := db.Count(ctx)
		if err != nil {
			return fmt.Errorf("reading knowledge db: %w", err)
		}
		logger.Info("knowledge db opened", zap.String("path", cfg.KnowledgeDBPath), zap.Int("chunks", persisted))
		storeOpts = append(storeOpts, vectordb.WithPersister(db))
	}
	store := vectordb.NewInMemoryStore(storeOpts...)

	seed, err := loader.SeedChunks()
	if err != nil {
		return fmt.Errorf("loading seed knowledge: %w", err)
	}
	store.Seed(seed)
	restored, err := store.Restore(ctx)
	if err != nil {
		logger.Warn("could not restore learned knowledge", zap.Error(err))
	}
	logger.Info("knowledge ready", zap.Int("seed", len(seed)), zap.Int("restored", restored))

	// Knowledge directory
	if cfg.KnowledgeDir != "" {
		stopWatch, err := watchKnowledge(ctx, cfg.KnowledgeDir, store, logger)
		if err != nil {
			return err
		}
		defer stopWatch()
	}

	// Model and web search
	var (
		model    ports.ModelClient
		searcher ports.WebSearcher
	)
	if cfg.GeminiAPIKey != "" {
		gemini, err := llm.NewGeminiAdapter(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, logger.Named("gemini"))
		if err != nil {
			return err
		}
		searcher = gemini
		if cfg.ModelProvider == config.ProviderGemini {
			model = gemini
		}
		logger.Info("gemini client ready",
			zap.String("model", gemini.Model()),
			zap.Bool("chat", cfg.ModelProvider == config.ProviderGemini),
		)
	}
	if cfg.ModelProvider == config.ProviderOllama {
		model = llm.NewOllamaAdapter(cfg.OllamaBaseURL, cfg.OllamaModel)
	}
	if !cfg.HasModelCredential() {
		logger.Warn("GEMINI_API_KEY is not set; chat turns will report a configuration error")
	}

	// Crawling
	var fetcher ports.WebFetcher
	if cfg.FirecrawlAPIKey != "" {
		fetcher = crawler.NewFirecrawlClient(cfg.FirecrawlBaseURL, cfg.FirecrawlAPIKey)
	} else {
		fetcher = crawler.NewHTMLFetcher(nil)
	}

	// Agent
	configStore, err := usecases.NewConfigStoreFromPreset(cfg.AgentPreset)
	if err != nil {
		return err
	}
	learner := usecases.NewLearnUseCase(fetcher, store, cfg.CrawlTimeout, logger.Named("learn"))
	dispatcher := usecases.NewToolDispatcher(store, searcher, learner, cfg.SearchTimeout, logger.Named("tools"))
	recorder := metrics.NewRecorder(store.Len)

	agent := usecases.NewAgent(usecases.AgentDeps{
		Model:        model,
		Tools:        dispatcher,
		Config:       configStore,
		Observer:     recorder,
		Logger:       logger.Named("agent"),
		Temperature:  float32(cfg.ModelTemperature),
		ModelTimeout: cfg.ModelTimeout,
	})

	server := httpserver.NewServer(httpserver.Options{
		Addr:          fmt.Sprintf(":%d", cfg.Port),
		Agent:         agent,
		Config:        configStore,
		Metrics:       recorder.Handler(),
		KnowledgeSize: store.Len,
		APIKey:        cfg.APIKey,
		Logger:        logger.Named("http"),
	})

	logger.Info("agent configured",
		zap.String("provider", cfg.ModelProvider),
		zap.String("preset", cfg.AgentPreset),
		zap.Bool("web_search", searcher != nil),
		zap.Bool("firecrawl", cfg.FirecrawlAPIKey != ""),
	)

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

// watchKnowledge loads dir once and then follows changes to it.
func watchKnowledge(ctx context.Context, dir string, store ports.KnowledgeStore, logger *zap.Logger) (func(), error) {
	files := loader.NewMultiLoader()
	sync := usecases.NewKnowledgeSyncUseCase(files, store, logger.Named("sync"))

	n, err := sync.LoadDir(ctx, dir)
	if err != nil {
		return nil, err
	}
	logger.Info("knowledge directory loaded", zap.String("dir", dir), zap.Int("chunks", n))

	watcher, err := filewatcher.NewFSNotifyWatcher(files.SupportedExtensions(), logger.Named("watcher"))
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	events, err := watcher.Watch(ctx, dir)
	if err != nil {
		watcher.Stop()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}
	go sync.Run(ctx, events)

	return func() { _ = watcher.Stop() }, nil
}
