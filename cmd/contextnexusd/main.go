// Command contextnexusd runs the ContextNexus HTTP API: the Context
// Optimization Engine and LLM Dispatch Layer described by spec §4-§7,
// wired to whichever vector backend and LLM providers the environment
// configures. Grounded in the teacher's cmd/orchestrator/main.go
// run()-returns-error shape and config/logger/OTel init order, and
// cmd/webui/main.go's http.Server/signal.NotifyContext graceful shutdown.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"contextnexus/internal/cache"
	"contextnexus/internal/config"
	"contextnexus/internal/core"
	"contextnexus/internal/dispatcher"
	"contextnexus/internal/embedder"
	"contextnexus/internal/events"
	"contextnexus/internal/httpapi"
	"contextnexus/internal/objectstore"
	"contextnexus/internal/observability"
	"contextnexus/internal/optimizer"
	"contextnexus/internal/registry"
	"contextnexus/internal/registry/anthropic"
	"contextnexus/internal/registry/google"
	"contextnexus/internal/registry/openai"
	"contextnexus/internal/repository"
	"contextnexus/internal/repository/blobcontent"
	"contextnexus/internal/repository/memory"
	"contextnexus/internal/repository/postgres"
	"contextnexus/internal/repository/qdrant"
	"contextnexus/internal/scorer"
	"contextnexus/internal/selection"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("contextnexusd")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	observability.InitLogger(cfg.Observability.LogPath, cfg.Observability.LogLevel)

	baseCtx := context.Background()

	shutdown, err := observability.InitOTel(baseCtx, cfg.Observability)
	if err != nil {
		log.Warn().Err(err).Msg("otel init failed, continuing without observability")
		shutdown = nil
	}
	if shutdown != nil {
		defer func() { _ = shutdown(context.Background()) }()
	}

	embedCache, err := cache.NewEmbeddingCache(cfg.Cache.URL, 0)
	if err != nil {
		return fmt.Errorf("init embedding cache: %w", err)
	}
	hashEmbed := embedder.NewHash(0, 0)
	var embed repository.Embedder = cache.NewCachingEmbedder(hashEmbed, embedCache)

	contents, contexts, vectors, closeRepo, err := buildRepositories(baseCtx, cfg, embed, hashEmbed.Dimension())
	if err != nil {
		return fmt.Errorf("init repositories: %w", err)
	}
	defer closeRepo()

	if cfg.ObjectStore.Bucket != "" {
		objects, err := objectstore.NewS3Store(baseCtx, cfg.ObjectStore)
		if err != nil {
			return fmt.Errorf("init object store: %w", err)
		}
		contents = blobcontent.New(contents, objects, cfg.ObjectStore.Prefix)
	}

	httpClient := observability.NewHTTPClient(nil)
	reg, err := buildRegistry(baseCtx, cfg, httpClient)
	if err != nil {
		return fmt.Errorf("init model registry: %w", err)
	}

	sc := scorer.New(vectors, func(contentID string, err error) {
		log.Warn().Str("contentId", contentID).Err(err).Msg("scorer: per-item scoring failed")
	})
	opt := optimizer.New(contents, contexts, sc, zerologOptimizerLogger{})
	sel := selection.New(contents, contexts, sc)

	disp := dispatcher.New(reg, cfg.Models,
		dispatcher.WithCircuitBreaker(cfg.Dispatcher.CircuitBreakerThreshold, time.Duration(cfg.Dispatcher.CircuitBreakDurationMS)*time.Millisecond),
		dispatcher.WithConnectorTimeout(time.Duration(cfg.Dispatcher.ConnectorTimeoutMS)*time.Millisecond),
	)

	pub := events.NewPublisher(cfg.Events.Brokers)
	defer func() { _ = pub.Close() }()

	statusCache, err := cache.NewStatusCache(cfg.Cache.URL, 0)
	if err != nil {
		return fmt.Errorf("init status cache: %w", err)
	}
	defer func() { _ = statusCache.Close() }()

	server := httpapi.NewServer(opt, disp, sel, pub, statusCache, cfg.DefaultModelID, cfg.Optimizer.DefaultBudget)

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(baseCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("contextnexusd listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
		return err
	}
	log.Info().Msg("contextnexusd stopped")
	return nil
}

// buildRepositories constructs the content/context/vector repositories for
// cfg.VectorBackend. The returned close func releases any pooled
// connections and is always safe to call.
func buildRepositories(ctx context.Context, cfg config.Config, embed repository.Embedder, dimensions int) (repository.ContentRepository, repository.ContextRepository, repository.VectorRepository, func(), error) {
	switch cfg.VectorBackend {
	case config.VectorBackendPostgres:
		pool, err := postgres.OpenPool(ctx, cfg.Database.URL)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		contents := postgres.NewContentStore(ctx, pool)
		contexts := postgres.NewContextStore(ctx, pool)
		vectors := postgres.NewVectorStore(ctx, pool, dimensions, "cosine", embed)
		return contents, contexts, vectors, pool.Close, nil

	case config.VectorBackendQdrant:
		vectors, err := qdrant.New(ctx, cfg.Qdrant.URL, cfg.Qdrant.Collection, dimensions, "cosine", embed)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		// Qdrant only replaces the vector store; content/context metadata
		// still needs a home. Memory is the sensible default for this
		// combination since a qdrant-only deployment is typically paired
		// with an external system of record for content/context metadata.
		return memory.NewContentStore(), memory.NewContextStore(), vectors, func() {}, nil

	default:
		return memory.NewContentStore(), memory.NewContextStore(), memory.NewVectorStore(embed), func() {}, nil
	}
}

// buildRegistry registers one connector per configured model, dispatching
// on its Provider field.
func buildRegistry(ctx context.Context, cfg config.Config, httpClient *http.Client) (*registry.Registry, error) {
	reg := registry.New()
	for _, m := range cfg.Models {
		c, err := buildConnector(ctx, cfg, m, httpClient)
		if err != nil {
			return nil, fmt.Errorf("model %q: %w", m.ID, err)
		}
		reg.Register(m.ID, c)
	}
	if cfg.DefaultModelID != "" {
		if err := reg.SetDefault(cfg.DefaultModelID); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func buildConnector(ctx context.Context, cfg config.Config, m core.ModelConfig, httpClient *http.Client) (registry.Connector, error) {
	switch m.Provider {
	case "anthropic":
		return anthropic.New(anthropic.Config{APIKey: cfg.LLMProviders.AnthropicAPIKey, Model: m.Model}, httpClient), nil
	case "google":
		return google.New(ctx, google.Config{APIKey: cfg.LLMProviders.GoogleAPIKey, Model: m.Model}, httpClient)
	default:
		return openai.New(openai.Config{APIKey: cfg.LLMProviders.OpenAIAPIKey, Model: m.Model}, httpClient), nil
	}
}

// zerologOptimizerLogger adapts zerolog to optimizer.Logger.
type zerologOptimizerLogger struct{}

func (zerologOptimizerLogger) Warn(msg string, kv ...any) {
	event := log.Warn()
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		event = event.Interface(key, kv[i+1])
	}
	event.Msg(msg)
}
