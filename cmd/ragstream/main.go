package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragstream/internal/config"
	"github.com/kailas-cloud/ragstream/internal/db"
	dbRedis "github.com/kailas-cloud/ragstream/internal/db/redis"
	"github.com/kailas-cloud/ragstream/internal/domain"
	logpkg "github.com/kailas-cloud/ragstream/internal/logger"
	"github.com/kailas-cloud/ragstream/internal/metrics"
	"github.com/kailas-cloud/ragstream/internal/repository/embcache"
	vectorfactory "github.com/kailas-cloud/ragstream/internal/repository/vector/factory"
	chiTransport "github.com/kailas-cloud/ragstream/internal/transport/chi"
	openaiTr "github.com/kailas-cloud/ragstream/internal/transport/openai"
	"github.com/kailas-cloud/ragstream/internal/transport/ws"
	chatuc "github.com/kailas-cloud/ragstream/internal/usecase/chat"
	embeddinguc "github.com/kailas-cloud/ragstream/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/ragstream/internal/usecase/health"
	rerankuc "github.com/kailas-cloud/ragstream/internal/usecase/rerank"
	retrievaluc "github.com/kailas-cloud/ragstream/internal/usecase/retrieval"
	"github.com/kailas-cloud/ragstream/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting ragstream API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("vector_backend", cfg.VectorStore.Backend),
	)

	// Register Prometheus metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterPipelineMetrics()
	metrics.RegisterWSMetrics()

	ctx := context.Background()

	// Active vectorizer determines the embedding model and vector dimensions
	vecCfg, provName := activeVectorizer(cfg)
	provCfg := cfg.Embedding.Providers[provName]

	// Vector store backend. Initialization failures degrade to an
	// Unavailable adapter, the server still starts and reports per request.
	adapter, closeStore := vectorfactory.New(ctx, vectorfactory.Config{
		Backend:       cfg.VectorStore.Backend,
		Collection:    cfg.VectorStore.Collection,
		Dim:           vecCfg.Dimensions,
		RedisAddrs:    cfg.VectorStore.Redis.Addrs,
		RedisUsername: cfg.VectorStore.Redis.Username,
		RedisPassword: cfg.VectorStore.Redis.Password,
		RedisDB:       cfg.VectorStore.Redis.DB,
		PostgresDSN:   cfg.VectorStore.Postgres.DSN,
		Table:         cfg.VectorStore.Postgres.Table,
	}, logger)
	defer closeStore()

	// Embedding cache rides on Redis; the pgvector backend runs uncached
	var cacheStore db.Store
	if cfg.VectorStore.Backend == "redis" {
		cacheStore = newCacheStore(ctx, cfg, logger)
	}
	if cacheStore != nil {
		defer cacheStore.Close()
	}

	cacheTTL := time.Duration(cfg.Embedding.CacheTTLSec) * time.Second
	queryEmbedder := buildEmbedder(provName, provCfg, vecCfg, cacheStore, cacheTTL, logger)
	logger.Info("Embedder created",
		zap.String("provider", provName),
		zap.String("model", vecCfg.Model),
		zap.Int("dimensions", vecCfg.Dimensions),
	)

	retriever, err := buildRetriever(ctx, cfg, adapter, queryEmbedder, logger)
	if err != nil {
		logger.Fatal("Failed to build retriever", zap.Error(err))
	}

	reranker, err := rerankuc.New(rerankConfig(cfg.Rerank), logger)
	if err != nil {
		logger.Fatal("Invalid rerank configuration", zap.Error(err))
	}

	generator := openaiTr.NewGenerator(&openaiTr.GeneratorConfig{
		APIKey:       cfg.Generation.APIKey,
		BaseURL:      cfg.Generation.BaseURL,
		Model:        cfg.Generation.Model,
		Provider:     cfg.Generation.Provider,
		SystemPrompt: cfg.Generation.SystemPrompt,
		MaxTokens:    cfg.Generation.MaxTokens,
		Logger:       logger,
	})

	// Pass nil interface (not typed nil pointer!) if reranking is disabled.
	// Go gotcha: a typed nil wrapped in chatuc.Reranker != nil.
	var chatReranker chatuc.Reranker
	if reranker != nil {
		chatReranker = reranker
	}

	chatSvc, err := chatuc.New(retriever, chatReranker, generator, cfg.Chat.TopN, logger)
	if err != nil {
		logger.Fatal("Failed to create chat service", zap.Error(err))
	}

	// Health service
	healthSvc := healthuc.New(adapter, newEmbeddingHealthChecker(queryEmbedder), retriever)

	// WebSocket transport
	registry := ws.NewRegistry(logger)
	wsHandler := ws.NewHandler(chatSvc, registry, logger)

	r := chiTransport.NewRouter(chiTransport.RouterConfig{
		ChatHandler: wsHandler,
		Health:      healthSvc,
		APIKeys:     cfg.Auth.APIKeys,
		Middlewares: []func(http.Handler) http.Handler{
			jsonRecoverer(logger),
			chiMiddleware.RequestID,
			wideEventMiddleware(logger),
			metrics.Middleware(),
		},
		Logger: logger,
	})

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// activeVectorizer resolves the vectorizer used for query embedding and the
// provider it references. Falls back to the first configured vectorizer when
// embedding.active is empty.
func activeVectorizer(cfg config.Config) (config.VectorizerConfig, string) {
	if cfg.Embedding.Active != "" {
		vc := cfg.Embedding.Vectorizers[cfg.Embedding.Active]
		return vc, vc.Provider
	}
	for _, vc := range cfg.Embedding.Vectorizers {
		return vc, vc.Provider
	}
	return config.VectorizerConfig{}, ""
}

// newCacheStore connects the Redis KV store backing the embedding cache.
// Failures are non-fatal: the service runs without a cache.
func newCacheStore(ctx context.Context, cfg config.Config, logger *zap.Logger) db.Store {
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.VectorStore.Redis.Addrs,
		Username: cfg.VectorStore.Redis.Username,
		Password: cfg.VectorStore.Redis.Password,
		DB:       cfg.VectorStore.Redis.DB,
	})
	if err != nil {
		logger.Warn("Embedding cache disabled", zap.Error(err))
		return nil
	}

	timeout := time.Duration(cfg.VectorStore.Redis.ReadinessTimeout) * time.Second
	if err := store.WaitForReady(ctx, timeout); err != nil {
		store.Close()
		logger.Warn("Embedding cache disabled, Redis not ready", zap.Error(err))
		return nil
	}

	return store
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instrumented -> Instruction
func buildEmbedder(
	provName string,
	provCfg config.ProviderConfig,
	vecCfg config.VectorizerConfig,
	cacheStore db.Store,
	cacheTTL time.Duration,
	logger *zap.Logger,
) domain.Embedder {
	// Base provider (with transport metrics built-in)
	base := openaiTr.NewEmbedder(&openaiTr.Config{
		APIKey:     provCfg.APIKey,
		BaseURL:    provCfg.BaseURL,
		Model:      vecCfg.Model,
		Dimensions: vecCfg.Dimensions,
		Provider:   provName,
		Logger:     logger,
	})

	// Cached
	var embedder domain.Embedder = base
	if cacheStore != nil {
		embedder = embcache.New(base, cacheStore, cacheTTL, metrics.EmbeddingCacheTotal, logger)
	}

	// Instrumented (metrics + logging)
	embedder = embeddinguc.NewInstrumentedEmbedder(embedder, provName, vecCfg.Model, logger)

	// Instruction prefix (outermost — cache key includes instruction)
	if vecCfg.QueryInstruction != "" {
		return domain.NewInstructionEmbedder(embedder, vecCfg.QueryInstruction)
	}

	return embedder
}

// buildRetriever assembles the dense or hybrid retriever. The keyword leg
// runs only when alpha < 1 and the backend supports text search.
func buildRetriever(
	ctx context.Context,
	cfg config.Config,
	store retrievaluc.Store,
	embedder domain.Embedder,
	logger *zap.Logger,
) (retrievaluc.Retriever, error) {
	alpha := cfg.Retrieval.Alpha()
	topK := cfg.Retrieval.TopK
	dim := dimOrDefault(cfg)

	if alpha >= 1 || !store.SupportsTextSearch(ctx) {
		if alpha < 1 {
			logger.Warn("Keyword search unsupported by backend, using dense retrieval only")
		}
		return retrievaluc.NewDense(store, embedder, topK, dim, logger)
	}

	merger, err := retrievaluc.NewMerger(alpha)
	if err != nil {
		return nil, fmt.Errorf("create merger: %w", err)
	}

	return retrievaluc.NewHybrid(
		store, embedder, merger, buildPreprocess(cfg.Retrieval.Preprocess, logger),
		topK, dim, cfg.Retrieval.CandidateMultiplier, logger,
	)
}

func dimOrDefault(cfg config.Config) int {
	vecCfg, _ := activeVectorizer(cfg)
	if vecCfg.Dimensions > 0 {
		return vecCfg.Dimensions
	}
	return 1536
}

// buildPreprocess wires the keyword-leg preprocessing pipeline.
// Returns nil when nothing is configured.
func buildPreprocess(cfg config.PreprocessConfig, logger *zap.Logger) *retrievaluc.Pipeline {
	// Assign concrete types through interface variables only when present,
	// a typed nil pointer in an interface would not be nil.
	var protector retrievaluc.CompoundProtector
	if len(cfg.CompoundTerms) > 0 {
		protector = retrievaluc.NewCompoundDict(cfg.CompoundTerms)
	}

	var expander retrievaluc.SynonymExpander
	if len(cfg.Synonyms) > 0 {
		expander = retrievaluc.NewSynonymMap(cfg.Synonyms)
	}

	var stopwords retrievaluc.StopwordFilter
	if len(cfg.Stopwords) > 0 {
		stopwords = retrievaluc.NewStopwordSet(cfg.Stopwords)
	}

	if protector == nil && expander == nil && stopwords == nil {
		return nil
	}

	return retrievaluc.NewPipeline(protector, expander, stopwords, logger)
}

// rerankConfig maps the YAML rerank section onto the factory config.
func rerankConfig(cfg config.RerankConfig) rerankuc.Config {
	out := rerankuc.Config{
		Approach:   cfg.Approach,
		Provider:   cfg.Provider,
		Model:      cfg.Model,
		ModelPath:  cfg.ModelPath,
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		TimeoutSec: cfg.TimeoutSec,
	}
	for _, stage := range cfg.Stages {
		out.Stages = append(out.Stages, rerankConfig(stage))
	}
	return out
}

// embeddingHealthChecker wraps domain.Embedder to implement health.EmbeddingChecker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
			)
		})
	}
}
