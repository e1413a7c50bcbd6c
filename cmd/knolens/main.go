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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lumen-kb/knolens/internal/config"
	dbRedis "github.com/lumen-kb/knolens/internal/db/redis"
	"github.com/lumen-kb/knolens/internal/domain"
	"github.com/lumen-kb/knolens/internal/domain/query"
	logpkg "github.com/lumen-kb/knolens/internal/logger"
	"github.com/lumen-kb/knolens/internal/metrics"
	contentrepo "github.com/lumen-kb/knolens/internal/repository/content"
	"github.com/lumen-kb/knolens/internal/repository/embcache"
	lexicalrepo "github.com/lumen-kb/knolens/internal/repository/lexical"
	"github.com/lumen-kb/knolens/internal/repository/rescache"
	semanticrepo "github.com/lumen-kb/knolens/internal/repository/semantic"
	chiTransport "github.com/lumen-kb/knolens/internal/transport/chi"
	openaiEmb "github.com/lumen-kb/knolens/internal/transport/openai"
	accessuc "github.com/lumen-kb/knolens/internal/usecase/access"
	"github.com/lumen-kb/knolens/internal/usecase/fusion"
	healthuc "github.com/lumen-kb/knolens/internal/usecase/health"
	invalidateuc "github.com/lumen-kb/knolens/internal/usecase/invalidate"
	searchuc "github.com/lumen-kb/knolens/internal/usecase/search"
	versionsuc "github.com/lumen-kb/knolens/internal/usecase/versions"
	"github.com/lumen-kb/knolens/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting knolens API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	// Wait for database to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register retrieval metrics explicitly (no init())
	metrics.RegisterRetrievalMetrics()

	// Content repository and its FT index, created before the first request
	contentRepo := contentrepo.New(store, cfg.Embedding.Dimensions).WithHNSW(contentrepo.HNSWConfig{
		M:           cfg.Index.HNSWM,
		EFConstruct: cfg.Index.HNSWEFConstruct,
	})
	if err := contentRepo.EnsureIndex(ctx); err != nil {
		logger.Fatal("Failed to ensure content index", zap.Error(err))
	}

	// Embedder chain: OpenAI -> Cached
	embedder := buildEmbedder(cfg, store, logger)
	logger.Info("Embedder created",
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	// Repositories over the same store
	lexRepo := lexicalrepo.New(store)
	semRepo := semanticrepo.New(store, cfg.Search.MinSemanticScore)
	resultCache := rescache.New(store, rescache.Config{
		CommonTTL:        time.Duration(cfg.Cache.CommonTTLSec) * time.Second,
		RareTTL:          time.Duration(cfg.Cache.RareTTLSec) * time.Second,
		PromoteThreshold: int64(cfg.Cache.PromoteThreshold),
		CounterWindow:    time.Duration(cfg.Cache.CounterWindowSec) * time.Second,
		L1Size:           cfg.Cache.L1Size,
	})

	// Use case services
	accessSvc := accessuc.New(contentRepo, logger)
	versionsSvc := versionsuc.New(contentRepo)
	searchSvc := searchuc.New(
		lexRepo, semRepo, embedder, resultCache, accessSvc, versionsSvc, contentRepo,
		searchuc.Config{
			Weights: fusion.Weights{
				Semantic: cfg.Fusion.SemanticWeight,
				Lexical:  cfg.Fusion.LexicalWeight,
			},
			QueryTimeout: time.Duration(cfg.Search.QueryTimeoutMs) * time.Millisecond,
		},
		logger,
	)
	invalidateSvc := invalidateuc.New(contentRepo, embedder, resultCache, logger)
	healthSvc := healthuc.New(store, newEmbeddingHealthChecker(embedder), store, contentrepo.IndexName)

	// Create chi server
	server := chiTransport.NewServer(searchSvc, invalidateSvc, healthSvc, logger).
		WithLimits(query.Limits{
			TopK:        cfg.Search.TopK,
			PageSize:    cfg.Search.DefaultPageSize,
			MaxPageSize: cfg.Search.MaxPageSize,
		})

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.AdminAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)
	r.Handle("/metrics", promhttp.Handler())

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

// buildEmbedder assembles the decorator chain: OpenAI -> Cached.
// The same chain serves query vectorization and ingestion.
func buildEmbedder(cfg config.Config, store *dbRedis.Store, logger *zap.Logger) domain.Embedder {
	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   "openai",
		Logger:     logger,
	})

	return embcache.New(
		base, store,
		time.Duration(cfg.Cache.EmbeddingTTLSec)*time.Second,
		metrics.EmbeddingCacheTotal, logger,
	)
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
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
