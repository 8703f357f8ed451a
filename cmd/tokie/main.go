package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/WDelesposti/tokie/internal/config"
	dbRedis "github.com/WDelesposti/tokie/internal/db/redis"
	"github.com/WDelesposti/tokie/internal/dom"
	"github.com/WDelesposti/tokie/internal/domain/usage/plan"
	"github.com/WDelesposti/tokie/internal/engine"
	"github.com/WDelesposti/tokie/internal/estimator"
	logpkg "github.com/WDelesposti/tokie/internal/logger"
	"github.com/WDelesposti/tokie/internal/metrics"
	sessionrepo "github.com/WDelesposti/tokie/internal/repository/session"
	"github.com/WDelesposti/tokie/internal/source"
	"github.com/WDelesposti/tokie/internal/tracker"
	chiTransport "github.com/WDelesposti/tokie/internal/transport/chi"
	"github.com/WDelesposti/tokie/internal/version"
)

func main() {
	// Load .env if present, then configuration based on ENV
	_ = godotenv.Load()
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

	logger.Info("Starting tokie usage tracker",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("build_date", version.Date),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	// Both drivers speak the same protocol; rueidis serves either.
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
		DB:       cfg.Database.DB,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.Register()

	planType, err := plan.Parse(cfg.Plan)
	if err != nil {
		logger.Fatal("Invalid plan", zap.Error(err))
	}

	repo := sessionrepo.New(store, cfg.Storage.KeyPrefix, planType)

	// Document skeleton: a title node for session-change watching and a chat
	// root the transcript source writes into.
	tree := dom.NewTree()
	title := tree.CreateElement(cfg.Document.Title, nil)
	tree.AppendChild(title, tree.CreateText(""))
	tree.AppendChild(tree.Root(), title)
	chatRoot := tree.CreateElement(cfg.Document.Root, nil)
	tree.AppendChild(tree.Root(), chatRoot)

	// The transcript file name doubles as the session key in the location.
	if cfg.Source.Path != "" {
		name := filepath.Base(cfg.Source.Path)
		sessionID := strings.TrimSuffix(name, filepath.Ext(name))
		tree.SetLocation(cfg.Document.PathPrefix + sessionID)
	}

	cache := chiTransport.NewSnapshotCache()

	eng := engine.New(tree, repo, estimator.Default, cache, logger, engine.Config{
		RootTag:    cfg.Document.Root,
		TitleTag:   cfg.Document.Title,
		PathPrefix: cfg.Document.PathPrefix,
		Tracker: tracker.Config{
			Quiescence: time.Duration(cfg.Tracker.QuiescenceMs) * time.Millisecond,
			Debounce:   time.Duration(cfg.Tracker.DebounceMs) * time.Millisecond,
			Container:  cfg.Document.Container,
			RoleAttr:   cfg.Document.RoleAttr,
		},
	})
	if err := eng.Start(ctx); err != nil {
		logger.Fatal("Failed to start tracking engine", zap.Error(err))
	}
	defer eng.Stop()

	if cfg.Source.Path != "" {
		src := source.NewFile(cfg.Source.Path, tree, chatRoot, logger, source.Config{
			Debounce:  time.Duration(cfg.Source.DebounceMs) * time.Millisecond,
			Container: cfg.Document.Container,
			RoleAttr:  cfg.Document.RoleAttr,
		})
		if err := src.Start(); err != nil {
			logger.Fatal("Failed to start transcript source", zap.Error(err))
		}
		defer src.Stop()
		logger.Info("Watching transcript", zap.String("path", cfg.Source.Path))
	}

	server := chiTransport.NewServer(cache, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Get("/healthz", server.HealthCheck)
	r.Get("/usage", server.GetUsage)
	r.Get("/metrics", server.Metrics)

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

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
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
