package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chunkdrive/internal/config"
	"chunkdrive/internal/database"
	"chunkdrive/internal/domain/file"
	"chunkdrive/internal/middleware"
	"chunkdrive/internal/modules/deletion"
	"chunkdrive/internal/modules/download"
	"chunkdrive/internal/modules/files"
	"chunkdrive/internal/modules/progress"
	"chunkdrive/internal/modules/upload"
	jwtsvc "chunkdrive/internal/pkg/jwt"
	"chunkdrive/internal/pkg/logging"
	"chunkdrive/internal/transport"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	config.LoadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("api stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close(db)

	if err := file.AutoMigrate(db); err != nil {
		return err
	}

	// One transport session for the whole process.
	store, err := transport.Open(ctx, cfg.Transport, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("transport close", slog.String("error", err.Error()))
		}
	}()

	repo := file.NewRepository(db)
	ledger := file.NewOrphanLedger(db)
	hub := progress.NewHub()
	defer hub.Close()

	origins := middleware.AllowedOrigins(cfg.CORSAllowedOrigins)
	j := jwtsvc.New(cfg.JWTSecret, cfg.JWTTTL)

	handler := files.NewHandler(files.HandlerDeps{
		Files:         files.NewService(repo),
		Uploads:       upload.NewService(repo, ledger, store, hub, cfg.MaxTotalChunks, logger),
		Downloads:     download.NewService(repo, store, logger),
		Deletions:     deletion.NewCoordinator(repo, store, ledger, logger),
		Progress:      progress.NewHandler(hub, origins, logger),
		MaxChunkBytes: store.MaxChunkBytes(),
		Logger:        logger,
	})

	if !isDebug(cfg.AppEnv) {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.ErrorLogger(logger), middleware.Metrics(), middleware.CORS(origins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/files")
	protected := r.Group("/api/files")
	if cfg.SingleTenant {
		protected.Use(middleware.SingleTenant(j))
	} else {
		protected.Use(middleware.JWTAuth(j))
	}
	handler.RegisterRoutes(api, protected)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api listening",
			slog.String("addr", cfg.HTTPAddr),
			slog.String("transport", cfg.Transport.Backend),
			slog.Bool("single_tenant", cfg.SingleTenant),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", slog.Duration("timeout", cfg.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func isDebug(env string) bool {
	return env == "dev" || env == "local" || env == "test"
}
