package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"docview/internal/config"
	"docview/internal/database"
	"docview/internal/database/migration"
	handlers "docview/internal/http/handler"
	"docview/internal/http/middleware"
	"docview/internal/memo"
	"docview/internal/model"
	"docview/internal/offload"
	"docview/internal/otel"
	"docview/internal/reconcile"
	"docview/internal/render"
	"docview/internal/repository/postgres"
	"docview/internal/service"
	"docview/internal/storage"
)

// @title Document Viewer API
// @version 1.0
// @description Renders archival documents and periodic notices to page images and text excerpts.
// @BasePath /
func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("docview stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Error("tracing shutdown", slog.String("error", err.Error()))
		}
	}()

	// PostgreSQL connection (pooling via database/sql), then schema bootstrap
	db, err := database.NewPostgres(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	if err := migration.EnsureMigrated(ctx, db, logger, cfg.Database.Host); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(db, cfg.Database.Name),
	)

	offloadMetrics, err := offload.NewMetrics(reg)
	if err != nil {
		return err
	}
	memoMetrics, err := memo.NewMetrics(reg)
	if err != nil {
		return err
	}
	renderMetrics, err := render.NewMetrics(reg)
	if err != nil {
		return err
	}

	pool := offload.NewPool(cfg.Offload.Workers, logger,
		offload.WithQueueSize(cfg.Offload.QueueSize),
		offload.WithJobTimeout(cfg.Offload.JobTimeout),
		offload.WithMetrics(offloadMetrics),
	)
	defer pool.Close()

	// Optional S3-compatible mirror of rendered pages (MinIO-supported)
	var mirror *render.Mirror
	if cfg.MinIO.Enabled() {
		objStore, err := storage.NewMinIO(ctx, cfg.MinIO)
		if err != nil {
			return fmt.Errorf("init object storage: %w", err)
		}
		mirror = render.NewMirror(objStore, cfg.MinIO.URLExpiry, logger)
		logger.Info("page mirror enabled", slog.String("bucket", cfg.MinIO.Bucket))
	}

	mode, err := render.ParseKeyMode(cfg.Cache.KeyMode)
	if err != nil {
		return err
	}
	layout := render.NewLayout(cfg.DocsRoot)
	rast := render.NewMuPDF(render.DefaultDPI)

	pages, err := render.NewCache(render.Options{
		Layout:     layout,
		Rasterizer: rast,
		Pool:       pool,
		Capacity:   cfg.Cache.RenderCapacity,
		Mode:       mode,
		Mirror:     mirror,
		Metrics:    renderMetrics,
		Memo:       memoMetrics,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	if err := pages.CleanStaging(); err != nil {
		logger.Warn("clean staging", slog.String("error", err.Error()))
	}

	excerpts, err := render.NewExcerpts(render.Options{
		Rasterizer: rast,
		Pool:       pool,
		Capacity:   cfg.Cache.ExcerptCapacity,
		Mode:       mode,
		Metrics:    renderMetrics,
		Memo:       memoMetrics,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	docRepo := postgres.NewDocumentPostgres(db)
	reconciler := reconcile.New(docRepo, layout.SourceDir, logger)
	docSvc := service.NewDocumentService(service.Config{
		Layout:             layout,
		Repo:               docRepo,
		Reconciler:         reconciler,
		Pages:              pages,
		Excerpts:           excerpts,
		PreviewConcurrency: cfg.PreviewConcurrency,
		Logger:             logger,
	})

	for _, class := range model.Classes() {
		if _, err := docSvc.EnsureConverged(ctx, class); err != nil {
			// Listing requests retry the pass.
			logger.Warn("initial reconcile failed", slog.String("class", string(class)), slog.String("error", err.Error()))
		}
	}

	promMiddleware, err := middleware.NewPrometheusMiddleware(reg, "/healthz")
	if err != nil {
		return err
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
		UnescapePath: true,
	})

	// Register global middleware
	app.Use(otelfiber.Middleware())
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger())
	app.Use(promMiddleware.Handler())

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	handlers.RegisterRenderCache(app, layout.CacheRoot())

	handlers.RegisterRoutes(app, db, docSvc)

	// Swagger UI with dynamic host and scheme
	app.Get("/swagger/*", handlers.SwaggerUI(cfg.AppHost))

	serveErr := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info("HTTP server listening", slog.String("addr", addr))
		serveErr <- app.Listen(addr)
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	// Stop accepting requests first, then the deferred pool drain lets in-flight renders finish.
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error("HTTP shutdown", slog.String("error", err.Error()))
	}
	logger.Info("docview shutdown complete")
	return nil
}
