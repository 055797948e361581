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

	"github.com/hibiken/asynq"

	"github.com/daya-auto/carsale/internal/analytics"
	analytichttp "github.com/daya-auto/carsale/internal/analytics/http"
	"github.com/daya-auto/carsale/internal/app"
	"github.com/daya-auto/carsale/internal/articles"
	"github.com/daya-auto/carsale/internal/audit"
	audithttp "github.com/daya-auto/carsale/internal/audit/http"
	"github.com/daya-auto/carsale/internal/auth"
	"github.com/daya-auto/carsale/internal/inventory"
	"github.com/daya-auto/carsale/internal/media"
	"github.com/daya-auto/carsale/internal/observability"
	"github.com/daya-auto/carsale/internal/platform/cache"
	"github.com/daya-auto/carsale/internal/platform/db"
	"github.com/daya-auto/carsale/internal/rbac"
	"github.com/daya-auto/carsale/internal/shared"
	"github.com/daya-auto/carsale/internal/tariffs"
	"github.com/daya-auto/carsale/internal/users"
	"github.com/daya-auto/carsale/internal/view"
	"github.com/daya-auto/carsale/jobs"
	"github.com/daya-auto/carsale/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	cacheOpts := cfg.CacheOptions()
	redisClient, err := cache.New(ctx, cacheOpts)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "carsale_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine(view.WithCurrency(cfg.Currency))
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	images, err := media.New(ctx, cfg.MediaOptions(), logger)
	if err != nil {
		logger.Error("image store", slog.Any("error", err))
		os.Exit(1)
	}

	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	adminPolicy := rbac.NewAdminPolicy(cfg.AdminEmails)

	authService := auth.NewService(auth.NewRepository(dbpool), adminPolicy)
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	rbacService := rbac.NewService(authService)
	rbacMiddleware := rbac.Middleware{Service: rbacService, Tokens: tokens, Logger: logger}

	jobClient := jobs.NewClient(cacheOpts.AsynqOpt())
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	analyticsCache := analytics.NewCache(redisClient, cfg.AnalyticsCacheTTL)
	if err := analyticsCache.Subscribe(ctx); err != nil {
		logger.Warn("analytics invalidation listener", slog.Any("error", err))
	}

	tariffService := tariffs.NewService(tariffs.NewRepository(dbpool), auditLogger)
	inventoryService := inventory.NewService(inventory.NewRepository(dbpool), auditLogger, inventory.ServiceConfig{
		Tariffs:     tariffService,
		Images:      images,
		Cleaner:     jobClient,
		Cache:       analyticsCache,
		Idempotency: idempotencyStore,
		Logger:      logger,
	})
	articleService := articles.NewService(articles.NewRepository(dbpool), inventoryService, images, jobClient, auditLogger, logger)
	analyticsService := analytics.NewService(inventoryService, analyticsCache, logger)
	userService := users.NewService(users.NewRepository(dbpool), adminPolicy, auditLogger)

	reportClient := report.NewClient(cfg.GotenbergURL, nil)
	var inventoryPDF inventory.PDFRenderer
	var analyticsPDF analytichttp.PDFRenderer
	var reportHandler *report.Handler
	if cfg.GotenbergURL != "" {
		inventoryPDF = reportClient
		analyticsPDF = reportClient
		reportHandler = report.NewHandler(reportClient, logger)
	}

	inventoryHandler := inventory.NewHandler(logger, inventoryService, templates, csrfManager, rbacMiddleware, inventoryPDF).
		WithExtraData(articleService.PageData)

	inspector := asynq.NewInspector(cacheOpts.AsynqOpt())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Templates:          templates,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		RBACMiddleware:     rbacMiddleware,
		AuthHandler:        auth.NewHandler(logger, authService, tokens, templates, sessionManager, csrfManager),
		InventoryHandler:   inventoryHandler,
		ArticlesHandler:    articles.NewHandler(logger, articleService, templates, csrfManager, rbacMiddleware),
		TariffsHandler:     tariffs.NewHandler(logger, tariffService, templates, csrfManager, rbacMiddleware),
		UsersHandler:       users.NewHandler(logger, userService, templates, csrfManager, rbacMiddleware),
		PermissionsHandler: rbac.NewPermissionsHandler(logger, rbacService, templates, csrfManager, rbacMiddleware),
		AnalyticsHandler:   analytichttp.NewHandler(logger, analyticsService, templates, csrfManager, rbacMiddleware, analyticsPDF),
		AuditHandler:       audithttp.NewHandler(logger, audit.NewService(audit.NewRepository(dbpool)), templates, csrfManager, rbacMiddleware),
		ReportHandler:      reportHandler,
		JobHandler:         jobs.NewHandler(inspector, logger),
		Metrics:            observability.NewMetrics(),
		Database:           dbpool,
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("images", cfg.ImageBackend))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
