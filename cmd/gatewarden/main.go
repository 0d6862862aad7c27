package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/gatewarden/gatewarden/internal/app"
	"github.com/gatewarden/gatewarden/internal/authz"
	"github.com/gatewarden/gatewarden/internal/catalog"
	"github.com/gatewarden/gatewarden/internal/grants"
	"github.com/gatewarden/gatewarden/internal/guard"
	"github.com/gatewarden/gatewarden/internal/observability"
	"github.com/gatewarden/gatewarden/internal/platform/cache"
	"github.com/gatewarden/gatewarden/internal/platform/db"
	"github.com/gatewarden/gatewarden/internal/sectiontree"
	"github.com/gatewarden/gatewarden/internal/users"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		if !cfg.CacheDisabled {
			logger.Error("connect redis", slog.Any("error", err))
			os.Exit(1)
		}
		redisClient = nil
	}
	if cfg.CacheDisabled {
		// The registrar degrades to straight-through reads with a nil client.
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	schema := cfg.Schema()

	catalogRepo := catalog.NewRepository(pool, schema)
	registrar := catalog.NewRegistrar(catalogRepo, redisClient, cfg.CacheTTL)

	grantsRepo := grants.NewRepository(pool, schema)
	grantsService := grants.NewService(grantsRepo, registrar, logger)

	catalogService := catalog.NewService(catalogRepo, registrar, grantsService, cfg.DefaultGuard, logger)

	registry := guard.NewRegistry(cfg.DefaultGuard)
	usersRepo := users.NewRepository(pool, schema)
	usersService := users.NewService(usersRepo, grantsService, cfg.StateMapping(), logger)
	registry.Register(cfg.DefaultGuard, users.NewProvider(usersService))

	metrics := observability.NewMetrics()

	resolver := authz.NewResolver(catalogService, grantsService.Store(), authz.Options{
		SuperuserRole: cfg.SuperuserRole,
		AdminRole:     cfg.AdminRole,
	}, logger)
	gate := authz.NewGate(resolver, metrics, logger)

	treeRepo := sectiontree.NewRepository(pool, schema)
	builder := sectiontree.NewBuilder(registrar, grantsService.Store())
	treeService := sectiontree.NewService(treeRepo, catalogService, builder, logger)

	authzMiddleware := authz.Middleware{
		Gate:         gate,
		Resolver:     resolver,
		Source:       authz.HeaderActorSource{Registry: registry},
		Actions:      cfg.CrudActions(),
		ContainerKey: cfg.ContainerRequestKey,
		Logger:       logger,
	}

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		CatalogHandler:  catalog.NewHandler(logger, catalogService),
		GrantsHandler:   grants.NewHandler(logger, grantsService, catalogService, registry),
		AuthzHandler:    authz.NewHandler(logger, resolver, gate, registry),
		TreeHandler:     sectiontree.NewHandler(logger, treeService, catalogService),
		UsersHandler:    users.NewHandler(logger, usersService, cfg.DefaultGuard),
		AuthzMiddleware: authzMiddleware,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}
