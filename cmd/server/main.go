package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"resource-cache/internal/admin"
	"resource-cache/internal/api"
	"resource-cache/internal/auth"
	"resource-cache/internal/config"
	"resource-cache/internal/engine"
	"resource-cache/internal/instrument"
	"resource-cache/internal/logging"
	"resource-cache/internal/metadata"
	"resource-cache/internal/source"
	"resource-cache/internal/store"
)

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Load schemas from the schema file and, when enabled, the database
	schemas := metadata.NewRegistry()
	if cfg.Schema.Path != "" {
		loaded, err := metadata.LoadFile(cfg.Schema.Path)
		if err != nil {
			return err
		}
		schemas.Load(loaded)
		log.Info("loaded schema file", zap.String("path", cfg.Schema.Path), zap.Int("count", len(loaded)))
	}

	var db *source.DB
	if cfg.Database.Enabled {
		var err error
		db, err = source.Open(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.Bootstrap(ctx); err != nil {
			return err
		}
		if err := metadata.LoadAll(ctx, db.DB, schemas, log); err != nil {
			log.Warn("failed to load schemas from database", zap.Error(err))
		}
	}

	// 3. Build one store per schema and check relation targets
	stores := store.NewRegistry()
	opts := []store.Option{
		store.WithLogger(log.Named("store")),
		store.WithEvaluator(engine.NewExprLangEvaluator()),
	}
	for _, s := range schemas.All() {
		if _, err := store.New(stores, s, opts...); err != nil {
			return err
		}
	}
	if err := stores.Validate(); err != nil {
		return err
	}
	log.Info("stores ready", zap.Strings("stores", stores.Names()))

	// 4. Hydrate from the source database
	if db != nil {
		if err := db.HydrateAll(ctx, stores, log); err != nil {
			return err
		}
	}

	// 5. Change events
	recorder := instrument.NewRecorder(1000)
	attach := func(*store.Store) {}
	if cfg.Instrumentation.Enabled {
		buffer := instrument.NewEventBuffer(
			instrument.MultiSink{recorder, instrument.LogSink(log.Named("events"))},
			cfg.Instrumentation.BufferSize,
			cfg.Instrumentation.FlushIntervalMs,
		)
		defer buffer.Stop()
		attach = func(st *store.Store) { buffer.Attach(st) }
	}
	for _, name := range stores.Names() {
		attach(stores.Get(name))
	}

	// 6. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler:          api.ErrorHandler(log),
		DisableStartupMessage: true,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))

	var writeMW, adminMW []fiber.Handler
	if cfg.Auth.JWTSecret != "" {
		authMW := auth.AuthMiddleware(cfg.Auth.JWTSecret)
		writeMW = []fiber.Handler{authMW, auth.RequireRole(auth.RoleWriter)}
		adminMW = []fiber.Handler{authMW, auth.RequireRole(auth.RoleAdmin)}
	} else {
		log.Warn("auth.jwt_secret is empty, write and admin routes are unauthenticated")
	}

	apiHandler := api.NewHandler(stores, db, log.Named("api"))
	adminHandler := admin.NewHandler(apiHandler.Locker(), stores, db, attach, log.Named("admin"), opts...)
	mountRoutes(app, apiHandler, adminHandler, instrument.NewEventHandler(recorder), writeMW, adminMW)

	// 7. Serve until signalled
	errc := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		log.Info("starting server", zap.String("address", addr))
		errc <- app.Listen(addr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return app.ShutdownWithContext(shutdownCtx)
}

// mountRoutes registers every route group. The admin group shares the /api
// prefix and must be mounted before the /api/:entity routes.
func mountRoutes(app *fiber.App, apiHandler *api.Handler, adminHandler *admin.Handler, events *instrument.EventHandler, writeMW, adminMW []fiber.Handler) {
	admin.RegisterAdminRoutes(app, adminHandler, adminMW...)
	api.RegisterRoutes(app, apiHandler, writeMW...)
	api.RegisterEventRoutes(app, events)
}
