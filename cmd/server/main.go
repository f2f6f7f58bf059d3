/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the tax engine HTTP server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, flags)
  2. Initialize the zap logger
  3. Open the record and reference stores
  4. Load the reference document, if configured
  5. Create the engine, API handler and router
  6. Start server with graceful shutdown

STORES:
  memory    Records and reference data in process memory
  sqlite    Records and reference data in one SQLite file
  postgres  Records in PostgreSQL, reference data in memory
            (seeded from -reference or the scenarios endpoint)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connections
  4. Flush logs

EXAMPLES:
  # Run with file database
  ./server -db="./data/tax.db"

  # Run with in-memory stores and the sample telecom reference data
  ./server -driver=memory -reference=./reference.yaml

  # Run against PostgreSQL
  DATABASE_URL=postgres://localhost/tax ./server -driver=postgres

SEE ALSO:
  - config/config.go: All settings and their variables
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/tax-engine/api"
	"github.com/warp/tax-engine/config"
	"github.com/warp/tax-engine/factory"
	"github.com/warp/tax-engine/logger"
	"github.com/warp/tax-engine/store/postgres"
	"github.com/warp/tax-engine/store/sqlite"
	"github.com/warp/tax-engine/tax"
	"github.com/warp/tax-engine/tax/store"
)

// referenceStore is what the engine reads and the loaders write.
type referenceStore interface {
	tax.ReferenceData
	tax.ReferenceWriter
}

type stores struct {
	reference referenceStore
	records   tax.RecordStore
	close     func()
}

func main() {
	cfg, err := config.Load(".env", os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}

	log, err := logger.Init(logger.ForStage(cfg.Stage, cfg.LogLevel))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx := context.Background()

	s, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer s.close()

	if cfg.ReferenceFile != "" {
		if err := loadReferenceFile(ctx, cfg.ReferenceFile, s.reference, log); err != nil {
			return err
		}
	}

	engine := tax.NewEngine(s.reference, s.records,
		tax.WithLogger(log.Named("engine")),
		tax.WithCacheTTL(cfg.CacheTTL))
	handler := api.NewHandler(engine, s.reference, log.Named("api"))
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting",
			zap.Int("port", cfg.Port),
			zap.String("driver", cfg.DBDriver),
			zap.Duration("cache_ttl", cfg.CacheTTL))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-quit:
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}

func openStores(ctx context.Context, cfg config.Config, log *zap.Logger) (*stores, error) {
	switch cfg.DBDriver {
	case config.DriverMemory:
		mem := store.NewMemory()
		return &stores{reference: mem, records: mem, close: func() {}}, nil

	case config.DriverSQLite:
		db, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		return &stores{reference: db, records: db, close: func() { db.Close() }}, nil

	case config.DriverPostgres:
		pg, err := postgres.New(ctx, cfg.DatabaseURL, log.Named("postgres"))
		if err != nil {
			return nil, err
		}
		return &stores{reference: store.NewMemory(), records: pg, close: pg.Close}, nil
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.DBDriver)
}

func loadReferenceFile(ctx context.Context, path string, w tax.ReferenceWriter, log *zap.Logger) error {
	f := factory.NewReferenceFactory()
	set, err := f.ParseFile(path)
	if err != nil {
		return err
	}
	summary, err := f.Load(ctx, w, set)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	log.Info("reference data loaded",
		zap.String("file", path),
		zap.Int("jurisdictions", summary.Jurisdictions),
		zap.Int("rates", summary.Rates),
		zap.Int("exemptions", summary.Exemptions))
	return nil
}
