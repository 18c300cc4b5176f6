package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rimborsami/rimborsami/internal/api"
	"github.com/rimborsami/rimborsami/internal/bus"
	"github.com/rimborsami/rimborsami/internal/cache"
	"github.com/rimborsami/rimborsami/internal/catalog"
	"github.com/rimborsami/rimborsami/internal/domain"
	"github.com/rimborsami/rimborsami/internal/generator"
	"github.com/rimborsami/rimborsami/internal/metrics"
	"github.com/rimborsami/rimborsami/internal/pipeline"
	"github.com/rimborsami/rimborsami/internal/repository"
	"github.com/rimborsami/rimborsami/internal/tracing"
	"github.com/rimborsami/rimborsami/internal/worker"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the async worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context, cfg *domain.Config) error {
	logger := slog.Default()
	logger.Info("starting rimborsami",
		"version", Version,
		"profile", cfg.Profile,
	)

	shutdownTracing, err := tracing.Setup(cfg.Tracing)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Error("failed to shut down tracing", "error", err)
		}
	}()
	if cfg.Tracing.Enabled {
		logger.Info("tracing initialized", "service_name", cfg.Tracing.ServiceName)
	}

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("init repository: %w", err)
	}
	defer repo.Close()
	logger.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("init cache: %w", err)
	}
	defer cacheImpl.Close()
	logger.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("init event bus: %w", err)
	}
	defer busImpl.Close()
	logger.Info("event bus initialized", "type", cfg.EventBus.Type)

	engine, err := loadEngine(cfg.Rules.Path)
	if err != nil {
		return err
	}
	logger.Info("rule engine initialized",
		"version", engine.Version(),
		"rules_count", engine.RulesCount(),
	)

	recorder := metrics.NewPrometheus()
	processor := pipeline.NewProcessor(engine,
		pipeline.WithRecorder(recorder),
		pipeline.WithLogger(logger),
	)
	loader := catalog.NewLoader(repo, cacheImpl, cfg.Cache.CatalogTTL, logger)

	gen, err := generator.New(cfg.Generator)
	if err != nil {
		return fmt.Errorf("init generator: %w", err)
	}

	var asyncWorker *worker.Worker
	if cfg.Worker.Enabled {
		asyncWorker = worker.NewWorker(busImpl, repo, loader, processor, logger)
		if err := asyncWorker.Start(cfg.Worker); err != nil {
			return fmt.Errorf("start worker: %w", err)
		}
		logger.Info("async worker started", "worker_count", cfg.Worker.WorkerCount)
	}

	srv := api.NewServer(cfg.Server, api.Deps{
		Repo:      repo,
		Cache:     cacheImpl,
		Bus:       busImpl,
		Engine:    engine,
		Processor: processor,
		Catalog:   loader,
		Generator: gen,
		Metrics:   recorder,
		RulesPath: cfg.Rules.Path,
		Version:   Version,
		Logger:    logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		if asyncWorker != nil {
			if err := asyncWorker.Stop(); err != nil {
				logger.Error("failed to stop async worker", "error", err)
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server forced to shutdown", "error", err)
		}
		return nil
	})

	logger.Info("rimborsami is ready", "addr", srv.Addr())
	printBanner(cfg)

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("rimborsami shutdown complete")
	return nil
}

func printBanner(cfg *domain.Config) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║                RIMBORSAMI                 ║")
	fmt.Println("  ║    Refund scoring and document checks     ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  Profile:  %s\n", cfg.Profile)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("  Worker:   %v\n", cfg.Worker.Enabled)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST   /quiz/evaluate                - Score quiz answers")
	fmt.Println("    GET    /quiz/evaluations/{id}        - Get quiz evaluation")
	fmt.Println("    POST   /documents/assess             - Assess a parsed document")
	fmt.Println("    GET    /documents/assessments/{id}   - Get document assessment")
	fmt.Println("    POST   /requests/generate            - Draft a refund request")
	fmt.Println("    GET    /opportunities                - List the catalog")
	fmt.Println("    POST   /opportunities                - Upsert a catalog entry")
	fmt.Println("    DELETE /opportunities/{id}           - Deactivate a catalog entry")
	fmt.Println("    GET    /rules                        - Show the rule table")
	fmt.Println("    POST   /rules/reload                 - Reload the rule table")
	fmt.Println("    GET    /health, /ready, /metrics")
	fmt.Println()
}
