package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pgflex/pgflex/api"
	"github.com/pgflex/pgflex/internal/auth"
	"github.com/pgflex/pgflex/internal/controller"
	"github.com/pgflex/pgflex/internal/fabric"
	"github.com/pgflex/pgflex/internal/logger"
	"github.com/pgflex/pgflex/internal/metrics"
	"github.com/pgflex/pgflex/internal/monitor"
	"github.com/pgflex/pgflex/pkg/config"
	"github.com/pgflex/pgflex/pkg/database"
	"github.com/pgflex/pgflex/pkg/database/queries"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file")
	migrate := flag.Bool("migrate", false, "run database migrations")
	demo := flag.Bool("demo", false, "run with a simulated fabric and synthetic load, no database")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger.Setup(cfg.App.LogLevel, cfg.App.Mode)
	logger.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Mode)

	var db *database.DB
	if !*demo {
		db, err = database.New(cfg.Database.ToDBConfig())
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		logger.Info("Database connection established")
	}

	if *migrate {
		if db == nil {
			return fmt.Errorf("cannot migrate in demo mode")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		logger.Info("Running database migrations")
		migrator := database.NewMigrator(db)
		if err := migrator.Run(ctx); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		if err := seedOperator(ctx, db); err != nil {
			return fmt.Errorf("failed to seed operator user: %w", err)
		}
		logger.Info("Migrations completed successfully")
		return nil
	}

	ctrl := controller.New(cfg, db)
	if err := ctrl.Start(); err != nil {
		return fmt.Errorf("failed to start controller: %w", err)
	}

	if err := startPools(cfg, ctrl, *demo); err != nil {
		ctrl.Stop()
		return err
	}

	server := api.NewServer(cfg.API, &cfg.WebSocket, db, ctrl, ctrl.Engine())

	if cfg.Prometheus.Enabled {
		metrics.StartServer(cfg.Prometheus.Port)
	}

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		logger.Infof("API server listening on port %d", cfg.API.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		ctrl.Stop()
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdownChan:
		logger.Infof("Received signal %v, shutting down", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("API shutdown error: %v", err)
	}
	ctrl.Stop()

	logger.Info("Controller stopped gracefully")
	return nil
}

// startPools brings up every configured pool. In demo mode each pool gets a
// simulated fabric and synthetic telemetry; otherwise load is scraped from
// the fleet telemetry endpoint behind retries and a circuit breaker.
func startPools(cfg *config.Config, ctrl *controller.Controller, demo bool) error {
	for _, spec := range cfg.Pools {
		var src monitor.Source
		var fab fabric.Fabric

		if demo {
			mock := monitor.NewMockSource(monitor.MockSourceConfig{
				BaseCPU:  55.0,
				Variance: 10.0,
			})
			mock.AddPool(spec.ID)
			src = mock
			fab = fabric.NewSimulatedFabric(fabric.SimulatedConfig{
				ReadyAfter: 500 * time.Millisecond,
			})
		} else {
			src = monitor.NewResilientSource(monitor.ResilientSourceConfig{
				Source: monitor.NewHTTPSource(monitor.HTTPSourceConfig{
					Endpoint: cfg.Monitor.Endpoint,
					Timeout:  cfg.Monitor.Timeout,
				}),
				MaxFailures:   cfg.Monitor.CircuitBreaker.MaxFailures,
				Timeout:       cfg.Monitor.CircuitBreaker.Timeout,
				RetryAttempts: cfg.Monitor.RetryAttempts,
				RetryDelay:    cfg.Monitor.RetryDelay,
			})
			fab = fabric.NewSimulatedFabric(fabric.SimulatedConfig{
				ReadyAfter: 2 * time.Second,
			})
		}

		if err := ctrl.StartPool(spec, src, fab); err != nil {
			return fmt.Errorf("failed to start pool %s: %w", spec.ID, err)
		}
	}

	return nil
}

// seedOperator creates the default operator login if it does not exist yet.
// The password comes from PGFLEX_OPERATOR_PASSWORD and defaults to "pgflex".
func seedOperator(ctx context.Context, db *database.DB) error {
	password := os.Getenv("PGFLEX_OPERATOR_PASSWORD")
	if password == "" {
		password = "pgflex"
		logger.Warn("PGFLEX_OPERATOR_PASSWORD not set, using default operator password")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	return queries.NewUserRepository(db.DB).EnsureUser(ctx, "operator", hash)
}
