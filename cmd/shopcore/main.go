package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/devrev/shopcore/internal/config"
	"github.com/devrev/shopcore/internal/engine"
	"github.com/devrev/shopcore/internal/server"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load configuration
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting shopcore",
		zap.Bool("server_enabled", cfg.Server.Enabled),
		zap.Int("port", cfg.Server.Port),
		zap.Duration("metrics_window", cfg.Metrics.Window),
		zap.Bool("auto_optimize", cfg.Optimization.AutoEnabled))

	eng, err := engine.New(cfg, logger, nil)
	if err != nil {
		logger.Fatal("Failed to initialize engine", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Start(gctx) })

	if cfg.Server.Enabled {
		srv := server.NewServer(cfg, eng, logger)
		g.Go(srv.Start)
		g.Go(func() error {
			<-gctx.Done()
			// Stop advertising readiness before draining connections
			eng.Health.SetReadiness(false)
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	<-gctx.Done()
	logger.Info("Shutting down gracefully")

	if err := g.Wait(); err != nil {
		logger.Error("Shutdown finished with error", zap.Error(err))
	}
	if err := eng.Close(); err != nil {
		logger.Error("Failed to close engine", zap.Error(err))
	}

	logger.Info("shopcore stopped")
}

// initLogger builds the zap logger from the logging section
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	zc := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
