package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/adapters/httpapi"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/adapters/mailin"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/config"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/core"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/di"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/seed"
	"go.uber.org/zap"
)

func main() {
	configFile := flag.String("config", "", "Path to config file (searched in the standard locations if empty)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Build the dependency injection container
	container, err := di.BuildServerContainer(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Fprintf(os.Stderr, "Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	cfg *config.Config,
	logger *zap.Logger,
	st core.Store,
	analyzer core.Analyzer,
	training *core.TrainingService,
	seeder *seed.Seeder,
	handler *httpapi.Handler,
	importer *mailin.Importer,
) error {
	defer logger.Sync()
	defer st.Close()

	serverCfg, err := cfg.GetServer()
	if err != nil {
		return err
	}
	storeCfg, err := cfg.GetStore()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := seedContent(ctx, seeder, serverCfg.SeedFile, logger); err != nil {
		return err
	}
	if err := training.PruneAbandonedRuns(ctx, storeCfg.RunTTL); err != nil {
		logger.Warn("Startup prune failed", zap.Error(err))
	}

	srv := &http.Server{
		Addr:         serverCfg.ListenAddress,
		Handler:      handler.Routes(),
		ReadTimeout:  serverCfg.ReadTimeout,
		WriteTimeout: serverCfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server starting", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if importer != nil {
		if err := importer.Start(); err != nil {
			return err
		}
	}

	select {
	case <-ctx.Done():
		logger.Info("Shutting down...")
	case err := <-errCh:
		logger.Error("HTTP server failed", zap.Error(err))
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverCfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to stop HTTP server", zap.Error(err))
	}
	if importer != nil {
		if err := importer.Stop(shutdownCtx); err != nil {
			logger.Error("Failed to stop mail importer", zap.Error(err))
		}
	}

	// Close any resources that need closing
	if closer, ok := analyzer.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close analyzer", zap.Error(err))
		}
	}

	logger.Info("Shutdown complete")
	return nil
}

func seedContent(ctx context.Context, seeder *seed.Seeder, path string, logger *zap.Logger) error {
	f, err := seed.LoadDefault(path)
	if errors.Is(err, seed.ErrNoContent) {
		logger.Debug("No seed file configured")
		return nil
	}
	if err != nil {
		return err
	}
	_, err = seeder.Apply(ctx, f)
	return err
}
