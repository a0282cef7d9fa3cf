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

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"talkwise.app/circles/internal/api"
	"talkwise.app/circles/internal/config"
	"talkwise.app/circles/internal/core"
	"talkwise.app/circles/internal/notify"
	"talkwise.app/circles/internal/store"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
}

// openStore returns the SQLite store, or the in-memory one when no database is
// configured. The returned func closes it.
func openStore(cfg *config.Config, broker *notify.Broker) (store.MessageStore, func() error, error) {
	if cfg.DatabaseURL == "" {
		return store.NewMemoryStore(broker), func() error { return nil }, nil
	}
	s, err := store.NewSQLiteStore(cfg.DatabaseURL, broker)
	if err != nil {
		return nil, nil, err
	}
	return s, s.Close, nil
}

func runServe(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()
	logger.Debug("service starting in DEBUG mode")

	broker := notify.NewBroker()
	defer broker.Close()

	msgStore, closeStore, err := openStore(cfg, broker)
	if err != nil {
		logger.Error("failed to initialize database", zap.Error(err), zap.String("database_url", cfg.DatabaseURL))
		return err
	}
	defer closeStore()

	generator, err := core.NewGenerator(cmd.Context(), cfg, logger)
	if err != nil {
		logger.Error("failed to initialize generation service", zap.Error(err), zap.String("provider", cfg.LLMProvider))
		return err
	}
	defer generator.Close()

	apiHandler := api.NewAPIHandler(msgStore, broker, generator, logger, cfg.AllowedOrigin,
		core.WithContextSize(cfg.ContextSize),
		core.WithGenerationTimeout(cfg.GenerationTimeout),
	)
	router := api.NewRouter(apiHandler, cfg.AllowedOrigin)

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // LLM calls can take time
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", serverAddr), zap.String("provider", cfg.LLMProvider))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err, ok := <-serveErr:
		if ok {
			logger.Error("could not listen", zap.String("addr", serverAddr), zap.Error(err))
			return err
		}
		return nil
	case <-quit:
	}
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Hijacked WebSocket connections are not tracked by Shutdown; closing the
	// broker ends their subscriptions.
	broker.Close()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
		return err
	}

	logger.Info("server exiting gracefully")
	return nil
}
