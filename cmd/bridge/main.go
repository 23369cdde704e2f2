// Command bridge runs the realtime voice bridge service: an HTTP surface
// in front of the session engine.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	bridge "github.com/EurekaEstudio/openai-realtime-voice-bridge"
	"github.com/EurekaEstudio/openai-realtime-voice-bridge/internal/archive"
	"github.com/EurekaEstudio/openai-realtime-voice-bridge/internal/config"
	"github.com/EurekaEstudio/openai-realtime-voice-bridge/internal/httpapi"
	"github.com/EurekaEstudio/openai-realtime-voice-bridge/internal/metrics"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", slog.Any("err", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	m := metrics.New(cfg.MetricsNamespace)

	opts := []bridge.Option{
		bridge.WithKey(cfg.OpenAIAPIKey),
		bridge.WithBaseURL(cfg.RealtimeURL),
		bridge.WithModel(cfg.Model),
		bridge.WithVoice(cfg.Voice),
		bridge.WithMaxSessions(cfg.MaxSessions),
		bridge.WithConnectTimeout(cfg.ConnectTimeout),
		bridge.WithRequestTimeout(cfg.RequestTimeout),
		bridge.WithIdleTimeout(cfg.IdleTimeout),
		bridge.WithSweepInterval(cfg.SweepInterval),
		bridge.WithLogger(logger),
		bridge.WithMetrics(m),
	}
	if cfg.Instructions != "" {
		opts = append(opts, bridge.WithInstructions(cfg.Instructions))
	}

	if cfg.DatabaseURL != "" {
		store, err := archive.NewPostgresStore(context.Background(), cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, bridge.WithArchiver(store))
		logger.Info("transcript archive enabled")
	}

	registry := bridge.New(opts...)

	server := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: httpapi.New(registry).Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("addr", cfg.BindAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", slog.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown failed", slog.Any("err", err))
	}
	if err := registry.Close(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Warn("registry shutdown incomplete", slog.Any("err", err))
	}
	return nil
}
