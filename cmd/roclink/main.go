package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/railvoice/roclink/internal/api"
	"github.com/railvoice/roclink/internal/call"
	"github.com/railvoice/roclink/internal/config"
	"github.com/railvoice/roclink/internal/feed"
	"github.com/railvoice/roclink/internal/metrics"
	"github.com/railvoice/roclink/internal/phone"
	"github.com/railvoice/roclink/internal/session"
	"github.com/railvoice/roclink/internal/topology"
	"github.com/railvoice/roclink/internal/voice"
)

func main() {
	// Optional .env for local development; real deployments use the
	// environment directly.
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded environment from .env")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Configure structured logging.
	logger := slog.New(cfg.SlogHandler(os.Stdout))
	slog.SetDefault(logger)

	slog.Info("starting roclink",
		"http_port", cfg.HTTPPort,
		"config", cfg.ConfigPath,
		"simulations_dir", cfg.SimulationsDir,
	)

	// Encryptor for gateway credentials at rest.
	var enc *config.Encryptor
	if keyBytes, err := cfg.EncryptionKeyBytes(); err != nil {
		slog.Error("failed to derive encryption key", "error", err)
		os.Exit(1)
	} else if keyBytes != nil {
		enc, err = config.NewEncryptor(keyBytes)
		if err != nil {
			slog.Error("failed to create encryptor", "error", err)
			os.Exit(1)
		}
		slog.Info("credential encryption enabled")
	} else {
		slog.Warn("no encryption key configured, gateway credentials cannot be stored")
	}

	jwtSecret, err := cfg.JWTSecretBytes()
	if err != nil {
		slog.Error("failed to load jwt secret", "error", err)
		os.Exit(1)
	}

	store := config.NewStore(cfg.ConfigPath, logger)
	file, err := store.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err, "path", cfg.ConfigPath)
		os.Exit(1)
	}

	topo := topology.NewStore(cfg.SimulationsDir, logger)
	phones := phone.NewManager(topo, logger)
	vd := voice.NewStatic(file.CallChannels)

	registry := session.NewRegistry(store, topo, phones, vd, enc, logger)
	phones.SetNotifier(registry)

	pool := call.NewChannelPool(file.CallChannels)
	calls := call.NewManager(phones, registry, vd, pool, logger)
	registry.SetCallEnder(calls)

	trains := feed.NewTrainDirectory(phones, registry, logger)
	gateways := feed.NewManager(registry, registry, trains, logger)
	registry.SetGateways(gateways)
	registry.SetTrains(trains)

	// Application context for the feed clients.
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	if err := registry.Load(appCtx); err != nil {
		slog.Error("failed to load registry", "error", err)
		os.Exit(1)
	}

	collector := metrics.NewCollector(registry, phones, calls, trains, time.Now())
	prometheus.MustRegister(collector)

	handler := api.NewServer(registry, store, topo, jwtSecret, promhttp.Handler())
	defer handler.Close()

	port := cfg.HTTPPort
	if file.Server.Port != 0 {
		port = file.Server.Port
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slog.Error("http server error", "error", err)
	}

	// Stop the feed clients, then drain HTTP.
	appCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("roclink stopped")
}
