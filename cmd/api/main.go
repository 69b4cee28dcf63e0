package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/your-org/clipline/internal/api"
	"github.com/your-org/clipline/internal/cluster"
	"github.com/your-org/clipline/internal/config"
	"github.com/your-org/clipline/internal/container"
	"github.com/your-org/clipline/internal/observability"
	"github.com/your-org/clipline/internal/pipeline"
	"github.com/your-org/clipline/internal/queue"
	"github.com/your-org/clipline/internal/signer"
	"github.com/your-org/clipline/internal/storage"
	"github.com/your-org/clipline/internal/transcribe"
	"github.com/your-org/clipline/internal/webhook"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting clipline API service", "port", cfg.Server.Port)

	// Connect to object storage
	store, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		slog.Error("connect to object storage", "error", err)
		os.Exit(1)
	}
	if err := store.EnsureBucket(context.Background()); err != nil {
		slog.Warn("ensure bucket", "error", err)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	// Container manager: one managed instance, launched on first use
	manager := container.NewManager(cfg.Container, func(key string) container.Launcher {
		return container.NewProcessLauncher(cfg.Container.Command, cfg.Container.Args, container.ProcessEnv(cfg))
	})

	urlSigner := signer.New(cfg.Storage)
	transcriber := transcribe.NewClient(cfg.OpenAI)
	notifier := webhook.NewNotifier(cfg.Webhook.Secret)

	var clusterer pipeline.Clusterer
	embedder := cluster.NewOpenAIEmbedder(cfg.OpenAI)
	if embedder.Configured() {
		clusterer = cluster.NewEngine(embedder)
	} else {
		slog.Warn("no embedding credential configured, duplicate detection disabled")
	}

	pipe := pipeline.New(store, urlSigner, manager, transcriber, clusterer, notifier, cfg.Pipeline)

	router := api.NewRouter(api.RouterConfig{
		APIKey:      cfg.Server.APIKey,
		Pipeline:    pipe,
		Store:       store,
		Signer:      urlSigner,
		Producer:    producer,
		QueuePinger: producer,
		Manager:     manager,
		PipelineCfg: cfg.Pipeline,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
		// Synchronous processing can legitimately take minutes.
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Container.RequestTimeout + time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown", "error", err)
	}
	slog.Info("API server stopped")
}
