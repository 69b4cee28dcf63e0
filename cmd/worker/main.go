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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/clipline/internal/cluster"
	"github.com/your-org/clipline/internal/config"
	"github.com/your-org/clipline/internal/container"
	"github.com/your-org/clipline/internal/models"
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

	slog.Info("starting clipline worker", "workers", cfg.NATS.Workers)

	// Connect to object storage
	store, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		slog.Error("connect to object storage", "error", err)
		os.Exit(1)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats producer", "error", err)
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

	consumer, err := queue.NewConsumer(cfg.NATS.URL, producer)
	if err != nil {
		slog.Error("create consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = consumer.ConsumeJobs(ctx, "clip-workers", func(ctx context.Context, msg models.QueueMessage) error {
		if err := pipe.RunQueued(ctx, msg); err != nil {
			return fmt.Errorf("process source %s: %w", msg.SourceID, err)
		}
		return nil
	}, cfg.NATS.Workers)
	if err != nil {
		slog.Error("start job consumer", "error", err)
		os.Exit(1)
	}

	// Metrics endpoint
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		slog.Info("worker metrics listening", "addr", ":8082")
		if err := http.ListenAndServe(":8082", mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	// Periodically report queue depth
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				depth, err := producer.QueueDepth(ctx)
				if err == nil {
					observability.QueueDepth.Set(float64(depth))
				}
			}
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	cancel()
	time.Sleep(2 * time.Second)
	slog.Info("worker stopped")
}
