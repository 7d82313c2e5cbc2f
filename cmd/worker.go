package cmd

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/wapipe/internal/bus"
	"github.com/nextlevelbuilder/wapipe/internal/config"
	"github.com/nextlevelbuilder/wapipe/internal/queue"
	"github.com/nextlevelbuilder/wapipe/internal/store/pg"
)

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the background queue worker",
		Run: func(cmd *cobra.Command, args []string) {
			runWorker()
		},
	}
}

// deadLetterAdapter bridges the pg journal to the queue's recorder interface.
type deadLetterAdapter struct {
	store *pg.DeadLetterStore
}

func (a *deadLetterAdapter) RecordFailure(ctx context.Context, msg bus.InboundMessage, reason string, attempts int) error {
	payload, _ := json.Marshal(msg)
	return a.store.Record(ctx, pg.DeadLetter{
		MessageID: msg.MessageID,
		SenderID:  msg.SenderID,
		Channel:   msg.Channel,
		Payload:   payload,
		Reason:    reason,
		Attempts:  attempts,
	})
}

func runWorker() {
	initLogging()

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	if cfg.Queue.RedisURL == "" {
		slog.Error("worker requires WAPIPE_QUEUE_REDIS_URL or WAPIPE_REDIS_URL")
		os.Exit(1)
	}

	kv, err := buildKV(cfg)
	if err != nil {
		slog.Error("store init failed", "error", err)
		os.Exit(1)
	}

	proc, _, err := buildProcessor(cfg, kv)
	if err != nil {
		slog.Error("pipeline init failed", "error", err)
		os.Exit(1)
	}

	var dead queue.DeadLetterRecorder
	if dsn := cfg.Database.PostgresDSN; dsn != "" {
		dls, err := pg.Open(dsn)
		if err != nil {
			slog.Error("dead-letter store init failed", "error", err)
			os.Exit(1)
		}
		defer dls.Close()
		dead = &deadLetterAdapter{store: dls}
		slog.Info("dead-letter journal enabled")
	}

	worker, err := queue.NewWorker(queue.WorkerConfig{
		RedisURL:    cfg.Queue.RedisURL,
		Concurrency: cfg.Queue.Concurrency,
		RetryBase:   time.Duration(cfg.Queue.RetryBaseSeconds) * time.Second,
		RetryCap:    time.Duration(cfg.Queue.RetryCapSeconds) * time.Second,
	}, proc, dead, slog.Default())
	if err != nil {
		slog.Error("worker init failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		slog.Info("worker shutting down")
		worker.Shutdown()
	}()

	slog.Info("worker started", "concurrency", cfg.Queue.Concurrency, "max_attempts", cfg.Queue.MaxAttempts)
	if err := worker.Run(); err != nil {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}
}
