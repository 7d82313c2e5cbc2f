package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/wapipe/internal/config"
	"github.com/nextlevelbuilder/wapipe/internal/httpapi"
	"github.com/nextlevelbuilder/wapipe/internal/pipeline"
	"github.com/nextlevelbuilder/wapipe/internal/queue"
	"github.com/nextlevelbuilder/wapipe/internal/store"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook ingestion server",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	initLogging()

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}

	kv, err := buildKV(cfg)
	if err != nil {
		slog.Error("store init failed", "error", err)
		os.Exit(1)
	}

	proc, channel, err := buildProcessor(cfg, kv)
	if err != nil {
		slog.Error("pipeline init failed", "error", err)
		os.Exit(1)
	}

	// The queue is optional at startup: with no Redis for it, every message
	// processes inline. Enqueue failures at runtime degrade the same way.
	var qc *queue.Client
	if cfg.Queue.RedisURL != "" {
		qc, err = queue.NewClient(cfg.Queue.RedisURL, cfg.Queue.MaxAttempts)
		if err != nil {
			slog.Warn("queue init failed, running inline-only", "error", err)
			qc = nil
		}
	} else {
		slog.Warn("queue.no_redis_url", "note", "all messages will process inline on the webhook path")
	}

	guard := store.NewGuard(kv, cfg.DedupWindow())

	var enqueuer pipeline.Enqueuer
	var pinger interface{ Ping() error }
	if qc != nil {
		enqueuer = qc
		pinger = qc
	}

	dispatcher := pipeline.NewDispatcher(enqueuer, proc, slog.Default())
	ingestor := pipeline.NewIngestor(channel, guard, dispatcher, slog.Default())
	server := httpapi.NewServer(cfg, ingestor, channel, kv, pinger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownSeconds)*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()

	if qc != nil {
		qc.Close()
	}
	if err != nil && ctx.Err() == nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
