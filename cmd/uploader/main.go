package main

import (
	"context"
	"log"
	"log/slog"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/samirrijal/fieldpins/internal/bootstrap"
	"github.com/samirrijal/fieldpins/internal/pkg/config"
	"github.com/samirrijal/fieldpins/internal/pkg/logging"
	"github.com/samirrijal/fieldpins/internal/workflows"
)

func main() {
	cfg, err := config.Load("fieldpins-uploader")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx := context.Background()
	svc, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	defer svc.Close()

	if err := svc.Markers.LoadAll(ctx); err != nil {
		slog.Warn("initial marker load failed; markers load on demand", "error", err)
	}

	c, err := client.Dial(client.Options{
		HostPort: cfg.Temporal.HostPort,
		Logger:   slog.Default().With("component", "temporal"),
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	queue := cfg.Temporal.TaskQueue
	if queue == "" {
		queue = workflows.DefaultTaskQueue
	}
	w := worker.New(c, queue, worker.Options{
		MaxConcurrentActivityExecutionSize: cfg.Upload.MaxConcurrent,
	})

	w.RegisterWorkflow(workflows.PhotoAttachWorkflow)
	w.RegisterActivity(&workflows.PhotoActivities{
		Markers: svc.Markers,
		Uploads: svc.Uploads,
	})

	slog.Info("uploader worker started", "task_queue", queue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
