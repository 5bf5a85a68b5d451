package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/samirrijal/fieldpins/internal/adapters/geoclue"
	"github.com/samirrijal/fieldpins/internal/adapters/http"
	natsadapter "github.com/samirrijal/fieldpins/internal/adapters/nats"
	"github.com/samirrijal/fieldpins/internal/adapters/staticloc"
	"github.com/samirrijal/fieldpins/internal/bootstrap"
	"github.com/samirrijal/fieldpins/internal/core/ports"
	"github.com/samirrijal/fieldpins/internal/core/usecases"
	"github.com/samirrijal/fieldpins/internal/pkg/config"
	"github.com/samirrijal/fieldpins/internal/pkg/logging"
	"github.com/samirrijal/fieldpins/internal/pkg/metrics"
	"github.com/samirrijal/fieldpins/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("fieldpins-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	svc, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	defer svc.Close()

	if svc.DB != nil {
		go reportPoolStats(ctx, svc)
	}

	// Remote failures at start leave an empty session; POST /v1/markers/reload retries.
	loadCtx, loadCancel := context.WithTimeout(ctx, 30*time.Second)
	if err := svc.Markers.LoadAll(loadCtx); err != nil {
		slog.Error("initial marker load failed", "error", err)
	} else {
		slog.Info("markers loaded", "count", len(svc.Markers.Markers()))
	}
	loadCancel()

	provider, closeProvider := locationProvider(cfg)
	defer closeProvider()
	tracker := usecases.NewLocationTracker(provider, svc.Geocoder, svc.Publisher, usecases.LocationTrackerConfig{
		DistanceInterval: cfg.Location.DistanceInterval,
		MaxAccuracy:      cfg.Location.MaxAccuracy,
		FirstFixTimeout:  time.Duration(cfg.Location.FirstFixTimeoutSeconds) * time.Second,
	})
	go func() {
		if err := tracker.Start(ctx, nil); err != nil {
			slog.Warn("location tracking not started", "error", err)
		}
	}()
	defer tracker.Stop()

	// Raw NATS connection for the WebSocket relay
	natsConn, err := natsadapter.RawConn(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats ws conn unavailable", "error", err)
	} else {
		defer natsConn.Close()
	}

	checks := make(map[string]http.Checker, len(svc.Checks))
	for name, c := range svc.Checks {
		checks[name] = http.Checker(c)
	}
	deps := &http.Dependencies{
		Markers: svc.Markers,
		Uploads: svc.Uploads,
		Tracker: tracker,
		NATS:    natsConn,
		Checks:  checks,
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024,
		AppName:      "fieldpins",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "http://localhost:3000, http://localhost:5173",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
		MaxAge:       3600,
	}))

	http.SetupRoutes(app, deps)

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		slog.Info("API server starting", "addr", addr, "store", cfg.Store.Driver, "collection", svc.Markers.Collection())
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}

func locationProvider(cfg *config.Config) (ports.LocationProvider, func()) {
	switch cfg.Location.Provider {
	case "static":
		return staticloc.New(cfg.Location.StaticLat, cfg.Location.StaticLon, 0), func() {}
	default:
		p := geoclue.New(cfg.Location.DesktopID)
		return p, p.Close
	}
}

func reportPoolStats(ctx context.Context, svc *bootstrap.Services) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			metrics.UpdateDBPoolMetrics(svc.DB.Stat())
		case <-ctx.Done():
			return
		}
	}
}
