// Organizer Server
//
// Features:
// - Admission gate, scope listing, EXIF, classification and folder planning endpoints
// - Synchronous batch jobs returning a per-file manifest
// - Prometheus metrics & structured logging (zap)
// - Per-client rate limiting
// - Local, S3 and MinIO scopes
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/fruitsalade/organizer/internal/api"
	"github.com/fruitsalade/fruitsalade/organizer/internal/app"
	"github.com/fruitsalade/fruitsalade/organizer/internal/config"
	"github.com/fruitsalade/fruitsalade/organizer/internal/logging"
	"github.com/fruitsalade/fruitsalade/organizer/internal/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Can't use structured logging yet
		panic("configuration error: " + err.Error())
	}

	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("Organizer Server starting...",
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logging.Fatal("pipeline init failed", zap.Error(err))
	}
	defer a.Close()

	go a.RunMaintenance(ctx)

	srv := api.NewServer(api.Services{
		Gate:       a.Gate,
		Pager:      a.Enumerator,
		Extractor:  a.Extractor,
		Classifier: a.Classifier,
		Planner:    a.Planner,
		Jobs:       a.Runner,
	}, api.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst))

	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metrics.Handler(),
	}
	go func() {
		logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logging.Error("metrics server error", zap.Error(err))
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logging.Info("shutting down...")
		cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), 30*time.Second)
		defer done()
		httpServer.Shutdown(shutdownCtx)
		metricsServer.Close()
	}()

	logging.Info("server listening", zap.String("addr", cfg.ListenAddr))
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		logging.Fatal("server error", zap.Error(err))
	}
	logging.Info("server stopped")
}
