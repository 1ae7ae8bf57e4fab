package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/mtarasenko/schoolleads/internal/api/router"
	appconfig "github.com/mtarasenko/schoolleads/internal/config"
	"github.com/mtarasenko/schoolleads/internal/conversions"
	"github.com/mtarasenko/schoolleads/internal/exportlog"
	"github.com/mtarasenko/schoolleads/internal/leads"
	"github.com/mtarasenko/schoolleads/internal/metrika"
	"github.com/mtarasenko/schoolleads/internal/observability/metrics"
	"github.com/mtarasenko/schoolleads/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting schoolleads API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create pgx pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	leadsRepo := leads.NewPostgresRepository(pool)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	exportMetrics := metrics.NewExportMetrics(registry)

	var runLog *exportlog.Store
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		runLog = exportlog.NewStore(redis.NewClient(opts))
	}

	var metrikaClient *metrika.Client
	if cfg.MetrikaToken != "" {
		metrikaClient, err = metrika.New(metrika.Config{
			BaseURL:   cfg.MetrikaBaseURL,
			Token:     cfg.MetrikaToken,
			CounterID: cfg.MetrikaCounterID,
			Timeout:   cfg.MetrikaTimeout,
			ProxyURL:  cfg.HTTPSProxyURL,
			Logger:    logger.Logger,
		})
		if err != nil {
			logger.Error("failed to configure metrika client", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("YANDEX_METRIKA_TOKEN not set, metrika pushes disabled")
	}

	exporter := conversions.NewExporter(leadsRepo, exportMetrics, logger)

	r := router.New(&router.Config{
		Logger:             logger,
		ConversionsHandler: conversions.NewHandler(exporter, runLog, logger),
		MetrikaHandler:     metrika.NewHandler(metrikaClient, logger),
		LeadsHandler:       leads.NewHandler(leadsRepo, logger),
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		ExportRate:         cfg.ExportRate,
		ExportBurst:        cfg.ExportBurst,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
