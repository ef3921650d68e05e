package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/eurekahq/wsgate/internal/authn"
	"github.com/eurekahq/wsgate/internal/gateway"
	"github.com/eurekahq/wsgate/internal/lifecycle"
	"github.com/eurekahq/wsgate/internal/observability"
	"github.com/eurekahq/wsgate/internal/provider"
	"github.com/eurekahq/wsgate/internal/retry"
	"github.com/eurekahq/wsgate/internal/store"
)

func main() {
	var cfg gateway.Config
	if err := envconfig.Process("", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, _ := observability.NewLogger(cfg.LogLevel)
	defer log.Sync()

	// Replace global logger
	zap.ReplaceGlobals(log)

	reg := prometheus.DefaultRegisterer
	observability.RegisterAll(reg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	providerClient := provider.NewClient(provider.Config{
		APIURL:  cfg.ProviderAPIURL,
		APIKey:  cfg.ProviderAPIKey,
		AppName: cfg.ProviderAppName,
		Image:   cfg.MachineImage,
	}, log)

	machineStore := store.New(cfg.DataDir, log)

	registry := lifecycle.NewRegistry(providerClient, machineStore, lifecycle.Config{
		InactivityTimeout: cfg.InactivityTimeout,
		CallTimeout:       cfg.ActorCallTimeout,
		MachineOpTimeout:  cfg.MachineOpTimeout,
		Retry:             retry.Options{},
	}, log)

	proxy := gateway.NewProxy(
		registry,
		gateway.MachineTarget(cfg.ProviderAppName),
		cfg.ProxyBodyLimit,
		cfg.ChunkIdleTimeout,
		log,
	)

	auth := &authn.CookieAuthenticator{CookieName: cfg.AuthCookie}
	gw := gateway.New(cfg, registry, proxy, auth, log)

	// Main gateway server. Write timeout stays unset: proxied responses
	// (server-sent events included) have no total-duration cap.
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 20 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Metrics server
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: mux,
	}

	go func() {
		log.Info("metrics server starting", zap.String("addr", cfg.MetricsAddr))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("metrics server failed", zap.Error(err))
		}
	}()

	go func() {
		log.Info("gateway starting",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("base_domain", cfg.BaseDomain),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("gateway failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down gateway")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)

	log.Info("gateway stopped")
}
