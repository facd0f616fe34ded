// Command kpfed serves the federated query expansion API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/kpfed/internal/api"
	"github.com/persistorai/kpfed/internal/config"
	"github.com/persistorai/kpfed/internal/directory"
	"github.com/persistorai/kpfed/internal/service"
	"github.com/persistorai/kpfed/internal/trapi"
	"github.com/persistorai/kpfed/internal/ws"
)

const shutdownTimeout = 30 * time.Second

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	if err := run(log); err != nil {
		log.WithError(err).Fatal("kpfed exited")
	}
}

func run(log *logrus.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}

	log.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	canonicalizer, pool, err := newCanonicalizer(ctx, cfg, log)
	if err != nil {
		return err
	}

	if pool != nil {
		defer pool.Close()
	}

	providers := trapi.New(log)

	cache := directory.NewCache(directory.CacheConfig{
		Dir:             cfg.DirectoryCacheDir,
		RegistryFile:    cfg.DirectoryRegistryFile,
		MaxAge:          cfg.DirectoryMaxAge,
		RefreshInterval: cfg.DirectoryRefreshInterval,
		TrustedProvider: cfg.TrustedProvider,
		TrustedURL:      cfg.TrustedProviderURL,
	}, providers, log)

	go func() {
		if err := cache.Run(ctx); err != nil {
			log.WithError(err).Error("directory cache stopped")
		}
	}()

	// Warm the snapshot so the first expansion does not pay for the fetch.
	if _, err := cache.Snapshot(ctx); err != nil {
		log.WithError(err).Warn("directory not available yet")
	}

	selector := directory.NewSelector(cache, canonicalizer)

	hub := ws.NewHub(log)
	go hub.Run(ctx)

	publisher := service.NewTracePublisher(hub, log, cfg.TraceQueueSize)
	go publisher.Run(ctx)

	querier := service.NewOneHopQuerier(providers, selector, canonicalizer, service.QuerierConfig{
		TrustedProvider:     cfg.TrustedProvider,
		Submitter:           cfg.Submitter,
		TrustedTimeout:      cfg.TrustedProviderTimeout,
		DefaultTimeout:      cfg.DefaultProviderTimeout,
		WhitespaceProviders: cfg.WhitespaceProviders,
	}, log)

	deps := &api.RouterDeps{
		Log:          log,
		Expander:     service.NewExpander(querier, selector, publisher, log),
		Directory:    cache,
		Hub:          hub,
		CORSOrigins:  cfg.CORSOrigins,
		Version:      config.Version,
		RateLimitRPS: cfg.RateLimitRPS,
	}

	// Leave DB nil without a pool so the health check reports not_configured.
	if pool != nil {
		deps.DB = pool
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.NewRouter(ctx, deps),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		log.WithFields(logrus.Fields{"addr": cfg.Addr(), "version": config.Version}).Info("kpfed listening")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}

		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serving: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}

	hub.Shutdown()

	return nil
}
