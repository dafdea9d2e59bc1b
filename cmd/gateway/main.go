package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/arakoodev/cliscale/pkg/client"
	"github.com/arakoodev/cliscale/pkg/config"
	"github.com/arakoodev/cliscale/pkg/events"
	"github.com/arakoodev/cliscale/pkg/gateway"
	"github.com/arakoodev/cliscale/pkg/httpapi"
	"github.com/arakoodev/cliscale/pkg/log"
	"github.com/arakoodev/cliscale/pkg/metrics"
	"github.com/arakoodev/cliscale/pkg/storage"
)

// shortResolveDeadline bounds how long Attach will poll the store for a
// routable endpoint before giving up. It is not user-configurable: the
// session's own resolve deadline (set at creation time by the Controller)
// is what actually governs provisioning time.
const shortResolveDeadline = 5 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "gateway:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadGateway()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON})
	metrics.SetVersion("dev")
	metrics.SetCriticalComponents([]string{"store"})

	store, err := storage.NewBoltStore(cfg.StorePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	var closeOnce sync.Once
	closeStore := func() error {
		var closeErr error
		closeOnce.Do(func() { closeErr = store.Close() })
		return closeErr
	}
	defer closeStore()
	metrics.RegisterComponent("store", true, "")

	controllerClient, err := client.NewClient(client.Config{BaseURL: cfg.ControllerURL})
	if err != nil {
		return fmt.Errorf("build controller client: %w", err)
	}
	jwks := gateway.NewJWKSClient(controllerClient, cfg.JWKSCacheTTL)

	broker := events.NewBroker()

	svc := gateway.New(gateway.Config{
		PingInterval:         cfg.PingInterval,
		PongTimeout:          cfg.PongTimeout,
		IdleTimeout:          cfg.IdleTimeout,
		BackpressureTimeout:  cfg.BackpressureTO,
		WorkerHealthTimeout:  cfg.WorkerHealthTO,
		ShortResolveDeadline: shortResolveDeadline,
	}, store, jwks, broker, log.WithComponent("gateway"))

	stopHealthChecks := startStoreHealthChecks(store, 30*time.Second)
	defer close(stopHealthChecks)

	server := &http.Server{
		Addr:    cfg.Addr,
		Handler: httpapi.NewGatewayRouter(svc),
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Logger.Info().Str("addr", cfg.Addr).Msg("gateway listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Logger.Info().Msg("shutdown signal received")
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Logger.Error().Err(err).Msg("graceful shutdown timed out")
	}

	return closeStore()
}

// startStoreHealthChecks keeps the "store" readiness component current.
// The Gateway's only store write is token consumption (only the
// Controller mints sessions and tokens), so a plain read probe is enough
// to detect a corrupted or unreachable database file.
func startStoreHealthChecks(store storage.Store, interval time.Duration) chan struct{} {
	stop := make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := store.ListSessions(); err != nil {
					metrics.UpdateComponent("store", false, err.Error())
				} else {
					metrics.UpdateComponent("store", true, "")
				}
			case <-stop:
				return
			}
		}
	}()
	return stop
}
