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

	"github.com/arakoodev/cliscale/pkg/config"
	"github.com/arakoodev/cliscale/pkg/controller"
	"github.com/arakoodev/cliscale/pkg/events"
	"github.com/arakoodev/cliscale/pkg/httpapi"
	"github.com/arakoodev/cliscale/pkg/log"
	"github.com/arakoodev/cliscale/pkg/metrics"
	"github.com/arakoodev/cliscale/pkg/orchestrator"
	"github.com/arakoodev/cliscale/pkg/ratelimit"
	"github.com/arakoodev/cliscale/pkg/reconciler"
	"github.com/arakoodev/cliscale/pkg/signer"
	"github.com/arakoodev/cliscale/pkg/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "controller:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadController()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON})
	metrics.SetVersion("dev")
	metrics.SetCriticalComponents([]string{"store", "signer"})

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

	signerInst, err := signer.LoadOrGenerate(cfg.SigningKeyPEM)
	if err != nil {
		return fmt.Errorf("load signing key: %w", err)
	}
	metrics.RegisterComponent("signer", true, "")

	if existing, err := store.GetSigningKeyFingerprint(); err == nil && existing != signerInst.KID() {
		log.Logger.Warn().Str("previous_kid", existing).Str("current_kid", signerInst.KID()).Msg("signing key changed since last run; tokens minted under the old key will fail verification")
	}
	if err := store.PutSigningKeyFingerprint(signerInst.KID()); err != nil {
		log.Logger.Warn().Err(err).Msg("failed to record signing key fingerprint")
	}

	driver, err := orchestrator.New(cfg.ContainerdSocket, cfg.GatewayAddr)
	if err != nil {
		return fmt.Errorf("connect orchestrator: %w", err)
	}
	defer driver.Close()

	broker := events.NewBroker()
	limiter := ratelimit.New(cfg.RateLimitPerMin, time.Minute)
	limiter.StartCleanupJob(nil)

	svc := controller.New(controller.Config{
		APIKey:             cfg.APIKey,
		WorkerImage:        cfg.WorkerImage,
		OrchNamespace:      cfg.OrchNamespace,
		SessionTTL:         cfg.SessionTTL,
		TokenTTL:           cfg.TokenTTL,
		ResolveDeadline:    cfg.ResolveDeadline,
		CollectAfterFinish: 5 * time.Minute,
		PublicBaseURL:      cfg.PublicBaseURL,
	}, store, signerInst, driver, limiter, broker, log.WithComponent("controller"))

	pruner := reconciler.NewPruner(store, cfg.PruneInterval, log.WithComponent("pruner"), broker)
	pruner.Start()
	defer pruner.Stop()

	stopHealthChecks := startStoreHealthChecks(svc, cfg.PruneInterval)
	defer close(stopHealthChecks)

	server := &http.Server{
		Addr:    cfg.Addr,
		Handler: httpapi.NewControllerRouter(svc),
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Logger.Info().Str("addr", cfg.Addr).Msg("controller listening")
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

// startStoreHealthChecks keeps the "store" readiness component current
// by round-tripping it on the same cadence as the TTL pruner.
func startStoreHealthChecks(svc *controller.Service, interval time.Duration) chan struct{} {
	stop := make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := svc.CheckStore(); err != nil {
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
