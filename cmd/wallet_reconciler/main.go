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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/evefleet/srp-gateway/internal/esi"
	"github.com/evefleet/srp-gateway/internal/platform/config"
	"github.com/evefleet/srp-gateway/internal/platform/database"
	"github.com/evefleet/srp-gateway/internal/platform/logger"
	"github.com/evefleet/srp-gateway/internal/platform/messagebroker"
	srppg "github.com/evefleet/srp-gateway/internal/srp/repository/postgres"
	"github.com/evefleet/srp-gateway/internal/wallet/app"
	walletpg "github.com/evefleet/srp-gateway/internal/wallet/repository/postgres"
)

const serviceName = "wallet-reconciler"

func main() {
	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	cfg, err := config.Load(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel).With("service", serviceName)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	dbPool, err := database.NewDBPool(mainCtx, cfg.PostgresDSN, log)
	if err != nil {
		log.Error("failed to initialize database pool", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	natsClient, err := messagebroker.NewNATSClient(cfg.NATSURL, log, serviceName)
	if err != nil {
		log.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()

	transport := esi.NewTransport(cfg.ESIBaseURL, cfg.ESIToken, log, nil)
	esiClient := esi.NewClient(transport, cfg.ESICharacterID, cfg.ESICorporationID)

	ledgerRepo := walletpg.NewPgLedgerRepository(dbPool, log)
	requestRepo := srppg.NewPgRequestRepository(dbPool, log)

	fetcher := app.NewFetcher(esiClient, ledgerRepo, cfg.WalletMaxPages, log)
	reconciler := app.NewReconciler(requestRepo, ledgerRepo, natsClient, log)

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := dbPool.Ping(r.Context()); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.WalletReconcilerMetricsPort),
		Handler: router,
	}

	runOnce := func(ctx context.Context) {
		// Mirror first so this pass reconciles against the freshest journal.
		if _, err := fetcher.FetchAndSave(ctx, cfg.WalletDivision); err != nil {
			log.ErrorContext(ctx, "journal fetch failed", "error", err)
			return
		}
		if _, err := reconciler.Reconcile(ctx); err != nil {
			log.ErrorContext(ctx, "reconciliation pass failed", "error", err)
		}
	}

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		log.Info("starting reconciliation loop",
			"interval", cfg.ReconcilePollInterval, "division", cfg.WalletDivision)
		ticker := time.NewTicker(cfg.ReconcilePollInterval)
		defer ticker.Stop()

		runOnce(groupCtx)
		for {
			select {
			case <-ticker.C:
				runOnce(groupCtx)
			case <-groupCtx.Done():
				return groupCtx.Err()
			}
		}
	})

	g.Go(func() error {
		log.Info("starting ops http server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	log.Info("service started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Info("received termination signal", "signal", sig.String())
	case <-groupCtx.Done():
	}
	mainCancel()

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("service stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("service stopped")
}
