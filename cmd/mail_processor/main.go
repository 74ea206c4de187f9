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
	"github.com/evefleet/srp-gateway/internal/killmail"
	notifpg "github.com/evefleet/srp-gateway/internal/notification/repository/postgres"
	"github.com/evefleet/srp-gateway/internal/platform/config"
	"github.com/evefleet/srp-gateway/internal/platform/database"
	"github.com/evefleet/srp-gateway/internal/platform/logger"
	"github.com/evefleet/srp-gateway/internal/platform/messagebroker"
	"github.com/evefleet/srp-gateway/internal/srp/app"
	srppg "github.com/evefleet/srp-gateway/internal/srp/repository/postgres"
)

const serviceName = "mail-processor"

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
	zkb := killmail.NewZKillboardClient(cfg.ZKillboardBaseURL, log, nil)
	resolver := killmail.NewResolver(esiClient, zkb, log)

	requestRepo := srppg.NewPgRequestRepository(dbPool, log)
	processedRepo := srppg.NewPgProcessedMessageRepository(dbPool, log)
	shipRuleRepo := srppg.NewPgShipRuleRepository(dbPool, log)
	banRepo := srppg.NewPgBanListRepository(dbPool, log)
	queueRepo := notifpg.NewPgQueueRepository(dbPool, log)

	validator := app.NewValidator(banRepo, requestRepo, resolver, killmail.DefaultBonusFitRule(), log)
	processor := app.NewMailProcessor(
		esiClient, esiClient, validator, shipRuleRepo,
		requestRepo, processedRepo, queueRepo, natsClient, log,
	)

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
		Addr:    fmt.Sprintf(":%d", cfg.MailProcessorMetricsPort),
		Handler: router,
	}

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		log.Info("starting inbox poll loop", "interval", cfg.MailPollInterval)
		ticker := time.NewTicker(cfg.MailPollInterval)
		defer ticker.Stop()

		// One pass at startup so a restart does not wait a full interval.
		if _, err := processor.Run(groupCtx); err != nil {
			log.ErrorContext(groupCtx, "inbox pass failed", "error", err)
		}
		for {
			select {
			case <-ticker.C:
				if _, err := processor.Run(groupCtx); err != nil {
					// Batch failures are retried on the next tick.
					log.ErrorContext(groupCtx, "inbox pass failed", "error", err)
				}
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
