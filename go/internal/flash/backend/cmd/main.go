package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/flashsum/go/internal/appconfig"
	"github.com/mcdev12/flashsum/go/internal/flash/backend"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (defaults to $FLASH_CONFIG)")
	flag.Parse()

	appconfig.LoadDotEnv()

	cfg, err := appconfig.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	appconfig.ConfigureLogging(cfg.Log)

	serviceConfig := backend.DefaultConfig()
	serviceConfig.AllowedOrigins = cfg.Backend.AllowedOrigins
	serviceConfig.Hub.CheckOrigin = backend.AllowOrigins(cfg.Backend.AllowedOrigins)
	if cfg.NATS.Enabled {
		js := backend.DefaultJetStreamConfig()
		js.URL = cfg.NATS.URL
		js.StreamName = cfg.NATS.Stream
		js.SubjectPrefix = cfg.NATS.SubjectPrefix
		serviceConfig.JetStream = &js
	}

	service, err := backend.NewService(clockwork.NewRealClock(), serviceConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create backend service")
	}

	log.Info().
		Str("addr", cfg.Backend.Addr).
		Bool("nats", cfg.NATS.Enabled).
		Str("nats_url", cfg.NATS.URL).
		Msg("starting flashd")

	server := &http.Server{
		Addr:              cfg.Backend.Addr,
		Handler:           service.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serviceDone := make(chan struct{})
	go func() {
		defer close(serviceDone)
		if err := service.Start(ctx); err != nil {
			log.Error().Err(err).Msg("backend service failed")
		}
	}()

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	cancel()
	<-serviceDone

	log.Info().Msg("flashd shutdown complete")
}
