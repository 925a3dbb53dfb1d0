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
	"github.com/mcdev12/flashsum/go/internal/flash/controller"
	"github.com/mcdev12/flashsum/go/internal/flash/fullscreen"
	"github.com/mcdev12/flashsum/go/internal/flash/gateway"
	"github.com/mcdev12/flashsum/go/internal/flash/history"
	"github.com/mcdev12/flashsum/go/internal/flash/subscriber"
	"github.com/mcdev12/flashsum/go/internal/flash/surface"
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

	clock := clockwork.NewRealClock()

	var store *history.Store
	if cfg.History.Path != "" {
		store, err = history.Open(cfg.History.Path, cfg.History.Keep)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.History.Path).Msg("failed to open history")
		}
		defer store.Close()
	}

	hubConfig := surface.DefaultClientHubConfig()
	hubConfig.MessagesPerSecond = cfg.Surface.MessagesPerSecond
	hubConfig.MessageBurst = cfg.Surface.MessageBurst
	hubConfig.CheckOrigin = backend.AllowOrigins(cfg.Surface.AllowedOrigins)

	fullscreenConfig := fullscreen.DefaultConfig()
	fullscreenConfig.PollInterval = cfg.Fullscreen.PollInterval()
	fullscreenConfig.Attempts = cfg.Fullscreen.Attempts

	controllerConfig := controller.DefaultConfig()
	controllerConfig.CommandTimeout = cfg.Backend.CommandTimeout()
	client := gateway.NewClient(cfg.Backend.URL)
	client.SetTimeout(controllerConfig.CommandTimeout)

	opts := surface.Options{
		Clock:          clock,
		Gateway:        client,
		Controller:     controllerConfig,
		Fullscreen:     fullscreenConfig,
		Hub:            hubConfig,
		History:        store,
		Session:        cfg.Practice.Session,
		AutoRepeat:     cfg.Practice.AutoRepeat,
		AllowedOrigins: cfg.Surface.AllowedOrigins,
	}
	if cfg.Fullscreen.Mode == appconfig.FullscreenVirtual {
		opts.Window = fullscreen.NewVirtual()
	}

	service := surface.NewService(opts)

	var source subscriber.Source
	switch cfg.Surface.EventTransport {
	case appconfig.TransportNATS:
		jsConfig := subscriber.DefaultJetStreamConfig()
		jsConfig.URL = cfg.NATS.URL
		jsConfig.StreamName = cfg.NATS.Stream
		jsConfig.SubjectPrefix = cfg.NATS.SubjectPrefix
		js, err := subscriber.NewJetStreamSource(jsConfig, service.Controller())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create JetStream event source")
		}
		defer js.Close()
		source = js
	default:
		source = subscriber.NewWebSocketSource(subscriber.DefaultWebSocketConfig(cfg.Surface.EventsURL), service.Controller())
	}

	log.Info().
		Str("addr", cfg.Surface.Addr).
		Str("backend", cfg.Backend.URL).
		Str("event_transport", cfg.Surface.EventTransport).
		Str("fullscreen", cfg.Fullscreen.Mode).
		Str("history", cfg.History.Path).
		Msg("starting flash surface")

	server := &http.Server{
		Addr:              cfg.Surface.Addr,
		Handler:           service.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serviceDone := make(chan struct{})
	go func() {
		defer close(serviceDone)
		service.Run(ctx, source)
	}()

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	stop()
	log.Info().Msg("shutting down flash surface")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	<-serviceDone
	log.Info().Msg("flash surface shutdown complete")
}
