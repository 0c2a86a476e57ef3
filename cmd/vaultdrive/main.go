package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vaultdrive/client-go/clients/driveapi"
	"github.com/vaultdrive/client-go/internal/config"
	"github.com/vaultdrive/client-go/internal/gateway"
	"github.com/vaultdrive/client-go/internal/guest"
	"github.com/vaultdrive/client-go/internal/identity"
	"github.com/vaultdrive/client-go/internal/snapshot"
)

var (
	configPath = flag.String("config", "", "Path to yaml config file")
	debug      = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	snapshotPath := cfg.Snapshot.Path
	if snapshotPath == "" {
		snapshotPath, err = snapshot.DefaultPath()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to resolve snapshot path")
		}
	}

	api := driveapi.NewClient(cfg.API.BaseURL)
	api.SetTimeout(cfg.API.Timeout)

	store := snapshot.NewFileStore(snapshotPath)
	bus := identity.NewBus()

	ctrl := guest.NewController(api, store, bus, guest.Config{
		TickInterval:     cfg.Guest.TickInterval,
		SyncInterval:     cfg.Guest.SyncInterval,
		InitialSyncDelay: cfg.Guest.InitialSyncDelay,
		WarningFraction:  cfg.Guest.WarningFraction,
	})

	// A still-usable token from a prior run means the actor is already a
	// guest: seed from the snapshot and let the first sync reconcile.
	if token := os.Getenv("VAULTDRIVE_TOKEN"); token != "" {
		bootstrapIdentity(api, bus, ctrl, token)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cm := gateway.NewConnectionManager(gateway.DefaultConnectionConfig())
	events, cancelSub := ctrl.Subscribe(256)
	defer cancelSub()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		cm.Run(ctx, events)
	}()

	server := gateway.NewServer(cfg.Gateway.Addr, cfg.Gateway.AllowedOrigins, gateway.NewHandler(ctrl, cm))
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Str("addr", cfg.Gateway.Addr).Msg("gateway listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("gateway server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("gateway shutdown failed")
	}

	ctrl.Close()
	wg.Wait()
	log.Info().Msg("client shutdown complete")
}

// bootstrapIdentity restores the actor from a persisted token and, when the
// actor is a guest, seeds the session from the local snapshot.
func bootstrapIdentity(api *driveapi.Client, bus *identity.Bus, ctrl *guest.Controller, token string) {
	if identity.TokenExpired(token, time.Now()) {
		log.Info().Msg("stored token expired, starting unauthenticated")
		return
	}

	id, err := identity.FromToken(token)
	if err != nil {
		log.Warn().Err(err).Msg("stored token unreadable, starting unauthenticated")
		return
	}

	api.SetToken(token)
	bus.Publish(identity.Change{Kind: identity.ChangeLogin, Identity: id})

	if !id.IsGuest {
		return
	}
	if err := ctrl.SeedFromSnapshot(); err != nil {
		log.Info().Err(err).Msg("no resumable session snapshot, guest must start or resume explicitly")
	}
}
