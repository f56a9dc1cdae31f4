// Mapsync - Address Resolution and Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/tomtom215/mapsync/internal/api"
	"github.com/tomtom215/mapsync/internal/cache"
	"github.com/tomtom215/mapsync/internal/config"
	"github.com/tomtom215/mapsync/internal/geocode"
	"github.com/tomtom215/mapsync/internal/geoqueue"
	"github.com/tomtom215/mapsync/internal/logging"
	"github.com/tomtom215/mapsync/internal/session"
	"github.com/tomtom215/mapsync/internal/supervisor"
	"github.com/tomtom215/mapsync/internal/supervisor/services"
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("environment", cfg.Server.Environment).
		Str("geocoder_url", cfg.Geocoder.BaseURL).
		Str("geocode_tier", cfg.Cache.GeocodeTier).
		Bool("cache_in_memory", cfg.Cache.InMemory).
		Msg("Configuration loaded")

	tiers, err := openCacheTiers(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open cache")
	}
	defer func() {
		if err := tiers.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing cache")
		}
	}()

	breaker := geocode.NewBreakerProvider(
		geocode.NewNominatimProvider(cfg.NominatimConfig()),
		cfg.BreakerConfig(),
	)
	// One pacing slot for every session; waiting never counts against the breaker
	provider := geocode.NewRateLimitedProvider(breaker, cfg.Queue.Delay)
	geocoder := geocode.New(provider, tiers.Geocode(cfg.Cache.GeocodeTier), cfg.GeocoderOptions())

	registry := session.NewRegistry(func(ownerID string) geoqueue.Resolver {
		return geocoder.ForOwner(ownerID)
	}, cfg.SessionConfig())

	handler := api.NewHandler(cfg, geocoder, registry, tiers.durable, tiers.session)
	handler.SetBreaker(breaker)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           router.SetupChi(),
		ReadTimeout:       cfg.Server.Timeout,
		ReadHeaderTimeout: cfg.Server.Timeout,
		IdleTimeout:       2 * cfg.Server.Timeout,
		// WriteTimeout stays zero: WebSocket streams are long-lived
	}

	treeConfig := supervisor.DefaultTreeConfig()
	treeConfig.ShutdownTimeout = cfg.Server.ShutdownTimeout
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), treeConfig)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	tree.AddBackgroundService(services.NewReaperService(registry, cfg.Sessions.MaxIdle, cfg.Sessions.ReapInterval))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("addr", server.Addr).Msg("Starting supervisor tree")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
	}

	// The reaper closes sessions on a clean stop; this covers a reaper that
	// did not stop within the timeout.
	registry.CloseAll()

	logging.Info().Msg("Application stopped gracefully")
}

// cacheTiers holds the two cache tiers and the storage that must be
// released on exit.
type cacheTiers struct {
	durable      *cache.Cache
	session      *cache.Cache
	durableStore *cache.BadgerStorage
}

func openCacheTiers(cfg *config.Config) (*cacheTiers, error) {
	store, err := cache.OpenBadgerStorage(cache.BadgerOptions{
		Path:     cfg.Cache.DurablePath,
		InMemory: cfg.Cache.InMemory,
	})
	if err != nil {
		return nil, fmt.Errorf("durable tier: %w", err)
	}
	return &cacheTiers{
		durable:      cache.New(store),
		session:      cache.New(cache.NewMemoryStorage(int(cfg.Cache.SessionQuotaBytes))),
		durableStore: store,
	}, nil
}

// Geocode returns the tier that backs the geocoder.
func (t *cacheTiers) Geocode(tier string) *cache.Cache {
	if tier == t.session.Tier() {
		return t.session
	}
	return t.durable
}

func (t *cacheTiers) Close() error {
	return t.durableStore.Close()
}
