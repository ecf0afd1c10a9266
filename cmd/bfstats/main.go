// main is the entry point of the bfstats service.
// It initializes the configuration, logger, database, geolocation resolver,
// and runs the poll loop plus sweeps until a shutdown signal arrives.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/DylanMunyard/bf1942-stats-sub007/internal/config"
	"github.com/DylanMunyard/bf1942-stats-sub007/internal/fake"
	"github.com/DylanMunyard/bf1942-stats-sub007/internal/geo"
	"github.com/DylanMunyard/bf1942-stats-sub007/internal/logger"
	"github.com/DylanMunyard/bf1942-stats-sub007/internal/maintenance"
	"github.com/DylanMunyard/bf1942-stats-sub007/internal/poller"
	"github.com/DylanMunyard/bf1942-stats-sub007/internal/snapshot"
	"github.com/DylanMunyard/bf1942-stats-sub007/internal/storage"
	"github.com/DylanMunyard/bf1942-stats-sub007/internal/tracker"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg := config.Parse()

	logger.Setup(cfg.Logger)
	log.Info().Msg("Starting bfstats service...")

	// Database
	store, err := storage.New(cfg.Storage.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database")
		}
	}()

	// Geolocation
	var resolver *geo.Resolver
	if !cfg.Geo.Disable {
		if err := geo.EnsureMMDB(cfg.Geo.MMDBPath, cfg.Geo.MMDBURL, cfg.Geo.MMDBInterval); err != nil {
			log.Error().Err(err).Msg("Failed to update geo fallback database")
		}

		resolver = geo.NewResolver(geo.Options{
			BaseURL:       cfg.Geo.URL,
			MMDBPath:      cfg.Geo.MMDBPath,
			MinInterval:   cfg.Geo.MinInterval,
			Timeout:       cfg.Geo.Timeout,
			MaxConcurrent: cfg.Geo.MaxConcurrent,
		})
		defer func() {
			if err := resolver.Close(); err != nil {
				log.Error().Err(err).Msg("Error closing geo resolver")
			}
		}()
	}

	trk := tracker.New(store, resolver, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// data generation or database maintenance
	if cfg.Storage.GenerateCount > 0 {
		fake.GenerateData(trk, cfg.Storage.GenerateCount)
		return
	} else if maintenance.Run(ctx, cfg, store, trk) {
		return
	}

	client := snapshot.NewClient(cfg.Poll.APIBase, cfg.Poll.Timeout)
	p := poller.New(client, trk, cfg.Poll.Games, cfg.Poll.Interval)

	go trk.RunSweeps(ctx, cfg.Sweep.Interval, cfg.Sweep.IdleWindow, cfg.Sweep.OfflineWindow)

	log.Info().
		Strs("games", cfg.Poll.Games).
		Dur("interval", cfg.Poll.Interval).
		Msg("Polling started")

	p.Run(ctx)

	// In-flight batches complete or roll back normally; nothing partial
	// is left exposed.
	log.Info().Msg("Shutting down...")
}
