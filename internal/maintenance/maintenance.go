// Package maintenance provides one-shot database housekeeping tasks.
package maintenance

import (
	"context"

	"github.com/DylanMunyard/bf1942-stats-sub007/internal/config"
	"github.com/DylanMunyard/bf1942-stats-sub007/internal/storage"
	"github.com/DylanMunyard/bf1942-stats-sub007/internal/tracker"
	"github.com/rs/zerolog/log"
)

// Run checks if any maintenance flags are set and executes the corresponding tasks.
// Returns true if a maintenance task was executed (indicating the program should exit).
func Run(ctx context.Context, cfg *config.Config, store *storage.Repository, trk *tracker.Tracker) bool {
	ran := false

	if cfg.Storage.CloseIdle {
		ran = true
		log.Info().Dur("window", cfg.Sweep.IdleWindow).Msg("Closing idle sessions...")

		if n, err := trk.CloseIdleSessions(ctx, cfg.Sweep.IdleWindow); err != nil {
			log.Error().Err(err).Msg("Failed to close idle sessions")
		} else {
			log.Info().Int64("closed", n).Msg("Idle session sweep finished")
		}
	}

	if cfg.Storage.MarkOffline {
		ran = true
		log.Info().Dur("window", cfg.Sweep.OfflineWindow).Msg("Marking stale servers offline...")

		if n, err := trk.MarkServersOffline(ctx, cfg.Sweep.OfflineWindow); err != nil {
			log.Error().Err(err).Msg("Failed to mark servers offline")
		} else {
			log.Info().Int64("offline", n).Msg("Offline server sweep finished")
		}
	}

	if cfg.Storage.PruneEmpty {
		ran = true
		log.Info().Msg("Pruning empty servers...")

		if n, err := store.PruneEmptyServers(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to prune servers")
		} else {
			log.Info().Int64("deleted", n).Msg("Prune finished")
		}
	}

	return ran
}
