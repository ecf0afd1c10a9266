package tracker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// CloseIdleSessions closes every session unseen for longer than the window.
// Runs outside any poll batch and is idempotent: a session the poll path
// already closed is skipped, and both paths converge on the same terminal
// state with the average ping computed once.
func (t *Tracker) CloseIdleSessions(ctx context.Context, window time.Duration) (int64, error) {
	cutoff := time.Now().Add(-window)
	return t.store.CloseIdleSessions(ctx, cutoff)
}

// MarkServersOffline flips servers unseen for longer than the window to
// offline. Idempotent for the same reason as CloseIdleSessions.
func (t *Tracker) MarkServersOffline(ctx context.Context, window time.Duration) (int64, error) {
	cutoff := time.Now().Add(-window)
	return t.store.MarkServersOffline(ctx, cutoff)
}

// RunSweeps runs both sweeps on a fixed interval until the context is
// cancelled. An in-flight sweep completes normally on shutdown.
func (t *Tracker) RunSweeps(ctx context.Context, interval, idleWindow, offlineWindow time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := t.CloseIdleSessions(ctx, idleWindow); err != nil {
				log.Error().Err(err).Msg("Idle session sweep failed")
			} else if n > 0 {
				log.Info().Int64("closed", n).Msg("Closed idle sessions")
			}

			if n, err := t.MarkServersOffline(ctx, offlineWindow); err != nil {
				log.Error().Err(err).Msg("Offline server sweep failed")
			} else if n > 0 {
				log.Info().Int64("offline", n).Msg("Marked servers offline")
			}
		}
	}
}
