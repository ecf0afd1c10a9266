// Package poller drives the recurring poll cycles against the server-list
// API and feeds every snapshot through the tracker.
package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DylanMunyard/bf1942-stats-sub007/internal/snapshot"
	"github.com/DylanMunyard/bf1942-stats-sub007/internal/tracker"
	"github.com/rs/zerolog/log"
)

// Poller runs one fetch-and-reconcile pass per tick across all variants.
type Poller struct {
	client   *snapshot.Client
	tracker  *tracker.Tracker
	games    []string
	interval time.Duration
	busy     atomic.Bool
}

// New builds a Poller over the given game variants.
func New(client *snapshot.Client, trk *tracker.Tracker, games []string, interval time.Duration) *Poller {
	return &Poller{
		client:   client,
		tracker:  trk,
		games:    games,
		interval: interval,
	}
}

// Run polls until the context is cancelled. If a cycle is still in flight
// when the next tick fires, that tick is skipped entirely rather than
// queued, so sustained overload can never build a backlog of cycles.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.tryCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tryCycle(ctx)
		}
	}
}

func (p *Poller) tryCycle(ctx context.Context) {
	if !p.busy.CompareAndSwap(false, true) {
		log.Warn().Msg("Previous poll cycle still running, skipping tick")
		return
	}
	defer p.busy.Store(false)

	p.cycle(ctx)
}

// cycle fetches the three variants concurrently; within a variant each
// server is reconciled and committed to completion before the next one.
// The external APIs are the bottleneck here, not the database.
func (p *Poller) cycle(ctx context.Context) {
	start := time.Now()

	var wg sync.WaitGroup
	for _, game := range p.games {
		wg.Add(1)
		go func(game string) {
			defer wg.Done()
			p.pollGame(ctx, game)
		}(game)
	}
	wg.Wait()

	log.Debug().Dur("duration", time.Since(start)).Msg("Poll cycle finished")
}

func (p *Poller) pollGame(ctx context.Context, game string) {
	views, err := p.client.FetchServers(ctx, game)
	if err != nil {
		// Transient upstream failure: no data this cycle for this variant.
		log.Warn().Err(err).Str("game", game).Msg("Snapshot fetch failed")
		return
	}

	now := time.Now().UTC()
	for i := range views {
		if ctx.Err() != nil {
			return
		}

		view := &views[i]
		if err := p.tracker.TrackPlayersFromServerInfo(ctx, view, now, game); err != nil {
			// One misbehaving server must not stall the fleet: its batch
			// rolled back, the rest of the variant proceeds.
			log.Error().Err(err).
				Str("game", game).
				Str("server", view.GUID).
				Str("map", view.Map).
				Msg("Failed to track server snapshot")
		}
	}

	log.Trace().Str("game", game).Int("servers", len(views)).Msg("Variant polled")
}
