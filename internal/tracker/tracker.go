// Package tracker is the ingestion surface of the reconciliation engine.
// One call to TrackPlayersFromServerInfo turns one poll's worth of one
// server's data into a single committed batch of player, session,
// observation, and round mutations.
package tracker

import (
	"context"
	"time"

	"github.com/DylanMunyard/bf1942-stats-sub007/internal/events"
	"github.com/DylanMunyard/bf1942-stats-sub007/internal/geo"
	"github.com/DylanMunyard/bf1942-stats-sub007/internal/models"
	"github.com/DylanMunyard/bf1942-stats-sub007/internal/reconcile"
	"github.com/DylanMunyard/bf1942-stats-sub007/internal/rounds"
	"github.com/DylanMunyard/bf1942-stats-sub007/internal/snapshot"
	"github.com/DylanMunyard/bf1942-stats-sub007/internal/storage"
	"github.com/rs/zerolog/log"
)

// Tracker reconciles server snapshots into persisted state.
type Tracker struct {
	store     *storage.Repository
	geo       *geo.Resolver
	publisher events.Publisher
}

// New builds a Tracker. geoResolver may be nil to disable enrichment;
// a nil publisher falls back to the log publisher.
func New(store *storage.Repository, geoResolver *geo.Resolver, publisher events.Publisher) *Tracker {
	if publisher == nil {
		publisher = events.LogPublisher{}
	}
	return &Tracker{store: store, geo: geoResolver, publisher: publisher}
}

// TrackPlayersFromServerInfo ingests one poll of one server. All mutations
// are applied in a single transaction in dependency order; any failure rolls
// the whole batch back and propagates, leaving other servers' batches
// untouched. Domain events are published only after the commit succeeds, and
// a failed publish is logged, never retried.
func (t *Tracker) TrackPlayersFromServerInfo(ctx context.Context, view *snapshot.ServerView, now time.Time, game string) error {
	prev, err := t.store.GetServer(ctx, view.GUID)
	if err != nil {
		return err
	}

	var oldMapHint string
	var queued []events.Event
	if prev != nil && prev.MapName != "" && prev.MapName != view.Map {
		oldMapHint = prev.MapName

		ev := events.New(events.TypeServerMapChanged, view.GUID, now)
		ev.MapName = view.Map
		ev.OldMapName = prev.MapName
		queued = append(queued, ev)
	}

	// Geolocation is refreshed only when the address changed or none is
	// stored. The lookup is network I/O behind a shared rate limiter, so it
	// stays outside the transaction; a failed lookup means no enrichment.
	server := serverRecord(view, game, now, prev)
	if t.geo != nil && view.IP != "" {
		if prev == nil || prev.Geo == nil || prev.Geo.LookupIP != view.IP {
			if info := t.geo.Lookup(ctx, view.IP); info != nil {
				server.Geo = info
			}
		}
	}

	if err := t.store.UpsertServer(ctx, server); err != nil {
		return err
	}

	tx, err := t.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	round, err := rounds.EnsureActiveRound(tx, view, now, oldMapHint)
	if err != nil {
		return err
	}

	names := playerNames(view)
	players, err := tx.GetPlayers(names)
	if err != nil {
		return err
	}
	sessions, err := tx.GetActiveSessions(view.GUID, names)
	if err != nil {
		return err
	}

	res := reconcile.Players(reconcile.Input{
		View:            view,
		Now:             now,
		Round:           round,
		ExistingPlayers: players,
		ActiveSessions:  sessions,
	})

	if err := applyBatch(tx, round, view, now, &res); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	for _, ev := range append(queued, res.Events...) {
		if err := t.publisher.Publish(ev); err != nil {
			log.Warn().Err(err).Str("type", ev.Type).Str("server", ev.ServerGUID).Msg("Event publish failed")
		}
	}

	return nil
}

// applyBatch writes one reconciliation result in strict dependency order:
// new players, session closures, new sessions, session updates, player
// observations, the round observation, then the round rollups.
func applyBatch(tx *storage.Tx, round *models.Round, view *snapshot.ServerView, now time.Time, res *reconcile.Result) error {
	for _, p := range res.NewPlayers {
		if err := tx.InsertPlayer(p); err != nil {
			return err
		}
	}
	for _, touch := range res.PlayerTouches {
		if err := tx.TouchPlayer(touch.Name, touch.LastSeen, touch.AddMinutes); err != nil {
			return err
		}
	}

	for _, id := range res.SessionsToClose {
		if err := tx.CloseSession(id); err != nil {
			return err
		}
	}

	createdIDs := make([]int64, len(res.SessionsToCreate))
	for i, s := range res.SessionsToCreate {
		id, err := tx.InsertSession(s)
		if err != nil {
			return err
		}
		createdIDs[i] = id
	}

	for _, s := range res.SessionsToUpdate {
		if err := tx.UpdateSession(s); err != nil {
			return err
		}
	}

	for _, pending := range res.Observations {
		obs := pending.Sample
		if obs.SessionID == 0 {
			// Deferred until the owning insert assigned an identity.
			obs.SessionID = createdIDs[pending.CreateIdx]
		}
		if err := tx.InsertObservation(obs); err != nil {
			return err
		}
	}

	if round != nil {
		if err := tx.InsertRoundObservation(reconcile.RoundSample(round, view, now)); err != nil {
			return err
		}
		if err := tx.RefreshRoundParticipants(round.ID); err != nil {
			return err
		}
	}

	return nil
}

func serverRecord(view *snapshot.ServerView, game string, now time.Time, prev *models.GameServer) models.GameServer {
	if game == "" {
		game = view.Game
	}

	s := models.GameServer{
		GUID:       view.GUID,
		IP:         view.IP,
		Port:       view.Port,
		Name:       view.Name,
		Game:       game,
		MapName:    view.Map,
		GameType:   view.GameType,
		MaxPlayers: view.MaxPlayers,
		JoinLink:   view.JoinLink,
		Online:     true,
		LastSeen:   now,
	}
	if prev != nil {
		s.Geo = prev.Geo
	}

	return s
}

func playerNames(view *snapshot.ServerView) []string {
	seen := make(map[string]struct{}, len(view.Players))
	names := make([]string, 0, len(view.Players))
	for _, p := range view.Players {
		if p.Name == "" || p.AIBot || reconcile.IsBotName(p.Name) {
			continue
		}
		if _, dup := seen[p.Name]; dup {
			continue
		}
		seen[p.Name] = struct{}{}
		names = append(names, p.Name)
	}
	return names
}
