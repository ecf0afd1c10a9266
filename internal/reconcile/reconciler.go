// Package reconcile matches polled player snapshots against active sessions
// and produces the mutation lists for one server's poll batch. Everything in
// this package is pure computation over pre-loaded state: no I/O happens
// here, so the matching rules are testable without a database.
package reconcile

import (
	"time"

	"github.com/DylanMunyard/bf1942-stats-sub007/internal/events"
	"github.com/DylanMunyard/bf1942-stats-sub007/internal/models"
	"github.com/DylanMunyard/bf1942-stats-sub007/internal/snapshot"
)

// Input is the pre-loaded state one reconciliation pass runs over.
type Input struct {
	View *snapshot.ServerView
	Now  time.Time

	// Round is the active round for this server, or nil when the server
	// reports no map.
	Round *models.Round

	// ExistingPlayers holds the player records whose names appear in this
	// poll, keyed by name.
	ExistingPlayers map[string]models.Player

	// ActiveSessions holds all active sessions on this server for the
	// polled player names, keyed by player name.
	ActiveSessions map[string][]models.PlayerSession
}

// PlayerTouch advances an existing player's bookkeeping.
type PlayerTouch struct {
	LastSeen   time.Time
	Name       string
	AddMinutes float64
}

// PendingObservation is a player sample waiting for its session identity.
// SessionID is set when the session is already persisted; otherwise
// CreateIdx points into Result.SessionsToCreate and the sample can only be
// written after that insert assigned an id.
type PendingObservation struct {
	Sample    models.PlayerObservation
	SessionID int64
	CreateIdx int
}

// Result is the full mutation set for one server's poll, applied by the
// caller in dependency order inside a single transaction.
type Result struct {
	NewPlayers       []models.Player
	PlayerTouches    []PlayerTouch
	SessionsToCreate []models.PlayerSession
	SessionsToUpdate []models.PlayerSession
	SessionsToClose  []int64
	Observations     []PendingObservation
	Events           []events.Event
}

// Players reconciles every player in the snapshot. Bots are dropped before
// any other branch: they are never persisted, sessioned, or observed.
func Players(in Input) Result {
	var res Result

	seen := make(map[string]struct{}, len(in.View.Players))
	for _, p := range in.View.Players {
		if p.Name == "" {
			continue
		}
		if p.AIBot || IsBotName(p.Name) {
			continue
		}
		// A noisy feed can list the same name twice in one snapshot; only
		// the first entry is reconciled, so a duplicate can never insert the
		// same player twice or open a second session in the same batch.
		if _, dup := seen[p.Name]; dup {
			continue
		}
		seen[p.Name] = struct{}{}

		res.reconcileOne(in, p)
	}

	return res
}

func (res *Result) reconcileOne(in Input, p snapshot.PlayerInfo) {
	now := in.Now
	_, known := in.ExistingPlayers[p.Name]
	if !known {
		res.NewPlayers = append(res.NewPlayers, models.Player{
			Name:      p.Name,
			FirstSeen: now,
			LastSeen:  now,
		})
	}

	label := p.TeamLabel
	if label == "" {
		label = in.View.TeamLabel(p.Team)
	}

	active := in.ActiveSessions[p.Name]

	// A session continuing on the current map absorbs the sample. Any other
	// active session for this player on this server means the map changed
	// underneath them and must be closed.
	var continuing *models.PlayerSession
	for i := range active {
		if active[i].MapName == in.View.Map && continuing == nil {
			continuing = &active[i]
		} else {
			res.SessionsToClose = append(res.SessionsToClose, active[i].ID)
		}
	}

	if continuing != nil {
		// Play-time accrues from the gap since the previous sample, measured
		// before the session is mutated.
		elapsed := now.Sub(continuing.LastSeenTime).Minutes()
		if elapsed < 0 {
			elapsed = 0
		}
		if known {
			res.PlayerTouches = append(res.PlayerTouches, PlayerTouch{
				Name:       p.Name,
				LastSeen:   now,
				AddMinutes: elapsed,
			})
		}

		s := *continuing

		// Score and kills are high-water marks: the feed occasionally reports
		// a transient regression that must not claw back a session total.
		// Deaths are a true counter upstream and track the latest value.
		if p.Score > s.TotalScore {
			s.TotalScore = p.Score
		}
		if p.Kills > s.TotalKills {
			s.TotalKills = p.Kills
		}
		s.TotalDeaths = p.Deaths

		s.LastSeenTime = now
		s.ObservationCount++
		s.CurrentPing = p.Ping
		s.CurrentTeam = p.Team
		s.CurrentTeamLabel = label
		if in.Round != nil {
			s.RoundID = in.Round.ID
		}

		res.SessionsToUpdate = append(res.SessionsToUpdate, s)
		res.Observations = append(res.Observations, PendingObservation{
			SessionID: s.ID,
			Sample:    sample(s.ID, p, label, now),
		})
		return
	}

	if known {
		res.PlayerTouches = append(res.PlayerTouches, PlayerTouch{
			Name:     p.Name,
			LastSeen: now,
		})
	}

	created := models.PlayerSession{
		PlayerName:       p.Name,
		ServerGUID:       in.View.GUID,
		MapName:          in.View.Map,
		GameType:         in.View.GameType,
		StartTime:        now,
		LastSeenTime:     now,
		IsActive:         true,
		TotalScore:       p.Score,
		TotalKills:       p.Kills,
		TotalDeaths:      p.Deaths,
		ObservationCount: 1,
		CurrentPing:      p.Ping,
		CurrentTeam:      p.Team,
		CurrentTeamLabel: label,
	}
	if in.Round != nil {
		created.RoundID = in.Round.ID
	}

	idx := len(res.SessionsToCreate)
	res.SessionsToCreate = append(res.SessionsToCreate, created)
	res.Observations = append(res.Observations, PendingObservation{
		CreateIdx: idx,
		Sample:    sample(0, p, label, now),
	})

	if len(active) == 0 {
		// A fresh arrival, not a map rollover of someone already here.
		ev := events.New(events.TypePlayerOnline, in.View.GUID, now)
		ev.PlayerName = p.Name
		ev.MapName = in.View.Map
		res.Events = append(res.Events, ev)
	}
}

func sample(sessionID int64, p snapshot.PlayerInfo, label string, now time.Time) models.PlayerObservation {
	return models.PlayerObservation{
		SessionID: sessionID,
		Timestamp: now,
		Score:     p.Score,
		Kills:     p.Kills,
		Deaths:    p.Deaths,
		Ping:      p.Ping,
		Team:      p.Team,
		TeamLabel: label,
	}
}

// RoundSample builds the per-poll round observation. It is recorded whether
// or not any players are present, so an empty server still produces a
// continuous round timeline.
func RoundSample(round *models.Round, view *snapshot.ServerView, now time.Time) models.RoundObservation {
	return models.RoundObservation{
		RoundID:       round.ID,
		Timestamp:     now,
		Tickets1:      view.Tickets1,
		Tickets2:      view.Tickets2,
		Team1Label:    view.TeamLabel(1),
		Team2Label:    view.TeamLabel(2),
		RemainingTime: view.RoundTimeRemain,
	}
}
