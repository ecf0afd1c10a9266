// Package rounds derives stable round identities from server+map+time and
// drives the round lifecycle: open on a fresh map, close on a map change,
// reopen on an idempotent replay of the same poll.
package rounds

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/DylanMunyard/bf1942-stats-sub007/internal/models"
	"github.com/DylanMunyard/bf1942-stats-sub007/internal/snapshot"
)

// idLen is the hex prefix length of the round content hash.
const idLen = 16

// Store is the persistence surface the manager needs. Satisfied by
// *storage.Tx so all round writes join the poll batch transaction.
type Store interface {
	GetActiveRound(serverGUID string) (*models.Round, error)
	GetRoundByID(id string) (*models.Round, error)
	InsertRound(r models.Round) error
	ReopenRound(r models.Round) error
	CloseRound(id string, end models.Round) error
	UpdateRoundMeta(r models.Round) error
}

// RoundID computes the content-addressed round identity from the server
// GUID, map name, and start time normalized to whole seconds in UTC. The
// same server/map/second always hashes to the same id, so a restart or a
// duplicate delivery resolves to the existing round instead of forking one.
func RoundID(serverGUID, mapName string, start time.Time) string {
	seed := fmt.Sprintf("%s|%s|%s", serverGUID, mapName, start.UTC().Truncate(time.Second).Format(time.RFC3339))
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])[:idLen]
}

// EnsureActiveRound returns the active round for the polled server, rolling
// it over when the map changed. Returns nil when the server reports no map;
// sessions may still be tracked without a round link in that case.
//
// A map change is detected either against the previously stored map name via
// oldMapHint (the caller already mutated the server record) or against the
// currently active round. Either signal closes the active round before a
// new one is opened.
func EnsureActiveRound(store Store, view *snapshot.ServerView, now time.Time, oldMapHint string) (*models.Round, error) {
	if view.Map == "" {
		return nil, nil
	}

	active, err := store.GetActiveRound(view.GUID)
	if err != nil {
		return nil, err
	}

	mapChanged := oldMapHint != "" && oldMapHint != view.Map
	if active != nil && active.MapName != view.Map {
		mapChanged = true
	}

	if active != nil && !mapChanged {
		// Identity and start time are immutable; everything else tracks the poll.
		refreshMeta(active, view)
		if err := store.UpdateRoundMeta(*active); err != nil {
			return nil, err
		}
		return active, nil
	}

	if active != nil {
		outcome := Outcome(active.Tickets1, active.Tickets2, "")
		switch outcome {
		case "team1":
			if active.Team1Label != "" {
				outcome = active.Team1Label
			}
		case "team2":
			if active.Team2Label != "" {
				outcome = active.Team2Label
			}
		}

		end := now
		closed := models.Round{
			EndTime:         &end,
			DurationMinutes: durationMinutes(active.StartTime, now),
			Outcome:         outcome,
		}
		if err := store.CloseRound(active.ID, closed); err != nil {
			return nil, err
		}
	}

	return openRound(store, view, now)
}

// openRound opens a round with the content-hash id for this poll, reopening
// an existing row with the same hash instead of duplicating it.
func openRound(store Store, view *snapshot.ServerView, now time.Time) (*models.Round, error) {
	round := models.Round{
		ID:         RoundID(view.GUID, view.Map, now),
		ServerGUID: view.GUID,
		MapName:    view.Map,
		StartTime:  now.UTC().Truncate(time.Second),
		IsActive:   true,
	}
	refreshMeta(&round, view)

	existing, err := store.GetRoundByID(round.ID)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		// Replay of an already-seen poll: restore the row rather than fork it.
		round.StartTime = existing.StartTime
		round.ParticipantCount = existing.ParticipantCount
		if err := store.ReopenRound(round); err != nil {
			return nil, err
		}
		return &round, nil
	}

	if err := store.InsertRound(round); err != nil {
		return nil, err
	}

	return &round, nil
}

func refreshMeta(r *models.Round, view *snapshot.ServerView) {
	r.ServerName = view.Name
	r.GameType = view.GameType
	r.Tickets1 = view.Tickets1
	r.Tickets2 = view.Tickets2
	r.RemainingTime = view.RoundTimeRemain
	r.Team1Label = view.TeamLabel(1)
	r.Team2Label = view.TeamLabel(2)
}

func durationMinutes(start, end time.Time) int {
	m := int(end.Sub(start).Minutes())
	if m < 0 {
		return 0
	}
	return m
}

// NoWinner is the feed sentinel for a round that ended without a winning team.
const NoWinner = "none"

// Outcome resolves a closed round's result from its last known tickets and
// the feed's winning-team indicator. The explicit sentinel takes precedence
// over ticket comparison: when the feed says nobody won, the round is a tie
// even if the tickets disagree. Without a hint the tickets decide, and a
// round with unknown tickets has an unknown outcome.
//
// None of the current server-list variants reports a winner, so the poll
// path always passes an empty hint; the parameter exists for feeds that do.
func Outcome(tickets1, tickets2 *int, winnerHint string) string {
	switch winnerHint {
	case NoWinner:
		return models.OutcomeTie
	case "":
	default:
		return winnerHint
	}

	if tickets1 == nil || tickets2 == nil {
		return models.OutcomeUnknown
	}

	switch {
	case *tickets1 > *tickets2:
		return "team1"
	case *tickets2 > *tickets1:
		return "team2"
	default:
		return models.OutcomeTie
	}
}
