package tracker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DylanMunyard/bf1942-stats-sub007/internal/events"
	"github.com/DylanMunyard/bf1942-stats-sub007/internal/rounds"
	"github.com/DylanMunyard/bf1942-stats-sub007/internal/snapshot"
	"github.com/DylanMunyard/bf1942-stats-sub007/internal/storage"
)

var base = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// capturingPublisher records published events and can be told to fail.
type capturingPublisher struct {
	events []events.Event
	fail   bool
}

func (p *capturingPublisher) Publish(e events.Event) error {
	if p.fail {
		return errors.New("sink unavailable")
	}
	p.events = append(p.events, e)
	return nil
}

func newTestTracker(t *testing.T) (*Tracker, *storage.Repository, *capturingPublisher) {
	t.Helper()
	repo, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	pub := &capturingPublisher{}
	return New(repo, nil, pub), repo, pub
}

func intp(v int) *int { return &v }

func pollView(mapName string, players ...snapshot.PlayerInfo) *snapshot.ServerView {
	return &snapshot.ServerView{
		GUID:     "srv-1",
		IP:       "10.0.0.1",
		Port:     14567,
		Name:     "Test Server",
		Game:     snapshot.GameBF1942,
		Map:      mapName,
		GameType: "conquest",
		Tickets1: intp(120),
		Tickets2: intp(80),
		Players:  players,
		Teams: []snapshot.TeamInfo{
			{Index: 1, Label: "Axis", Tickets: intp(120)},
			{Index: 2, Label: "Allies", Tickets: intp(80)},
		},
	}
}

// Three consecutive polls: arrival, score regression, map change.
func TestThreePollScenario(t *testing.T) {
	trk, repo, pub := newTestTracker(t)
	ctx := context.Background()

	// Poll 1: Ace appears on dunkirk.
	view := pollView("dunkirk", snapshot.PlayerInfo{Name: "Ace", Score: 10, Kills: 2, Deaths: 1, Ping: 40, Team: 1})
	if err := trk.TrackPlayersFromServerInfo(ctx, view, base, snapshot.GameBF1942); err != nil {
		t.Fatal(err)
	}

	roundID1 := rounds.RoundID("srv-1", "dunkirk", base)
	r, err := repo.GetRound(ctx, roundID1)
	if err != nil {
		t.Fatal(err)
	}
	if r == nil || !r.IsActive {
		t.Fatalf("poll 1 must open an active round, got %+v", r)
	}
	if r.ParticipantCount != 1 {
		t.Errorf("expected 1 participant, got %d", r.ParticipantCount)
	}

	if len(pub.events) != 1 || pub.events[0].Type != events.TypePlayerOnline {
		t.Fatalf("expected one player online event, got %+v", pub.events)
	}

	// Poll 2: transient score regression, kills advance.
	view = pollView("dunkirk", snapshot.PlayerInfo{Name: "Ace", Score: 8, Kills: 3, Deaths: 2, Ping: 50, Team: 1})
	if err := trk.TrackPlayersFromServerInfo(ctx, view, base.Add(15*time.Second), snapshot.GameBF1942); err != nil {
		t.Fatal(err)
	}

	s, err := repo.GetSession(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if s == nil || !s.IsActive {
		t.Fatalf("session must continue across polls, got %+v", s)
	}
	if s.TotalScore != 10 || s.TotalKills != 3 || s.TotalDeaths != 2 {
		t.Errorf("expected totals 10/3/2, got %d/%d/%d", s.TotalScore, s.TotalKills, s.TotalDeaths)
	}
	if s.ObservationCount != 2 {
		t.Errorf("expected 2 observations, got %d", s.ObservationCount)
	}

	// Poll 3: the server rotates maps.
	mapChange := base.Add(30 * time.Second)
	view = pollView("berlin", snapshot.PlayerInfo{Name: "Ace", Score: 0, Kills: 0, Deaths: 0, Ping: 45, Team: 1})
	if err := trk.TrackPlayersFromServerInfo(ctx, view, mapChange, snapshot.GameBF1942); err != nil {
		t.Fatal(err)
	}

	// Old round closed with an outcome from the last known tickets.
	r, err = repo.GetRound(ctx, roundID1)
	if err != nil {
		t.Fatal(err)
	}
	if r.IsActive || r.EndTime == nil {
		t.Errorf("old round must be closed, got %+v", r)
	}
	if r.Outcome != "Axis" {
		t.Errorf("tickets 120 vs 80 must resolve to Axis, got %q", r.Outcome)
	}

	// New round opened on the new map.
	r, err = repo.GetRound(ctx, rounds.RoundID("srv-1", "berlin", mapChange))
	if err != nil {
		t.Fatal(err)
	}
	if r == nil || !r.IsActive {
		t.Fatalf("map change must open a new round, got %+v", r)
	}

	// Old session closed with its average ping; a new one opened for berlin.
	s, err = repo.GetSession(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if s.IsActive {
		t.Error("dunkirk session must be closed after the rotation")
	}
	if s.AveragePing == nil || *s.AveragePing != 45 {
		t.Errorf("expected average ping 45 from pings 40 and 50, got %v", s.AveragePing)
	}

	s, err = repo.GetSession(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if s == nil || !s.IsActive || s.MapName != "berlin" {
		t.Fatalf("expected an active berlin session, got %+v", s)
	}

	// Rotation emits a map-changed event but no second player-online.
	var online, changed int
	for _, ev := range pub.events {
		switch ev.Type {
		case events.TypePlayerOnline:
			online++
		case events.TypeServerMapChanged:
			changed++
		}
	}
	if online != 1 {
		t.Errorf("expected exactly 1 player online event, got %d", online)
	}
	if changed != 1 {
		t.Errorf("expected exactly 1 map changed event, got %d", changed)
	}
}

func TestReplayedPollIsIdempotent(t *testing.T) {
	trk, repo, _ := newTestTracker(t)
	ctx := context.Background()

	view := pollView("dunkirk", snapshot.PlayerInfo{Name: "Ace", Score: 10, Team: 1})
	if err := trk.TrackPlayersFromServerInfo(ctx, view, base, snapshot.GameBF1942); err != nil {
		t.Fatal(err)
	}
	if err := trk.TrackPlayersFromServerInfo(ctx, view, base, snapshot.GameBF1942); err != nil {
		t.Fatalf("replaying the same poll must not fail: %v", err)
	}

	n, err := repo.CountRounds(ctx, "srv-1")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("replay must not fork a duplicate round, got %d rows", n)
	}
}

func TestBotsNeverPersisted(t *testing.T) {
	trk, repo, pub := newTestTracker(t)
	ctx := context.Background()

	view := pollView("dunkirk",
		snapshot.PlayerInfo{Name: "Flagged", AIBot: true, Score: 99},
		snapshot.PlayerInfo{Name: "BOT_Alpha", Score: 10},
	)
	if err := trk.TrackPlayersFromServerInfo(ctx, view, base, snapshot.GameBF1942); err != nil {
		t.Fatal(err)
	}

	if s, err := repo.GetSession(ctx, 1); err != nil {
		t.Fatal(err)
	} else if s != nil {
		t.Errorf("bot-only poll must create no sessions, got %+v", s)
	}
	if len(pub.events) != 0 {
		t.Errorf("bot-only poll must emit no events, got %+v", pub.events)
	}

	// The round timeline still advances on a bot-only server.
	r, err := repo.GetRound(ctx, rounds.RoundID("srv-1", "dunkirk", base))
	if err != nil {
		t.Fatal(err)
	}
	if r == nil || !r.IsActive {
		t.Fatalf("round must be tracked regardless of players, got %+v", r)
	}
	if r.ParticipantCount != 0 {
		t.Errorf("expected 0 participants, got %d", r.ParticipantCount)
	}
}

func TestDuplicateRosterEntriesCommitCleanly(t *testing.T) {
	trk, repo, _ := newTestTracker(t)
	ctx := context.Background()

	// The feed occasionally lists the same name twice in one snapshot.
	view := pollView("dunkirk",
		snapshot.PlayerInfo{Name: "Ace", Score: 10, Kills: 2, Ping: 40, Team: 1},
		snapshot.PlayerInfo{Name: "Ace", Score: 2, Kills: 0, Ping: 55, Team: 2},
	)
	if err := trk.TrackPlayersFromServerInfo(ctx, view, base, snapshot.GameBF1942); err != nil {
		t.Fatalf("a duplicated roster entry must not fail the batch: %v", err)
	}

	s, err := repo.GetSession(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if s == nil || !s.IsActive || s.TotalScore != 10 {
		t.Fatalf("expected one active session from the first entry, got %+v", s)
	}
	if s2, err := repo.GetSession(ctx, 2); err != nil {
		t.Fatal(err)
	} else if s2 != nil {
		t.Errorf("duplicate must not open a second session, got %+v", s2)
	}

	// The duplicate persisting across polls must keep ingesting cleanly.
	if err := trk.TrackPlayersFromServerInfo(ctx, view, base.Add(15*time.Second), snapshot.GameBF1942); err != nil {
		t.Fatalf("second poll with the duplicate failed: %v", err)
	}
	if s, err = repo.GetSession(ctx, 1); err != nil {
		t.Fatal(err)
	} else if s.ObservationCount != 2 {
		t.Errorf("expected the one session to continue, got %+v", s)
	}
}

func TestEmptyMapSkipsRound(t *testing.T) {
	trk, repo, _ := newTestTracker(t)
	ctx := context.Background()

	view := pollView("", snapshot.PlayerInfo{Name: "Ace", Score: 1, Team: 1})
	if err := trk.TrackPlayersFromServerInfo(ctx, view, base, snapshot.GameBF1942); err != nil {
		t.Fatal(err)
	}

	n, err := repo.CountRounds(ctx, "srv-1")
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("a mapless poll must create no rounds, got %d", n)
	}

	// The session is still tracked, just without a round link.
	s, err := repo.GetSession(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if s == nil || !s.IsActive {
		t.Fatalf("session must be tracked without a round, got %+v", s)
	}
	if s.RoundID != "" {
		t.Errorf("expected empty round link, got %q", s.RoundID)
	}
}

func TestPublishFailureDoesNotFailTheBatch(t *testing.T) {
	trk, repo, pub := newTestTracker(t)
	pub.fail = true
	ctx := context.Background()

	view := pollView("dunkirk", snapshot.PlayerInfo{Name: "Ace", Score: 1, Team: 1})
	if err := trk.TrackPlayersFromServerInfo(ctx, view, base, snapshot.GameBF1942); err != nil {
		t.Fatalf("a failed publish must not fail the ingest: %v", err)
	}

	// The batch committed regardless.
	s, err := repo.GetSession(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if s == nil {
		t.Fatal("batch must commit even when the publisher fails")
	}
}

func TestIdleSweepClosesAbandonedSession(t *testing.T) {
	trk, repo, _ := newTestTracker(t)
	ctx := context.Background()

	// A session last seen well in the past. Sweep windows are measured
	// against the wall clock, so the poll is backdated.
	past := time.Now().Add(-time.Hour).UTC()
	view := pollView("dunkirk", snapshot.PlayerInfo{Name: "Ace", Score: 1, Ping: 30, Team: 1})
	if err := trk.TrackPlayersFromServerInfo(ctx, view, past, snapshot.GameBF1942); err != nil {
		t.Fatal(err)
	}

	n, err := trk.CloseIdleSessions(ctx, 5*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 session closed, got %d", n)
	}

	s, err := repo.GetSession(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if s.IsActive {
		t.Error("abandoned session must be closed")
	}
	if s.AveragePing == nil || *s.AveragePing != 30 {
		t.Errorf("sweep must compute the average ping, got %v", s.AveragePing)
	}

	if n, err = trk.MarkServersOffline(ctx, 5*time.Minute); err != nil {
		t.Fatal(err)
	} else if n != 1 {
		t.Errorf("expected 1 server marked offline, got %d", n)
	}
}
