package reconcile

import (
	"testing"
	"time"

	"github.com/DylanMunyard/bf1942-stats-sub007/internal/events"
	"github.com/DylanMunyard/bf1942-stats-sub007/internal/models"
	"github.com/DylanMunyard/bf1942-stats-sub007/internal/snapshot"
)

var t0 = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func testView(mapName string, players ...snapshot.PlayerInfo) *snapshot.ServerView {
	return &snapshot.ServerView{
		GUID:     "srv-1",
		Map:      mapName,
		GameType: "conquest",
		Players:  players,
		Teams: []snapshot.TeamInfo{
			{Index: 1, Label: "Axis"},
			{Index: 2, Label: "Allies"},
		},
	}
}

func TestNewPlayerOpensSessionAndEvent(t *testing.T) {
	view := testView("dunkirk", snapshot.PlayerInfo{Name: "Ace", Score: 10, Kills: 2, Deaths: 1, Ping: 40, Team: 1})
	round := &models.Round{ID: "round-1"}

	res := Players(Input{
		View:            view,
		Now:             t0,
		Round:           round,
		ExistingPlayers: map[string]models.Player{},
		ActiveSessions:  map[string][]models.PlayerSession{},
	})

	if len(res.NewPlayers) != 1 || res.NewPlayers[0].Name != "Ace" {
		t.Fatalf("expected new player Ace, got %+v", res.NewPlayers)
	}
	if len(res.SessionsToCreate) != 1 {
		t.Fatalf("expected 1 session to create, got %d", len(res.SessionsToCreate))
	}

	s := res.SessionsToCreate[0]
	if s.TotalScore != 10 || s.TotalKills != 2 || s.TotalDeaths != 1 {
		t.Errorf("unexpected session totals: %+v", s)
	}
	if s.RoundID != "round-1" {
		t.Errorf("expected session linked to round-1, got %q", s.RoundID)
	}
	if s.CurrentTeamLabel != "Axis" {
		t.Errorf("expected team label from roster, got %q", s.CurrentTeamLabel)
	}

	if len(res.Observations) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(res.Observations))
	}
	obs := res.Observations[0]
	if obs.SessionID != 0 || obs.CreateIdx != 0 {
		t.Errorf("observation should defer to created session, got %+v", obs)
	}
	if obs.Sample.Score != 10 || obs.Sample.Kills != 2 || obs.Sample.Deaths != 1 {
		t.Errorf("unexpected observation sample: %+v", obs.Sample)
	}

	if len(res.Events) != 1 || res.Events[0].Type != events.TypePlayerOnline {
		t.Fatalf("expected player online event, got %+v", res.Events)
	}
}

func TestScoreRegressionKeepsHighWaterMark(t *testing.T) {
	session := models.PlayerSession{
		ID: 7, PlayerName: "Ace", ServerGUID: "srv-1", MapName: "dunkirk",
		StartTime: t0, LastSeenTime: t0,
		TotalScore: 10, TotalKills: 2, TotalDeaths: 1,
		IsActive: true,
	}

	// Poll reports a transient score regression: 8 after 10.
	view := testView("dunkirk", snapshot.PlayerInfo{Name: "Ace", Score: 8, Kills: 3, Deaths: 2, Ping: 50, Team: 1})

	res := Players(Input{
		View:            view,
		Now:             t0.Add(30 * time.Second),
		ExistingPlayers: map[string]models.Player{"Ace": {Name: "Ace"}},
		ActiveSessions:  map[string][]models.PlayerSession{"Ace": {session}},
	})

	if len(res.SessionsToUpdate) != 1 {
		t.Fatalf("expected 1 session update, got %d", len(res.SessionsToUpdate))
	}

	s := res.SessionsToUpdate[0]
	if s.TotalScore != 10 {
		t.Errorf("score must not regress: expected 10, got %d", s.TotalScore)
	}
	if s.TotalKills != 3 {
		t.Errorf("expected kills 3, got %d", s.TotalKills)
	}
	if s.TotalDeaths != 2 {
		t.Errorf("deaths track the latest value: expected 2, got %d", s.TotalDeaths)
	}
	if len(res.SessionsToCreate) != 0 || len(res.SessionsToClose) != 0 {
		t.Errorf("continuing session must not create or close: %+v", res)
	}
	if len(res.Events) != 0 {
		t.Errorf("continuing session must not emit events, got %+v", res.Events)
	}
}

func TestMapChangeRollsSessionOver(t *testing.T) {
	session := models.PlayerSession{
		ID: 7, PlayerName: "Ace", ServerGUID: "srv-1", MapName: "dunkirk",
		StartTime: t0, LastSeenTime: t0, IsActive: true,
	}

	view := testView("berlin", snapshot.PlayerInfo{Name: "Ace", Score: 1, Team: 2})
	round := &models.Round{ID: "round-2"}

	res := Players(Input{
		View:            view,
		Now:             t0.Add(time.Minute),
		Round:           round,
		ExistingPlayers: map[string]models.Player{"Ace": {Name: "Ace"}},
		ActiveSessions:  map[string][]models.PlayerSession{"Ace": {session}},
	})

	if len(res.SessionsToClose) != 1 || res.SessionsToClose[0] != 7 {
		t.Fatalf("expected session 7 closed, got %v", res.SessionsToClose)
	}
	if len(res.SessionsToCreate) != 1 {
		t.Fatalf("expected new session for berlin, got %d", len(res.SessionsToCreate))
	}
	if res.SessionsToCreate[0].MapName != "berlin" || res.SessionsToCreate[0].ServerGUID != "srv-1" {
		t.Errorf("unexpected rollover session: %+v", res.SessionsToCreate[0])
	}
	if res.SessionsToCreate[0].RoundID != "round-2" {
		t.Errorf("rollover session must link the new round, got %q", res.SessionsToCreate[0].RoundID)
	}

	// A rollover is not a fresh arrival.
	if len(res.Events) != 0 {
		t.Errorf("map rollover must not emit player online, got %+v", res.Events)
	}
}

func TestBotsAreSkippedEntirely(t *testing.T) {
	view := testView("dunkirk",
		snapshot.PlayerInfo{Name: "Flagged", AIBot: true, Score: 99},
		snapshot.PlayerInfo{Name: "BOT_Sniper", Score: 50},
		snapshot.PlayerInfo{Name: "AI Soldier", Score: 12},
		snapshot.PlayerInfo{Name: "Human", Score: 5},
	)

	res := Players(Input{
		View:            view,
		Now:             t0,
		ExistingPlayers: map[string]models.Player{},
		ActiveSessions:  map[string][]models.PlayerSession{},
	})

	if len(res.NewPlayers) != 1 || res.NewPlayers[0].Name != "Human" {
		t.Fatalf("bots must never become players, got %+v", res.NewPlayers)
	}
	if len(res.SessionsToCreate) != 1 || len(res.Observations) != 1 {
		t.Fatalf("bots must never be sessioned or observed: %+v", res)
	}
}

func TestTeamLabelFallsBackToRoster(t *testing.T) {
	cases := []struct {
		name   string
		player snapshot.PlayerInfo
		teams  []snapshot.TeamInfo
		want   string
	}{
		{"explicit label wins", snapshot.PlayerInfo{Name: "P", TeamLabel: "Wehrmacht", Team: 1}, []snapshot.TeamInfo{{Index: 1, Label: "Axis"}}, "Wehrmacht"},
		{"roster lookup by index", snapshot.PlayerInfo{Name: "P", Team: 2}, []snapshot.TeamInfo{{Index: 2, Label: "Allies"}}, "Allies"},
		{"absent both is empty", snapshot.PlayerInfo{Name: "P", Team: 3}, []snapshot.TeamInfo{{Index: 1, Label: "Axis"}}, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			view := &snapshot.ServerView{GUID: "srv-1", Map: "m", Players: []snapshot.PlayerInfo{tc.player}, Teams: tc.teams}
			res := Players(Input{
				View:            view,
				Now:             t0,
				ExistingPlayers: map[string]models.Player{},
				ActiveSessions:  map[string][]models.PlayerSession{},
			})

			if len(res.SessionsToCreate) != 1 {
				t.Fatalf("expected 1 session, got %d", len(res.SessionsToCreate))
			}
			if got := res.SessionsToCreate[0].CurrentTeamLabel; got != tc.want {
				t.Errorf("expected label %q, got %q", tc.want, got)
			}
		})
	}
}

func TestPlayTimeAccruesFromPreviousSample(t *testing.T) {
	session := models.PlayerSession{
		ID: 3, PlayerName: "Ace", ServerGUID: "srv-1", MapName: "dunkirk",
		StartTime: t0, LastSeenTime: t0, IsActive: true,
	}

	view := testView("dunkirk", snapshot.PlayerInfo{Name: "Ace"})

	res := Players(Input{
		View:            view,
		Now:             t0.Add(90 * time.Second),
		ExistingPlayers: map[string]models.Player{"Ace": {Name: "Ace"}},
		ActiveSessions:  map[string][]models.PlayerSession{"Ace": {session}},
	})

	if len(res.PlayerTouches) != 1 {
		t.Fatalf("expected 1 player touch, got %d", len(res.PlayerTouches))
	}
	if got := res.PlayerTouches[0].AddMinutes; got != 1.5 {
		t.Errorf("expected 1.5 accrued minutes, got %v", got)
	}
}

func TestDuplicateRosterEntriesCollapse(t *testing.T) {
	view := testView("dunkirk",
		snapshot.PlayerInfo{Name: "Ace", Score: 10, Kills: 2, Ping: 40, Team: 1},
		snapshot.PlayerInfo{Name: "Ace", Score: 4, Kills: 1, Ping: 55, Team: 2},
	)

	res := Players(Input{
		View:            view,
		Now:             t0,
		ExistingPlayers: map[string]models.Player{},
		ActiveSessions:  map[string][]models.PlayerSession{},
	})

	if len(res.NewPlayers) != 1 {
		t.Fatalf("a duplicated name must yield one player insert, got %d", len(res.NewPlayers))
	}
	if len(res.SessionsToCreate) != 1 {
		t.Fatalf("a duplicated name must yield one session, got %d", len(res.SessionsToCreate))
	}
	if res.SessionsToCreate[0].TotalScore != 10 {
		t.Errorf("the first entry wins: expected score 10, got %d", res.SessionsToCreate[0].TotalScore)
	}
	if len(res.Observations) != 1 {
		t.Errorf("expected 1 observation, got %d", len(res.Observations))
	}
	if len(res.Events) != 1 {
		t.Errorf("expected 1 online event, got %d", len(res.Events))
	}
}

func TestDuplicateNameWithActiveSessionStaysSingle(t *testing.T) {
	session := models.PlayerSession{
		ID: 7, PlayerName: "Ace", ServerGUID: "srv-1", MapName: "dunkirk",
		StartTime: t0, LastSeenTime: t0, TotalScore: 5, IsActive: true,
	}

	view := testView("dunkirk",
		snapshot.PlayerInfo{Name: "Ace", Score: 6, Team: 1},
		snapshot.PlayerInfo{Name: "Ace", Score: 1, Team: 1},
	)

	res := Players(Input{
		View:            view,
		Now:             t0.Add(15 * time.Second),
		ExistingPlayers: map[string]models.Player{"Ace": {Name: "Ace"}},
		ActiveSessions:  map[string][]models.PlayerSession{"Ace": {session}},
	})

	if len(res.SessionsToUpdate) != 1 || len(res.SessionsToCreate) != 0 {
		t.Fatalf("a duplicate of a known player must continue the one session: %+v", res)
	}
	if len(res.SessionsToClose) != 0 {
		t.Errorf("nothing to close, got %v", res.SessionsToClose)
	}
	if res.SessionsToUpdate[0].TotalScore != 6 {
		t.Errorf("expected score 6 from the first entry, got %d", res.SessionsToUpdate[0].TotalScore)
	}
}

func TestEmptyNamesAreIgnored(t *testing.T) {
	view := testView("dunkirk", snapshot.PlayerInfo{Name: ""})

	res := Players(Input{
		View:            view,
		Now:             t0,
		ExistingPlayers: map[string]models.Player{},
		ActiveSessions:  map[string][]models.PlayerSession{},
	})

	if len(res.NewPlayers) != 0 || len(res.SessionsToCreate) != 0 {
		t.Fatalf("nameless entries must be dropped, got %+v", res)
	}
}
