// Package models defines the persisted entities produced by the reconciliation engine.
package models

import "time"

// Player is a uniquely named person seen on any tracked server.
// The name is externally supplied and case-sensitive; it is the primary key.
type Player struct {
	FirstSeen        time.Time `json:"first_seen"`
	LastSeen         time.Time `json:"last_seen"`
	Name             string    `json:"name"`
	TotalPlayMinutes float64   `json:"total_play_minutes"`
	AIBot            bool      `json:"ai_bot"`
}

// GameServer is one tracked server, keyed by its GUID from the server list.
type GameServer struct {
	LastSeen   time.Time `json:"last_seen"`
	GUID       string    `json:"guid"`
	IP         string    `json:"ip"`
	Name       string    `json:"name"`
	Game       string    `json:"game"`
	MapName    string    `json:"map_name"`
	GameType   string    `json:"game_type"`
	JoinLink   string    `json:"join_link"`
	Geo        *GeoInfo  `json:"geo,omitempty"`
	Port       int       `json:"port"`
	MaxPlayers int       `json:"max_players"`
	Online     bool      `json:"online"`
}

// GeoInfo is a reverse-geolocation snapshot for a server IP.
// LookupIP records which address the snapshot was resolved for, so a
// changed address triggers a fresh lookup.
type GeoInfo struct {
	Country  string  `json:"country"`
	Region   string  `json:"region"`
	City     string  `json:"city"`
	Timezone string  `json:"timezone"`
	Org      string  `json:"org"`
	Postal   string  `json:"postal"`
	LookupIP string  `json:"lookup_ip"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
}

// Round is a continuous play period on one map on one server.
// The ID is a content hash of server+map+start second, so replaying the
// same poll resolves to the same round instead of forking a duplicate.
type Round struct {
	StartTime        time.Time  `json:"start_time"`
	EndTime          *time.Time `json:"end_time,omitempty"`
	ID               string     `json:"id"`
	ServerGUID       string     `json:"server_guid"`
	ServerName       string     `json:"server_name"`
	MapName          string     `json:"map_name"`
	GameType         string     `json:"game_type"`
	Team1Label       string     `json:"team1_label"`
	Team2Label       string     `json:"team2_label"`
	Outcome          string     `json:"outcome,omitempty"`
	Tickets1         *int       `json:"tickets1,omitempty"`
	Tickets2         *int       `json:"tickets2,omitempty"`
	RemainingTime    *int       `json:"remaining_time,omitempty"`
	DurationMinutes  int        `json:"duration_minutes"`
	ParticipantCount int        `json:"participant_count"`
	IsActive         bool       `json:"is_active"`
}

// Round outcome values. A closed round is either won by the team whose
// label is stored in Outcome, or carries one of these sentinels.
const (
	OutcomeTie     = "tie"
	OutcomeUnknown = ""
)

// PlayerSession is one player's continuous presence on one server+map.
// Score and kills are high-water marks; deaths track the latest reported
// value. AveragePing is filled exactly once, when the session closes.
type PlayerSession struct {
	StartTime        time.Time `json:"start_time"`
	LastSeenTime     time.Time `json:"last_seen_time"`
	PlayerName       string    `json:"player_name"`
	ServerGUID       string    `json:"server_guid"`
	MapName          string    `json:"map_name"`
	GameType         string    `json:"game_type"`
	CurrentTeamLabel string    `json:"current_team_label"`
	RoundID          string    `json:"round_id,omitempty"`
	AveragePing      *float64  `json:"average_ping,omitempty"`
	ID               int64     `json:"id"`
	TotalScore       int       `json:"total_score"`
	TotalKills       int       `json:"total_kills"`
	TotalDeaths      int       `json:"total_deaths"`
	ObservationCount int       `json:"observation_count"`
	CurrentPing      int       `json:"current_ping"`
	CurrentTeam      int       `json:"current_team"`
	IsActive         bool      `json:"is_active"`
}

// PlayerObservation is one immutable point-in-time sample of a session.
type PlayerObservation struct {
	Timestamp time.Time `json:"timestamp"`
	TeamLabel string    `json:"team_label"`
	ID        int64     `json:"id"`
	SessionID int64     `json:"session_id"`
	Score     int       `json:"score"`
	Kills     int       `json:"kills"`
	Deaths    int       `json:"deaths"`
	Ping      int       `json:"ping"`
	Team      int       `json:"team"`
}

// RoundObservation is one immutable point-in-time sample of a round.
// It is recorded every poll while the round is active, even on empty servers,
// so the round timeline has no gaps.
type RoundObservation struct {
	Timestamp     time.Time `json:"timestamp"`
	RoundID       string    `json:"round_id"`
	Team1Label    string    `json:"team1_label"`
	Team2Label    string    `json:"team2_label"`
	Tickets1      *int      `json:"tickets1,omitempty"`
	Tickets2      *int      `json:"tickets2,omitempty"`
	RemainingTime *int      `json:"remaining_time,omitempty"`
	ID            int64     `json:"id"`
}
