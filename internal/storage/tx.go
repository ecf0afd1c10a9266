package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/DylanMunyard/bf1942-stats-sub007/internal/models"
)

// Tx applies all mutations of one poll batch for one server. Every write in
// a batch goes through the same Tx; any failure rolls the whole batch back.
type Tx struct {
	tx  *sql.Tx
	ctx context.Context
}

// Commit commits the batch.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Rollback aborts the batch. Safe to call after Commit.
func (t *Tx) Rollback() {
	_ = t.tx.Rollback()
}

const roundSelect = `
	SELECT round_id, server_guid, server_name, map_name, game_type, start_time, end_time,
	       is_active, duration_minutes, participant_count, tickets1, tickets2,
	       team1_label, team2_label, remaining_time, outcome
	FROM rounds`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRound(row rowScanner) (*models.Round, error) {
	var r models.Round
	var start string
	var end sql.NullString
	var t1, t2, remain sql.NullInt64

	err := row.Scan(
		&r.ID, &r.ServerGUID, &r.ServerName, &r.MapName, &r.GameType, &start, &end,
		&r.IsActive, &r.DurationMinutes, &r.ParticipantCount, &t1, &t2,
		&r.Team1Label, &r.Team2Label, &remain, &r.Outcome,
	)
	if err != nil {
		return nil, err
	}

	r.StartTime = parseTime(start)
	if end.Valid {
		e := parseTime(end.String)
		r.EndTime = &e
	}
	r.Tickets1 = intPtr(t1)
	r.Tickets2 = intPtr(t2)
	r.RemainingTime = intPtr(remain)

	return &r, nil
}

// GetActiveRound returns the single active round for a server, or nil.
func (t *Tx) GetActiveRound(serverGUID string) (*models.Round, error) {
	row := t.tx.QueryRowContext(t.ctx, roundSelect+` WHERE server_guid = ? AND is_active = 1`, serverGUID)
	r, err := scanRound(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active round: %w", err)
	}
	return r, nil
}

// GetRoundByID returns a round by its content-hash id, or nil.
func (t *Tx) GetRoundByID(id string) (*models.Round, error) {
	row := t.tx.QueryRowContext(t.ctx, roundSelect+` WHERE round_id = ?`, id)
	r, err := scanRound(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get round by id: %w", err)
	}
	return r, nil
}

// InsertRound inserts a freshly opened round.
func (t *Tx) InsertRound(r models.Round) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO rounds (
			round_id, server_guid, server_name, map_name, game_type, start_time,
			is_active, tickets1, tickets2, team1_label, team2_label, remaining_time
		)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?, ?, ?, ?)`,
		r.ID, r.ServerGUID, r.ServerName, r.MapName, r.GameType, fmtTime(r.StartTime),
		nullInt(r.Tickets1), nullInt(r.Tickets2), r.Team1Label, r.Team2Label, nullInt(r.RemainingTime),
	)
	if err != nil {
		return fmt.Errorf("insert round: %w", err)
	}
	return nil
}

// ReopenRound reactivates a previously closed round with the same content
// hash: the active flag is restored and the end time cleared, since the
// round never actually ended. Metadata is refreshed from the current poll.
func (t *Tx) ReopenRound(r models.Round) error {
	_, err := t.tx.ExecContext(t.ctx, `
		UPDATE rounds SET
			is_active = 1, end_time = NULL, duration_minutes = 0, outcome = '',
			server_name = ?, game_type = ?, tickets1 = ?, tickets2 = ?,
			team1_label = ?, team2_label = ?, remaining_time = ?
		WHERE round_id = ?`,
		r.ServerName, r.GameType, nullInt(r.Tickets1), nullInt(r.Tickets2),
		r.Team1Label, r.Team2Label, nullInt(r.RemainingTime), r.ID,
	)
	if err != nil {
		return fmt.Errorf("reopen round: %w", err)
	}
	return nil
}

// CloseRound marks a round finished and stamps its end time, duration, and outcome.
func (t *Tx) CloseRound(id string, end models.Round) error {
	var endTime interface{}
	if end.EndTime != nil {
		endTime = fmtTime(*end.EndTime)
	}
	_, err := t.tx.ExecContext(t.ctx, `
		UPDATE rounds SET is_active = 0, end_time = ?, duration_minutes = ?, outcome = ?
		WHERE round_id = ? AND is_active = 1`,
		endTime, end.DurationMinutes, end.Outcome, id,
	)
	if err != nil {
		return fmt.Errorf("close round: %w", err)
	}
	return nil
}

// UpdateRoundMeta refreshes the mutable metadata of an active round. The
// round identity and start time are never touched.
func (t *Tx) UpdateRoundMeta(r models.Round) error {
	_, err := t.tx.ExecContext(t.ctx, `
		UPDATE rounds SET
			server_name = ?, game_type = ?, tickets1 = ?, tickets2 = ?,
			team1_label = ?, team2_label = ?, remaining_time = ?
		WHERE round_id = ?`,
		r.ServerName, r.GameType, nullInt(r.Tickets1), nullInt(r.Tickets2),
		r.Team1Label, r.Team2Label, nullInt(r.RemainingTime), r.ID,
	)
	if err != nil {
		return fmt.Errorf("update round meta: %w", err)
	}
	return nil
}

// RefreshRoundParticipants recomputes the distinct player count of sessions
// linked to a round.
func (t *Tx) RefreshRoundParticipants(id string) error {
	_, err := t.tx.ExecContext(t.ctx, `
		UPDATE rounds SET participant_count = (
			SELECT COUNT(DISTINCT player_name) FROM player_sessions WHERE round_id = ?
		)
		WHERE round_id = ?`, id, id)
	if err != nil {
		return fmt.Errorf("refresh round participants: %w", err)
	}
	return nil
}

// GetPlayers loads the players with the given names, keyed by name.
func (t *Tx) GetPlayers(names []string) (map[string]models.Player, error) {
	players := make(map[string]models.Player, len(names))
	if len(names) == 0 {
		return players, nil
	}

	args := make([]interface{}, len(names))
	for i, n := range names {
		args[i] = n
	}

	rows, err := t.tx.QueryContext(t.ctx, `
		SELECT name, first_seen, last_seen, total_play_minutes, ai_bot
		FROM players WHERE name IN (`+placeholders(len(names))+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("get players: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var p models.Player
		var first, last string
		if err := rows.Scan(&p.Name, &first, &last, &p.TotalPlayMinutes, &p.AIBot); err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		p.FirstSeen = parseTime(first)
		p.LastSeen = parseTime(last)
		players[p.Name] = p
	}

	return players, rows.Err()
}

// InsertPlayer records a player's first sighting.
func (t *Tx) InsertPlayer(p models.Player) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO players (name, first_seen, last_seen, total_play_minutes, ai_bot)
		VALUES (?, ?, ?, ?, 0)`,
		p.Name, fmtTime(p.FirstSeen), fmtTime(p.LastSeen), p.TotalPlayMinutes,
	)
	if err != nil {
		return fmt.Errorf("insert player %q: %w", p.Name, err)
	}
	return nil
}

// TouchPlayer advances a player's last-seen time and accumulates play minutes.
func (t *Tx) TouchPlayer(name string, lastSeen time.Time, addMinutes float64) error {
	_, err := t.tx.ExecContext(t.ctx, `
		UPDATE players SET last_seen = ?, total_play_minutes = total_play_minutes + ?
		WHERE name = ?`, fmtTime(lastSeen), addMinutes, name)
	if err != nil {
		return fmt.Errorf("touch player %q: %w", name, err)
	}
	return nil
}

const sessionSelect = `
	SELECT id, player_name, server_guid, map_name, game_type, start_time, last_seen_time,
	       is_active, total_score, total_kills, total_deaths, observation_count,
	       current_ping, current_team, current_team_label, average_ping, round_id
	FROM player_sessions`

func scanSession(row rowScanner) (*models.PlayerSession, error) {
	var s models.PlayerSession
	var start, last string
	var avg sql.NullFloat64

	err := row.Scan(
		&s.ID, &s.PlayerName, &s.ServerGUID, &s.MapName, &s.GameType, &start, &last,
		&s.IsActive, &s.TotalScore, &s.TotalKills, &s.TotalDeaths, &s.ObservationCount,
		&s.CurrentPing, &s.CurrentTeam, &s.CurrentTeamLabel, &avg, &s.RoundID,
	)
	if err != nil {
		return nil, err
	}

	s.StartTime = parseTime(start)
	s.LastSeenTime = parseTime(last)
	if avg.Valid {
		s.AveragePing = &avg.Float64
	}

	return &s, nil
}

// GetActiveSessions loads all active sessions on one server for the given
// player names, keyed by player name. A player can briefly hold several
// active sessions on one server across maps, so values are slices.
func (t *Tx) GetActiveSessions(serverGUID string, names []string) (map[string][]models.PlayerSession, error) {
	sessions := make(map[string][]models.PlayerSession, len(names))
	if len(names) == 0 {
		return sessions, nil
	}

	args := make([]interface{}, 0, len(names)+1)
	args = append(args, serverGUID)
	for _, n := range names {
		args = append(args, n)
	}

	rows, err := t.tx.QueryContext(t.ctx,
		sessionSelect+` WHERE server_guid = ? AND is_active = 1 AND player_name IN (`+placeholders(len(names))+`)`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("get active sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions[s.PlayerName] = append(sessions[s.PlayerName], *s)
	}

	return sessions, rows.Err()
}

// InsertSession persists a new session and returns its assigned id.
func (t *Tx) InsertSession(s models.PlayerSession) (int64, error) {
	res, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO player_sessions (
			player_name, server_guid, map_name, game_type, start_time, last_seen_time,
			is_active, total_score, total_kills, total_deaths, observation_count,
			current_ping, current_team, current_team_label, round_id
		)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.PlayerName, s.ServerGUID, s.MapName, s.GameType, fmtTime(s.StartTime), fmtTime(s.LastSeenTime),
		s.TotalScore, s.TotalKills, s.TotalDeaths, s.ObservationCount,
		s.CurrentPing, s.CurrentTeam, s.CurrentTeamLabel, s.RoundID,
	)
	if err != nil {
		return 0, fmt.Errorf("insert session: %w", err)
	}
	return res.LastInsertId()
}

// UpdateSession refreshes an existing active session's running totals and
// denormalized live fields.
func (t *Tx) UpdateSession(s models.PlayerSession) error {
	_, err := t.tx.ExecContext(t.ctx, `
		UPDATE player_sessions SET
			last_seen_time = ?, total_score = ?, total_kills = ?, total_deaths = ?,
			observation_count = ?, current_ping = ?, current_team = ?,
			current_team_label = ?, round_id = ?
		WHERE id = ?`,
		fmtTime(s.LastSeenTime), s.TotalScore, s.TotalKills, s.TotalDeaths,
		s.ObservationCount, s.CurrentPing, s.CurrentTeam,
		s.CurrentTeamLabel, s.RoundID, s.ID,
	)
	if err != nil {
		return fmt.Errorf("update session %d: %w", s.ID, err)
	}
	return nil
}

// CloseSession flips a session inactive, computing its average ping from its
// positive-ping observations first. Closing an already-closed session is a no-op.
func (t *Tx) CloseSession(id int64) error {
	_, err := t.tx.ExecContext(t.ctx, `
		UPDATE player_sessions SET
			average_ping = (
				SELECT AVG(ping) FROM player_observations
				WHERE session_id = ? AND ping > 0
			),
			is_active = 0
		WHERE id = ? AND is_active = 1`, id, id)
	if err != nil {
		return fmt.Errorf("close session %d: %w", id, err)
	}
	return nil
}

// InsertObservation appends one player sample to the audit trail.
func (t *Tx) InsertObservation(o models.PlayerObservation) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO player_observations (session_id, timestamp, score, kills, deaths, ping, team, team_label)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		o.SessionID, fmtTime(o.Timestamp), o.Score, o.Kills, o.Deaths, o.Ping, o.Team, o.TeamLabel,
	)
	if err != nil {
		return fmt.Errorf("insert observation: %w", err)
	}
	return nil
}

// InsertRoundObservation appends one round sample to the round timeline.
func (t *Tx) InsertRoundObservation(o models.RoundObservation) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO round_observations (round_id, timestamp, tickets1, tickets2, team1_label, team2_label, remaining_time)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		o.RoundID, fmtTime(o.Timestamp), nullInt(o.Tickets1), nullInt(o.Tickets2),
		o.Team1Label, o.Team2Label, nullInt(o.RemainingTime),
	)
	if err != nil {
		return fmt.Errorf("insert round observation: %w", err)
	}
	return nil
}
