// Package storage handles database connections, schema migrations, and data operations using SQLite.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/DylanMunyard/bf1942-stats-sub007/internal/models"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite" // Driver sqlite
)

// Repository manages the SQLite database connection.
type Repository struct {
	db *sql.DB
}

// New initializes a new SQLite connection, sets connection pool parameters, and runs migrations.
func New(dbPath string) (*Repository, error) {
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(1 * time.Hour)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Repository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Begin opens a transaction for one server's poll batch.
func (r *Repository) Begin(ctx context.Context) (*Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &Tx{tx: tx, ctx: ctx}, nil
}

// GetServer retrieves a server by GUID, or nil if it has never been seen.
func (r *Repository) GetServer(ctx context.Context, guid string) (*models.GameServer, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT guid, ip, port, name, game, map_name, game_type, max_players, join_link, online, last_seen,
		       geo_country, geo_region, geo_city, geo_lat, geo_lon, geo_timezone, geo_org, geo_postal, geo_lookup_ip
		FROM servers WHERE guid = ?`, guid)

	var s models.GameServer
	var geo models.GeoInfo
	var lastSeen string
	err := row.Scan(
		&s.GUID, &s.IP, &s.Port, &s.Name, &s.Game, &s.MapName, &s.GameType, &s.MaxPlayers, &s.JoinLink, &s.Online, &lastSeen,
		&geo.Country, &geo.Region, &geo.City, &geo.Lat, &geo.Lon, &geo.Timezone, &geo.Org, &geo.Postal, &geo.LookupIP,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get server: %w", err)
	}

	s.LastSeen = parseTime(lastSeen)
	if geo.LookupIP != "" {
		s.Geo = &geo
	}

	return &s, nil
}

// UpsertServer inserts a new server or refreshes a known one. The geolocation
// columns are only touched when the snapshot carries a Geo record; a poll
// without enrichment keeps whatever was stored before.
func (r *Repository) UpsertServer(ctx context.Context, s models.GameServer) error {
	geo := s.Geo
	if geo == nil {
		geo = &models.GeoInfo{}
	}

	query := `
	INSERT INTO servers (
		guid, ip, port, name, game, map_name, game_type, max_players, join_link, online, last_seen,
		geo_country, geo_region, geo_city, geo_lat, geo_lon, geo_timezone, geo_org, geo_postal, geo_lookup_ip
	)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(guid) DO UPDATE SET
		ip          = excluded.ip,
		port        = excluded.port,
		name        = excluded.name,
		game        = excluded.game,
		map_name    = excluded.map_name,
		game_type   = excluded.game_type,
		max_players = excluded.max_players,
		join_link   = excluded.join_link,
		online      = excluded.online,
		last_seen   = excluded.last_seen,

		-- Geolocation refreshes only when a new lookup was performed
		geo_country   = CASE WHEN excluded.geo_lookup_ip != '' THEN excluded.geo_country ELSE servers.geo_country END,
		geo_region    = CASE WHEN excluded.geo_lookup_ip != '' THEN excluded.geo_region ELSE servers.geo_region END,
		geo_city      = CASE WHEN excluded.geo_lookup_ip != '' THEN excluded.geo_city ELSE servers.geo_city END,
		geo_lat       = CASE WHEN excluded.geo_lookup_ip != '' THEN excluded.geo_lat ELSE servers.geo_lat END,
		geo_lon       = CASE WHEN excluded.geo_lookup_ip != '' THEN excluded.geo_lon ELSE servers.geo_lon END,
		geo_timezone  = CASE WHEN excluded.geo_lookup_ip != '' THEN excluded.geo_timezone ELSE servers.geo_timezone END,
		geo_org       = CASE WHEN excluded.geo_lookup_ip != '' THEN excluded.geo_org ELSE servers.geo_org END,
		geo_postal    = CASE WHEN excluded.geo_lookup_ip != '' THEN excluded.geo_postal ELSE servers.geo_postal END,
		geo_lookup_ip = CASE WHEN excluded.geo_lookup_ip != '' THEN excluded.geo_lookup_ip ELSE servers.geo_lookup_ip END;
	`

	_, err := r.db.ExecContext(ctx, query,
		s.GUID, s.IP, s.Port, s.Name, s.Game, s.MapName, s.GameType, s.MaxPlayers, s.JoinLink, s.Online, fmtTime(s.LastSeen),
		geo.Country, geo.Region, geo.City, geo.Lat, geo.Lon, geo.Timezone, geo.Org, geo.Postal, geo.LookupIP,
	)
	if err != nil {
		return fmt.Errorf("upsert server: %w", err)
	}

	return nil
}

// CloseIdleSessions closes every active session whose last observation is
// older than the cutoff, computing the average ping from its positive-ping
// observations first. Re-running against already-closed sessions is a no-op.
func (r *Repository) CloseIdleSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE player_sessions SET
			average_ping = (
				SELECT AVG(ping) FROM player_observations
				WHERE session_id = player_sessions.id AND ping > 0
			),
			is_active = 0
		WHERE is_active = 1 AND last_seen_time < ?`, fmtTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("close idle sessions: %w", err)
	}
	return res.RowsAffected()
}

// MarkServersOffline flips servers unseen since the cutoff to offline.
// Idempotent: already-offline servers are untouched.
func (r *Repository) MarkServersOffline(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE servers SET online = 0
		WHERE online = 1 AND last_seen < ?`, fmtTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("mark servers offline: %w", err)
	}
	return res.RowsAffected()
}

// PruneEmptyServers removes servers that never reported a name and have no
// recorded rounds or sessions.
func (r *Repository) PruneEmptyServers(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM servers
		WHERE name = ''
		  AND guid NOT IN (SELECT DISTINCT server_guid FROM rounds)
		  AND guid NOT IN (SELECT DISTINCT server_guid FROM player_sessions)`)
	if err != nil {
		return 0, fmt.Errorf("prune empty servers: %w", err)
	}
	return res.RowsAffected()
}

// GetSession retrieves one session by id, or nil if absent.
func (r *Repository) GetSession(ctx context.Context, id int64) (*models.PlayerSession, error) {
	row := r.db.QueryRowContext(ctx, sessionSelect+` WHERE id = ?`, id)
	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

// GetRound retrieves one round by id, or nil if absent.
func (r *Repository) GetRound(ctx context.Context, id string) (*models.Round, error) {
	row := r.db.QueryRowContext(ctx, roundSelect+` WHERE round_id = ?`, id)
	ro, err := scanRound(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get round: %w", err)
	}
	return ro, nil
}

// CountRounds returns the number of round rows for a server.
func (r *Repository) CountRounds(ctx context.Context, serverGUID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM rounds WHERE server_guid = ?`, serverGUID).Scan(&n)
	return n, err
}

// timeLayout is RFC3339 in UTC; lexicographic order matches chronological order.
const timeLayout = time.RFC3339

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// A zero time is still returned so a single corrupt row cannot
		// fail an entire scan, but the corruption must not pass silently.
		log.Warn().Err(err).Str("value", s).Msg("Malformed stored timestamp")
		return time.Time{}
	}
	return t
}

func nullInt(p *int) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

// placeholders returns "?, ?, ..." for n parameters.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
