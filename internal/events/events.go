// Package events defines the domain events emitted after a poll batch
// commits, and a best-effort publisher for them.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Event types emitted by the tracker.
const (
	TypePlayerOnline     = "player_online"
	TypeServerMapChanged = "server_map_changed"
)

// Event is one domain notification. Delivery is fire-and-forget: events are
// only published after the owning batch commits, and a failed publish never
// makes the batch look failed.
type Event struct {
	Timestamp  time.Time `json:"timestamp"`
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	ServerGUID string    `json:"server_guid"`
	PlayerName string    `json:"player_name,omitempty"`
	MapName    string    `json:"map_name,omitempty"`
	OldMapName string    `json:"old_map_name,omitempty"`
}

// New builds an event with a fresh id.
func New(eventType, serverGUID string, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		ServerGUID: serverGUID,
		Timestamp:  at,
	}
}

// Publisher accepts domain events. Implementations must not return an error
// for conditions the caller should retry; a publish failure is terminal for
// that event.
type Publisher interface {
	Publish(e Event) error
}

// LogPublisher writes every event to the application log. It is the default
// sink when no external sink is configured.
type LogPublisher struct{}

// Publish logs the event.
func (LogPublisher) Publish(e Event) error {
	log.Info().
		Str("event_id", e.ID).
		Str("type", e.Type).
		Str("server", e.ServerGUID).
		Str("player", e.PlayerName).
		Str("map", e.MapName).
		Msg("Domain event")

	return nil
}
