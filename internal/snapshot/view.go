// Package snapshot normalizes the three external server-list shapes into one
// uniform view consumed by the reconciliation engine. Each adapter is a pure
// mapping; missing or malformed optional fields degrade to "unknown", never
// to an error.
package snapshot

// Game variant identifiers as used by the server-list API.
const (
	GameBF1942    = "bf1942"
	GameFH2       = "fh2"
	GameBFVietnam = "bfvietnam"
)

// Games lists every polled variant.
var Games = []string{GameBF1942, GameFH2, GameBFVietnam}

// PlayerInfo is one player's live state inside a snapshot.
type PlayerInfo struct {
	Name      string
	TeamLabel string
	Score     int
	Kills     int
	Deaths    int
	Ping      int
	Team      int
	AIBot     bool
}

// TeamInfo is one team's roster entry inside a snapshot.
type TeamInfo struct {
	Label   string
	Tickets *int
	Index   int
}

// ServerView is the uniform server description produced by the variant
// adapters. Ticket counts and round time are nil when the source variant
// does not report them; a nil ticket count must never be read as zero,
// since that would fake a round-boundary signal.
type ServerView struct {
	GUID            string
	IP              string
	Name            string
	Game            string
	Map             string
	GameType        string
	JoinLink        string
	Tickets1        *int
	Tickets2        *int
	RoundTimeRemain *int
	Players         []PlayerInfo
	Teams           []TeamInfo
	Port            int
	MaxPlayers      int
}

// TeamLabel resolves the label for a team index from the roster,
// or "" when the roster has no such team.
func (v *ServerView) TeamLabel(index int) string {
	for _, t := range v.Teams {
		if t.Index == index {
			return t.Label
		}
	}
	return ""
}
