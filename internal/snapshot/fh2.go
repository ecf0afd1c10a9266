package snapshot

// fh2Server is the raw Forgotten Hope 2 entry. FH2 reports no server-level
// ticket counts; ticket state only exists on the per-team roster, so the
// uniform view takes its Tickets1/Tickets2 from there. When the roster carries
// no tickets either they stay nil - mapping them to zero would look like a
// ticket reset and fake a round boundary.
type fh2Server struct {
	GUID            string      `json:"guid"`
	IP              string      `json:"ip"`
	Name            string      `json:"name"`
	MapName         string      `json:"mapName"`
	GameType        string      `json:"gameType"`
	Players         []fh2Player `json:"players"`
	Teams           []fh2Team   `json:"teams"`
	RoundTimeRemain *int        `json:"timeRemaining"`
	Port            int         `json:"port"`
	MaxPlayers      int         `json:"maxPlayers"`
}

type fh2Player struct {
	Name      string `json:"name"`
	TeamLabel string `json:"teamName"`
	Score     int    `json:"score"`
	Kills     int    `json:"kills"`
	Deaths    int    `json:"deaths"`
	Ping      int    `json:"ping"`
	Team      int    `json:"team"`
	AIBot     bool   `json:"isAi"`
}

type fh2Team struct {
	Label   string `json:"name"`
	Tickets *int   `json:"tickets"`
	Index   int    `json:"index"`
}

// view maps a raw FH2 entry to the uniform ServerView.
func (s fh2Server) view() ServerView {
	v := ServerView{
		GUID:            s.GUID,
		IP:              s.IP,
		Port:            s.Port,
		Name:            s.Name,
		Game:            GameFH2,
		Map:             s.MapName,
		GameType:        s.GameType,
		MaxPlayers:      s.MaxPlayers,
		RoundTimeRemain: s.RoundTimeRemain,
	}

	for _, p := range s.Players {
		v.Players = append(v.Players, PlayerInfo(p))
	}
	for _, t := range s.Teams {
		v.Teams = append(v.Teams, TeamInfo(t))
		switch t.Index {
		case 1:
			v.Tickets1 = t.Tickets
		case 2:
			v.Tickets2 = t.Tickets
		}
	}

	return v
}
