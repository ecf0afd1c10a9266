package snapshot

// bf1942Server is the raw BF1942 entry from the server-list API. This is the
// richest of the three variants: it carries ticket counts and the remaining
// round time directly on the server object.
type bf1942Server struct {
	GUID            string          `json:"guid"`
	IP              string          `json:"ip"`
	Name            string          `json:"name"`
	MapName         string          `json:"mapName"`
	GameType        string          `json:"gameType"`
	JoinLink        string          `json:"joinLink"`
	Players         []bf1942Player  `json:"players"`
	Teams           []bf1942Team    `json:"teams"`
	Tickets1        *int            `json:"tickets1"`
	Tickets2        *int            `json:"tickets2"`
	RoundTimeRemain *int            `json:"roundTimeRemain"`
	Port            int             `json:"port"`
	MaxPlayers      int             `json:"maxPlayers"`
}

type bf1942Player struct {
	Name      string `json:"name"`
	TeamLabel string `json:"teamLabel"`
	Score     int    `json:"score"`
	Kills     int    `json:"kills"`
	Deaths    int    `json:"deaths"`
	Ping      int    `json:"ping"`
	Team      int    `json:"team"`
	AIBot     bool   `json:"aibot"`
}

type bf1942Team struct {
	Label   string `json:"label"`
	Tickets *int   `json:"tickets"`
	Index   int    `json:"index"`
}

// view maps a raw BF1942 entry to the uniform ServerView.
func (s bf1942Server) view() ServerView {
	v := ServerView{
		GUID:            s.GUID,
		IP:              s.IP,
		Port:            s.Port,
		Name:            s.Name,
		Game:            GameBF1942,
		Map:             s.MapName,
		GameType:        s.GameType,
		JoinLink:        s.JoinLink,
		MaxPlayers:      s.MaxPlayers,
		Tickets1:        s.Tickets1,
		Tickets2:        s.Tickets2,
		RoundTimeRemain: s.RoundTimeRemain,
	}

	for _, p := range s.Players {
		v.Players = append(v.Players, PlayerInfo(p))
	}
	for _, t := range s.Teams {
		v.Teams = append(v.Teams, TeamInfo(t))
	}

	return v
}
