package snapshot

// bfvSvr is the raw Battlefield Vietnam entry. The BFV feed reports tickets
// but no remaining round time; that field stays nil in the uniform view.
type bfvSvr struct {
	GUID       string      `json:"guid"`
	IP         string      `json:"ip"`
	Name       string      `json:"name"`
	MapName    string      `json:"mapName"`
	GameType   string      `json:"gameType"`
	JoinLink   string      `json:"joinLink"`
	Players    []bfvPlayer `json:"players"`
	Teams      []bfvTeam   `json:"teams"`
	Tickets1   *int        `json:"tickets1"`
	Tickets2   *int        `json:"tickets2"`
	Port       int         `json:"port"`
	MaxPlayers int         `json:"maxPlayers"`
}

type bfvPlayer struct {
	Name      string `json:"name"`
	TeamLabel string `json:"teamLabel"`
	Score     int    `json:"score"`
	Kills     int    `json:"kills"`
	Deaths    int    `json:"deaths"`
	Ping      int    `json:"ping"`
	Team      int    `json:"team"`
	AIBot     bool   `json:"aibot"`
}

type bfvTeam struct {
	Label   string `json:"label"`
	Tickets *int   `json:"tickets"`
	Index   int    `json:"index"`
}

// view maps a raw BF Vietnam entry to the uniform ServerView.
func (s bfvSvr) view() ServerView {
	v := ServerView{
		GUID:       s.GUID,
		IP:         s.IP,
		Port:       s.Port,
		Name:       s.Name,
		Game:       GameBFVietnam,
		Map:        s.MapName,
		GameType:   s.GameType,
		JoinLink:   s.JoinLink,
		MaxPlayers: s.MaxPlayers,
		Tickets1:   s.Tickets1,
		Tickets2:   s.Tickets2,
	}

	for _, p := range s.Players {
		v.Players = append(v.Players, PlayerInfo(p))
	}
	for _, t := range s.Teams {
		v.Teams = append(v.Teams, TeamInfo(t))
	}

	return v
}
