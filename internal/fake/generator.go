// Package fake provides utilities for generating randomized polling data for
// testing and development purposes. Fake snapshots run through the real
// tracker, so the generated sessions, rounds, and observations are shaped
// exactly like production data.
package fake

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/DylanMunyard/bf1942-stats-sub007/internal/snapshot"
	"github.com/DylanMunyard/bf1942-stats-sub007/internal/tracker"
	"github.com/rs/zerolog/log"
)

var (
	games = []string{snapshot.GameBF1942, snapshot.GameFH2, snapshot.GameBFVietnam}
	maps  = []string{"berlin", "stalingrad", "el_alamein", "midway", "market_garden", "iwo_jima", "kursk"}
	teams = [][2]string{{"Axis", "Allies"}, {"Wehrmacht", "Red Army"}, {"NVA", "US Army"}}
	nouns = []string{"Ace", "Hawk", "Viper", "Ghost", "Rabbit", "Falcon", "Wolf", "Tiger", "Shark", "Raven"}
)

// GenerateData feeds the tracker the given number of simulated poll cycles
// over a small fake fleet, with occasional map rotations between cycles.
func GenerateData(trk *tracker.Tracker, cycles int) {
	ctx := context.Background()

	type fleet struct {
		view    snapshot.ServerView
		roster  []string
		mapIdx  int
		labels  [2]string
	}

	servers := make([]*fleet, 0, 6)
	for i := 0; i < 6; i++ {
		labels := teams[rand.Intn(len(teams))]
		roster := make([]string, 0, 12)
		for j := 0; j < 6+rand.Intn(7); j++ {
			roster = append(roster, fmt.Sprintf("%s_%d", nouns[rand.Intn(len(nouns))], rand.Intn(500)))
		}

		servers = append(servers, &fleet{
			roster: roster,
			labels: labels,
			mapIdx: rand.Intn(len(maps)),
			view: snapshot.ServerView{
				GUID:       fmt.Sprintf("fake-%d", i),
				IP:         fmt.Sprintf("%d.%d.%d.%d", rand.Intn(220)+1, rand.Intn(255), rand.Intn(255), rand.Intn(255)),
				Port:       14567 + i,
				Name:       fmt.Sprintf("Fake Battlefield #%d", i+1),
				Game:       games[i%len(games)],
				GameType:   "conquest",
				MaxPlayers: 64,
			},
		})
	}

	now := time.Now().UTC().Add(-time.Duration(cycles) * 30 * time.Second)

	for c := 0; c < cycles; c++ {
		for _, f := range servers {
			// 5% chance of a map rotation between polls
			if rand.Float32() < 0.05 {
				f.mapIdx = (f.mapIdx + 1) % len(maps)
			}

			t1 := 100 - c%100
			t2 := 100 - (c*2)%100
			f.view.Map = maps[f.mapIdx]
			f.view.Tickets1 = &t1
			f.view.Tickets2 = &t2
			f.view.Teams = []snapshot.TeamInfo{
				{Index: 1, Label: f.labels[0]},
				{Index: 2, Label: f.labels[1]},
			}

			f.view.Players = f.view.Players[:0]
			for pi, name := range f.roster {
				// players drift in and out across cycles
				if rand.Float32() < 0.15 {
					continue
				}
				f.view.Players = append(f.view.Players, snapshot.PlayerInfo{
					Name:   name,
					Score:  c * (pi%5 + 1) / 2,
					Kills:  c * (pi%3 + 1) / 3,
					Deaths: c / 4,
					Ping:   20 + rand.Intn(180),
					Team:   pi%2 + 1,
				})
			}

			if err := trk.TrackPlayersFromServerInfo(ctx, &f.view, now, f.view.Game); err != nil {
				log.Warn().Err(err).Str("server", f.view.GUID).Msg("Failed to generate fake poll")
			}
		}

		now = now.Add(30 * time.Second)
	}

	log.Info().Int("cycles", cycles).Int("servers", len(servers)).Msg("Fake data generated")
}
