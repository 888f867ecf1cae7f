package engine

import (
	"fmt"

	"github.com/DoyleJ11/lol-lobby-client/internal/protocol"
)

var sides = []string{"blue", "red"}

func teamsFor(count int) []protocol.Team {
	teams := make([]protocol.Team, 0, count)
	for id := 1; id <= count; id++ {
		t := protocol.Team{ID: id, Name: fmt.Sprintf("Team %d", id)}
		if count == len(sides) {
			t.Side = sides[id-1]
		}
		teams = append(teams, t)
	}
	return teams
}

// nextTeam balances joins: the team with the fewest players wins, lowest id
// on ties.
func nextTeam(r protocol.RoomSnapshot) int {
	if r.Settings.TeamCount < 1 {
		return 0
	}
	counts := make([]int, r.Settings.TeamCount+1)
	for _, p := range r.Players {
		if p.TeamID >= 1 && p.TeamID <= r.Settings.TeamCount {
			counts[p.TeamID]++
		}
	}
	best := 1
	for id := 2; id <= r.Settings.TeamCount; id++ {
		if counts[id] < counts[best] {
			best = id
		}
	}
	return best
}
