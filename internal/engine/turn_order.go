package engine

import (
	"sort"

	"github.com/DoyleJ11/sketchroom/internal/roster"
	"github.com/DoyleJ11/sketchroom/pkg/protocol"
)

// nextDrawer walks the roster in join order and returns the first connected
// player who has not drawn this round. Players who left mid-round drop out
// of the rotation but keep their place on the scoreboard.
func (s *Session) nextDrawer() (PlayerID, bool) {
	for _, p := range s.roster.Players() {
		if p.Connected && !s.drawn[p.ID] {
			return p.ID, true
		}
	}
	return "", false
}

// standings sorts by score, highest first. players arrive in join order and
// the sort is stable, so equal scores keep join order. Equal scores share a
// rank.
func standings(players []roster.Player) []protocol.Standing {
	sorted := make([]roster.Player, len(players))
	copy(sorted, players)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	out := make([]protocol.Standing, len(sorted))
	for i, p := range sorted {
		rank := i + 1
		if i > 0 && p.Score == sorted[i-1].Score {
			rank = out[i-1].Rank
		}
		out[i] = protocol.Standing{
			PlayerID: string(p.ID),
			Name:     p.Name,
			Score:    p.Score,
			Rank:     rank,
		}
	}
	return out
}
