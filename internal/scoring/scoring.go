package scoring

// Policy maps a correct guess to point deltas. The numbers are a game design
// choice; the shape (earlier and faster earns more) is what the engine relies on.
type Policy struct {
	MaxPoints           int
	MinPoints           int
	RankPenalty         int
	DrawerBonusPerGuess int
}

var Default = Policy{
	MaxPoints:           100,
	MinPoints:           10,
	RankPenalty:         10,
	DrawerBonusPerGuess: 10,
}

// Score is total over its inputs: ranks below 1 count as first, elapsed is
// clamped into [0, duration], and a non-positive duration earns the minimum.
func (p Policy) Score(rank, elapsed, duration int) (guesser, drawerBonus int) {
	drawerBonus = p.DrawerBonusPerGuess
	if duration <= 0 {
		return p.MinPoints, drawerBonus
	}
	if rank < 1 {
		rank = 1
	}
	elapsed = min(max(elapsed, 0), duration)

	remaining := duration - elapsed
	guesser = p.MaxPoints*remaining/duration - p.RankPenalty*(rank-1)
	if guesser < p.MinPoints {
		guesser = p.MinPoints
	}
	return guesser, drawerBonus
}

func Score(rank, elapsed, duration int) (guesser, drawerBonus int) {
	return Default.Score(rank, elapsed, duration)
}
