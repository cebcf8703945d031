package protocol

import "time"

// GameRecord is a finished game as served by GET /rooms/{code}/history.
type GameRecord struct {
	RoomCode    string     `json:"room_code"`
	Winner      string     `json:"winner"`
	Rounds      int        `json:"rounds"`
	FinishedAt  time.Time  `json:"finished_at"`
	FinalScores []Standing `json:"final_scores"`
}

// RoomSummary is the response of GET /rooms/{code}.
type RoomSummary struct {
	Code      string `json:"code"`
	Phase     string `json:"phase"`
	Round     int    `json:"round"`
	MaxRounds int    `json:"max_rounds"`
	Players   int    `json:"players"`
	Connected int    `json:"connected"`
}
