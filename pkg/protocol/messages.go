package protocol

import "encoding/json"

// Version is bumped whenever a payload schema changes incompatibly.
const Version = 1

// Client -> Server
// join_room:
//   player_name: string
//   reconnect_token: string // optional, returned by "joined"
//
// start_game: {}            // host only
//
// stroke:
//   x0, y0, x1, y1: number
//   color: "#rrggbb"
//   width: number
//   seq: number             // strictly increasing within the current canvas epoch
//
// clear_canvas: {}          // drawer only
//
// guess:
//   text: string
//
// chat:
//   text: string
//
// request_snapshot: {}

// Server -> Client
// joined, roster_update, game_started, turn_started, your_word, stroke_broadcast,
// canvas_cleared, correct_guess, hint_revealed, timer, chat, turn_ended, game_over,
// snapshot, error. Payloads below.

type ClientEvent string

const (
	CmdJoinRoom        ClientEvent = "join_room"
	CmdStartGame       ClientEvent = "start_game"
	CmdStroke          ClientEvent = "stroke"
	CmdClearCanvas     ClientEvent = "clear_canvas"
	CmdGuess           ClientEvent = "guess"
	CmdChat            ClientEvent = "chat"
	CmdRequestSnapshot ClientEvent = "request_snapshot"
)

type ServerEvent string

const (
	EvtJoined          ServerEvent = "joined"
	EvtRosterUpdate    ServerEvent = "roster_update"
	EvtGameStarted     ServerEvent = "game_started"
	EvtTurnStarted     ServerEvent = "turn_started"
	EvtYourWord        ServerEvent = "your_word"
	EvtStrokeBroadcast ServerEvent = "stroke_broadcast"
	EvtCanvasCleared   ServerEvent = "canvas_cleared"
	EvtCorrectGuess    ServerEvent = "correct_guess"
	EvtHintRevealed    ServerEvent = "hint_revealed"
	EvtTimer           ServerEvent = "timer"
	EvtChat            ServerEvent = "chat"
	EvtTurnEnded       ServerEvent = "turn_ended"
	EvtGameOver        ServerEvent = "game_over"
	EvtSnapshot        ServerEvent = "snapshot"
	EvtError           ServerEvent = "error"
)

// ClientMessage is the envelope of every inbound frame. Data is decoded
// according to Type once the envelope is known to be well formed.
type ClientMessage struct {
	Type ClientEvent     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type ServerMessage struct {
	Type    ServerEvent `json:"type"`
	Version int         `json:"version"`
	Data    any         `json:"data,omitempty"`
}

type JoinRoom struct {
	PlayerName     string `json:"player_name"`
	ReconnectToken string `json:"reconnect_token,omitempty"`
}

type TextMessage struct {
	Text string `json:"text"`
}

type Stroke struct {
	X0    float64 `json:"x0"`
	Y0    float64 `json:"y0"`
	X1    float64 `json:"x1"`
	Y1    float64 `json:"y1"`
	Color string  `json:"color"`
	Width float64 `json:"width"`
	Seq   uint64  `json:"seq"`
}

type Joined struct {
	PlayerID       string `json:"player_id"`
	ReconnectToken string `json:"reconnect_token"`
}

type RosterUpdate struct {
	Players []PlayerState `json:"players"`
	HostID  string        `json:"host_id"`
}

type TurnStarted struct {
	DrawerID   string `json:"drawer_id"`
	WordLength int    `json:"word_length"`
	Round      int    `json:"round"`
	MaxRounds  int    `json:"max_rounds"`
	Turn       int    `json:"turn"`
	Duration   int    `json:"duration"`
}

type YourWord struct {
	Word string `json:"word"`
}

type CanvasCleared struct {
	Epoch uint64 `json:"epoch"`
}

type CorrectGuess struct {
	PlayerID    string         `json:"player_id"`
	Points      int            `json:"points"`
	DrawerBonus int            `json:"drawer_bonus"`
	Scores      map[string]int `json:"scores"`
}

type Hint struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

type Timer struct {
	Remaining int `json:"remaining"`
}

type Chat struct {
	PlayerID string `json:"player_id"`
	Text     string `json:"text"`
}

type TurnEnded struct {
	Word   string         `json:"word"`
	Reason string         `json:"reason"`
	Scores map[string]int `json:"scores"`
}

type Standing struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
	Rank     int    `json:"rank"`
}

type GameOver struct {
	FinalScores []Standing `json:"final_scores"`
	Winner      string     `json:"winner"`
	Rounds      int        `json:"rounds"`
}

type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

type ErrorCode string

const (
	CodeNotHost             ErrorCode = "not_host"
	CodeInsufficientPlayers ErrorCode = "insufficient_players"
	CodeNotDrawer           ErrorCode = "not_drawer"
	CodeDrawerCannotGuess   ErrorCode = "drawer_cannot_guess"
	CodeAlreadyGuessed      ErrorCode = "already_guessed"
	CodeInvalidState        ErrorCode = "invalid_state"
	CodeUnknownPlayer       ErrorCode = "unknown_player"
	CodeDuplicateName       ErrorCode = "duplicate_name"
	CodeInvalidName         ErrorCode = "invalid_name"
	CodeRoomFull            ErrorCode = "room_full"
	CodeInvalidStroke       ErrorCode = "invalid_stroke"
	CodeStaleStroke         ErrorCode = "stale_stroke"
	CodeBadMessage          ErrorCode = "bad_message"
	CodeNotJoined           ErrorCode = "not_joined"
	CodeRateLimited         ErrorCode = "rate_limited"
	CodeInternal            ErrorCode = "internal"
)
