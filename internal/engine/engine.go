package engine

import (
	"errors"

	"github.com/DoyleJ11/sketchroom/internal/canvas"
	"github.com/DoyleJ11/sketchroom/internal/hint"
	"github.com/DoyleJ11/sketchroom/internal/roster"
	"github.com/DoyleJ11/sketchroom/internal/scoring"
	"github.com/DoyleJ11/sketchroom/pkg/protocol"
)

var ErrNotHost = errors.New("only the host can do that")
var ErrInsufficientPlayers = errors.New("need at least two players")
var ErrNotDrawer = errors.New("only the drawer can do that")
var ErrDrawerCannotGuess = errors.New("drawer cannot guess")
var ErrAlreadyGuessed = errors.New("already guessed this turn")
var ErrInvalidState = errors.New("not allowed right now")

var (
	ErrUnknownPlayer = roster.ErrUnknownPlayer
	ErrDuplicateName = roster.ErrDuplicateName
	ErrInvalidName   = roster.ErrInvalidName
	ErrRoomFull      = roster.ErrRoomFull
	ErrInvalidStroke = canvas.ErrInvalidStroke
	ErrStaleStroke   = canvas.ErrStaleStroke
)

type PlayerID = roster.PlayerID

type Phase string

// drawer_selecting, turn_ending and round_ending only exist inside a single
// Session call and are never observed between calls.
const (
	PhaseLobby           Phase = "lobby"
	PhaseDrawerSelecting Phase = "drawer_selecting"
	PhaseInTurn          Phase = "in_turn"
	PhaseTurnEnding      Phase = "turn_ending"
	PhaseRoundEnding     Phase = "round_ending"
	PhaseGameOver        Phase = "game_over"
)

type EndReason string

const (
	ReasonAllGuessed       EndReason = "all_guessed"
	ReasonTimeout          EndReason = "timeout"
	ReasonDrawerLeft       EndReason = "drawer_left"
	ReasonNotEnoughPlayers EndReason = "not_enough_players"
)

type Rules struct {
	TurnDurationSec int
	MaxRounds       int
	MaxPlayers      int
	Canvas          canvas.Bounds
	Hints           hint.Schedule
	Scoring         scoring.Policy
}

func DefaultRules() Rules {
	return Rules{
		TurnDurationSec: 80,
		MaxRounds:       3,
		MaxPlayers:      8,
		Canvas:          canvas.DefaultBounds,
		Hints:           hint.DefaultSchedule,
		Scoring:         scoring.Default,
	}
}

// WordProvider supplies secret words. NextWord must not return a word in
// exclude; it returns an error once every word has been excluded.
type WordProvider interface {
	NextWord(exclude map[string]struct{}) (string, error)
}

type Audience int

const (
	AudienceEveryone Audience = iota
	AudienceAllExcept
	AudienceOnly
)

// Recipients says who an Event is for. The engine never talks to a
// transport; the gateway resolves recipients to connections.
type Recipients struct {
	Audience Audience
	IDs      []PlayerID
}

func Everyone() Recipients { return Recipients{Audience: AudienceEveryone} }

func Except(ids ...PlayerID) Recipients {
	return Recipients{Audience: AudienceAllExcept, IDs: ids}
}

func Only(ids ...PlayerID) Recipients {
	return Recipients{Audience: AudienceOnly, IDs: ids}
}

func (r Recipients) Includes(id PlayerID) bool {
	listed := false
	for _, x := range r.IDs {
		if x == id {
			listed = true
			break
		}
	}
	switch r.Audience {
	case AudienceAllExcept:
		return !listed
	case AudienceOnly:
		return listed
	default:
		return true
	}
}

/*
	StartGame   -> game_started -> canvas_cleared -> turn_started -> your_word (drawer)
	SubmitGuess -> correct_guess [-> turn_ended -> next turn | game_over]
	            -> chat (guesser + drawer) on a miss that does not give the word away
	Tick        -> timer [-> hint_revealed] [-> turn_ended -> ...]
	ApplyStroke -> stroke_broadcast (everyone but the drawer)
	ClearCanvas -> canvas_cleared
	Join/Leave/Reconnect -> roster_update [-> turn_ended when the turn can no longer continue]
*/

// Event is one outbound message. Payload is the protocol struct for Type.
type Event struct {
	Type    protocol.ServerEvent
	To      Recipients
	Payload any
}
