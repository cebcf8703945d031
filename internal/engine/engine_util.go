package engine

import (
	"errors"
	"strings"

	"github.com/DoyleJ11/sketchroom/internal/canvas"
	"github.com/DoyleJ11/sketchroom/pkg/protocol"
)

// ErrorCode maps an engine error to its wire code.
func ErrorCode(err error) protocol.ErrorCode {
	switch {
	case errors.Is(err, ErrNotHost):
		return protocol.CodeNotHost
	case errors.Is(err, ErrInsufficientPlayers):
		return protocol.CodeInsufficientPlayers
	case errors.Is(err, ErrNotDrawer):
		return protocol.CodeNotDrawer
	case errors.Is(err, ErrDrawerCannotGuess):
		return protocol.CodeDrawerCannotGuess
	case errors.Is(err, ErrAlreadyGuessed):
		return protocol.CodeAlreadyGuessed
	case errors.Is(err, ErrInvalidState):
		return protocol.CodeInvalidState
	case errors.Is(err, ErrUnknownPlayer):
		return protocol.CodeUnknownPlayer
	case errors.Is(err, ErrDuplicateName):
		return protocol.CodeDuplicateName
	case errors.Is(err, ErrInvalidName):
		return protocol.CodeInvalidName
	case errors.Is(err, ErrRoomFull):
		return protocol.CodeRoomFull
	case errors.Is(err, ErrInvalidStroke):
		return protocol.CodeInvalidStroke
	case errors.Is(err, ErrStaleStroke):
		return protocol.CodeStaleStroke
	default:
		return protocol.CodeInternal
	}
}

func ContainsEvent(events []Event, eventType protocol.ServerEvent) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

// censored reports whether text would give the word away if echoed: it
// contains the word, or it is a fragment of it.
func censored(text, word string) bool {
	if text == "" || word == "" {
		return false
	}
	return strings.Contains(text, word) || strings.Contains(word, text)
}

func StrokeFromWire(st protocol.Stroke) canvas.Stroke {
	return canvas.Stroke{
		X0: st.X0, Y0: st.Y0, X1: st.X1, Y1: st.Y1,
		Color: st.Color,
		Width: st.Width,
		Seq:   st.Seq,
	}
}

func strokeToWire(st canvas.Stroke) protocol.Stroke {
	return protocol.Stroke{
		X0: st.X0, Y0: st.Y0, X1: st.X1, Y1: st.Y1,
		Color: st.Color,
		Width: st.Width,
		Seq:   st.Seq,
	}
}

func strokesToWire(strokes []canvas.Stroke) []protocol.Stroke {
	out := make([]protocol.Stroke, len(strokes))
	for i, st := range strokes {
		out[i] = strokeToWire(st)
	}
	return out
}
