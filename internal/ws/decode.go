package ws

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/DoyleJ11/sketchroom/internal/engine"
	"github.com/DoyleJ11/sketchroom/internal/lobby"
	"github.com/DoyleJ11/sketchroom/pkg/protocol"
)

const MaxTextLength = 100

var errBadMessage = errors.New("bad message")

// decodeStrict rejects unknown fields so synonyms and stale schemas fail
// loudly instead of being half understood.
func decodeStrict(data []byte, v any) error {
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		data = []byte("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadMessage, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data", errBadMessage)
	}
	return nil
}

func decodeEnvelope(frame []byte) (protocol.ClientMessage, error) {
	var msg protocol.ClientMessage
	if err := decodeStrict(frame, &msg); err != nil {
		return msg, err
	}
	if msg.Type == "" {
		return msg, fmt.Errorf("%w: missing type", errBadMessage)
	}
	return msg, nil
}

func decodeJoin(msg protocol.ClientMessage) (protocol.JoinRoom, error) {
	var join protocol.JoinRoom
	if err := decodeStrict(msg.Data, &join); err != nil {
		return join, err
	}
	return join, nil
}

// decodeCommand maps an in-room frame to a lobby command. Only the canonical
// vocabulary is accepted.
func decodeCommand(msg protocol.ClientMessage) (lobby.Cmd, error) {
	switch msg.Type {
	case protocol.CmdStartGame:
		return lobby.StartGame{}, decodeStrict(msg.Data, &struct{}{})
	case protocol.CmdClearCanvas:
		return lobby.ClearCanvas{}, decodeStrict(msg.Data, &struct{}{})
	case protocol.CmdRequestSnapshot:
		return lobby.RequestSnapshot{}, decodeStrict(msg.Data, &struct{}{})
	case protocol.CmdStroke:
		var st protocol.Stroke
		if err := decodeStrict(msg.Data, &st); err != nil {
			return nil, err
		}
		return lobby.Stroke{Stroke: engine.StrokeFromWire(st)}, nil
	case protocol.CmdGuess, protocol.CmdChat:
		var tm protocol.TextMessage
		if err := decodeStrict(msg.Data, &tm); err != nil {
			return nil, err
		}
		if utf8.RuneCountInString(tm.Text) > MaxTextLength {
			return nil, fmt.Errorf("%w: text longer than %d characters", errBadMessage, MaxTextLength)
		}
		if msg.Type == protocol.CmdGuess {
			return lobby.Guess{Text: tm.Text}, nil
		}
		return lobby.Chat{Text: tm.Text}, nil
	case protocol.CmdJoinRoom:
		return nil, fmt.Errorf("%w: already joined", errBadMessage)
	default:
		return nil, fmt.Errorf("%w: unknown type %q", errBadMessage, msg.Type)
	}
}
