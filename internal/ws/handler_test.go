package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DoyleJ11/sketchroom/internal/engine"
	"github.com/DoyleJ11/sketchroom/internal/hub"
	"github.com/DoyleJ11/sketchroom/internal/lobby"
	"github.com/DoyleJ11/sketchroom/pkg/protocol"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubWords []string

func (w stubWords) NextWord(exclude map[string]struct{}) (string, error) {
	for _, x := range w {
		if _, used := exclude[x]; !used {
			return x, nil
		}
	}
	return "", errors.New("exhausted")
}

type frame struct {
	Type    protocol.ServerEvent `json:"type"`
	Version int                  `json:"version"`
	Data    json.RawMessage      `json:"data"`
}

func newTestServer(t *testing.T, cfg Config) (*httptest.Server, *hub.Hub) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := hub.NewHub(ctx, lobby.Options{
		Rules:  engine.DefaultRules(),
		Words:  stubWords{"cat", "dog"},
		Logger: zap.NewNop(),
	})
	_, err := h.Create(ctx, "ROOM01")
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Get("/rooms/{code}/ws", Handler(h, cfg, zap.NewNop()))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, h
}

func dial(t *testing.T, srv *httptest.Server, code string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/rooms/" + code + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendJSON(t *testing.T, conn *websocket.Conn, typ protocol.ClientEvent, data any) {
	t.Helper()
	msg := map[string]any{"type": typ}
	if data != nil {
		msg["data"] = data
	}
	require.NoError(t, conn.WriteJSON(msg))
}

func readUntil(t *testing.T, conn *websocket.Conn, typ protocol.ServerEvent) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var f frame
		require.NoError(t, conn.ReadJSON(&f), "waiting for %s", typ)
		if f.Type == typ {
			return f
		}
	}
}

func readError(t *testing.T, conn *websocket.Conn) protocol.Error {
	t.Helper()
	f := readUntil(t, conn, protocol.EvtError)
	var e protocol.Error
	require.NoError(t, json.Unmarshal(f.Data, &e))
	return e
}

func joinRoom(t *testing.T, conn *websocket.Conn, name, token string) protocol.Joined {
	t.Helper()
	sendJSON(t, conn, protocol.CmdJoinRoom, protocol.JoinRoom{PlayerName: name, ReconnectToken: token})
	f := readUntil(t, conn, protocol.EvtJoined)
	assert.Equal(t, protocol.Version, f.Version)
	var j protocol.Joined
	require.NoError(t, json.Unmarshal(f.Data, &j))
	return j
}

func TestGateway_FullTurn(t *testing.T) {
	srv, _ := newTestServer(t, DefaultConfig())
	a := dial(t, srv, "ROOM01")
	b := dial(t, srv, "room01")

	joinRoom(t, a, "Ann", "")
	bob := joinRoom(t, b, "Bob", "")

	sendJSON(t, a, protocol.CmdStartGame, nil)
	f := readUntil(t, a, protocol.EvtYourWord)
	var word protocol.YourWord
	require.NoError(t, json.Unmarshal(f.Data, &word))
	assert.Equal(t, "cat", word.Word)

	sendJSON(t, a, protocol.CmdStroke, protocol.Stroke{X0: 1, Y0: 1, X1: 20, Y1: 20, Color: "#123abc", Width: 4, Seq: 1})
	f = readUntil(t, b, protocol.EvtStrokeBroadcast)
	var st protocol.Stroke
	require.NoError(t, json.Unmarshal(f.Data, &st))
	assert.Equal(t, uint64(1), st.Seq)

	sendJSON(t, b, protocol.CmdGuess, protocol.TextMessage{Text: "Cat"})
	f = readUntil(t, a, protocol.EvtCorrectGuess)
	var cg protocol.CorrectGuess
	require.NoError(t, json.Unmarshal(f.Data, &cg))
	assert.Equal(t, bob.PlayerID, cg.PlayerID)
	assert.Greater(t, cg.Points, 0)

	f = readUntil(t, b, protocol.EvtTurnEnded)
	var te protocol.TurnEnded
	require.NoError(t, json.Unmarshal(f.Data, &te))
	assert.Equal(t, "all_guessed", te.Reason)
}

func TestGateway_RequiresJoinFirst(t *testing.T) {
	srv, _ := newTestServer(t, DefaultConfig())
	c := dial(t, srv, "ROOM01")

	sendJSON(t, c, protocol.CmdGuess, protocol.TextMessage{Text: "cat"})
	assert.Equal(t, protocol.CodeNotJoined, readError(t, c).Code)

	joinRoom(t, c, "Ann", "")
}

func TestGateway_RejectsMalformedFrames(t *testing.T) {
	srv, _ := newTestServer(t, DefaultConfig())
	c := dial(t, srv, "ROOM01")
	joinRoom(t, c, "Ann", "")

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`{"type":"draw","data":{}}`)))
	assert.Equal(t, protocol.CodeBadMessage, readError(t, c).Code)

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`{"type":"chat","data":{"text":"hi","to":"x"}}`)))
	assert.Equal(t, protocol.CodeBadMessage, readError(t, c).Code)

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`{{{`)))
	assert.Equal(t, protocol.CodeBadMessage, readError(t, c).Code)

	// still usable afterwards
	sendJSON(t, c, protocol.CmdRequestSnapshot, nil)
	readUntil(t, c, protocol.EvtSnapshot)
}

func TestGateway_DuplicateNameCanRetry(t *testing.T) {
	srv, _ := newTestServer(t, DefaultConfig())
	a := dial(t, srv, "ROOM01")
	b := dial(t, srv, "ROOM01")
	joinRoom(t, a, "Sam", "")

	sendJSON(t, b, protocol.CmdJoinRoom, protocol.JoinRoom{PlayerName: "SAM"})
	assert.Equal(t, protocol.CodeDuplicateName, readError(t, b).Code)

	joined := joinRoom(t, b, "Max", "")
	assert.NotEmpty(t, joined.PlayerID)
}

func TestGateway_ErrorGoesToSenderOnly(t *testing.T) {
	srv, _ := newTestServer(t, DefaultConfig())
	a := dial(t, srv, "ROOM01")
	b := dial(t, srv, "ROOM01")
	joinRoom(t, a, "Ann", "")
	joinRoom(t, b, "Bob", "")

	sendJSON(t, b, protocol.CmdStartGame, nil)
	assert.Equal(t, protocol.CodeNotHost, readError(t, b).Code)

	// the join snapshot is already queued; the requested one arrives after
	// anything B's failed command could have produced
	sendJSON(t, a, protocol.CmdRequestSnapshot, nil)
	require.NoError(t, a.SetReadDeadline(time.Now().Add(2*time.Second)))
	for snaps := 0; snaps < 2; {
		var f frame
		require.NoError(t, a.ReadJSON(&f))
		require.NotEqual(t, protocol.EvtError, f.Type, "host must not see another player's error")
		if f.Type == protocol.EvtSnapshot {
			snaps++
		}
	}
}

func TestGateway_RateLimitsChat(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChatRate = 0
	cfg.ChatBurst = 2
	srv, _ := newTestServer(t, cfg)
	c := dial(t, srv, "ROOM01")
	joinRoom(t, c, "Ann", "")

	for i := 0; i < 3; i++ {
		sendJSON(t, c, protocol.CmdChat, protocol.TextMessage{Text: "hello"})
	}
	assert.Equal(t, protocol.CodeRateLimited, readError(t, c).Code)
}

func TestGateway_ReconnectWithToken(t *testing.T) {
	srv, _ := newTestServer(t, DefaultConfig())
	a := dial(t, srv, "ROOM01")
	b := dial(t, srv, "ROOM01")
	first := joinRoom(t, a, "Ann", "")
	joinRoom(t, b, "Bob", "")

	require.NoError(t, a.Close())
	readUntil(t, b, protocol.EvtRosterUpdate)

	again := dial(t, srv, "ROOM01")
	second := joinRoom(t, again, "ann", first.ReconnectToken)
	assert.Equal(t, first.PlayerID, second.PlayerID)
	assert.NotEqual(t, first.ReconnectToken, second.ReconnectToken)
}

func TestGateway_UnknownRoom(t *testing.T) {
	srv, _ := newTestServer(t, DefaultConfig())
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/rooms/NOPE00/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGateway_AutoCreate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AutoCreate = true
	srv, h := newTestServer(t, cfg)
	c := dial(t, srv, "NEW123")
	joinRoom(t, c, "Ann", "")

	lb, err := h.Get(context.Background(), "NEW123")
	require.NoError(t, err)
	assert.NotNil(t, lb)
}
