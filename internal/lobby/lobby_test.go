package lobby

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DoyleJ11/sketchroom/internal/canvas"
	"github.com/DoyleJ11/sketchroom/internal/engine"
	"github.com/DoyleJ11/sketchroom/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
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

type fakeTicker struct {
	c       chan time.Time
	stopped atomic.Bool
}

func (f *fakeTicker) C() <-chan time.Time { return f.c }
func (f *fakeTicker) Stop()               { f.stopped.Store(true) }

// fakeClock hands out tickers the test fires by hand.
type fakeClock struct {
	mu      sync.Mutex
	tickers []*fakeTicker
}

func (f *fakeClock) NewTicker(time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTicker{c: make(chan time.Time, 1)}
	f.tickers = append(f.tickers, t)
	return t
}

func (f *fakeClock) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tickers)
}

func (f *fakeClock) get(i int) *fakeTicker {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tickers[i]
}

type mockRecorder struct{ mock.Mock }

func (m *mockRecorder) RecordGame(ctx context.Context, roomCode string, result protocol.GameOver) error {
	return m.Called(ctx, roomCode, result).Error(0)
}

func testRules(rounds, duration int) engine.Rules {
	r := engine.DefaultRules()
	r.MaxRounds = rounds
	r.TurnDurationSec = duration
	return r
}

func newTestLobby(t *testing.T, rules engine.Rules, tweak func(*Options)) (*Lobby, *fakeClock) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	clock := &fakeClock{}
	opts := Options{
		Code:      "ROOM42",
		Rules:     rules,
		Words:     stubWords{"cat", "dog", "sun"},
		Logger:    zap.NewNop(),
		NewTicker: clock.NewTicker,
	}
	if tweak != nil {
		tweak(&opts)
	}
	return NewLobby(ctx, opts), clock
}

// helper: receive one message with a timeout so tests never hang
func recvMsg(t *testing.T, ch <-chan protocol.ServerMessage, within time.Duration) protocol.ServerMessage {
	t.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			t.Fatalf("client outbox closed unexpectedly")
		}
		return msg
	case <-time.After(within):
		t.Fatalf("timed out waiting for message")
		return protocol.ServerMessage{} // unreachable
	}
}

// recvType skips messages until one of type typ arrives.
func recvType(t *testing.T, ch <-chan protocol.ServerMessage, typ protocol.ServerEvent) protocol.ServerMessage {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				t.Fatalf("outbox closed while waiting for %s", typ)
			}
			if msg.Type == typ {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

func recvNone(t *testing.T, ch <-chan protocol.ServerMessage, within time.Duration) {
	t.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			// channel closed → fine; nothing more can arrive
			return
		}
		t.Fatalf("expected no message within %v, but got: %+v", within, msg)
	case <-time.After(within):
	}
}

func drain(ch <-chan protocol.ServerMessage) {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func joinAs(t *testing.T, l *Lobby, name, token string, capacity int) (JoinResult, chan protocol.ServerMessage) {
	t.Helper()
	out := make(chan protocol.ServerMessage, capacity)
	reply := make(chan JoinResult, 1)
	l.Inbox() <- Join{Name: name, Token: token, Outbox: out, Reply: reply}
	select {
	case res := <-reply:
		return res, out
	case <-time.After(time.Second):
		t.Fatalf("timed out joining as %s", name)
		return JoinResult{}, nil
	}
}

func view(t *testing.T, l *Lobby) View {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := l.State(ctx)
	require.NoError(t, err)
	return v
}

func send(l *Lobby, res JoinResult, cmd Cmd) {
	l.Inbox() <- FromClient{PlayerID: res.PlayerID, ConnID: res.ConnID, Cmd: cmd}
}

func TestLobby_JoinSendsJoinedSnapshotThenRoster(t *testing.T) {
	l, _ := newTestLobby(t, testRules(1, 60), nil)

	res, out := joinAs(t, l, "Alice", "", 8)
	require.NoError(t, res.Err)
	require.NotEmpty(t, res.Token)

	joined := recvMsg(t, out, 100*time.Millisecond)
	require.Equal(t, protocol.EvtJoined, joined.Type)
	assert.Equal(t, protocol.Version, joined.Version)
	assert.Equal(t, string(res.PlayerID), joined.Data.(protocol.Joined).PlayerID)
	assert.Equal(t, res.Token, joined.Data.(protocol.Joined).ReconnectToken)

	snap := recvMsg(t, out, 100*time.Millisecond)
	require.Equal(t, protocol.EvtSnapshot, snap.Type)
	assert.Equal(t, "lobby", snap.Data.(protocol.Snapshot).Phase)

	roster := recvMsg(t, out, 100*time.Millisecond)
	require.Equal(t, protocol.EvtRosterUpdate, roster.Type)
	assert.Equal(t, string(res.PlayerID), roster.Data.(protocol.RosterUpdate).HostID)
}

func TestLobby_JoinRejectsDuplicateName(t *testing.T) {
	l, _ := newTestLobby(t, testRules(1, 60), nil)
	_, _ = joinAs(t, l, "Alice", "", 8)

	res, _ := joinAs(t, l, "alice", "", 8)
	assert.ErrorIs(t, res.Err, engine.ErrDuplicateName)
	assert.Equal(t, 1, view(t, l).NumClients)
}

func TestLobby_ErrorsGoOnlyToOriginator(t *testing.T) {
	l, _ := newTestLobby(t, testRules(1, 60), nil)
	_, outA := joinAs(t, l, "A", "", 16)
	b, outB := joinAs(t, l, "B", "", 16)
	view(t, l)
	drain(outA)
	drain(outB)

	send(l, b, StartGame{})
	msg := recvType(t, outB, protocol.EvtError)
	assert.Equal(t, protocol.CodeNotHost, msg.Data.(protocol.Error).Code)
	recvNone(t, outA, 100*time.Millisecond)
}

func TestLobby_WordOnlyToDrawer(t *testing.T) {
	l, _ := newTestLobby(t, testRules(1, 60), nil)
	a, outA := joinAs(t, l, "A", "", 32)
	_, outB := joinAs(t, l, "B", "", 32)

	send(l, a, StartGame{})
	word := recvType(t, outA, protocol.EvtYourWord)
	assert.Equal(t, "cat", word.Data.(protocol.YourWord).Word)

	recvType(t, outB, protocol.EvtTurnStarted)
	view(t, l)
	for {
		select {
		case msg := <-outB:
			assert.NotEqual(t, protocol.EvtYourWord, msg.Type)
			continue
		default:
		}
		break
	}
}

func TestLobby_TickerStopsWhenTurnEndsEarly(t *testing.T) {
	const duration = 30
	l, clock := newTestLobby(t, testRules(1, duration), nil)
	a, _ := joinAs(t, l, "A", "", 64)
	b, outB := joinAs(t, l, "B", "", 64)

	send(l, a, StartGame{})
	view(t, l)
	require.Equal(t, 1, clock.count(), "one ticker for the first turn")
	first := clock.get(0)

	send(l, b, Guess{Text: "cat"})
	recvType(t, outB, protocol.EvtTurnEnded)
	view(t, l)

	assert.True(t, first.stopped.Load(), "ticker of the finished turn must be stopped")
	require.Equal(t, 2, clock.count())

	first.c <- time.Now()
	v := view(t, l)
	assert.Equal(t, duration, v.Snapshot.Remaining, "stale tick must not touch the new turn")

	clock.get(1).c <- time.Now()
	timer := recvType(t, outB, protocol.EvtTimer)
	assert.Equal(t, duration-1, timer.Data.(protocol.Timer).Remaining)
}

func TestLobby_TimeoutEndsTurn(t *testing.T) {
	l, clock := newTestLobby(t, testRules(1, 2), nil)
	a, outA := joinAs(t, l, "A", "", 64)
	joinAs(t, l, "B", "", 64)

	send(l, a, StartGame{})
	view(t, l)
	tk := clock.get(0)
	tk.c <- time.Now()
	recvType(t, outA, protocol.EvtTimer)
	tk.c <- time.Now()

	ended := recvType(t, outA, protocol.EvtTurnEnded)
	te := ended.Data.(protocol.TurnEnded)
	assert.Equal(t, string(engine.ReasonTimeout), te.Reason)
	assert.Equal(t, "cat", te.Word)
}

func TestLobby_StrokesFanOutAndStaleIsSilent(t *testing.T) {
	l, _ := newTestLobby(t, testRules(1, 60), nil)
	a, outA := joinAs(t, l, "A", "", 64)
	_, outB := joinAs(t, l, "B", "", 64)
	send(l, a, StartGame{})
	view(t, l)
	drain(outA)
	drain(outB)

	st := canvas.Stroke{X0: 1, Y0: 2, X1: 3, Y1: 4, Color: "#ff0000", Width: 2, Seq: 1}
	send(l, a, Stroke{Stroke: st})
	got := recvType(t, outB, protocol.EvtStrokeBroadcast)
	assert.Equal(t, uint64(1), got.Data.(protocol.Stroke).Seq)

	send(l, a, Stroke{Stroke: st})
	view(t, l)
	recvNone(t, outA, 50*time.Millisecond)
	recvNone(t, outB, 50*time.Millisecond)

	assert.Len(t, view(t, l).Snapshot.Strokes, 1)
}

func TestLobby_DropSlowClient(t *testing.T) {
	l, _ := newTestLobby(t, testRules(1, 60), nil)

	// joined, snapshot and roster_update fill it; the next broadcast overflows
	_, slow := joinAs(t, l, "slow", "", 3)
	_, _ = joinAs(t, l, "fast", "", 16)

	v := view(t, l)
	assert.Equal(t, 1, v.NumClients, "expected slow client to be dropped")
	assert.Equal(t, 1, v.Connected)
	assert.Equal(t, 2, v.Players, "dropped player stays on the scoreboard")

	n := 0
	for range slow {
		n++
	}
	assert.Equal(t, 3, n)
}

func TestLobby_ReconnectWithToken(t *testing.T) {
	l, _ := newTestLobby(t, testRules(1, 60), nil)
	a, _ := joinAs(t, l, "A", "", 16)
	_, _ = joinAs(t, l, "B", "", 16)

	l.Inbox() <- Leave{PlayerID: a.PlayerID, ConnID: a.ConnID}
	require.Equal(t, 1, view(t, l).Connected)

	bad, _ := joinAs(t, l, "A", "not-the-token", 16)
	assert.ErrorIs(t, bad.Err, engine.ErrDuplicateName)

	again, out := joinAs(t, l, "a", a.Token, 16)
	require.NoError(t, again.Err)
	assert.Equal(t, a.PlayerID, again.PlayerID)
	assert.NotEqual(t, a.Token, again.Token, "tokens rotate on every join")
	recvType(t, out, protocol.EvtSnapshot)
	assert.Equal(t, 2, view(t, l).Connected)

	old, _ := joinAs(t, l, "A", a.Token, 16)
	assert.Error(t, old.Err, "a rotated token is no longer valid")
}

func TestLobby_NewConnectionReplacesOld(t *testing.T) {
	l, _ := newTestLobby(t, testRules(1, 60), nil)
	a, first := joinAs(t, l, "A", "", 16)
	_, _ = joinAs(t, l, "B", "", 16)

	second, _ := joinAs(t, l, "A", a.Token, 16)
	require.NoError(t, second.Err)
	assert.NotEqual(t, a.ConnID, second.ConnID)

	for range first {
	}

	// the old socket's disconnect arrives late and must be ignored
	l.Inbox() <- Leave{PlayerID: a.PlayerID, ConnID: a.ConnID}
	v := view(t, l)
	assert.Equal(t, 2, v.Connected)
	assert.Equal(t, 2, v.NumClients)
}

func TestLobby_IdleRoomCloses(t *testing.T) {
	closed := make(chan string, 1)
	l, _ := newTestLobby(t, testRules(1, 60), func(o *Options) {
		o.IdleTimeout = 50 * time.Millisecond
		o.OnClose = func(code string) { closed <- code }
	})
	a, _ := joinAs(t, l, "A", "", 16)
	l.Inbox() <- Leave{PlayerID: a.PlayerID, ConnID: a.ConnID}

	select {
	case code := <-closed:
		assert.Equal(t, "ROOM42", code)
	case <-time.After(time.Second):
		t.Fatalf("idle room was not closed")
	}
	<-l.Done()
}

func TestLobby_Shutdown_StopsTimer_NoFire(t *testing.T) {
	l, clock := newTestLobby(t, testRules(1, 60), nil)
	a, out := joinAs(t, l, "A", "", 64)
	joinAs(t, l, "B", "", 64)
	send(l, a, StartGame{})
	view(t, l)

	l.Inbox() <- Shutdown{}
	<-l.Done()
	assert.True(t, clock.get(0).stopped.Load())

	for range out {
	}
	_, err := l.State(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestLobby_RecordsFinishedGame(t *testing.T) {
	rec := &mockRecorder{}
	recorded := make(chan protocol.GameOver, 1)
	rec.On("RecordGame", mock.Anything, "ROOM42", mock.AnythingOfType("protocol.GameOver")).
		Run(func(args mock.Arguments) { recorded <- args.Get(2).(protocol.GameOver) }).
		Return(nil).Once()

	l, clock := newTestLobby(t, testRules(1, 1), func(o *Options) { o.Recorder = rec })
	a, outA := joinAs(t, l, "A", "", 64)
	joinAs(t, l, "B", "", 64)
	send(l, a, StartGame{})
	view(t, l)
	drain(outA)

	clock.get(0).c <- time.Now()
	recvType(t, outA, protocol.EvtTurnStarted)
	view(t, l)
	require.Equal(t, 2, clock.count())
	clock.get(1).c <- time.Now()
	recvType(t, outA, protocol.EvtGameOver)

	select {
	case res := <-recorded:
		assert.Len(t, res.FinalScores, 2)
		assert.Equal(t, string(a.PlayerID), res.Winner, "all tied, first joined wins")
	case <-time.After(time.Second):
		t.Fatalf("finished game was not recorded")
	}
	rec.AssertExpectations(t)
	assert.Equal(t, engine.PhaseGameOver, view(t, l).Phase)
}
