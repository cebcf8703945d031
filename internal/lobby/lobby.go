package lobby

import (
	"context"
	"errors"
	"time"

	"github.com/DoyleJ11/sketchroom/internal/canvas"
	"github.com/DoyleJ11/sketchroom/internal/engine"
	"github.com/DoyleJ11/sketchroom/internal/roster"
	"github.com/DoyleJ11/sketchroom/pkg/protocol"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("room closed")

type Msg interface{ isLobbyMsg() }

// Join attaches a connection. A valid Token for the named player resumes
// that player instead of creating a new one.
type Join struct {
	Name   string
	Token  string
	Outbox chan protocol.ServerMessage // where this connection receives messages
	Reply  chan JoinResult
}

func (Join) isLobbyMsg() {}

type JoinResult struct {
	PlayerID engine.PlayerID
	ConnID   uint64
	Token    string
	Err      error
}

type Leave struct {
	PlayerID engine.PlayerID
	ConnID   uint64
}

func (Leave) isLobbyMsg() {}

type FromClient struct {
	PlayerID engine.PlayerID
	ConnID   uint64
	Cmd      Cmd
}

func (FromClient) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

type tickFired struct {
	turn int
	gen  uint64
}

func (tickFired) isLobbyMsg() {}

type idleExpired struct{ gen uint64 }

func (idleExpired) isLobbyMsg() {}

type Cmd interface{ isCmd() }

type StartGame struct{}

type Stroke struct{ Stroke canvas.Stroke }

type ClearCanvas struct{}

type Guess struct{ Text string }

type Chat struct{ Text string }

type RequestSnapshot struct{}

func (StartGame) isCmd()       {}
func (Stroke) isCmd()          {}
func (ClearCanvas) isCmd()     {}
func (Guess) isCmd()           {}
func (Chat) isCmd()            {}
func (RequestSnapshot) isCmd() {}

// View is a race-free copy of the room for tests and the HTTP summary.
type View struct {
	Code       string
	Phase      engine.Phase
	Round      int
	MaxRounds  int
	Players    int
	Connected  int
	NumClients int
	Snapshot   protocol.Snapshot
}

// ResultRecorder stores finished games. It is called off the actor goroutine.
type ResultRecorder interface {
	RecordGame(ctx context.Context, roomCode string, result protocol.GameOver) error
}

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type TickerFactory func(d time.Duration) Ticker

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

func NewTimeTicker(d time.Duration) Ticker { return timeTicker{t: time.NewTicker(d)} }

type Options struct {
	Code         string
	Rules        engine.Rules
	Words        engine.WordProvider
	Logger       *zap.Logger
	Recorder     ResultRecorder
	IdleTimeout  time.Duration
	TickInterval time.Duration
	NewTicker    TickerFactory
	OnClose      func(code string)
	RosterOpts   []roster.Option
}

type client struct {
	conn uint64
	out  chan protocol.ServerMessage
}

type Lobby struct {
	code     string
	inbox    chan Msg
	session  *engine.Session
	clients  map[engine.PlayerID]*client
	tokens   map[engine.PlayerID][32]byte
	nextConn uint64
	log      *zap.Logger
	opts     Options

	// per-turn ticker; timerGen drops fires from a ticker that was replaced
	ticker   Ticker
	tickStop chan struct{}
	tickTurn int
	timerGen uint64

	idle    *time.Timer
	idleGen uint64

	ctx    context.Context
	cancel context.CancelFunc
}

func NewLobby(parent context.Context, opts Options) *Lobby {
	ctx, cancel := context.WithCancel(parent)
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.NewTicker == nil {
		opts.NewTicker = NewTimeTicker
	}

	l := &Lobby{
		code:    opts.Code,
		inbox:   make(chan Msg, 64), // Small buffer
		session: engine.New(opts.Code, opts.Rules, opts.Words, opts.RosterOpts...),
		clients: make(map[engine.PlayerID]*client),
		tokens:  make(map[engine.PlayerID][32]byte),
		log:     opts.Logger.With(zap.String("room", opts.Code)),
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
	}

	go l.loop()
	return l
}

func (l *Lobby) Code() string { return l.code }

// Expose the inbox so tests or WS layer can send messages.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

func (l *Lobby) Done() <-chan struct{} { return l.ctx.Done() }

// Send delivers m unless the lobby has already shut down.
func (l *Lobby) Send(m Msg) bool {
	select {
	case l.inbox <- m:
		return true
	case <-l.ctx.Done():
		return false
	}
}

func (l *Lobby) State(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	select {
	case l.inbox <- GetState{Reply: reply}:
	case <-l.ctx.Done():
		return View{}, ErrClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
	select {
	case v := <-reply:
		return v, nil
	case <-l.ctx.Done():
		return View{}, ErrClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

func (l *Lobby) loop() {
	l.armIdle()
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Join:
				l.handleJoin(msg)

			case Leave:
				c, ok := l.clients[msg.PlayerID]
				if !ok || c.conn != msg.ConnID {
					// an older connection of a player who already reconnected
					break
				}
				delete(l.clients, msg.PlayerID)
				l.leave(msg.PlayerID)

			case FromClient:
				c, ok := l.clients[msg.PlayerID]
				if !ok || c.conn != msg.ConnID {
					break
				}
				l.handleCmd(msg.PlayerID, msg.Cmd)

			case tickFired:
				if msg.gen != l.timerGen {
					break
				}
				events, _ := l.session.Tick(msg.turn)
				l.dispatch(events)

			case idleExpired:
				if msg.gen != l.idleGen || len(l.clients) > 0 {
					break
				}
				l.log.Info("closing idle room")
				l.shutdown()
				return

			case GetState:
				// test hook: reflect internal state without data races
				players := l.session.Players()
				msg.Reply <- View{
					Code:       l.code,
					Phase:      l.session.Phase(),
					Round:      l.session.Round(),
					MaxRounds:  l.session.Rules().MaxRounds,
					Players:    len(players),
					Connected:  l.session.ConnectedCount(),
					NumClients: len(l.clients),
					Snapshot:   l.session.Snapshot(""),
				}

			case Shutdown:
				l.shutdown()
				return
			}
			l.syncTicker()
		}
	}
}

func (l *Lobby) handleJoin(msg Join) {
	var (
		id     engine.PlayerID
		events []engine.Event
		err    error
	)
	if p, ok := l.session.Lookup(msg.Name); ok && msg.Token != "" && l.tokenValid(p.ID, msg.Token) {
		id = p.ID
		if old, attached := l.clients[id]; attached {
			// the same player on a new connection replaces the old one
			close(old.out)
			delete(l.clients, id)
		}
		if !p.Connected {
			events, err = l.session.Reconnect(id)
		}
	} else {
		id, events, err = l.session.Join(msg.Name)
	}
	if err != nil {
		msg.Reply <- JoinResult{Err: err}
		return
	}

	token, hash := newToken()
	l.tokens[id] = hash
	l.nextConn++
	c := &client{conn: l.nextConn, out: msg.Outbox}
	l.clients[id] = c
	l.stopIdle()
	msg.Reply <- JoinResult{PlayerID: id, ConnID: c.conn, Token: token}
	l.log.Info("player joined", zap.String("player", string(id)), zap.Uint64("conn", c.conn))

	l.trySend(c, message(protocol.EvtJoined, protocol.Joined{PlayerID: string(id), ReconnectToken: token}))
	l.trySend(c, message(protocol.EvtSnapshot, l.session.Snapshot(id)))
	l.dispatch(events)
}

func (l *Lobby) handleCmd(id engine.PlayerID, cmd Cmd) {
	var (
		events []engine.Event
		err    error
	)
	switch c := cmd.(type) {
	case StartGame:
		events, err = l.session.StartGame(id)
	case Stroke:
		events, err = l.session.ApplyStroke(id, c.Stroke)
		if errors.Is(err, engine.ErrStaleStroke) {
			// late duplicates are expected on a flaky link
			return
		}
	case ClearCanvas:
		events, err = l.session.ClearCanvas(id)
	case Guess:
		events, err = l.session.SubmitGuess(id, c.Text)
	case Chat:
		events, err = l.session.Chat(id, c.Text)
	case RequestSnapshot:
		if cl, ok := l.clients[id]; ok {
			l.trySend(cl, message(protocol.EvtSnapshot, l.session.Snapshot(id)))
		}
		return
	}
	if err != nil {
		l.sendError(id, err)
		return
	}
	l.dispatch(events)
}

// leave runs the session side of a disconnect. dispatch starts the idle
// clock once nobody is attached.
func (l *Lobby) leave(id engine.PlayerID) {
	events, err := l.session.Leave(id)
	if err != nil {
		l.log.Warn("leave failed", zap.String("player", string(id)), zap.Error(err))
	}
	l.log.Info("player left", zap.String("player", string(id)))
	l.dispatch(events)
}

// dispatch fans events out to their recipients. A client whose outbox is
// full is dropped; the resulting leave may emit more events, which are
// queued behind the current ones.
func (l *Lobby) dispatch(events []engine.Event) {
	queue := events
	for len(queue) > 0 {
		ev := queue[0]
		queue = queue[1:]

		if ev.Type == protocol.EvtGameOver {
			if result, ok := ev.Payload.(protocol.GameOver); ok {
				l.record(result)
			}
		}

		msg := message(ev.Type, ev.Payload)
		var dropped []engine.PlayerID
		for id, c := range l.clients {
			if !ev.To.Includes(id) {
				continue
			}
			if !l.trySend(c, msg) {
				dropped = append(dropped, id)
			}
		}
		for _, id := range dropped {
			l.log.Warn("dropping slow client", zap.String("player", string(id)))
			close(l.clients[id].out)
			delete(l.clients, id)
			more, err := l.session.Leave(id)
			if err != nil {
				continue
			}
			queue = append(queue, more...)
		}
	}
	if len(l.clients) == 0 {
		l.armIdle()
	}
}

func (l *Lobby) trySend(c *client, msg protocol.ServerMessage) bool {
	select {
	case c.out <- msg:
		return true
	default:
		// Client is slow/full
		return false
	}
}

func (l *Lobby) sendError(id engine.PlayerID, err error) {
	c, ok := l.clients[id]
	if !ok {
		return
	}
	l.trySend(c, message(protocol.EvtError, protocol.Error{
		Code:    engine.ErrorCode(err),
		Message: err.Error(),
	}))
}

func (l *Lobby) record(result protocol.GameOver) {
	rec := l.opts.Recorder
	if rec == nil {
		return
	}
	code, log := l.code, l.log
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rec.RecordGame(ctx, code, result); err != nil {
			log.Warn("record game failed", zap.Error(err))
		}
	}()
}

// syncTicker keeps exactly one ticker running for the active turn and none
// otherwise. It runs after every message, so a turn that ends early never
// sees another tick.
func (l *Lobby) syncTicker() {
	turn, active := l.session.ActiveTurnID()
	if active && l.ticker != nil && l.tickTurn == turn {
		return
	}
	l.stopTicker()
	if !active {
		return
	}

	l.timerGen++
	gen := l.timerGen
	t := l.opts.NewTicker(l.opts.TickInterval)
	stop := make(chan struct{})
	l.ticker, l.tickStop, l.tickTurn = t, stop, turn

	go func() {
		for {
			select {
			case <-stop:
				return
			case <-l.ctx.Done():
				return
			case <-t.C():
				select {
				case l.inbox <- tickFired{turn: turn, gen: gen}:
				case <-stop:
					return
				case <-l.ctx.Done():
					return
				}
			}
		}
	}()
}

func (l *Lobby) stopTicker() {
	if l.ticker == nil {
		return
	}
	l.ticker.Stop()
	close(l.tickStop)
	l.ticker, l.tickStop = nil, nil
	l.timerGen++
}

func (l *Lobby) armIdle() {
	if l.opts.IdleTimeout <= 0 || l.idle != nil {
		return
	}
	l.idleGen++
	gen := l.idleGen
	l.idle = time.AfterFunc(l.opts.IdleTimeout, func() {
		l.Send(idleExpired{gen: gen})
	})
}

func (l *Lobby) stopIdle() {
	if l.idle == nil {
		return
	}
	l.idle.Stop()
	l.idle = nil
	l.idleGen++
}

func (l *Lobby) shutdown() {
	l.stopTicker()
	l.stopIdle()
	for id, c := range l.clients {
		close(c.out) // Tell client no more messages
		delete(l.clients, id)
	}
	l.cancel()
	if l.opts.OnClose != nil {
		go l.opts.OnClose(l.code)
	}
}

func message(typ protocol.ServerEvent, payload any) protocol.ServerMessage {
	return protocol.ServerMessage{Type: typ, Version: protocol.Version, Data: payload}
}
