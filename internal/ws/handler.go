package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/DoyleJ11/sketchroom/internal/engine"
	"github.com/DoyleJ11/sketchroom/internal/hub"
	"github.com/DoyleJ11/sketchroom/internal/lobby"
	"github.com/DoyleJ11/sketchroom/pkg/protocol"
	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type Config struct {
	OriginPatterns []string
	AutoCreate     bool
	OutboxSize     int
	ReadLimit      int64
	WriteTimeout   time.Duration
	JoinTimeout    time.Duration
	PingInterval   time.Duration
	// chat, guesses and control messages share one limiter; strokes get their own
	ChatRate    rate.Limit
	ChatBurst   int
	StrokeRate  rate.Limit
	StrokeBurst int
}

func DefaultConfig() Config {
	return Config{
		OutboxSize:   64,
		ReadLimit:    16 << 10,
		WriteTimeout: 5 * time.Second,
		JoinTimeout:  15 * time.Second,
		PingInterval: 30 * time.Second,
		ChatRate:     2,
		ChatBurst:    5,
		StrokeRate:   120,
		StrokeBurst:  240,
	}
}

// session is the per-connection state. Nothing about a client lives outside
// of it.
type session struct {
	conn   *websocket.Conn
	lb     *lobby.Lobby
	cfg    Config
	log    *zap.Logger
	player engine.PlayerID
	connID uint64
	chat   *rate.Limiter
	stroke *rate.Limiter
}

func Handler(h *hub.Hub, cfg Config, log *zap.Logger) http.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		code := strings.ToUpper(chi.URLParam(r, "code"))
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}

		var (
			lb  *lobby.Lobby
			err error
		)
		if cfg.AutoCreate {
			lb, err = h.Ensure(r.Context(), code)
		} else {
			lb, err = h.Get(r.Context(), code)
		}
		if err != nil {
			http.Error(w, "server shutting down", http.StatusServiceUnavailable)
			return
		}
		if lb == nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: cfg.OriginPatterns,
		})
		if err != nil {
			log.Debug("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.CloseNow()
		conn.SetReadLimit(cfg.ReadLimit)

		s := &session{
			conn:   conn,
			lb:     lb,
			cfg:    cfg,
			log:    log.With(zap.String("room", code)),
			chat:   rate.NewLimiter(cfg.ChatRate, cfg.ChatBurst),
			stroke: rate.NewLimiter(cfg.StrokeRate, cfg.StrokeBurst),
		}
		s.run(r.Context())
	}
}

func (s *session) run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	out := make(chan protocol.ServerMessage, s.cfg.OutboxSize)
	if !s.join(ctx, out) {
		return
	}
	s.log = s.log.With(zap.String("player", string(s.player)))
	defer s.lb.Send(lobby.Leave{PlayerID: s.player, ConnID: s.connID})

	// Writer goroutine
	go s.writeLoop(ctx, cancel, out)
	go s.pingLoop(ctx, cancel)

	// Reader loop
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if ctx.Err() == nil {
					s.log.Debug("read failed", zap.Error(err))
				}
			}
			return
		}

		msg, err := decodeEnvelope(data)
		if err != nil {
			s.writeError(ctx, protocol.CodeBadMessage, err.Error())
			continue
		}
		cmd, err := decodeCommand(msg)
		if err != nil {
			s.writeError(ctx, protocol.CodeBadMessage, err.Error())
			continue
		}
		if !s.allow(cmd) {
			if _, isStroke := cmd.(lobby.Stroke); !isStroke {
				s.writeError(ctx, protocol.CodeRateLimited, "slow down")
			}
			continue
		}
		if !s.lb.Send(lobby.FromClient{PlayerID: s.player, ConnID: s.connID, Cmd: cmd}) {
			s.conn.Close(websocket.StatusGoingAway, "room closed")
			return
		}
	}
}

// join reads frames until a join_room succeeds. Anything else before that
// is answered with not_joined.
func (s *session) join(parent context.Context, out chan protocol.ServerMessage) bool {
	ctx, cancel := context.WithTimeout(parent, s.cfg.JoinTimeout)
	defer cancel()

	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				s.conn.Close(websocket.StatusPolicyViolation, "join timeout")
			}
			return false
		}
		msg, err := decodeEnvelope(data)
		if err != nil {
			s.writeError(ctx, protocol.CodeBadMessage, err.Error())
			continue
		}
		if msg.Type != protocol.CmdJoinRoom {
			s.writeError(ctx, protocol.CodeNotJoined, "send join_room first")
			continue
		}
		req, err := decodeJoin(msg)
		if err != nil {
			s.writeError(ctx, protocol.CodeBadMessage, err.Error())
			continue
		}

		reply := make(chan lobby.JoinResult, 1)
		if !s.lb.Send(lobby.Join{Name: req.PlayerName, Token: req.ReconnectToken, Outbox: out, Reply: reply}) {
			s.conn.Close(websocket.StatusGoingAway, "room closed")
			return false
		}
		var res lobby.JoinResult
		select {
		case res = <-reply:
		case <-s.lb.Done():
			s.conn.Close(websocket.StatusGoingAway, "room closed")
			return false
		case <-ctx.Done():
			return false
		}
		if res.Err != nil {
			s.writeError(ctx, engine.ErrorCode(res.Err), res.Err.Error())
			continue
		}
		s.player, s.connID = res.PlayerID, res.ConnID
		return true
	}
}

func (s *session) allow(cmd lobby.Cmd) bool {
	switch cmd.(type) {
	case lobby.Stroke:
		return s.stroke.Allow()
	case lobby.RequestSnapshot:
		return true
	default:
		return s.chat.Allow()
	}
}

// writeLoop owns outbound lobby traffic. The lobby closes out when it drops
// or replaces this connection.
func (s *session) writeLoop(ctx context.Context, cancel context.CancelFunc, out <-chan protocol.ServerMessage) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-out:
			if !ok {
				s.conn.Close(websocket.StatusPolicyViolation, "disconnected by server")
				return
			}
			if err := s.write(ctx, msg); err != nil {
				s.log.Debug("write failed", zap.Error(err))
				return
			}
		}
	}
}

func (s *session) pingLoop(ctx context.Context, cancel context.CancelFunc) {
	if s.cfg.PingInterval <= 0 {
		return
	}
	t := time.NewTicker(s.cfg.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, pcancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
			err := s.conn.Ping(pctx)
			pcancel()
			if err != nil {
				cancel()
				return
			}
		}
	}
}

func (s *session) write(ctx context.Context, msg protocol.ServerMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()
	return s.conn.Write(wctx, websocket.MessageText, payload)
}

func (s *session) writeError(ctx context.Context, code protocol.ErrorCode, text string) {
	_ = s.write(ctx, protocol.ServerMessage{
		Type:    protocol.EvtError,
		Version: protocol.Version,
		Data:    protocol.Error{Code: code, Message: text},
	})
}
