package hub

import (
	"context"
	"errors"
	"slices"

	"github.com/DoyleJ11/sketchroom/internal/lobby"
	"go.uber.org/zap"
)

var ErrStopped = errors.New("hub stopped")

type HubMsg interface{ isHubMsg() }

// CreateRoom replies nil when the code is already taken.
type CreateRoom struct {
	Code  string
	Reply chan *lobby.Lobby
}

type GetRoom struct {
	Code  string
	Reply chan *lobby.Lobby
}

type EnsureRoom struct {
	Code  string
	Reply chan *lobby.Lobby
}

// RemoveRoom drops the room only once its lobby has shut down, so a late
// close callback never removes a newer room that reused the code.
type RemoveRoom struct {
	Code string
}

type ListRooms struct {
	Reply chan []string
}

type ShutdownHub struct{}

func (CreateRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (EnsureRoom) isHubMsg()  {}
func (RemoveRoom) isHubMsg()  {}
func (ListRooms) isHubMsg()   {}
func (ShutdownHub) isHubMsg() {}

type Hub struct {
	inbox    chan HubMsg
	lobbies  map[string]*lobby.Lobby
	template lobby.Options
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewHub starts the registry. Every room is created from template with its
// own Code and an OnClose hook that unregisters it.
func NewHub(parent context.Context, template lobby.Options) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if template.Logger == nil {
		template.Logger = zap.NewNop()
	}
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		lobbies:  make(map[string]*lobby.Lobby),
		template: template,
		log:      template.Logger,
		ctx:      ctx,
		cancel:   cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				if h.lobbies[msg.Code] != nil {
					msg.Reply <- nil
					break
				}
				msg.Reply <- h.spawn(msg.Code)

			case GetRoom:
				msg.Reply <- h.lobbies[msg.Code] // May be nil

			case EnsureRoom:
				if lb := h.lobbies[msg.Code]; lb != nil {
					msg.Reply <- lb
					break
				}
				msg.Reply <- h.spawn(msg.Code)

			case RemoveRoom:
				lb := h.lobbies[msg.Code]
				if lb == nil {
					break
				}
				select {
				case <-lb.Done():
					delete(h.lobbies, msg.Code)
					h.log.Info("room removed", zap.String("room", msg.Code))
				default:
				}

			case ListRooms:
				codes := make([]string, 0, len(h.lobbies))
				for code := range h.lobbies {
					codes = append(codes, code)
				}
				slices.Sort(codes)
				msg.Reply <- codes

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) spawn(code string) *lobby.Lobby {
	opts := h.template
	opts.Code = code
	opts.OnClose = func(code string) { h.Remove(code) }
	lb := lobby.NewLobby(h.ctx, opts)
	h.lobbies[code] = lb
	h.log.Info("room created", zap.String("room", code))
	return lb
}

func (h *Hub) shutdown() {
	for _, lb := range h.lobbies {
		lb.Send(lobby.Shutdown{})
	}
	clear(h.lobbies)
	h.cancel()
}

func (h *Hub) ask(ctx context.Context, msg HubMsg, reply chan *lobby.Lobby) (*lobby.Lobby, error) {
	select {
	case h.inbox <- msg:
	case <-h.ctx.Done():
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case lb := <-reply:
		return lb, nil
	case <-h.ctx.Done():
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Create returns nil and no error when code is taken.
func (h *Hub) Create(ctx context.Context, code string) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	return h.ask(ctx, CreateRoom{Code: code, Reply: reply}, reply)
}

func (h *Hub) Get(ctx context.Context, code string) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	return h.ask(ctx, GetRoom{Code: code, Reply: reply}, reply)
}

func (h *Hub) Ensure(ctx context.Context, code string) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	return h.ask(ctx, EnsureRoom{Code: code, Reply: reply}, reply)
}

func (h *Hub) Remove(code string) {
	select {
	case h.inbox <- RemoveRoom{Code: code}:
	case <-h.ctx.Done():
	}
}

func (h *Hub) List(ctx context.Context) ([]string, error) {
	reply := make(chan []string, 1)
	select {
	case h.inbox <- ListRooms{Reply: reply}:
	case <-h.ctx.Done():
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case codes := <-reply:
		return codes, nil
	case <-h.ctx.Done():
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
