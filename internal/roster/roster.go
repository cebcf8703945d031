package roster

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/DoyleJ11/sketchroom/internal/textnorm"
	"github.com/google/uuid"
)

var ErrInvalidName = errors.New("invalid player name")
var ErrDuplicateName = errors.New("name already taken in this room")
var ErrUnknownPlayer = errors.New("unknown player")
var ErrRoomFull = errors.New("room is full")

const MaxNameLength = 24

type PlayerID string

type Player struct {
	ID        PlayerID
	Name      string
	Score     int
	Host      bool
	Connected bool
	JoinOrder int
}

// Roster keeps every player that ever joined the room, in join order.
// Disconnected players stay listed so their score survives and their name
// stays reserved for a reconnect.
type Roster struct {
	players    []*Player
	byID       map[PlayerID]*Player
	byName     map[string]*Player
	hostID     PlayerID
	maxPlayers int
	newID      func() PlayerID
}

type Option func(*Roster)

// WithIDGenerator replaces the uuid generator, mostly for tests.
func WithIDGenerator(gen func() PlayerID) Option {
	return func(r *Roster) { r.newID = gen }
}

func New(maxPlayers int, opts ...Option) *Roster {
	r := &Roster{
		byID:       map[PlayerID]*Player{},
		byName:     map[string]*Player{},
		maxPlayers: maxPlayers,
		newID:      func() PlayerID { return PlayerID(uuid.NewString()) },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Join admits a new player. Names are compared case-insensitively and are
// never auto-suffixed: the caller retries with another name.
func (r *Roster) Join(name string) (PlayerID, error) {
	name = textnorm.Clean(name)
	if name == "" || utf8.RuneCountInString(name) > MaxNameLength {
		return "", fmt.Errorf("%w: must be 1-%d characters", ErrInvalidName, MaxNameLength)
	}
	key := textnorm.Fold(name)
	if _, taken := r.byName[key]; taken {
		return "", fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	if r.maxPlayers > 0 && r.ConnectedCount() >= r.maxPlayers {
		return "", ErrRoomFull
	}

	p := &Player{
		ID:        r.newID(),
		Name:      name,
		Connected: true,
		JoinOrder: len(r.players),
	}
	r.players = append(r.players, p)
	r.byID[p.ID] = p
	r.byName[key] = p
	if r.hostID == "" {
		r.setHost(p)
	}
	return p.ID, nil
}

// Leave marks the player disconnected and hands the host role on if needed.
// The player's score is kept.
func (r *Roster) Leave(id PlayerID) error {
	p, ok := r.byID[id]
	if !ok {
		return ErrUnknownPlayer
	}
	p.Connected = false
	if p.Host {
		p.Host = false
		r.hostID = ""
		if next := r.nextHost(p.JoinOrder); next != nil {
			r.setHost(next)
		}
	}
	return nil
}

// Reconnect restores a known player without touching score or turn state.
func (r *Roster) Reconnect(id PlayerID) error {
	p, ok := r.byID[id]
	if !ok {
		return ErrUnknownPlayer
	}
	if !p.Connected && r.maxPlayers > 0 && r.ConnectedCount() >= r.maxPlayers {
		return ErrRoomFull
	}
	p.Connected = true
	if r.hostID == "" {
		r.setHost(p)
	}
	return nil
}

// nextHost picks the first connected player who joined after the old host,
// wrapping around to the earliest joiner.
func (r *Roster) nextHost(after int) *Player {
	for _, p := range r.players[after+1:] {
		if p.Connected {
			return p
		}
	}
	for _, p := range r.players[:after] {
		if p.Connected {
			return p
		}
	}
	return nil
}

func (r *Roster) setHost(p *Player) {
	p.Host = true
	r.hostID = p.ID
}

func (r *Roster) HostID() PlayerID { return r.hostID }

func (r *Roster) IsHost(id PlayerID) bool { return id != "" && r.hostID == id }

func (r *Roster) Get(id PlayerID) (Player, bool) {
	p, ok := r.byID[id]
	if !ok {
		return Player{}, false
	}
	return *p, true
}

func (r *Roster) Lookup(name string) (Player, bool) {
	p, ok := r.byName[textnorm.Fold(name)]
	if !ok {
		return Player{}, false
	}
	return *p, true
}

func (r *Roster) Connected(id PlayerID) bool {
	p, ok := r.byID[id]
	return ok && p.Connected
}

// Players returns copies in join order.
func (r *Roster) Players() []Player {
	out := make([]Player, len(r.players))
	for i, p := range r.players {
		out[i] = *p
	}
	return out
}

func (r *Roster) ConnectedCount() int {
	n := 0
	for _, p := range r.players {
		if p.Connected {
			n++
		}
	}
	return n
}

func (r *Roster) AddScore(id PlayerID, delta int) {
	if delta < 0 {
		panic("roster: negative score delta")
	}
	if p, ok := r.byID[id]; ok {
		p.Score += delta
	}
}

func (r *Roster) ResetScores() {
	for _, p := range r.players {
		p.Score = 0
	}
}

func (r *Roster) Scores() map[string]int {
	out := make(map[string]int, len(r.players))
	for _, p := range r.players {
		out[string(p.ID)] = p.Score
	}
	return out
}
