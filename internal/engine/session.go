package engine

import (
	"fmt"

	"github.com/DoyleJ11/sketchroom/internal/canvas"
	"github.com/DoyleJ11/sketchroom/internal/roster"
	"github.com/DoyleJ11/sketchroom/internal/textnorm"
	"github.com/DoyleJ11/sketchroom/pkg/protocol"
)

type turn struct {
	drawer    PlayerID
	word      string
	folded    string
	length    int
	remaining int
	hints     int
	guessed   map[PlayerID]bool
	order     []PlayerID
	// accrued per correct guess, credited to the drawer once at turn end
	drawerReward int
}

// Session is the authoritative state of one room. It is not safe for
// concurrent use: the lobby actor owns it and calls it from one goroutine.
//
// Every operation either returns events and mutates state, or returns an
// error and leaves state untouched.
type Session struct {
	roomID string
	rules  Rules
	words  WordProvider
	roster *roster.Roster

	phase   Phase
	round   int
	turnNum int // within the round
	turnSeq int // across the whole room, tags ticks
	drawn   map[PlayerID]bool
	used    map[string]struct{}
	canvas  canvas.Canvas
	turn    *turn
	result  *protocol.GameOver
}

func New(roomID string, rules Rules, words WordProvider, opts ...roster.Option) *Session {
	return &Session{
		roomID: roomID,
		rules:  rules,
		words:  words,
		roster: roster.New(rules.MaxPlayers, opts...),
		phase:  PhaseLobby,
		drawn:  map[PlayerID]bool{},
		used:   map[string]struct{}{},
	}
}

func (s *Session) RoomID() string { return s.roomID }

func (s *Session) Phase() Phase { return s.phase }

func (s *Session) Round() int { return s.round }

func (s *Session) Rules() Rules { return s.rules }

func (s *Session) Players() []roster.Player { return s.roster.Players() }

func (s *Session) ConnectedCount() int { return s.roster.ConnectedCount() }

func (s *Session) Lookup(name string) (roster.Player, bool) { return s.roster.Lookup(name) }

// ActiveTurnID reports the sequence number of the running turn. Tick only
// acts on this id.
func (s *Session) ActiveTurnID() (int, bool) {
	return s.turnSeq, s.phase == PhaseInTurn
}

// Result returns the final standings of the last finished game.
func (s *Session) Result() (protocol.GameOver, bool) {
	if s.result == nil {
		return protocol.GameOver{}, false
	}
	return *s.result, true
}

func (s *Session) Join(name string) (PlayerID, []Event, error) {
	id, err := s.roster.Join(name)
	if err != nil {
		return "", nil, err
	}
	return id, []Event{s.rosterUpdate()}, nil
}

func (s *Session) Reconnect(id PlayerID) ([]Event, error) {
	if err := s.roster.Reconnect(id); err != nil {
		return nil, err
	}
	return []Event{s.rosterUpdate()}, nil
}

// Leave disconnects a player. Their score stays on the board and their name
// stays reserved. A leaving drawer ends the turn.
func (s *Session) Leave(id PlayerID) ([]Event, error) {
	if err := s.roster.Leave(id); err != nil {
		return nil, err
	}
	events := []Event{s.rosterUpdate()}
	if s.phase != PhaseInTurn {
		return events, nil
	}
	switch {
	case id == s.turn.drawer:
		events = append(events, s.endTurn(ReasonDrawerLeft)...)
	case s.roster.ConnectedCount() < 2:
		events = append(events, s.endTurn(ReasonNotEnoughPlayers)...)
	case s.allGuessed():
		events = append(events, s.endTurn(ReasonAllGuessed)...)
	}
	return events, nil
}

// StartGame is accepted in the lobby and again after game over, where it
// starts a fresh game with the same roster and zeroed scores.
func (s *Session) StartGame(requester PlayerID) ([]Event, error) {
	if _, ok := s.roster.Get(requester); !ok {
		return nil, ErrUnknownPlayer
	}
	if s.phase != PhaseLobby && s.phase != PhaseGameOver {
		return nil, fmt.Errorf("%w: game already running", ErrInvalidState)
	}
	if !s.roster.IsHost(requester) {
		return nil, ErrNotHost
	}
	if s.roster.ConnectedCount() < 2 {
		return nil, ErrInsufficientPlayers
	}

	if s.phase == PhaseGameOver {
		s.roster.ResetScores()
		s.used = map[string]struct{}{}
		s.result = nil
	}
	s.phase = PhaseDrawerSelecting
	s.round = 1
	s.turnNum = 0
	s.drawn = map[PlayerID]bool{}

	events := []Event{{
		Type:    protocol.EvtGameStarted,
		To:      Everyone(),
		Payload: s.Snapshot(""),
	}}
	drawer, _ := s.nextDrawer()
	return append(events, s.beginTurn(drawer)...), nil
}

func (s *Session) beginTurn(drawer PlayerID) []Event {
	if s.phase == PhaseInTurn {
		panic("engine: beginTurn while a turn is active")
	}
	word := s.pickWord()
	s.used[word] = struct{}{}
	epoch := s.canvas.Clear()

	s.turnSeq++
	s.turnNum++
	s.drawn[drawer] = true
	s.turn = &turn{
		drawer:    drawer,
		word:      word,
		folded:    textnorm.Fold(word),
		length:    len([]rune(word)),
		remaining: s.rules.TurnDurationSec,
		guessed:   map[PlayerID]bool{},
	}
	s.phase = PhaseInTurn

	return []Event{
		{Type: protocol.EvtCanvasCleared, To: Everyone(), Payload: protocol.CanvasCleared{Epoch: epoch}},
		{Type: protocol.EvtTurnStarted, To: Everyone(), Payload: protocol.TurnStarted{
			DrawerID:   string(drawer),
			WordLength: s.turn.length,
			Round:      s.round,
			MaxRounds:  s.rules.MaxRounds,
			Turn:       s.turnNum,
			Duration:   s.rules.TurnDurationSec,
		}},
		{Type: protocol.EvtYourWord, To: Only(drawer), Payload: protocol.YourWord{Word: word}},
	}
}

// pickWord starts the exclusion set over once the bank has nothing left.
func (s *Session) pickWord() string {
	word, err := s.words.NextWord(s.used)
	if err != nil {
		s.used = map[string]struct{}{}
		word, err = s.words.NextWord(s.used)
	}
	if err != nil {
		panic(fmt.Sprintf("engine: word provider failed with an empty exclusion set: %v", err))
	}
	return word
}

func (s *Session) SubmitGuess(player PlayerID, text string) ([]Event, error) {
	if _, ok := s.roster.Get(player); !ok {
		return nil, ErrUnknownPlayer
	}
	if s.phase != PhaseInTurn {
		return nil, fmt.Errorf("%w: no turn in progress", ErrInvalidState)
	}
	t := s.turn
	if player == t.drawer {
		return nil, ErrDrawerCannotGuess
	}
	if t.guessed[player] {
		return nil, ErrAlreadyGuessed
	}

	guess := textnorm.Fold(text)
	if guess == "" {
		return nil, nil
	}
	if guess != t.folded {
		if s.givesAway(guess) {
			return nil, nil
		}
		return []Event{{
			Type:    protocol.EvtChat,
			To:      Only(player, t.drawer),
			Payload: protocol.Chat{PlayerID: string(player), Text: textnorm.Clean(text)},
		}}, nil
	}

	rank := len(t.order) + 1
	elapsed := s.rules.TurnDurationSec - t.remaining
	points, bonus := s.rules.Scoring.Score(rank, elapsed, s.rules.TurnDurationSec)
	s.roster.AddScore(player, points)
	t.guessed[player] = true
	t.order = append(t.order, player)
	t.drawerReward += bonus

	events := []Event{{
		Type: protocol.EvtCorrectGuess,
		To:   Everyone(),
		Payload: protocol.CorrectGuess{
			PlayerID:    string(player),
			Points:      points,
			DrawerBonus: bonus,
			Scores:      s.roster.Scores(),
		},
	}}
	if s.allGuessed() {
		events = append(events, s.endTurn(ReasonAllGuessed)...)
	}
	return events, nil
}

// Chat relays free text. During a turn the drawer and players who already
// guessed talk in their own lane; anyone else's message that gives the word
// away is handled as a guess instead.
func (s *Session) Chat(player PlayerID, text string) ([]Event, error) {
	if _, ok := s.roster.Get(player); !ok {
		return nil, ErrUnknownPlayer
	}
	text = textnorm.Clean(text)
	if text == "" {
		return nil, nil
	}
	msg := protocol.Chat{PlayerID: string(player), Text: text}

	if s.phase != PhaseInTurn {
		return []Event{{Type: protocol.EvtChat, To: Everyone(), Payload: msg}}, nil
	}
	t := s.turn
	if player == t.drawer || t.guessed[player] {
		lane := append([]PlayerID{t.drawer}, t.order...)
		return []Event{{Type: protocol.EvtChat, To: Only(lane...), Payload: msg}}, nil
	}
	if s.givesAway(textnorm.Fold(text)) {
		return s.SubmitGuess(player, text)
	}
	return []Event{{Type: protocol.EvtChat, To: Everyone(), Payload: msg}}, nil
}

// Tick advances the countdown of turn turnID by one second. Ticks for any
// other turn are stale and ignored.
func (s *Session) Tick(turnID int) ([]Event, error) {
	if s.phase != PhaseInTurn || turnID != s.turnSeq {
		return nil, nil
	}
	t := s.turn
	t.remaining--
	if t.remaining < 0 {
		t.remaining = 0
	}
	elapsed := s.rules.TurnDurationSec - t.remaining

	events := []Event{{Type: protocol.EvtTimer, To: Everyone(), Payload: protocol.Timer{Remaining: t.remaining}}}
	if due := s.rules.Hints.Due(s.rules.TurnDurationSec, t.length, elapsed); due > t.hints {
		revealed := s.rules.Hints.Reveal(t.word, s.rules.TurnDurationSec, elapsed)
		for _, h := range revealed[t.hints:due] {
			events = append(events, Event{
				Type:    protocol.EvtHintRevealed,
				To:      Everyone(),
				Payload: protocol.Hint{Kind: string(h.Kind), Value: h.Value},
			})
		}
		t.hints = due
	}
	if t.remaining == 0 {
		events = append(events, s.endTurn(ReasonTimeout)...)
	}
	return events, nil
}

func (s *Session) ApplyStroke(player PlayerID, st canvas.Stroke) ([]Event, error) {
	if err := s.drawerCheck(player); err != nil {
		return nil, err
	}
	if err := st.Validate(s.rules.Canvas); err != nil {
		return nil, err
	}
	if err := s.canvas.Append(st); err != nil {
		return nil, err
	}
	return []Event{{
		Type:    protocol.EvtStrokeBroadcast,
		To:      Except(player),
		Payload: strokeToWire(st),
	}}, nil
}

func (s *Session) ClearCanvas(player PlayerID) ([]Event, error) {
	if err := s.drawerCheck(player); err != nil {
		return nil, err
	}
	epoch := s.canvas.Clear()
	return []Event{{
		Type:    protocol.EvtCanvasCleared,
		To:      Everyone(),
		Payload: protocol.CanvasCleared{Epoch: epoch},
	}}, nil
}

func (s *Session) drawerCheck(player PlayerID) error {
	if _, ok := s.roster.Get(player); !ok {
		return ErrUnknownPlayer
	}
	if s.phase != PhaseInTurn {
		return fmt.Errorf("%w: no turn in progress", ErrInvalidState)
	}
	if player != s.turn.drawer {
		return ErrNotDrawer
	}
	return nil
}

// endTurn reveals the word, credits the drawer, then either starts the next
// turn or finishes the game.
func (s *Session) endTurn(reason EndReason) []Event {
	t := s.turn
	s.phase = PhaseTurnEnding
	s.roster.AddScore(t.drawer, t.drawerReward)

	events := []Event{{
		Type: protocol.EvtTurnEnded,
		To:   Everyone(),
		Payload: protocol.TurnEnded{
			Word:   t.word,
			Reason: string(reason),
			Scores: s.roster.Scores(),
		},
	}}

	if s.roster.ConnectedCount() < 2 {
		return append(events, s.finish())
	}
	if next, ok := s.nextDrawer(); ok {
		s.phase = PhaseDrawerSelecting
		return append(events, s.beginTurn(next)...)
	}

	s.phase = PhaseRoundEnding
	if s.round >= s.rules.MaxRounds {
		return append(events, s.finish())
	}
	s.round++
	s.turnNum = 0
	s.drawn = map[PlayerID]bool{}
	next, ok := s.nextDrawer()
	if !ok {
		return append(events, s.finish())
	}
	s.phase = PhaseDrawerSelecting
	return append(events, s.beginTurn(next)...)
}

func (s *Session) finish() Event {
	s.phase = PhaseGameOver
	standings := standings(s.roster.Players())
	result := protocol.GameOver{
		FinalScores: standings,
		Rounds:      s.round,
	}
	if len(standings) > 0 {
		result.Winner = standings[0].PlayerID
	}
	s.result = &result
	return Event{Type: protocol.EvtGameOver, To: Everyone(), Payload: result}
}

// allGuessed is true when at least one connected guesser exists and every
// one of them has guessed.
func (s *Session) allGuessed() bool {
	t := s.turn
	guessers := 0
	for _, p := range s.roster.Players() {
		if !p.Connected || p.ID == t.drawer {
			continue
		}
		guessers++
		if !t.guessed[p.ID] {
			return false
		}
	}
	return guessers > 0
}

func (s *Session) givesAway(folded string) bool {
	return censored(folded, s.turn.folded)
}

func (s *Session) rosterUpdate() Event {
	return Event{
		Type: protocol.EvtRosterUpdate,
		To:   Everyone(),
		Payload: protocol.RosterUpdate{
			Players: s.playerStates(),
			HostID:  string(s.roster.HostID()),
		},
	}
}

// Snapshot is a pure read of everything a client needs to rebuild the room.
// The word is only included for the current drawer.
func (s *Session) Snapshot(forPlayer PlayerID) protocol.Snapshot {
	snap := protocol.Snapshot{
		RoomID:    s.roomID,
		Phase:     string(s.phase),
		Round:     s.round,
		MaxRounds: s.rules.MaxRounds,
		Turn:      s.turnNum,
		Players:   s.playerStates(),
		HostID:    string(s.roster.HostID()),
		Duration:  s.rules.TurnDurationSec,
		Hints:     []protocol.Hint{},
		Epoch:     s.canvas.Epoch(),
		Strokes:   strokesToWire(s.canvas.Strokes()),
	}
	if s.phase != PhaseInTurn {
		return snap
	}
	t := s.turn
	snap.DrawerID = string(t.drawer)
	snap.Remaining = t.remaining
	snap.WordLength = t.length
	if forPlayer != "" && forPlayer == t.drawer {
		snap.Word = t.word
	}
	elapsed := s.rules.TurnDurationSec - t.remaining
	revealed := s.rules.Hints.Reveal(t.word, s.rules.TurnDurationSec, elapsed)
	for _, h := range revealed[:min(t.hints, len(revealed))] {
		snap.Hints = append(snap.Hints, protocol.Hint{Kind: string(h.Kind), Value: h.Value})
	}
	return snap
}

func (s *Session) playerStates() []protocol.PlayerState {
	players := s.roster.Players()
	out := make([]protocol.PlayerState, 0, len(players))
	for _, p := range players {
		ps := protocol.PlayerState{
			ID:        string(p.ID),
			Name:      p.Name,
			Score:     p.Score,
			Host:      p.Host,
			Connected: p.Connected,
		}
		if s.phase == PhaseInTurn {
			ps.Drawer = p.ID == s.turn.drawer
			ps.Guessed = s.turn.guessed[p.ID]
		}
		out = append(out, ps)
	}
	return out
}
