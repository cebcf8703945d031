package protocol

// Snapshot is everything a late joiner or a reconnecting client needs to
// rebuild the visible room state without replaying individual strokes.
//
//   phase: "lobby" | "in_turn" | "game_over"
//   word: only present for the current drawer
//   strokes: every stroke of the current canvas epoch, in order
type Snapshot struct {
	RoomID     string        `json:"room_id"`
	Phase      string        `json:"phase"`
	Round      int           `json:"round"`
	MaxRounds  int           `json:"max_rounds"`
	Turn       int           `json:"turn"`
	Players    []PlayerState `json:"players"`
	HostID     string        `json:"host_id"`
	DrawerID   string        `json:"drawer_id,omitempty"`
	Remaining  int           `json:"remaining"`
	Duration   int           `json:"duration"`
	WordLength int           `json:"word_length"`
	Word       string        `json:"word,omitempty"`
	Hints      []Hint        `json:"hints"`
	Epoch      uint64        `json:"epoch"`
	Strokes    []Stroke      `json:"strokes"`
}

type PlayerState struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Score     int    `json:"score"`
	Host      bool   `json:"host"`
	Drawer    bool   `json:"drawer"`
	Connected bool   `json:"connected"`
	Guessed   bool   `json:"guessed"`
}
