package lobby

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"

	"github.com/DoyleJ11/sketchroom/internal/engine"
	"golang.org/x/crypto/blake2b"
)

// newToken returns a reconnect token and the hash the lobby keeps. The token
// itself is only ever sent to its owner.
func newToken() (string, [32]byte) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	token := base64.RawURLEncoding.EncodeToString(b)
	return token, blake2b.Sum256([]byte(token))
}

func (l *Lobby) tokenValid(id engine.PlayerID, token string) bool {
	stored, ok := l.tokens[id]
	if !ok {
		return false
	}
	sum := blake2b.Sum256([]byte(token))
	return subtle.ConstantTimeCompare(sum[:], stored[:]) == 1
}
