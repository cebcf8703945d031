package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strings"

	"github.com/DoyleJ11/sketchroom/internal/hub"
	"github.com/DoyleJ11/sketchroom/internal/lobby"
	"github.com/DoyleJ11/sketchroom/pkg/protocol"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const historyLimit = 20

// History serves finished games of a room, newest first.
type History interface {
	RecentGames(ctx context.Context, roomCode string, limit int) ([]protocol.GameRecord, error)
}

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := 0; i < 6; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

func CreateRoom(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var code string
		for {
			c, err := GenerateCode()
			if err != nil {
				http.Error(w, "failed to generate code", http.StatusInternalServerError)
				return
			}
			lb, err := h.Create(r.Context(), c)
			if err != nil {
				http.Error(w, "failed to create room", http.StatusServiceUnavailable)
				return
			}
			if lb != nil {
				code = c
				break
			}
			log.Debug("collision on code, regenerating", zap.String("room", c))
		}

		writeJSON(w, http.StatusCreated, struct {
			Code string `json:"code"`
		}{Code: code})
	}
}

func GetRoom(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lb, ok := lookup(w, r, h)
		if !ok {
			return
		}
		v, err := lb.State(r.Context())
		if errors.Is(err, lobby.ErrClosed) {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "room unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, protocol.RoomSummary{
			Code:      v.Code,
			Phase:     string(v.Phase),
			Round:     v.Round,
			MaxRounds: v.MaxRounds,
			Players:   v.Players,
			Connected: v.Connected,
		})
	}
}

// RoomHistory works for closed rooms too; the code only has to be well formed.
func RoomHistory(history History, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := strings.ToUpper(chi.URLParam(r, "code"))
		games, err := history.RecentGames(r.Context(), code, historyLimit)
		if err != nil {
			log.Error("load history", zap.String("room", code), zap.Error(err))
			http.Error(w, "failed to load history", http.StatusInternalServerError)
			return
		}
		if games == nil {
			games = []protocol.GameRecord{}
		}
		writeJSON(w, http.StatusOK, games)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func lookup(w http.ResponseWriter, r *http.Request, h *hub.Hub) (*lobby.Lobby, bool) {
	code := strings.ToUpper(chi.URLParam(r, "code"))
	lb, err := h.Get(r.Context(), code)
	if err != nil {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return nil, false
	}
	if lb == nil {
		http.Error(w, "room not found", http.StatusNotFound)
		return nil, false
	}
	return lb, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
