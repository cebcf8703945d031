package httpapi

import (
	"net/http"
	"time"

	"github.com/DoyleJ11/sketchroom/internal/hub"
	"github.com/DoyleJ11/sketchroom/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type Options struct {
	WS      ws.Config
	History History
	Logger  *zap.Logger
}

func SetupRoutes(h *hub.Hub, opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	// Public routes
	r.Get("/healthz", Healthz)
	r.Post("/rooms", CreateRoom(h, log))
	r.Route("/rooms/{code}", func(r chi.Router) {
		r.Get("/", GetRoom(h))
		r.Get("/history", RoomHistory(opts.History, log))
		r.Get("/ws", ws.Handler(h, opts.WS, log))
	})
	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
