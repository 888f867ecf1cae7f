package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/lol-lobby-client/internal/auth"
	"github.com/DoyleJ11/lol-lobby-client/internal/hub"
	"github.com/DoyleJ11/lol-lobby-client/internal/ws"
)

func SetupRoutes(h *hub.Hub, accounts *auth.Accounts, iss *auth.Issuer, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	hd := &handlers{hub: h, log: log.Named("http")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLog(hd.log))

	// Public routes
	r.Get("/healthz", hd.Healthz)
	r.Get("/ws", ws.Handler(h, iss, log))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", Login(accounts, iss))

		r.Group(func(r chi.Router) {
			r.Use(requireUser(iss))
			r.Get("/auth/me", Me)

			r.Get("/rooms", hd.ListRooms)
			r.Post("/rooms", hd.CreateRoom)
			r.Route("/rooms/{roomID}", func(r chi.Router) {
				r.Get("/", hd.RoomDetail)
				r.Post("/kick", hd.Kick)
				r.Post("/start", hd.StartGame)
				r.Post("/end", hd.EndGame)
				r.Put("/settings", hd.UpdateSettings)
				r.Post("/teams", hd.AssignTeam)
				r.Get("/messages", hd.RoomMessages)
				r.Post("/messages", hd.PostRoomMessage)
			})

			r.Get("/lobby/chat", hd.LobbyMessages)
			r.Post("/lobby/chat", hd.PostLobbyMessage)
		})
	})
	return r
}

func requestLog(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
