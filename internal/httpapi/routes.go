package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/cyberlab-sim/internal/auth"
	"github.com/DoyleJ11/cyberlab-sim/internal/hub"
	"github.com/DoyleJ11/cyberlab-sim/internal/telemetry"
	"github.com/DoyleJ11/cyberlab-sim/internal/ws"
	"github.com/DoyleJ11/cyberlab-sim/pkg/protocol"
)

type Deps struct {
	Hub               *hub.Hub
	Events            EventLister // nil serves events from memory
	DefaultDifficulty protocol.Difficulty
	WS                ws.Options // its Verifier also guards lobby creation
	Log               *zap.Logger
}

func SetupRoutes(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	d.WS.Log = d.Log
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(d.Log))

	// Public routes
	r.Get("/healthz", Healthz)
	r.Handle("/metrics", telemetry.MetricsHandler())
	r.Get("/lobbies/{code}", instrument("/lobbies/{code}", GetLobby(d.Hub)))
	r.Get("/lobbies/{code}/events", instrument("/lobbies/{code}/events", LobbyEvents(d.Hub, d.Events)))
	r.Get("/simulation/{lobbyCode}", instrument("/simulation/{lobbyCode}", ws.Handler(d.Hub, d.WS)))

	// Instructor routes
	r.Group(func(r chi.Router) {
		if d.WS.Verifier != nil {
			r.Use(requireToken(d.WS.Verifier))
		}
		r.Post("/lobbies", instrument("/lobbies", CreateLobby(d.Hub, d.DefaultDifficulty, d.Log)))
	})
	return r
}

func instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return telemetry.Instrument(route, h).ServeHTTP
}

func requireToken(v *auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := v.Verify(auth.TokenFromRequest(r)); err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
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
