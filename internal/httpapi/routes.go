package httpapi

import (
	"net/http"
	"time"

	"github.com/DoyleJ11/loto-server/internal/hub"
	"github.com/DoyleJ11/loto-server/internal/stats"
	"github.com/DoyleJ11/loto-server/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type Deps struct {
	Hub            *hub.Hub
	Stats          stats.Reader
	Logger         *zap.Logger
	AllowedOrigins []string
}

func SetupRoutes(d Deps) http.Handler {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	reader := d.Stats
	if reader == nil {
		reader = stats.Nop{}
	}
	a := &api{stats: reader, log: log.Named("http")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(a.log))
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(d.Hub, ws.Options{OriginPatterns: d.AllowedOrigins, Logger: log}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/leaderboard", a.leaderboard)
		r.Get("/stats", a.totals)
		r.Get("/history", a.history)
	})
	return r
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
