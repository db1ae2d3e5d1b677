package http

import (
	"net/http"
	"time"

	"friction-gate/internal/app"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions configures the HTTP surface.
type RouterOptions struct {
	// AllowedOrigins lists CORS origins; empty allows any origin.
	AllowedOrigins []string
	// RequestTimeout bounds the JSON API handlers. The websocket feed is exempt.
	RequestTimeout time.Duration
}

// NewRouter mounts the gate API, the websocket feed and the health check.
func NewRouter(service *app.GateService, opts RouterOptions) http.Handler {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	api := NewAPIHandler(service)
	ws := NewWSHandler(service, origins)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		ExposedHeaders: []string{"Content-Length"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(ar chi.Router) {
		ar.Use(middleware.Timeout(timeout))
		ar.Post("/submit", api.Submit)
		ar.Post("/verify", api.Verify)
		ar.Get("/sessions/{quizID}/comment", api.Reveal)
		ar.Get("/comments", api.Comments)
	})

	r.Get("/ws/feed", ws.ServeWS)
	return r
}
