package api

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"parcel/internal/logger"
)

type Router struct {
	chi    *chi.Mux
	apiKey string
}

// NewRouter builds the control API router. Cross-origin requests are only
// answered for the listed origins; with none, no CORS headers are sent.
func NewRouter(apiKey string, origins []string, l *zap.Logger) *Router {
	r := chi.NewRouter()

	r.Use(logger.Middleware(l.With(zap.String("component", "api"))))
	r.Use(middleware.Recoverer)
	if len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", HeaderAPIKey},
			ExposedHeaders: []string{"Link"},
			MaxAge:         300,
		}))
	}

	return &Router{
		chi:    r,
		apiKey: apiKey,
	}
}

// OriginPatterns turns CORS origins into the host patterns the WebSocket
// handler matches against.
func OriginPatterns(origins []string) []string {
	var patterns []string
	for _, o := range origins {
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			continue
		}
		patterns = append(patterns, u.Host)
	}
	return patterns
}

func (rt *Router) Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rt.apiKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get(HeaderAPIKey)
		if key == "" {
			// Browsers cannot set headers on EventSource or WebSocket.
			key = r.URL.Query().Get(ParamToken)
		}

		if key != rt.apiKey {
			sendError(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rt *Router) Handler() http.Handler {
	return rt.chi
}

func (rt *Router) MountV1(handler http.Handler) {
	rt.chi.Mount("/api/v1", handler)
}

// Handlers groups everything served under /api/v1.
type Handlers struct {
	Uploads *UploadHandler
	Stats   *StatsHandler
	Events  *EventHandler
	WS      *WSHandler
}

// V1 builds the authenticated /api/v1 subtree.
func (rt *Router) V1(h Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(rt.Auth)
	r.Mount("/uploads", h.Uploads.Routes())
	if h.Stats != nil {
		r.Mount("/stats", h.Stats.Routes())
	}
	if h.Events != nil {
		r.Mount("/events", h.Events.Routes())
	}
	if h.WS != nil {
		r.Handle("/ws", h.WS)
	}
	return r
}
