package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/unclebandit/dripline/internal/controller"
	"github.com/unclebandit/dripline/internal/handler"
)

// Router builds the HTTP API around the app's services.
func (a *App) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(a.Metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: a.Config.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/healthz", a.health)
	r.Handle("/metrics", a.Metrics.Handler())

	controller.NewCampaignController(a.Campaigns, a.Engine, a.Logger.Named("http")).RegisterRoutes(r)
	handler.NewReplyHandler(a.Engine, a.Queue, a.Logger.Named("http")).RegisterRoutes(r)
	return r
}

func (a *App) health(w http.ResponseWriter, r *http.Request) {
	if a.DB != nil {
		if err := a.DB.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
