package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prudhvinik1/trackerlive/internal/realtime"
	"github.com/prudhvinik1/trackerlive/internal/services"
)

type RouterConfig struct {
	Hub            *realtime.Hub
	Notifications  *services.NotificationService
	Tokens         *services.TokenService
	Gatherer       prometheus.Gatherer
	ClientOptions  realtime.ClientOptions
	AllowedOrigins []string
	Logger         *slog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ClientOptions.Logger == nil {
		cfg.ClientOptions.Logger = cfg.Logger
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	if cfg.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	router.Handle("/ws", NewWebSocketHandler(cfg.Hub, cfg.Tokens, cfg.ClientOptions, cfg.AllowedOrigins, cfg.Logger))

	router.Route("/api", func(r chi.Router) {
		r.Use(RequireUser(cfg.Tokens))
		r.Mount("/notifications", NewNotificationHandler(cfg.Notifications, cfg.Logger).Routes())
		r.Get("/presence/{userId}", NewPresenceHandler(cfg.Hub).get)
	})

	return router
}
