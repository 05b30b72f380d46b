package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/shodhai/speaking-agent/backend/internal/config"
	agentHandler "github.com/shodhai/speaking-agent/backend/internal/handler/agent"
	"github.com/shodhai/speaking-agent/backend/internal/handler/ws"
	middlewarePkg "github.com/shodhai/speaking-agent/backend/internal/middleware"
	agentService "github.com/shodhai/speaking-agent/backend/internal/service/agent"
	"github.com/shodhai/speaking-agent/backend/internal/service/room"
)

// NewRouter wires HTTP routes to core services. rooms may be nil when
// no media room provider is configured.
func NewRouter(registry *agentService.Registry, rooms *room.Client, cfg config.AgentConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	agents := agentHandler.New(registry, rooms)
	gateway := ws.New(registry, cfg)

	r.Get("/health", agents.HandleHealth)

	r.Route("/api", func(api chi.Router) {
		agents.RegisterRoutes(api)
	})

	gateway.RegisterRoutes(r)

	return r
}
