package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/SluiooktueSvg/ia/internal/handler/chat"
	"github.com/SluiooktueSvg/ia/internal/handler/stream"
	middlewarePkg "github.com/SluiooktueSvg/ia/internal/middleware"
	"github.com/SluiooktueSvg/ia/internal/service/session"
	"github.com/SluiooktueSvg/ia/pkg/utils"
)

// NewRouter wires HTTP routes to the session controller.
func NewRouter(controller *session.Controller, hub *stream.PlayerHub) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	chatHandler := chat.New(controller)
	streamHandler := stream.New(controller, hub)

	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
		streamHandler.RegisterRoutes(api)

		api.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	})

	return r
}
