package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pongarena/backend/internal/hub"
	"github.com/pongarena/backend/internal/ws"
)

func SetupRoutes(h *hub.Hub, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Post("/matches", CreateMatch(h))
	r.Post("/tournaments", CreateTournament(h))
	r.Get("/ws/match", ws.MatchHandler(h, log))
	r.Get("/ws/tournament", ws.TournamentHandler(h, log))
	r.Get("/healthz", Healthz)
	return r
}
