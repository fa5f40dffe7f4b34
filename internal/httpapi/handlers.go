package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/pongarena/backend/internal/hub"
	"github.com/pongarena/backend/internal/match"
	"github.com/pongarena/backend/internal/tournament"
)

type createMatchRequest struct {
	Mode string `json:"mode"` // "casual" (default) or "ai"
}

type createMatchResponse struct {
	ID string `json:"id"`
}

func CreateMatch(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createMatchRequest
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req) // empty body means casual
		}

		mode := match.ModeCasual
		switch req.Mode {
		case "", "casual":
		case "ai":
			mode = match.ModeAI
		default:
			http.Error(w, "unknown mode", http.StatusBadRequest)
			return
		}

		reply := make(chan *match.Session, 1)
		h.Inbox() <- hub.CreateMatch{Mode: mode, Reply: reply}
		session := <-reply
		if session == nil {
			http.Error(w, "failed to create match", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(createMatchResponse{ID: session.ID()})
	}
}

type createTournamentRequest struct {
	Size    int    `json:"size"` // 4, 8 or 16
	Creator string `json:"creator"`
}

type createTournamentResponse struct {
	ID string `json:"id"`
}

func CreateTournament(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createTournamentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request body", http.StatusBadRequest)
			return
		}

		reply := make(chan *tournament.Room, 1)
		h.Inbox() <- hub.CreateRoom{Size: req.Size, Creator: req.Creator, Reply: reply}
		room := <-reply
		if room == nil {
			http.Error(w, tournament.ErrBadSize.Error(), http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(createTournamentResponse{ID: room.ID()})
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
