package web

import (
	"net/http"

	"github.com/topi314/clubhouse/internal/middlewares"
	"github.com/topi314/clubhouse/server"
)

type handler struct {
	*server.Server
}

func Routes(srv *server.Server) http.Handler {
	h := &handler{
		Server: srv,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.Health)

	mux.HandleFunc("PUT /api/v1/users/{user_id}", h.EnsureUser)
	mux.HandleFunc("GET /api/v1/users/{user_id}", h.GetUser)
	mux.HandleFunc("GET /api/v1/users/{user_id}/clubs", h.GetUserClubs)
	mux.HandleFunc("GET /api/v1/users/{user_id}/feed", h.GetFeed)
	mux.HandleFunc("GET /api/v1/users/{user_id}/feed/stream", h.StreamFeed)

	mux.HandleFunc("GET  /api/v1/clubs", h.ListClubs)
	mux.HandleFunc("POST /api/v1/clubs", h.CreateClub)
	mux.HandleFunc("GET   /api/v1/clubs/{club_id}", h.GetClub)
	mux.HandleFunc("PATCH /api/v1/clubs/{club_id}", h.EditClub)
	mux.HandleFunc("POST /api/v1/clubs/{club_id}/admin", h.TransferAdmin)

	mux.HandleFunc("GET    /api/v1/clubs/{club_id}/members", h.ListMembers)
	mux.HandleFunc("POST   /api/v1/clubs/{club_id}/members", h.JoinClub)
	mux.HandleFunc("DELETE /api/v1/clubs/{club_id}/members/{user_id}", h.RemoveMember)

	mux.HandleFunc("GET  /api/v1/clubs/{club_id}/events", h.ListEvents)
	mux.HandleFunc("POST /api/v1/clubs/{club_id}/events", h.CreateEvent)
	mux.HandleFunc("POST /api/v1/clubs/{club_id}/posts", h.CreatePost)

	mux.HandleFunc("GET   /api/v1/events/{event_id}", h.GetEvent)
	mux.HandleFunc("PATCH /api/v1/events/{event_id}", h.UpdateEvent)
	mux.HandleFunc("POST   /api/v1/events/{event_id}/registrations", h.Register)
	mux.HandleFunc("DELETE /api/v1/events/{event_id}/registrations/{user_id}", h.Unregister)

	mux.HandleFunc("GET  /api/v1/sweep", h.LastSweep)
	mux.HandleFunc("POST /api/v1/sweep", h.Sweep)

	mux.HandleFunc("/", h.NotFound)

	return middlewares.Logger(middlewares.NoStore(identity(mux)))
}

func (h *handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusNotFound, errorResponse{Error: "not found"})
}

func (h *handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}
