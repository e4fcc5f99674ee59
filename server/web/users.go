package web

import (
	"context"
	"net/http"

	"github.com/topi314/clubhouse/server/clubs"
)

type ensureUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// EnsureUser is called on the first profile load of a user.
func (h *handler) EnsureUser(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	userID := r.PathValue("user_id")

	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	if actorID != userID {
		writeError(ctx, w, clubs.ErrNotAuthorized)
		return
	}

	var rq ensureUserRequest
	if err := decodeJSON(r, &rq); err != nil {
		writeError(ctx, w, err)
		return
	}

	user, err := h.Clubs.Directory.EnsureUser(ctx, userID, rq.Username, rq.Email)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, user)
}

func (h *handler) GetUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, err := h.Clubs.Directory.GetUser(ctx, r.PathValue("user_id"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, user)
}

func (h *handler) GetUserClubs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	memberships, err := h.Clubs.Ledger.ListClubsOf(ctx, r.PathValue("user_id"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, memberships)
}
