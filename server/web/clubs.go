package web

import (
	"context"
	"net/http"

	"github.com/topi314/clubhouse/server/clubs"
)

type transferAdminRequest struct {
	UserID string `json:"userId"`
}

func (h *handler) ListClubs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	allClubs, err := h.Clubs.Directory.ListClubs(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, allClubs)
}

func (h *handler) CreateClub(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	actorID, ok := actor(w, r)
	if !ok {
		return
	}

	var rq clubs.CreateClubInput
	if err := decodeJSON(r, &rq); err != nil {
		writeError(ctx, w, err)
		return
	}

	club, err := h.Clubs.Directory.CreateClub(ctx, actorID, rq)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusCreated, club)
}

func (h *handler) GetClub(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	club, err := h.Clubs.Directory.GetClub(ctx, r.PathValue("club_id"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, club)
}

func (h *handler) EditClub(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	actorID, ok := actor(w, r)
	if !ok {
		return
	}

	var rq clubs.EditClubInput
	if err := decodeJSON(r, &rq); err != nil {
		writeError(ctx, w, err)
		return
	}

	club, err := h.Clubs.Directory.EditClub(ctx, r.PathValue("club_id"), actorID, rq)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, club)
}

func (h *handler) TransferAdmin(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	actorID, ok := actor(w, r)
	if !ok {
		return
	}

	var rq transferAdminRequest
	if err := decodeJSON(r, &rq); err != nil {
		writeError(ctx, w, err)
		return
	}

	clubID := r.PathValue("club_id")
	if err := h.Clubs.Directory.TransferAdmin(ctx, clubID, actorID, rq.UserID); err != nil {
		writeError(ctx, w, err)
		return
	}

	club, err := h.Clubs.Directory.GetClub(ctx, clubID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, club)
}

func (h *handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	memberships, err := h.Clubs.Ledger.ListMembers(ctx, r.PathValue("club_id"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, memberships)
}

func (h *handler) JoinClub(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	actorID, ok := actor(w, r)
	if !ok {
		return
	}

	membership, err := h.Clubs.Ledger.Join(ctx, actorID, r.PathValue("club_id"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusCreated, membership)
}

// RemoveMember lets a user leave a club or the club admin remove a member.
func (h *handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	actorID, ok := actor(w, r)
	if !ok {
		return
	}

	clubID := r.PathValue("club_id")
	userID := r.PathValue("user_id")

	var err error
	if userID == actorID {
		err = h.Clubs.Ledger.Leave(ctx, userID, clubID)
	} else {
		err = h.Clubs.Ledger.RemoveMember(ctx, clubID, userID, actorID)
	}
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	actorID, ok := actor(w, r)
	if !ok {
		return
	}

	var rq clubs.CreatePostInput
	if err := decodeJSON(r, &rq); err != nil {
		writeError(ctx, w, err)
		return
	}

	post, err := h.Clubs.Directory.CreatePost(ctx, r.PathValue("club_id"), actorID, rq)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusCreated, post)
}
